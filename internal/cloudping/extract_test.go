package cloudping

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolveRegion(t *testing.T) {
	tests := []struct {
		name  string
		probe map[string]any
		want  string
	}{
		{
			"country code object",
			map[string]any{"location": map[string]any{"country": map[string]any{"code": "de"}}},
			"eu",
		},
		{
			"country string",
			map[string]any{"location": map[string]any{"country": "US"}},
			"us",
		},
		{
			"country name",
			map[string]any{"location": map[string]any{"country": map[string]any{"name": "China"}}},
			"asia",
		},
		{
			"countryCode key",
			map[string]any{"location": map[string]any{"countryCode": "cn"}},
			"asia",
		},
		{
			"country beats continent",
			map[string]any{"location": map[string]any{"country": "DE", "continent": "AS"}},
			"eu",
		},
		{
			"continent fallback EU",
			map[string]any{"location": map[string]any{"country": "FR", "continent": "EU"}},
			"eu",
		},
		{
			"continent fallback south america",
			map[string]any{"location": map[string]any{"country": "BR", "continent": map[string]any{"code": "SA"}}},
			"us",
		},
		{
			"continent fallback asia",
			map[string]any{"location": map[string]any{"country": "JP", "continent": "AS"}},
			"asia",
		},
		{
			"location at probe top level",
			map[string]any{"country": "US"},
			"us",
		},
		{
			"unmapped probe dropped",
			map[string]any{"location": map[string]any{"country": "AU", "continent": "OC"}},
			"",
		},
		{
			"no metadata",
			map[string]any{},
			"",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, resolveRegion(tt.probe))
		})
	}
}

func TestExtractAvgMS(t *testing.T) {
	tests := []struct {
		name   string
		result map[string]any
		want   float64
		ok     bool
	}{
		{
			"stats avg",
			map[string]any{"stats": map[string]any{"avg": 12.5}},
			12.5, true,
		},
		{
			"stats nested rtt group",
			map[string]any{"stats": map[string]any{"rtt": map[string]any{"mean": 8.0}}},
			8.0, true,
		},
		{
			"timings map",
			map[string]any{"timings": map[string]any{"average": 20.0}},
			20.0, true,
		},
		{
			"timings list of numbers",
			map[string]any{"timings": []any{10.0, 20.0, 30.0}},
			20.0, true,
		},
		{
			"timings list of objects",
			map[string]any{"timings": []any{
				map[string]any{"time": 5.0},
				map[string]any{"ms": 15.0},
			}},
			10.0, true,
		},
		{
			"raw output fallback",
			map[string]any{"rawOutput": "rtt min/avg/max/mdev = 3.758/3.894/4.051/0.120 ms"},
			3.894, true,
		},
		{
			"stats preferred over raw output",
			map[string]any{
				"stats":     map[string]any{"avg": 1.0},
				"rawOutput": "rtt min/avg/max/mdev = 9/9/9/9 ms",
			},
			1.0, true,
		},
		{
			"nothing usable",
			map[string]any{"rawOutput": "request timed out"},
			0, false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := extractAvgMS(tt.result)
			require.Equal(t, tt.ok, ok)
			if tt.ok {
				assert.InDelta(t, tt.want, got, 0.001)
			}
		})
	}
}
