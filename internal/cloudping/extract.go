package cloudping

import (
	"regexp"
	"strconv"
	"strings"
)

// Example: rtt min/avg/max/mdev = 3.758/3.894/4.051/0.120 ms
var rawAvgRe = regexp.MustCompile(`min/avg/max[^\d]*([\d.]+/[\d.]+/[\d.]+)`)

// resolveRegion maps a probe's location metadata to a logical region bucket.
// An exact country match wins over the continent fallback; probes that match
// neither are dropped.
func resolveRegion(probe map[string]any) string {
	location := probe
	if loc, ok := probe["location"].(map[string]any); ok {
		location = loc
	}

	switch extractCountryCode(location) {
	case "DE":
		return "eu"
	case "US":
		return "us"
	case "CN":
		return "asia"
	}

	switch extractContinentCode(location) {
	case "EU":
		return "eu"
	case "NA", "SA":
		return "us"
	case "AS":
		return "asia"
	}

	return ""
}

func extractCountryCode(location map[string]any) string {
	switch country := location["country"].(type) {
	case map[string]any:
		for _, key := range []string{"code", "isoCode"} {
			if code, ok := country[key].(string); ok && code != "" {
				return strings.ToUpper(code)
			}
		}
		if name, ok := country["name"].(string); ok && name != "" {
			return mapCountryName(name)
		}
	case string:
		return mapCountryName(country)
	}

	for _, key := range []string{"countryCode", "country_code"} {
		if code, ok := location[key].(string); ok && code != "" {
			return strings.ToUpper(code)
		}
	}

	return ""
}

func mapCountryName(value string) string {
	normalized := strings.ToUpper(strings.TrimSpace(value))
	switch normalized {
	case "GERMANY", "DE":
		return "DE"
	case "UNITED STATES", "UNITED STATES OF AMERICA", "US", "USA":
		return "US"
	case "CHINA", "CN":
		return "CN"
	}
	if len(normalized) == 2 {
		return normalized
	}

	return ""
}

func extractContinentCode(location map[string]any) string {
	switch continent := location["continent"].(type) {
	case map[string]any:
		for _, key := range []string{"code", "isoCode"} {
			if code, ok := continent[key].(string); ok && code != "" {
				return strings.ToUpper(code)
			}
		}
	case string:
		return strings.ToUpper(strings.TrimSpace(continent))
	}

	for _, key := range []string{"continentCode", "continent_code"} {
		if code, ok := location[key].(string); ok && code != "" {
			return strings.ToUpper(code)
		}
	}

	return ""
}

// extractAvgMS pulls an average latency out of whichever result shape the
// service returned: an explicit stats block, a timings map or list, or as a
// last resort the raw diagnostic text.
func extractAvgMS(result map[string]any) (float64, bool) {
	if stats, ok := result["stats"].(map[string]any); ok {
		if avg, ok := avgFromStats(stats); ok {
			return avg, true
		}
	}

	switch timings := result["timings"].(type) {
	case map[string]any:
		for _, key := range []string{"avg", "average", "mean"} {
			if v, ok := asFloat(timings[key]); ok {
				return v, true
			}
		}
	case []any:
		if avg, ok := avgFromTimingList(timings); ok {
			return avg, true
		}
	}

	if raw, ok := result["rawOutput"].(string); ok {
		if avg, ok := parseAvgFromRawOutput(raw); ok {
			return avg, true
		}
	}

	return 0, false
}

func avgFromStats(stats map[string]any) (float64, bool) {
	for _, key := range []string{"avg", "average", "mean"} {
		if v, ok := asFloat(stats[key]); ok {
			return v, true
		}
	}

	for _, groupKey := range []string{"rtt", "latency", "roundTrip"} {
		if group, ok := stats[groupKey].(map[string]any); ok {
			for _, key := range []string{"avg", "average", "mean"} {
				if v, ok := asFloat(group[key]); ok {
					return v, true
				}
			}
		}
	}

	return 0, false
}

func avgFromTimingList(timings []any) (float64, bool) {
	sum := 0.0
	count := 0

	for _, item := range timings {
		if v, ok := asFloat(item); ok {
			sum += v
			count++
			continue
		}
		if entry, ok := item.(map[string]any); ok {
			for _, key := range []string{"time", "ms", "value"} {
				if v, ok := asFloat(entry[key]); ok {
					sum += v
					count++
					break
				}
			}
		}
	}

	if count == 0 {
		return 0, false
	}

	return sum / float64(count), true
}

func parseAvgFromRawOutput(raw string) (float64, bool) {
	m := rawAvgRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}

	parts := strings.Split(m[1], "/")
	if len(parts) < 2 {
		return 0, false
	}

	avg, err := strconv.ParseFloat(parts[1], 64)
	if err != nil {
		return 0, false
	}

	return avg, true
}

func asFloat(v any) (float64, bool) {
	switch value := v.(type) {
	case float64:
		return value, true
	case int:
		return float64(value), true
	}

	return 0, false
}
