package sample_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/netpulse/internal/sample"
)

const testDeviceID = "3e0c63f7-4f1f-4f5c-9307-0b84ab25c8d0"

func TestDesktopNetworkRoundTrip(t *testing.T) {
	s := sample.NewDesktopNetwork(testDeviceID, 12.5, 1.25, 94.2, 18.7, "speedtest", "192.168.1.10")

	line, err := s.Encode()
	require.NoError(t, err)

	decoded, err := sample.Decode(line)
	require.NoError(t, err)

	assert.Equal(t, sample.TypeDesktopNetwork, decoded.Type)
	assert.Equal(t, testDeviceID, decoded.DeviceID)
	assert.WithinDuration(t, s.TS, decoded.TS, time.Millisecond)
	require.NotNil(t, decoded.LatencyMS)
	assert.InDelta(t, 12.5, *decoded.LatencyMS, 0.001)
	require.NotNil(t, decoded.PacketLossPct)
	assert.InDelta(t, 1.25, *decoded.PacketLossPct, 0.001)
	require.NotNil(t, decoded.DownMbps)
	assert.InDelta(t, 94.2, *decoded.DownMbps, 0.001)
	require.NotNil(t, decoded.UpMbps)
	assert.InDelta(t, 18.7, *decoded.UpMbps, 0.001)
	assert.Equal(t, "speedtest", decoded.TestMethod)
	assert.Equal(t, "192.168.1.10", decoded.IP)
}

func TestCloudLatencyAbsentFieldStaysAbsent(t *testing.T) {
	eu := 12.3
	asia := 88.1
	s := sample.NewCloudLatency(testDeviceID, &eu, nil, &asia)

	line, err := s.Encode()
	require.NoError(t, err)
	assert.NotContains(t, string(line), "latency_us_ms")

	decoded, err := sample.Decode(line)
	require.NoError(t, err)

	require.NotNil(t, decoded.LatencyEUMS)
	assert.InDelta(t, 12.3, *decoded.LatencyEUMS, 0.001)
	assert.Nil(t, decoded.LatencyUSMS, "absent region latency must stay absent, not become 0.0")
	require.NotNil(t, decoded.LatencyAsiaMS)
	assert.InDelta(t, 88.1, *decoded.LatencyAsiaMS, 0.001)
}

func TestCloudLatencyNullFieldDecodesAbsent(t *testing.T) {
	line := []byte(`{"sample_type":"cloud_latency","device_id":"` + testDeviceID + `","ts":"2026-08-30T10:00:00Z","latency_eu_ms":12.3,"latency_us_ms":null,"latency_asia_ms":88.1}`)

	decoded, err := sample.Decode(line)
	require.NoError(t, err)

	assert.Nil(t, decoded.LatencyUSMS)
	require.NotNil(t, decoded.LatencyEUMS)
	assert.InDelta(t, 12.3, *decoded.LatencyEUMS, 0.001)
}

func TestDecodeMissingTimestampDefaultsToNow(t *testing.T) {
	line := []byte(`{"sample_type":"desktop_network","device_id":"` + testDeviceID + `"}`)

	decoded, err := sample.Decode(line)
	require.NoError(t, err)

	assert.WithinDuration(t, time.Now().UTC(), decoded.TS, 5*time.Second)
}

func TestDecodeRejectsBadInput(t *testing.T) {
	tests := []struct {
		name string
		line string
	}{
		{"invalid json", `{not json`},
		{"missing device_id", `{"sample_type":"desktop_network","ts":"2026-08-30T10:00:00Z"}`},
		{"unparsable device_id", `{"sample_type":"desktop_network","device_id":"not-a-uuid"}`},
		{"unknown sample_type", `{"sample_type":"bogus","device_id":"` + testDeviceID + `"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := sample.Decode([]byte(tt.line))
			assert.Error(t, err)
		})
	}
}

func TestFiniteDropsNonFiniteValues(t *testing.T) {
	assert.Nil(t, sample.Finite(math.NaN()))
	assert.Nil(t, sample.Finite(math.Inf(1)))
	assert.Nil(t, sample.Finite(math.Inf(-1)))
	require.NotNil(t, sample.Finite(0))
	assert.Equal(t, 0.0, *sample.Finite(0))
}

func TestNewDesktopNetworkSanitizesNaN(t *testing.T) {
	s := sample.NewDesktopNetwork(testDeviceID, math.NaN(), 0, 1.5, 0, "unavailable", "127.0.0.1")

	line, err := s.Encode()
	require.NoError(t, err)

	decoded, err := sample.Decode(line)
	require.NoError(t, err)

	assert.Nil(t, decoded.LatencyMS)
	require.NotNil(t, decoded.DownMbps)
}
