package sample

import (
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"

	"codeberg.org/mutker/netpulse/internal/errors"
)

// Type discriminates the payload shape of a Sample
type Type string

const (
	TypeDesktopNetwork Type = "desktop_network"
	TypeCloudLatency   Type = "cloud_latency"
)

// Sample is one immutable measurement record, queued for delivery. Payload
// fields are pointers so that a field absent from a queued line stays absent
// after a round trip instead of turning into a false zero.
type Sample struct {
	Type     Type      `json:"sample_type"`
	DeviceID string    `json:"device_id"`
	TS       time.Time `json:"ts"`

	// desktop_network payload
	LatencyMS     *float64 `json:"latency_ms,omitempty"`
	PacketLossPct *float64 `json:"packet_loss_pct,omitempty"`
	DownMbps      *float64 `json:"down_mbps,omitempty"`
	UpMbps        *float64 `json:"up_mbps,omitempty"`
	TestMethod    string   `json:"test_method,omitempty"`
	IP            string   `json:"ip,omitempty"`

	// cloud_latency payload
	LatencyEUMS   *float64 `json:"latency_eu_ms,omitempty"`
	LatencyUSMS   *float64 `json:"latency_us_ms,omitempty"`
	LatencyAsiaMS *float64 `json:"latency_asia_ms,omitempty"`
}

// NewDesktopNetwork builds a desktop_network sample stamped with the current time
func NewDesktopNetwork(deviceID string, latencyMS, packetLossPct, downMbps, upMbps float64, testMethod, ip string) Sample {
	return Sample{
		Type:          TypeDesktopNetwork,
		DeviceID:      deviceID,
		TS:            time.Now().UTC(),
		LatencyMS:     Finite(latencyMS),
		PacketLossPct: Finite(packetLossPct),
		DownMbps:      Finite(downMbps),
		UpMbps:        Finite(upMbps),
		TestMethod:    testMethod,
		IP:            ip,
	}
}

// NewCloudLatency builds a cloud_latency sample stamped with the current time.
// Nil region latencies stay absent.
func NewCloudLatency(deviceID string, eu, us, asia *float64) Sample {
	return Sample{
		Type:          TypeCloudLatency,
		DeviceID:      deviceID,
		TS:            time.Now().UTC(),
		LatencyEUMS:   sanitize(eu),
		LatencyUSMS:   sanitize(us),
		LatencyAsiaMS: sanitize(asia),
	}
}

// Finite returns a pointer to v, or nil when v is NaN or infinite
func Finite(v float64) *float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return nil
	}

	return &v
}

func sanitize(v *float64) *float64 {
	if v == nil {
		return nil
	}

	return Finite(*v)
}

// Validate checks the invariants every persisted sample must hold
func (s *Sample) Validate() error {
	errFactory := errors.New()

	switch s.Type {
	case TypeDesktopNetwork, TypeCloudLatency:
	default:
		return errFactory.WithData(errors.ErrInvalidArgument, string(s.Type))
	}

	if s.DeviceID == "" {
		return errFactory.WithMessage(errors.ErrInvalidDeviceID, "missing device_id")
	}
	if _, err := uuid.Parse(s.DeviceID); err != nil {
		return errFactory.WithData(errors.ErrInvalidDeviceID, s.DeviceID)
	}

	return nil
}

// Encode serializes the sample to one queue line (no trailing newline)
func (s *Sample) Encode() ([]byte, error) {
	errFactory := errors.New()

	line, err := json.Marshal(s)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInternal, err)
	}

	return line, nil
}

// Decode parses one queue line into a Sample. A missing or unparsable
// timestamp defaults to the time of reconstruction.
func Decode(line []byte) (Sample, error) {
	errFactory := errors.New()

	var raw struct {
		Type          Type     `json:"sample_type"`
		DeviceID      string   `json:"device_id"`
		TS            string   `json:"ts"`
		LatencyMS     *float64 `json:"latency_ms"`
		PacketLossPct *float64 `json:"packet_loss_pct"`
		DownMbps      *float64 `json:"down_mbps"`
		UpMbps        *float64 `json:"up_mbps"`
		TestMethod    string   `json:"test_method"`
		IP            string   `json:"ip"`
		LatencyEUMS   *float64 `json:"latency_eu_ms"`
		LatencyUSMS   *float64 `json:"latency_us_ms"`
		LatencyAsiaMS *float64 `json:"latency_asia_ms"`
	}
	if err := json.Unmarshal(line, &raw); err != nil {
		return Sample{}, errFactory.Wrap(errors.ErrInvalidArgument, err)
	}

	ts := time.Now().UTC()
	if raw.TS != "" {
		if parsed, err := time.Parse(time.RFC3339Nano, raw.TS); err == nil {
			ts = parsed
		}
	}

	s := Sample{
		Type:          raw.Type,
		DeviceID:      raw.DeviceID,
		TS:            ts,
		LatencyMS:     sanitize(raw.LatencyMS),
		PacketLossPct: sanitize(raw.PacketLossPct),
		DownMbps:      sanitize(raw.DownMbps),
		UpMbps:        sanitize(raw.UpMbps),
		TestMethod:    raw.TestMethod,
		IP:            raw.IP,
		LatencyEUMS:   sanitize(raw.LatencyEUMS),
		LatencyUSMS:   sanitize(raw.LatencyUSMS),
		LatencyAsiaMS: sanitize(raw.LatencyAsiaMS),
	}

	if err := s.Validate(); err != nil {
		return Sample{}, err
	}

	return s, nil
}
