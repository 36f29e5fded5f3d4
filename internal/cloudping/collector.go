package cloudping

import (
	"context"
	"time"

	"codeberg.org/mutker/netpulse/internal/logger"
)

const (
	initialPollDelay = 500 * time.Millisecond
	pollDelayStep    = 500 * time.Millisecond
	maxPollDelay     = 2 * time.Second
)

// Result holds the three optional region latencies. A region whose probes all
// failed or went unmapped reports nil, never zero.
type Result struct {
	EUMs   *float64
	USMs   *float64
	AsiaMs *float64
}

// state of the measurement job lifecycle
type state int

const (
	stateSubmit state = iota
	statePolling
	stateResolved
	stateTimedOut
	stateFailed
)

// clock abstracts time so the polling loop can be tested without real delays
type clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) Sleep(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-ctx.Done():
	}
}

// Config for one collector instance
type Config struct {
	Target     string
	Packets    int
	LocEU      string
	LocUS      string
	LocAsia    string
	PollBudget time.Duration
}

// Collector drives one asynchronous multi-region ping job to completion per
// Measure call: submit, poll with growing delays until the job leaves its
// in-progress state or the wall-clock budget runs out, then bucket the probe
// results into logical regions.
type Collector struct {
	client *Client
	cfg    Config
	clock  clock
}

func NewCollector(client *Client, cfg Config) *Collector {
	if cfg.Packets < 1 {
		cfg.Packets = 1
	}
	if cfg.Packets > 10 {
		cfg.Packets = 10
	}
	if cfg.PollBudget <= 0 {
		cfg.PollBudget = 15 * time.Second
	}

	return &Collector{
		client: client,
		cfg:    cfg,
		clock:  realClock{},
	}
}

// Measure runs one job and returns per-region latencies. Any failure along
// the way degrades to all-absent metrics; it never returns an error because
// cloud latency is an optional signal.
func (c *Collector) Measure(ctx context.Context) Result {
	current := stateSubmit

	id, err := c.submit(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Cloud measurement submit failed")
		current = stateFailed
	} else {
		current = statePolling
	}

	var measurement *Measurement
	if current == statePolling {
		measurement, current = c.poll(ctx, id)
	}

	switch current {
	case stateResolved:
		return c.extract(measurement)
	case stateTimedOut:
		logger.Warn().Dur("budget", c.cfg.PollBudget).Msg("Cloud measurement poll budget exceeded")
	case stateFailed:
	default:
	}

	return Result{}
}

func (c *Collector) submit(ctx context.Context) (string, error) {
	req := MeasurementRequest{
		Type:               "ping",
		Target:             c.cfg.Target,
		Locations:          c.locations(),
		MeasurementOptions: MeasurementOptions{Packets: c.cfg.Packets},
	}

	return c.client.CreateMeasurement(ctx, req)
}

// locations builds the three location selectors, one per logical region.
// Operator overrides are free-form "magic" selectors; the defaults pin
// Germany, US Virginia and China.
func (c *Collector) locations() []Location {
	locations := make([]Location, 0, 3)

	if c.cfg.LocEU != "" {
		locations = append(locations, Location{Magic: c.cfg.LocEU})
	} else {
		locations = append(locations, Location{Country: "DE"})
	}

	if c.cfg.LocUS != "" {
		locations = append(locations, Location{Magic: c.cfg.LocUS})
	} else {
		locations = append(locations, Location{Magic: "US+Virginia"})
	}

	if c.cfg.LocAsia != "" {
		locations = append(locations, Location{Magic: c.cfg.LocAsia})
	} else {
		locations = append(locations, Location{Country: "CN"})
	}

	return locations
}

func (c *Collector) poll(ctx context.Context, id string) (*Measurement, state) {
	deadline := c.clock.Now().Add(c.cfg.PollBudget)
	delay := initialPollDelay

	for c.clock.Now().Before(deadline) {
		if ctx.Err() != nil {
			return nil, stateFailed
		}

		measurement, err := c.client.GetMeasurement(ctx, id)
		if err != nil {
			logger.Warn().Err(err).Str("id", id).Msg("Cloud measurement poll failed")
			return nil, stateFailed
		}

		if !measurement.InProgress() {
			return measurement, stateResolved
		}

		c.clock.Sleep(ctx, delay)
		delay += pollDelayStep
		if delay > maxPollDelay {
			delay = maxPollDelay
		}
	}

	return nil, stateTimedOut
}

func (c *Collector) extract(m *Measurement) Result {
	buckets := map[string][]float64{}

	for _, item := range m.Results {
		region := resolveRegion(item.Probe)
		if region == "" {
			continue
		}

		avg, ok := extractAvgMS(item.Result)
		if !ok {
			continue
		}

		buckets[region] = append(buckets[region], avg)
	}

	return Result{
		EUMs:   bucketAvg(buckets["eu"]),
		USMs:   bucketAvg(buckets["us"]),
		AsiaMs: bucketAvg(buckets["asia"]),
	}
}

func bucketAvg(values []float64) *float64 {
	if len(values) == 0 {
		return nil
	}

	sum := 0.0
	for _, v := range values {
		sum += v
	}
	avg := sum / float64(len(values))

	return &avg
}
