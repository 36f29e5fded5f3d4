// Package agent runs the two collection loops against one shared upload
// queue and coordinates their shutdown.
package agent

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/mutker/netpulse/internal/cloudping"
	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
	"codeberg.org/mutker/netpulse/internal/netprobe"
	"codeberg.org/mutker/netpulse/internal/sample"
	"codeberg.org/mutker/netpulse/internal/telemetry"
)

const shutdownTimeout = 10 * time.Second

// NetworkCollector produces one network snapshot per tick
type NetworkCollector interface {
	Collect(ctx context.Context, useCache bool) netprobe.Metrics
}

// CloudCollector produces one set of region latencies per tick
type CloudCollector interface {
	Measure(ctx context.Context) cloudping.Result
}

// Queue is the shared durable delivery pipeline
type Queue interface {
	Enqueue(s sample.Sample) error
	Flush(ctx context.Context) (int, error)
}

// Config for the agent loops
type Config struct {
	DeviceID      string
	Interval      time.Duration
	CloudInterval time.Duration
}

// Agent owns the two periodic loops. Both loops self-correct for collection
// duration and observe the same cancellation signal at every sleep boundary.
type Agent struct {
	cfg     Config
	network NetworkCollector
	cloud   CloudCollector
	queue   Queue
	history telemetry.Recorder
}

func New(cfg Config, network NetworkCollector, cloud CloudCollector, q Queue, history telemetry.Recorder) (*Agent, error) {
	errFactory := errors.New()

	if cfg.DeviceID == "" {
		return nil, errFactory.WithMessage(errors.ErrInvalidDeviceID, "device_id is required to run the agent")
	}
	if cfg.Interval <= 0 || cfg.CloudInterval <= 0 {
		return nil, errFactory.New(errors.ErrInvalidInterval)
	}
	if history == nil {
		history = noHistory{}
	}

	return &Agent{
		cfg:     cfg,
		network: network,
		cloud:   cloud,
		queue:   q,
		history: history,
	}, nil
}

type noHistory struct{}

func (noHistory) Record(context.Context, *sample.Sample) error { return nil }
func (noHistory) Close() error                                 { return nil }

// Run starts both loops and blocks until ctx is cancelled and both loops have
// joined, or the shutdown timeout expires.
func (a *Agent) Run(ctx context.Context) error {
	errFactory := errors.New()

	logger.Info().
		Dur("interval", a.cfg.Interval).
		Dur("cloud_interval", a.cfg.CloudInterval).
		Msg("Agent started")

	var wg sync.WaitGroup
	wg.Add(2)

	go func() {
		defer wg.Done()
		a.loop(ctx, "network", a.cfg.Interval, a.networkTick)
	}()

	go func() {
		defer wg.Done()
		a.loop(ctx, "cloud", a.cfg.CloudInterval, a.cloudTick)
	}()

	<-ctx.Done()

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		logger.Info().Msg("Agent stopped")
		return nil
	case <-time.After(shutdownTimeout):
		return errFactory.WithMessage(errors.ErrShutdownFailed, "collection loops did not stop in time")
	}
}

// loop runs tick every interval, sleeping max(0, interval-elapsed) so slow
// collections do not compound drift. A tick failure is logged and skipped;
// the loop continues at the next scheduled interval.
func (a *Agent) loop(ctx context.Context, name string, interval time.Duration, tick func(context.Context) error) {
	for {
		if ctx.Err() != nil {
			return
		}

		start := time.Now()
		if err := a.safeTick(ctx, tick); err != nil {
			var appErr errors.Error
			if errors.As(err, &appErr) {
				logger.ErrorWithCode(appErr).Str("loop", name).Msg("Collection tick failed")
			} else {
				logger.Error().Err(err).Str("loop", name).Msg("Collection tick failed")
			}
		}

		remaining := interval - time.Since(start)
		if remaining > 0 {
			timer := time.NewTimer(remaining)
			select {
			case <-timer.C:
			case <-ctx.Done():
				timer.Stop()
				return
			}
		}
	}
}

// safeTick contains tick-level panics so one bad measurement can never crash
// the agent.
func (a *Agent) safeTick(ctx context.Context, tick func(context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("tick panic: %v", r)
		}
	}()

	return tick(ctx)
}

func (a *Agent) networkTick(ctx context.Context) error {
	metrics := a.network.Collect(ctx, false)

	s := sample.NewDesktopNetwork(
		a.cfg.DeviceID,
		metrics.LatencyMS,
		metrics.PacketLossPct,
		metrics.DownMbps,
		metrics.UpMbps,
		metrics.TestMethod,
		metrics.LocalIP,
	)

	return a.deliver(ctx, s)
}

func (a *Agent) cloudTick(ctx context.Context) error {
	result := a.cloud.Measure(ctx)

	s := sample.NewCloudLatency(a.cfg.DeviceID, result.EUMs, result.USMs, result.AsiaMs)

	return a.deliver(ctx, s)
}

// deliver enqueues durably, records local history best-effort, and attempts a
// flush. Queue write failures propagate; delivery failures do not.
func (a *Agent) deliver(ctx context.Context, s sample.Sample) error {
	if err := a.history.Record(ctx, &s); err != nil {
		logger.Warn().Err(err).Msg("History recording failed")
	}

	if err := a.queue.Enqueue(s); err != nil {
		return err
	}

	sent, err := a.queue.Flush(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Queue flush failed")
		return nil
	}
	if sent > 0 {
		logger.Info().Int("sent", sent).Msg("Uploaded queued samples")
	}

	return nil
}
