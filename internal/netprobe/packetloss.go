package netprobe

import (
	"context"
	"time"

	"codeberg.org/mutker/netpulse/internal/logger"
)

// PacketLossProbe measures loss and latency across a redundant set of hosts.
// Per host it walks the strategy chain until one produces a result; across
// hosts it reports the worst loss so a single degraded target does not
// over-report network health.
type PacketLossProbe struct {
	hosts      []string
	packets    int
	strategies []PingStrategy
	debug      bool
}

func NewPacketLossProbe(hosts []string, packets int, timeout time.Duration, debug bool) *PacketLossProbe {
	return &PacketLossProbe{
		hosts:   hosts,
		packets: packets,
		strategies: []PingStrategy{
			newICMPStrategy(timeout),
			newSystemPingStrategy(),
		},
		debug: debug,
	}
}

// Measure returns (lossPercent, avgLatencyMs). Loss is the maximum across
// hosts; latency is the mean of per-host averages computed from successful
// probes only. No configured hosts reports 0/0.
func (p *PacketLossProbe) Measure(ctx context.Context) (float64, float64) {
	if len(p.hosts) == 0 {
		return 0, 0
	}

	maxLoss := 0.0
	latencySum := 0.0
	latencyCount := 0

	for _, host := range p.hosts {
		result := p.measureHost(ctx, host)
		p.debugf("host %s: loss=%.1f%% avg=%.2fms", host, result.LossPct, result.AvgMS)

		if result.LossPct > maxLoss {
			maxLoss = result.LossPct
		}
		if result.AvgMS > 0 {
			latencySum += result.AvgMS
			latencyCount++
		}
	}

	avgLatency := 0.0
	if latencyCount > 0 {
		avgLatency = latencySum / float64(latencyCount)
	}

	return maxLoss, avgLatency
}

func (p *PacketLossProbe) measureHost(ctx context.Context, host string) PingResult {
	for _, strategy := range p.strategies {
		result, err := strategy.Ping(ctx, host, p.packets)
		if err != nil {
			p.debugf("strategy %s failed for %s: %v", strategy.Name(), host, err)
			continue
		}

		return result
	}

	// Every strategy was unavailable. Reporting a healthy 0 here would hide a
	// dead link, so count the host as fully lost.
	logger.Warn().Str("host", host).Msg("All ping strategies unavailable")

	return PingResult{LossPct: 100}
}

func (p *PacketLossProbe) debugf(format string, args ...any) {
	if p.debug {
		logger.Debug().Msgf(format, args...)
	}
}
