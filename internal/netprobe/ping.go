package netprobe

import (
	"context"
	"time"

	probing "github.com/prometheus-community/pro-bing"
)

// PingResult is one host's loss percentage and the average latency of the
// probes that came back.
type PingResult struct {
	LossPct float64
	AvgMS   float64
}

// PingStrategy is one way of probing a host. Implementations either return a
// result or an error meaning "this strategy is unavailable here"; the caller
// moves on to the next strategy in the chain.
type PingStrategy interface {
	Name() string
	Ping(ctx context.Context, host string, packets int) (PingResult, error)
}

// icmpStrategy probes with in-process ICMP echo requests. Unprivileged UDP
// ICMP works on most Linux hosts but can fail with a permission error on
// restricted platforms, which sends the chain to the external ping utility.
type icmpStrategy struct {
	perPacketTimeout time.Duration
}

func newICMPStrategy(perPacketTimeout time.Duration) *icmpStrategy {
	return &icmpStrategy{perPacketTimeout: perPacketTimeout}
}

func (*icmpStrategy) Name() string {
	return "icmp"
}

func (s *icmpStrategy) Ping(ctx context.Context, host string, packets int) (PingResult, error) {
	pinger, err := probing.NewPinger(host)
	if err != nil {
		return PingResult{}, err
	}

	pinger.Count = packets
	pinger.Timeout = time.Duration(packets)*s.perPacketTimeout + time.Second
	pinger.SetPrivileged(false)

	if err := pinger.RunWithContext(ctx); err != nil {
		return PingResult{}, err
	}

	stats := pinger.Statistics()
	if stats.PacketsSent == 0 {
		return PingResult{LossPct: 100}, nil
	}

	loss := float64(stats.PacketsSent-stats.PacketsRecv) / float64(stats.PacketsSent) * 100
	avg := 0.0
	if stats.PacketsRecv > 0 {
		avg = float64(stats.AvgRtt) / float64(time.Millisecond)
	}

	return PingResult{LossPct: loss, AvgMS: avg}, nil
}
