package netprobe

import (
	"context"
	"sync"
	"time"

	"github.com/showwin/speedtest-go/speedtest"

	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
)

// Throughput method tags shipped with each sample
const (
	MethodSpeedtest    = "speedtest"
	MethodHTTPTransfer = "http-transfer"
	MethodUnavailable  = "unavailable"
)

const speedtestClientTTL = 300 * time.Second

type cachedServer struct {
	server *speedtest.Server
	at     time.Time
}

// ThroughputProbe measures download and upload speed. The primary strategy is
// a dedicated speed-test server whose discovery is expensive, so the resolved
// server handle is cached with its own TTL. Any failure falls back to a plain
// HTTP transfer test; total failure yields 0, never an error.
type ThroughputProbe struct {
	mu       sync.Mutex
	servers  map[string]cachedServer
	ttl      time.Duration
	timeout  time.Duration
	fallback *transferTest
}

func NewThroughputProbe(timeout time.Duration) *ThroughputProbe {
	return &ThroughputProbe{
		servers:  make(map[string]cachedServer),
		ttl:      speedtestClientTTL,
		timeout:  timeout,
		fallback: newTransferTest(timeout),
	}
}

// MeasureDownload returns the download speed in Mbit/s and the tag of the
// strategy that produced it.
func (p *ThroughputProbe) MeasureDownload(ctx context.Context) (float64, string) {
	if server := p.getServer(ctx, "download"); server != nil {
		err := server.DownloadTestContext(ctx)
		if err == nil {
			return server.DLSpeed.Mbps(), MethodSpeedtest
		}
		logger.Warn().Err(err).Msg("Speedtest download failed")
	}

	mbps := p.fallback.download(ctx)
	if mbps == 0 {
		return 0, MethodUnavailable
	}

	return mbps, MethodHTTPTransfer
}

// MeasureUpload returns the upload speed in Mbit/s
func (p *ThroughputProbe) MeasureUpload(ctx context.Context) float64 {
	if server := p.getServer(ctx, "upload"); server != nil {
		err := server.UploadTestContext(ctx)
		if err == nil {
			return server.ULSpeed.Mbps()
		}
		logger.Warn().Err(err).Msg("Speedtest upload failed")
	}

	return p.fallback.upload(ctx)
}

// getServer returns a cached speed-test server handle, discovering a fresh one
// when the cache is stale. Download and upload keep separate handles so the
// two concurrent tests do not share one server session.
func (p *ThroughputProbe) getServer(ctx context.Context, key string) *speedtest.Server {
	p.mu.Lock()
	cached, ok := p.servers[key]
	p.mu.Unlock()

	if ok && time.Since(cached.at) < p.ttl {
		return cached.server
	}

	server, err := p.discoverServer(ctx)
	if err != nil {
		logger.Warn().Err(err).Msg("Speedtest server discovery failed")
		return nil
	}

	p.mu.Lock()
	p.servers[key] = cachedServer{server: server, at: time.Now()}
	p.mu.Unlock()

	return server
}

func (p *ThroughputProbe) discoverServer(ctx context.Context) (*speedtest.Server, error) {
	errFactory := errors.New()

	client := speedtest.New()
	serverList, err := client.FetchServerListContext(ctx)
	if err != nil {
		return nil, errFactory.Wrap(ErrSpeedtestFailed, err)
	}

	targets, err := serverList.FindServer(nil)
	if err != nil {
		return nil, errFactory.Wrap(ErrSpeedtestFailed, err)
	}
	if len(targets) == 0 {
		return nil, errFactory.New(ErrSpeedtestFailed)
	}

	return targets[0], nil
}
