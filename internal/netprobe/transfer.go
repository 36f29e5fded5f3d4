package netprobe

import (
	"bytes"
	"context"
	"crypto/rand"
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
)

const (
	downloadByteCap   = 10_000_000
	uploadPayloadSize = 2_000_000
)

var defaultDownloadURLs = []string{
	"http://speedtest.tele2.net/10MB.zip",
	"https://speed.cloudflare.com/__down?bytes=10000000",
	"http://ipv4.download.thinkbroadband.com/10MB.zip",
}

var defaultUploadURLs = []string{
	"https://httpbin.org/post",
	"https://postman-echo.com/post",
}

// transferTest is the strategy of last resort for throughput: time a plain
// HTTP transfer against a short list of well-known endpoints. Every attempt
// is best-effort; total failure yields 0, not an error.
type transferTest struct {
	client       *http.Client
	downloadURLs []string
	uploadURLs   []string
}

func newTransferTest(timeout time.Duration) *transferTest {
	return &transferTest{
		client: &http.Client{
			Timeout: timeout,
		},
		downloadURLs: defaultDownloadURLs,
		uploadURLs:   defaultUploadURLs,
	}
}

// download returns Mbit/s measured over a capped byte budget, or 0
func (t *transferTest) download(ctx context.Context) float64 {
	for _, url := range t.downloadURLs {
		mbps, err := t.downloadOne(ctx, url)
		if err != nil {
			logger.Debug().Err(err).Str("url", url).Msg("Download test endpoint failed")
			continue
		}

		return mbps
	}

	logger.Warn().Msg("All download test endpoints failed")

	return 0
}

func (t *transferTest) downloadOne(ctx context.Context, url string) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	total, err := io.Copy(io.Discard, io.LimitReader(resp.Body, downloadByteCap))
	if err != nil && total == 0 {
		return 0, err
	}

	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 || total == 0 {
		return 0, errors.New().New(ErrTransferFailed)
	}

	return float64(total) * 8 / elapsed / 1_000_000, nil
}

// upload POSTs a fixed-size random payload and returns Mbit/s, or 0
func (t *transferTest) upload(ctx context.Context) float64 {
	payload := make([]byte, uploadPayloadSize)
	if _, err := rand.Read(payload); err != nil {
		logger.Warn().Err(err).Msg("Upload payload generation failed")
		return 0
	}

	for _, url := range t.uploadURLs {
		mbps, err := t.uploadOne(ctx, url, payload)
		if err != nil {
			logger.Debug().Err(err).Str("url", url).Msg("Upload test endpoint failed")
			continue
		}

		return mbps
	}

	logger.Warn().Msg("All upload test endpoints failed")

	return 0
}

func (t *transferTest) uploadOne(ctx context.Context, url string, payload []byte) (float64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/octet-stream")

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return 0, errors.New().WithData(ErrTransferFailed, resp.Status)
	}

	elapsed := time.Since(start).Seconds()
	if elapsed <= 0 {
		return 0, errors.New().New(ErrTransferFailed)
	}

	return float64(len(payload)) * 8 / elapsed / 1_000_000, nil
}
