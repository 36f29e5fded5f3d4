package queue

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/sample"
)

// HTTPSender posts samples as flat JSON objects to the ingestion endpoint.
// Only an explicit 200 from the remote side counts as delivered.
type HTTPSender struct {
	endpoint string
	client   *http.Client
}

func NewHTTPSender(endpoint string, timeout time.Duration) *HTTPSender {
	return &HTTPSender{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

func (s *HTTPSender) Send(ctx context.Context, smp sample.Sample) error {
	errFactory := errors.New()

	body, err := smp.Encode()
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.endpoint, bytes.NewReader(body))
	if err != nil {
		return errFactory.Wrap(ErrDelivery, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return errFactory.Wrap(ErrDelivery, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return errFactory.WithData(ErrDeliveryStatus, resp.Status)
	}

	return nil
}
