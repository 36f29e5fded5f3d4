package cloudping

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"codeberg.org/mutker/netpulse/internal/errors"
)

const userAgent = "netpulse-agent/1.0"

// Location selects where a probe should run. Either Magic (a free-form
// location selector) or Country (ISO code) is set, never both.
type Location struct {
	Magic   string `json:"magic,omitempty"`
	Country string `json:"country,omitempty"`
}

// MeasurementRequest is the POST /measurements body
type MeasurementRequest struct {
	Type               string             `json:"type"`
	Target             string             `json:"target"`
	Locations          []Location         `json:"locations"`
	MeasurementOptions MeasurementOptions `json:"measurementOptions"`
}

type MeasurementOptions struct {
	Packets int `json:"packets"`
}

// Measurement is the polled job state. Probe and Result are left as loose
// maps: the service returns several shapes for them and the extraction layer
// deals with each.
type Measurement struct {
	ID      string        `json:"id"`
	Status  string        `json:"status"`
	Results []ProbeResult `json:"results"`
}

type ProbeResult struct {
	Probe  map[string]any `json:"probe"`
	Result map[string]any `json:"result"`
}

// InProgress reports whether the job has not finished yet
func (m *Measurement) InProgress() bool {
	return m.Status == "" || m.Status == "in-progress" || m.Status == "in_progress"
}

// Client talks to the cloud measurement service
type Client struct {
	baseURL string
	token   string
	http    *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		http: &http.Client{
			Timeout: timeout,
		},
	}
}

// CreateMeasurement submits a measurement job and returns its identifier
func (c *Client) CreateMeasurement(ctx context.Context, req MeasurementRequest) (string, error) {
	errFactory := errors.New()

	var created struct {
		ID            string `json:"id"`
		MeasurementID string `json:"measurementId"`
	}
	if err := c.do(ctx, http.MethodPost, c.baseURL, req, &created); err != nil {
		return "", errFactory.Wrap(ErrSubmitFailed, err)
	}

	id := created.ID
	if id == "" {
		id = created.MeasurementID
	}
	if id == "" {
		return "", errFactory.New(ErrNoMeasurement)
	}

	return id, nil
}

// GetMeasurement fetches the current state of a measurement job
func (c *Client) GetMeasurement(ctx context.Context, id string) (*Measurement, error) {
	errFactory := errors.New()

	m := &Measurement{}
	if err := c.do(ctx, http.MethodGet, c.baseURL+"/"+id, nil, m); err != nil {
		return nil, errFactory.Wrap(ErrPollFailed, err)
	}

	return m, nil
}

func (c *Client) do(ctx context.Context, method, url string, body, out any) error {
	errFactory := errors.New()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return errFactory.Wrap(ErrDecodeFailed, err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return err
	}
	req.Header.Set("User-Agent", userAgent)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		_, _ = io.Copy(io.Discard, resp.Body)
		return errFactory.WithData(ErrHTTPStatus, resp.Status)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return errFactory.Wrap(ErrDecodeFailed, err)
	}

	return nil
}
