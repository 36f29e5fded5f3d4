// Package netinfo discovers the addresses of the measuring host: the local
// address of the active interface and the public address as seen from outside.
package netinfo

import (
	"context"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"codeberg.org/mutker/netpulse/internal/logger"
)

const (
	// UnknownPublicIP is reported when every discovery strategy fails
	UnknownPublicIP = "Unknown"

	// FallbackLocalIP is reported when no outbound interface can be found
	FallbackLocalIP = "127.0.0.1"

	localProbeAddr = "8.8.8.8:80"

	maxIPBodyBytes = 64
)

// Resolver discovers local and public addresses
type Resolver struct {
	services    []string
	stunServers []string
	client      *http.Client
	timeout     time.Duration
}

func NewResolver(services, stunServers []string, timeout time.Duration) *Resolver {
	return &Resolver{
		services:    services,
		stunServers: stunServers,
		client: &http.Client{
			Timeout: timeout,
		},
		timeout: timeout,
	}
}

// LocalIP opens a best-effort outbound UDP handshake to learn the address of
// the active interface. No data is sent on the socket.
func (r *Resolver) LocalIP() string {
	conn, err := net.Dial("udp", localProbeAddr)
	if err != nil {
		return FallbackLocalIP
	}
	defer conn.Close()

	addr, ok := conn.LocalAddr().(*net.UDPAddr)
	if !ok {
		return FallbackLocalIP
	}

	return addr.IP.String()
}

// PublicIP queries the configured what-is-my-IP services in order and returns
// the first usable answer, falling back to a STUN binding request. Returns
// UnknownPublicIP when every strategy fails.
func (r *Resolver) PublicIP(ctx context.Context) string {
	for _, url := range r.services {
		ip, err := r.fetchIP(ctx, url)
		if err != nil {
			logger.Debug().Err(err).Str("service", url).Msg("Public IP service failed")
			continue
		}
		if ip != "" {
			return ip
		}
	}

	if ip, err := r.stunIP(ctx); err == nil && ip != "" {
		return ip
	}

	return UnknownPublicIP
}

func (r *Resolver) fetchIP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxIPBodyBytes))
	if err != nil {
		return "", err
	}

	ip := strings.TrimSpace(string(body))
	if net.ParseIP(ip) == nil {
		return "", nil
	}

	return ip, nil
}
