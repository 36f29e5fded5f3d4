package netinfo

import (
	"context"
	"net"
	"strings"

	"github.com/pion/stun/v3"

	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
)

// stunIP asks the configured STUN servers for the XOR-mapped address of this
// host. The mapped address belongs to the STUN socket, which is close enough
// for reporting purposes.
func (r *Resolver) stunIP(ctx context.Context) (string, error) {
	errFactory := errors.New()

	var lastErr error
	for _, server := range r.stunServers {
		ip, err := r.stunQuery(ctx, server)
		if err != nil {
			logger.Debug().Err(err).Str("server", server).Msg("STUN query failed")
			lastErr = err
			continue
		}
		if ip != "" {
			return ip, nil
		}
	}

	if lastErr == nil {
		lastErr = errFactory.New(errors.ErrUnavailable)
	}

	return "", lastErr
}

func (r *Resolver) stunQuery(ctx context.Context, server string) (string, error) {
	uriStr := strings.TrimSpace(server)
	if uriStr == "" {
		return "", errors.New().New(errors.ErrInvalidArgument)
	}
	if !strings.HasPrefix(uriStr, "stun:") {
		uriStr = "stun:" + uriStr
	}

	uri, err := stun.ParseURI(uriStr)
	if err != nil {
		return "", err
	}

	client, err := stun.DialURI(uri, &stun.DialConfig{})
	if err != nil {
		return "", err
	}
	defer client.Close()

	msg := stun.MustBuild(stun.TransactionID, stun.BindingRequest)
	result := make(chan net.IP, 1)
	fail := make(chan error, 1)

	go func() {
		var addr stun.XORMappedAddress
		err := client.Do(msg, func(res stun.Event) {
			if res.Error != nil {
				fail <- res.Error
				return
			}
			if err := addr.GetFrom(res.Message); err != nil {
				fail <- err
				return
			}
			result <- addr.IP
		})
		if err != nil {
			fail <- err
		}
	}()

	queryCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		queryCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}

	select {
	case ip := <-result:
		return ip.String(), nil
	case err := <-fail:
		return "", err
	case <-queryCtx.Done():
		return "", queryCtx.Err()
	}
}
