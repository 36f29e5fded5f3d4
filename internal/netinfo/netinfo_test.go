package netinfo

import (
	"context"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestPublicIPReturnsFirstUsableService(t *testing.T) {
	garbage := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("<html>not an address</html>"))
	}))
	defer garbage.Close()

	good := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("203.0.113.7\n"))
	}))
	defer good.Close()

	r := NewResolver([]string{"http://127.0.0.1:1/dead", garbage.URL, good.URL}, nil, time.Second)

	assert.Equal(t, "203.0.113.7", r.PublicIP(context.Background()))
}

func TestPublicIPAllServicesFail(t *testing.T) {
	r := NewResolver([]string{"http://127.0.0.1:1/dead"}, nil, 500*time.Millisecond)

	assert.Equal(t, UnknownPublicIP, r.PublicIP(context.Background()))
}

func TestLocalIPReturnsParseableAddress(t *testing.T) {
	r := NewResolver(nil, nil, time.Second)

	ip := r.LocalIP()

	assert.NotEmpty(t, ip)
	assert.NotNil(t, net.ParseIP(ip))
}
