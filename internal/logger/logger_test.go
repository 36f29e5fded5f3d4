package logger_test

import (
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"codeberg.org/mutker/netpulse/internal/errors"
	"codeberg.org/mutker/netpulse/internal/logger"
)

// captureOutput reinitializes the logger against a pipe and returns whatever
// fn logged.
func captureOutput(t *testing.T, fn func()) string {
	t.Helper()

	orig := os.Stdout
	r, w, err := os.Pipe()
	require.NoError(t, err)

	os.Stdout = w
	logger.Init(false, false, true)
	fn()

	os.Stdout = orig
	require.NoError(t, w.Close())
	logger.Init(false, false, true)

	out, err := io.ReadAll(r)
	require.NoError(t, err)

	return string(out)
}

func TestErrorWithCodeLogsTheCode(t *testing.T) {
	errFactory := errors.New()
	appErr := errFactory.WithData(errors.ErrInvalidDeviceID, "not-a-uuid")

	out := captureOutput(t, func() {
		logger.ErrorWithCode(appErr).Str("loop", "network").Msg("Collection tick failed")
	})

	assert.Contains(t, out, "error_code=")
	assert.Contains(t, out, string(errors.ErrInvalidDeviceID))
	assert.Contains(t, out, "Collection tick failed")
}

func TestErrorWithCodeWrappedCause(t *testing.T) {
	errFactory := errors.New()
	appErr := errFactory.Wrap(errors.ErrReadConfig, os.ErrNotExist)

	out := captureOutput(t, func() {
		logger.ErrorWithCode(appErr).Msg("Startup failed")
	})

	assert.Contains(t, out, string(errors.ErrReadConfig))
	assert.Contains(t, out, os.ErrNotExist.Error())
}
