package netprobe

import "codeberg.org/mutker/netpulse/internal/errors"

const (
	// Strategy errors
	ErrPingUnavailable = errors.ErrorCode("netprobe_ping_unavailable")
	ErrSpeedtestFailed = errors.ErrorCode("netprobe_speedtest_failed")
	ErrTransferFailed  = errors.ErrorCode("netprobe_transfer_failed")
)
