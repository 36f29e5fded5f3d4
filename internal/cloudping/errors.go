package cloudping

import "codeberg.org/mutker/netpulse/internal/errors"

const (
	// Request errors
	ErrSubmitFailed  = errors.ErrorCode("cloudping_submit_failed")
	ErrPollFailed    = errors.ErrorCode("cloudping_poll_failed")
	ErrHTTPStatus    = errors.ErrorCode("cloudping_http_status")
	ErrDecodeFailed  = errors.ErrorCode("cloudping_decode_failed")
	ErrNoMeasurement = errors.ErrorCode("cloudping_no_measurement_id")
)
