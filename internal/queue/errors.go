package queue

import "codeberg.org/mutker/netpulse/internal/errors"

const (
	// Storage errors
	ErrQueueWrite   = errors.ErrorCode("queue_write_failed")
	ErrQueueRead    = errors.ErrorCode("queue_read_failed")
	ErrQueueRewrite = errors.ErrorCode("queue_rewrite_failed")

	// Delivery errors
	ErrDelivery       = errors.ErrorCode("queue_delivery_failed")
	ErrDeliveryStatus = errors.ErrorCode("queue_delivery_rejected")
)
