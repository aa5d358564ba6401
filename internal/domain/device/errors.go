package device

import "errors"

var (
	ErrDeviceUnreachable  = errors.New("device is unreachable")
	ErrDeviceRejected     = errors.New("device rejected the request")
	ErrWebhookURLRequired = errors.New("webhook url is required")
)
