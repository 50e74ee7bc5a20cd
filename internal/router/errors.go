package router

import "errors"

var (
	ErrRateLimitExceeded   = errors.New("rate limit exceeded")
	ErrSenderNotRegistered = errors.New("sender not registered")
	ErrUnsupportedMessage  = errors.New("unsupported message variant")
)
