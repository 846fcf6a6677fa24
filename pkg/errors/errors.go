package errors

import "errors"

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnauthorized = errors.New("unauthorized")
	ErrNotFound     = errors.New("not found")
	ErrTransport    = errors.New("transport failure")
	ErrPlatform     = errors.New("platform error")
	ErrDecoding     = errors.New("decoding error")
	ErrCancelled    = errors.New("request cancelled")
	ErrRateLimited  = errors.New("rate limit exceeded")
)
