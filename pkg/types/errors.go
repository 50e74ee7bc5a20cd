package types

import "errors"

var (
	ErrMalformedFrame = errors.New("frame is not a JSON object")
	ErrMissingKind    = errors.New("frame has no kind")
	ErrInvalidText    = errors.New("message text must be a string")
)
