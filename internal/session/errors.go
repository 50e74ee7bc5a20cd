package session

import "errors"

var (
	ErrNilSender          = errors.New("sender cannot be nil")
	ErrDuplicateSessionID = errors.New("session ID already registered")
	ErrSessionNotFound    = errors.New("session not found")
	ErrNameTaken          = errors.New("display name is held by another session")
	ErrSessionClosed      = errors.New("session is closed")
)
