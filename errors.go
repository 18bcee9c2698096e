package chatguard

import "errors"

// Common errors for conversation and store operations.
var (
	ErrInvalidConfig    = errors.New("invalid configuration")
	ErrInvalidStoreType = errors.New("invalid store type")
	ErrNotFound         = errors.New("session not found")
	ErrInvalidSessionID = errors.New("invalid session id")
	ErrInvalidRole      = errors.New("invalid message role")
	ErrInvalidSubject   = errors.New("invalid subject")
	ErrEmptyMessage     = errors.New("message must be a non-empty string")
	ErrStoreClosed      = errors.New("store is closed")
)
