package domain

import "errors"

var (
	ErrNotFound      = errors.New("not found")
	ErrEmptyLog      = errors.New("event log is empty")
	ErrOutOfOrder    = errors.New("timestamp older than last applied")
	ErrUnknownTicker = errors.New("unknown ticker")
	ErrBadRecord     = errors.New("malformed record")
	ErrRateLimited   = errors.New("rate limited")
	ErrWSDisconnect  = errors.New("websocket disconnected")
	ErrLockHeld      = errors.New("lock already held")
)
