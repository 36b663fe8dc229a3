package domain

import "errors"

var (
	ErrInvalidUserID = errors.New("invalid user id")
	ErrUserIDTooLong = errors.New("user id too long")

	ErrBusy          = errors.New("receiver is busy")
	ErrCallerBusy    = errors.New("caller already in a call")
	ErrSelfCall      = errors.New("cannot call yourself")
	ErrStateMismatch = errors.New("call state mismatch")

	ErrQueueFull = errors.New("task queue full")
	ErrClosed    = errors.New("closed")
)
