package apperr

import "errors"

var (
	ErrNotFound         = errors.New("not found")
	ErrNoFiles          = errors.New("no matching files")
	ErrInvalidTimestamp = errors.New("invalid timestamp")
	ErrBusy             = errors.New("indexing already in progress")
	ErrUnavailable      = errors.New("not available")
)
