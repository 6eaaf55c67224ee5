package repository

import "errors"

// Sentinel kinds for store errors.
var (
	ErrDuplicate     = errors.New("decision record already stored")
	ErrInvalidRecord = errors.New("decision record requires id and subject")
	ErrClosed        = errors.New("store closed")
	ErrUnknownDriver = errors.New("unknown store driver")
)
