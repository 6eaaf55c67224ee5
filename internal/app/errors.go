package service

import "errors"

// Sentinel kinds for service errors.
var (
	ErrNotStarted      = errors.New("service not started")
	ErrInvalidDecision = errors.New("decision requires subject and action")
	ErrBackpressure    = errors.New("ingestion queue full")
)
