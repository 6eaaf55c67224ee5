package config

import "errors"

// ErrInvalidConfig wraps every problem reported by Validate. ErrLoadConfig
// wraps file, env and decoding failures in Load.
var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrLoadConfig    = errors.New("load configuration")
)
