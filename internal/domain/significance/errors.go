package significance

import "errors"

// Sentinel error kinds for this package.
var (
	ErrInvalidArgument = errors.New("invalid argument")
)
