package growth

import "github.com/pkg/errors"

// ErrInvalidArgument is returned for malformed or out-of-domain input.
// Numerical fit failures are never reported through it.
var ErrInvalidArgument = errors.New("invalid argument")
