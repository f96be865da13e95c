package colony

import (
	"github.com/LdDl/colony-go/growth"
	"github.com/pkg/errors"
)

var (
	// ErrInvalidArgument is returned for malformed or out-of-domain input.
	// It is the same value as growth.ErrInvalidArgument.
	ErrInvalidArgument = growth.ErrInvalidArgument
	// ErrEmptyColony is returned by queries that need at least one timepoint.
	ErrEmptyColony = errors.WithMessage(ErrInvalidArgument, "colony has no timepoints")
)
