package answer

import "errors"

// ErrInvalidArgument is returned when a required payload field is absent.
var ErrInvalidArgument = errors.New("invalid argument")
