package model

import "errors"

// ErrInvalidArgument is returned by constructors and parsers when a value
// violates a record invariant (non-positive seats or duration, a zero or
// malformed timestamp).  Higher layers re-export it so callers can match
// it with errors.Is regardless of where validation happened.
var ErrInvalidArgument = errors.New("invalid argument")
