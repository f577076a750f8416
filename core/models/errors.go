package models

import "errors"

// ErrMissingDependency is returned when an external tool the job relies on
// (docker daemon, trainer binary) is not available
var ErrMissingDependency = errors.New("missing dependency")
