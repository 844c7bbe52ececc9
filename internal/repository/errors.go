package repository

import "errors"

// ErrNotFound is returned when the requested row does not exist. Callers
// distinguish it from transient database failure.
var ErrNotFound = errors.New("not found")
