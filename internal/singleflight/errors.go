package singleflight

import "errors"

// ErrPanicked wraps a panic recovered from a shared call, so the waiters
// receive an error instead of hanging.
var ErrPanicked = errors.New("singleflight: shared call panicked")
