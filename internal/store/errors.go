package store

import "errors"

// ErrLockTimeout is returned when a file lock could not be acquired within
// the configured timeout. Callers on the read path treat it as "no prior
// state"; callers on the write path propagate it.
var ErrLockTimeout = errors.New("store: lock acquisition timed out")
