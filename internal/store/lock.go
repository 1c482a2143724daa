package store

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/flock"
)

// lockRetryInterval is how often a blocked acquisition re-attempts the lock.
const lockRetryInterval = 10 * time.Millisecond

// acquireLock takes a lock on a sibling lock file. Locking a separate file
// instead of the data file keeps the lock sound across the data file being
// deleted and recreated by other processes. Acquisition is bounded: once
// timeout elapses the call fails with ErrLockTimeout instead of blocking
// forever.
func acquireLock(ctx context.Context, path string, timeout time.Duration, shared bool) (*flock.Flock, error) {
	fl := flock.New(path + ".lock")

	lockCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var (
		ok  bool
		err error
	)
	if shared {
		ok, err = fl.TryRLockContext(lockCtx, lockRetryInterval)
	} else {
		ok, err = fl.TryLockContext(lockCtx, lockRetryInterval)
	}
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("store: lock %s: %w", path, ErrLockTimeout)
		}
		return nil, fmt.Errorf("store: lock %s: %w", path, err)
	}
	if !ok {
		return nil, fmt.Errorf("store: lock %s: %w", path, ErrLockTimeout)
	}
	return fl, nil
}

func releaseLock(fl *flock.Flock) {
	_ = fl.Unlock()
}

// fileName maps an opaque generation or conversation id to a safe file name
// component. Ids made of filename-safe characters are used verbatim so files
// stay greppable by id; anything else falls back to the id's SHA-256 hex.
func fileName(id string) string {
	for _, r := range id {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		case r == '-' || r == '_' || r == '.':
		default:
			sum := sha256.Sum256([]byte(id))
			return hex.EncodeToString(sum[:])
		}
	}
	if id == "" || id == "." || id == ".." {
		sum := sha256.Sum256([]byte(id))
		return hex.EncodeToString(sum[:])
	}
	return id
}
