package core

import (
	"context"
	"errors"
)

var ErrLockTimeout = errors.New("timed out waiting for lock")

// Locker serializes work on a key across goroutines (and processes, for distributed implementations).
type Locker interface {
	// Lock blocks until the key is held or ctx is done. The returned func releases it.
	Lock(ctx context.Context, key string) (unlock func(), err error)
}
