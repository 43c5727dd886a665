// Package lock provides per-player mutual exclusion for command execution.
package lock

import (
	"context"
	"errors"
)

var (
	// ErrBusy indicates the lock could not be acquired before the context deadline.
	ErrBusy = errors.New("lock is held by another caller")
	// ErrLeaseLost indicates a held lock expired or was taken over.
	ErrLeaseLost = errors.New("lock lease lost")
)

// Handle releases an acquired lock. Release is safe to call more than once.
type Handle interface {
	Release(ctx context.Context) error
	// Err returns ErrLeaseLost once the holder can no longer rely on the lock.
	Err() error
}

// Locker grants exclusive, non-reentrant locks keyed by string.
type Locker interface {
	Acquire(ctx context.Context, key string) (Handle, error)
}

func acquireErr(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return ErrBusy
	}
	return ctx.Err()
}
