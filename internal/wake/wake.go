// Package wake guards message handling with short-lived device wake locks.
package wake

import (
	"context"
	"log"
	"time"
)

// Tag identifies this subsystem's locks to the device bridge.
const Tag = "openpark:push-agent"

// DefaultTimeout is the hard upper bound enforced by the platform on a
// single lock. The agent never holds a lock anywhere near this long.
const DefaultTimeout = 30 * time.Second

// Lock is a held wake lock. Release is idempotent on the bridge side but
// the guard calls it exactly once per acquisition.
type Lock interface {
	Release()
}

// Locker acquires wake locks from the device bridge. Each call returns an
// independent lock instance; locks are never shared or reference-counted
// across messages.
type Locker interface {
	Acquire(ctx context.Context, tag string, timeout time.Duration) (Lock, error)
}

// WithWakeLock runs body while holding a wake lock with the given timeout.
//
// The lock is released on every exit path, including a panic in body (the
// panic is re-raised after release). Acquisition failure is non-fatal:
// losing the power guarantee is better than dropping the message, so body
// runs anyway and the failure is logged.
func WithWakeLock(ctx context.Context, locker Locker, timeout time.Duration, body func() error) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	lock, err := locker.Acquire(ctx, Tag, timeout)
	if err != nil {
		log.Printf("WARNING: wake lock acquisition failed, continuing without power guarantee: %v", err)
		return body()
	}
	defer lock.Release()

	return body()
}
