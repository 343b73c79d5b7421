// Package lock provides keyed exclusion with a bounded wait.
//
// Every acquisition in dojo goes through Keyed so that no caller blocks
// indefinitely: when the wait expires the caller receives a *BusyError and
// prior state is untouched.
package lock

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/roach88/dojo/internal/metrics"
)

// DefaultWait mirrors the store's busy_timeout.
const DefaultWait = 5 * time.Second

// BusyError reports that a lock was not acquired within its bounded wait.
type BusyError struct {
	Resource string
	Key      string
	Wait     time.Duration
}

// Error implements the error interface.
func (e *BusyError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("BUSY: %s %q not acquired within %s", e.Resource, e.Key, e.Wait)
	}
	return fmt.Sprintf("BUSY: %s not acquired within %s", e.Resource, e.Wait)
}

// IsBusy returns true if err is, or wraps, a *BusyError.
func IsBusy(err error) bool {
	var be *BusyError
	return errors.As(err, &be)
}

// Keyed hands out one exclusive slot per key.
//
// Thread-safety: safe for concurrent use. Semaphores are created lazily and
// never removed, so the key space should be bounded (fields, domains).
type Keyed struct {
	resource string
	wait     time.Duration

	mu   sync.Mutex
	sems map[string]*semaphore.Weighted
}

// NewKeyed creates a keyed lock. resource names the lock in errors and
// metrics. A non-positive wait selects DefaultWait.
func NewKeyed(resource string, wait time.Duration) *Keyed {
	if wait <= 0 {
		wait = DefaultWait
	}
	return &Keyed{
		resource: resource,
		wait:     wait,
		sems:     make(map[string]*semaphore.Weighted),
	}
}

// Wait returns the bounded wait applied to each acquisition.
func (k *Keyed) Wait() time.Duration {
	return k.wait
}

// Acquire takes the slot for key, waiting at most the configured bound.
// On success the returned release func must be called exactly once.
//
// If ctx itself is cancelled, ctx.Err() is returned instead of a BusyError.
func (k *Keyed) Acquire(ctx context.Context, key string) (release func(), err error) {
	sem := k.slot(key)

	waitCtx, cancel := context.WithTimeout(ctx, k.wait)
	defer cancel()

	if err := sem.Acquire(waitCtx, 1); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		metrics.RecordLockTimeout(k.resource)
		return nil, &BusyError{Resource: k.resource, Key: key, Wait: k.wait}
	}

	var once sync.Once
	return func() { once.Do(func() { sem.Release(1) }) }, nil
}

func (k *Keyed) slot(key string) *semaphore.Weighted {
	k.mu.Lock()
	defer k.mu.Unlock()

	sem, ok := k.sems[key]
	if !ok {
		sem = semaphore.NewWeighted(1)
		k.sems[key] = sem
	}
	return sem
}
