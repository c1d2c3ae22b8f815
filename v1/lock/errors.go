package lock

import (
	"errors"
	"fmt"
	"time"
)

var (
	// ErrInvalidID is returned for a lock id that is not a word.
	ErrInvalidID = errors.New("lock: invalid lock id")
	// ErrInvalidNamespace is returned for a namespace that is not a word.
	ErrInvalidNamespace = errors.New("lock: invalid namespace")
	// ErrInvalidTTL is returned for a TTL that is not positive.
	ErrInvalidTTL = errors.New("lock: ttl must be positive")
	// ErrTokenGeneration is returned when no secure random token could be
	// produced.
	ErrTokenGeneration = errors.New("lock: token generation failed")

	// ErrConcurrentBlocked matches a ContentionError raised without polling.
	ErrConcurrentBlocked = errors.New("lock: concurrent request blocked")
	// ErrConcurrentTimeout matches a ContentionError raised after polling
	// for longer than the timeout.
	ErrConcurrentTimeout = errors.New("lock: concurrent request timed out")

	// ErrTokenMismatch means the key no longer held this lock's token on
	// release: it expired or another holder took it.
	ErrTokenMismatch = errors.New("lock: token mismatch or key missing")
	// ErrNotHeld is returned by Refresh when the lock is not held.
	ErrNotHeld = errors.New("lock: not held")
)

// Reason tells why acquisition gave up on a held key.
type Reason int

const (
	// Blocked means the key was held and no poll interval was set.
	Blocked Reason = iota
	// TimedOut means polling ran past the acquisition timeout.
	TimedOut
)

func (r Reason) String() string {
	if r == TimedOut {
		return "timed out"
	}
	return "blocked"
}

// ContentionError reports that another holder kept the key.
type ContentionError struct {
	Key      string
	Reason   Reason
	Attempts int
	Elapsed  time.Duration
}

func (e *ContentionError) Error() string {
	return fmt.Sprintf("lock: %s: concurrent request %s after %d attempt(s) in %s", e.Key, e.Reason, e.Attempts, e.Elapsed)
}

func (e *ContentionError) Unwrap() error {
	if e.Reason == TimedOut {
		return ErrConcurrentTimeout
	}
	return ErrConcurrentBlocked
}

// ObtainError wraps a failure that aborted acquisition.
type ObtainError struct {
	Key string
	Err error
}

func (e *ObtainError) Error() string {
	return fmt.Sprintf("lock: obtain %s: %v", e.Key, e.Err)
}

func (e *ObtainError) Unwrap() error { return e.Err }

// ReleaseError reports an unlock that did not succeed. The lock is Unlocked
// regardless.
type ReleaseError struct {
	Key string
	Err error
}

func (e *ReleaseError) Error() string {
	return fmt.Sprintf("lock: release %s: %v", e.Key, e.Err)
}

func (e *ReleaseError) Unwrap() error { return e.Err }
