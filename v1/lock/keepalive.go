package lock

import (
	"context"
	"errors"
	"sync"
	"time"
)

// KeepAlive refreshes the lock every half TTL in the background until the
// returned stop function is called, ctx is done, the lock is released or
// the lock is lost. Only a lost lock is logged. Stop
// waits for the refresher to exit and is safe to call more than once.
func (l *Lock) KeepAlive(ctx context.Context) (stop func()) {
	every := l.ttl / 2
	if every <= 0 {
		every = l.ttl
	}
	ticker := time.NewTicker(every)
	quit := make(chan struct{})
	done := make(chan struct{})

	go func() {
		defer close(done)
		defer ticker.Stop()
		for {
			select {
			case <-quit:
				return
			case <-ctx.Done():
				return
			case <-ticker.C:
				err := l.Refresh(ctx)
				switch {
				case err == nil:
					continue
				case errors.Is(err, ErrNotHeld) && l.wasReleased():
					return
				case errors.Is(err, ErrNotHeld):
					l.logger.Warn("lock: lost while keeping alive", "key", l.key)
					return
				default:
					// A transient failure is retried on the next tick while
					// the key may still be alive.
					l.logger.Warn("lock: refresh failed", "key", l.key, "error", err)
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() { close(quit) })
		<-done
	}
}
