package cache

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
)

var tracer = otel.Tracer("github.com/charcoal-dev/cache-redis-client/v1/cache")

// Cache defines the basic operations for a typed cache.
type Cache[T any] interface {
	// Get returns the value for key. The boolean is false on a miss.
	Get(ctx context.Context, key string) (T, bool, error)
	// Set stores value under key. A zero ttl keeps it until invalidated.
	Set(ctx context.Context, key string, value T, ttl time.Duration) error
	Invalidate(ctx context.Context, key string) error
}
