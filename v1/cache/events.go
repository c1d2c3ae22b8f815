package cache

import (
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/charcoal-dev/cache-redis-client/v1/metrics"
)

// Connection is a connection Events has seen open and not yet close.
type Connection struct {
	ID    string
	Addr  string
	Since time.Time
}

// Events implements transport.Observer. It logs connection lifecycle
// notifications, tracks the connections that are open and observes their
// lifetime in metrics.ConnectionLifetime.
type Events struct {
	logger *slog.Logger
	now    func() time.Time

	mu          sync.Mutex
	live        map[string]Connection
	connects    int
	disconnects int
}

// NewEvents returns an observer logging to logger, or slog.Default() when
// nil.
func NewEvents(logger *slog.Logger) *Events {
	if logger == nil {
		logger = slog.Default()
	}
	return &Events{logger: logger, now: time.Now, live: make(map[string]Connection)}
}

// Connected records that connection id opened a socket to addr.
func (e *Events) Connected(id, addr string) {
	e.mu.Lock()
	e.connects++
	e.live[id] = Connection{ID: id, Addr: addr, Since: e.now()}
	e.mu.Unlock()
	e.logger.Info("redis connected", "conn", id, "addr", addr)
}

// Disconnected records that connection id dropped its socket. Unknown ids
// are counted and logged but have no lifetime to observe.
func (e *Events) Disconnected(id, addr string) {
	e.mu.Lock()
	e.disconnects++
	c, ok := e.live[id]
	delete(e.live, id)
	e.mu.Unlock()
	if ok {
		metrics.ConnectionLifetime.Observe(e.now().Sub(c.Since).Seconds())
	}
	e.logger.Info("redis disconnected", "conn", id, "addr", addr)
}

// Live returns the open connections, oldest first.
func (e *Events) Live() []Connection {
	e.mu.Lock()
	out := make([]Connection, 0, len(e.live))
	for _, c := range e.live {
		out = append(out, c)
	}
	e.mu.Unlock()
	sort.Slice(out, func(i, j int) bool { return out[i].Since.Before(out[j].Since) })
	return out
}

// Counts returns how many connect and disconnect notifications arrived.
func (e *Events) Counts() (connects, disconnects int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.connects, e.disconnects
}
