package broadcast

import (
	"sync"

	"github.com/google/uuid"

	"bustrack/internal/domain"
)

// sendBuffer is the per-connection outbound queue depth. A subscriber that
// cannot drain its queue misses events; delivery is best-effort.
const sendBuffer = 64

// Connection is one live subscriber. Send carries marshaled envelopes; the
// transport layer drains it until Done is closed. Send itself is never
// closed, so a publisher holding a stale subscriber snapshot can still send
// (into the buffer, or drop) without racing the disconnect.
type Connection struct {
	ID       string
	Identity domain.Identity
	Send     chan []byte

	done chan struct{}
}

// Done returns a channel that is closed when the connection is disconnected.
func (c *Connection) Done() <-chan struct{} { return c.done }

// Registry tracks which live connection belongs to which identity and which
// topics it has joined. It never touches session state.
type Registry struct {
	mu     sync.RWMutex
	conns  map[*Connection]map[Topic]struct{}
	topics map[Topic]map[*Connection]struct{}
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[*Connection]map[Topic]struct{}),
		topics: make(map[Topic]map[*Connection]struct{}),
	}
}

// Connect registers a new connection for an authenticated identity and
// auto-joins it to its role topic.
func (r *Registry) Connect(identity domain.Identity) *Connection {
	conn := &Connection{
		ID:       uuid.New().String(),
		Identity: identity,
		Send:     make(chan []byte, sendBuffer),
		done:     make(chan struct{}),
	}

	r.mu.Lock()
	r.conns[conn] = make(map[Topic]struct{})
	r.mu.Unlock()

	r.Join(conn, RoleTopic(identity))
	return conn
}

// Join subscribes a connection to a topic. Joining an already-joined topic
// is a no-op.
func (r *Registry) Join(conn *Connection, topic Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[conn]
	if !ok {
		// Disconnected already.
		return
	}
	joined[topic] = struct{}{}

	if r.topics[topic] == nil {
		r.topics[topic] = make(map[*Connection]struct{})
	}
	r.topics[topic][conn] = struct{}{}
}

// Leave unsubscribes a connection from a topic. Leaving a non-joined topic
// is a no-op.
func (r *Registry) Leave(conn *Connection, topic Topic) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaveLocked(conn, topic)
}

func (r *Registry) leaveLocked(conn *Connection, topic Topic) {
	if joined, ok := r.conns[conn]; ok {
		delete(joined, topic)
	}
	if subscribers, ok := r.topics[topic]; ok {
		delete(subscribers, conn)
		if len(subscribers) == 0 {
			delete(r.topics, topic)
		}
	}
}

// Disconnect removes a connection from every topic it had joined and closes
// its Done channel. The Send channel is deliberately left open: in-flight
// publishers may still be sending on a subscriber snapshot taken before the
// disconnect, and closing under them would panic the publisher. Undelivered
// buffered events are reclaimed with the connection. Idempotent.
func (r *Registry) Disconnect(conn *Connection) {
	r.mu.Lock()
	defer r.mu.Unlock()

	joined, ok := r.conns[conn]
	if !ok {
		return
	}
	for topic := range joined {
		r.leaveLocked(conn, topic)
	}
	delete(r.conns, conn)
	close(conn.done)
}

// Subscribers returns the connections currently joined to a topic.
func (r *Registry) Subscribers(topic Topic) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	subscribers := make([]*Connection, 0, len(r.topics[topic]))
	for conn := range r.topics[topic] {
		subscribers = append(subscribers, conn)
	}
	return subscribers
}

// Joined reports whether a connection is currently subscribed to a topic.
func (r *Registry) Joined(conn *Connection, topic Topic) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	joined, ok := r.conns[conn]
	if !ok {
		return false
	}
	_, ok = joined[topic]
	return ok
}
