// Package notify delivers push events to live client connections keyed by
// account identity.
package notify

import (
	"errors"
	"sync"

	"accountd.dev/internal/ids"
	"accountd.dev/internal/obs"
)

// ErrUnknownConnection is returned when registering a token that is not attached.
var ErrUnknownConnection = errors.New("notify: unknown connection")

const defaultBuffer = 16

// Notification outcomes reported to metrics.
const (
	ResultDelivered = "delivered"
	ResultDropped   = "dropped"
	ResultOffline   = "offline"
)

// Message is a single event queued for a connection.
type Message struct {
	Event   string
	Payload any
}

// Conn is one live client connection.
type Conn struct {
	Token string

	ch   chan Message
	done chan struct{}
	once sync.Once
}

// Messages yields queued events until the connection is detached.
func (c *Conn) Messages() <-chan Message { return c.ch }

// Done is closed once the connection has been unregistered.
func (c *Conn) Done() <-chan struct{} { return c.done }

func (c *Conn) close() {
	c.once.Do(func() { close(c.done) })
}

type binding struct {
	identity string
	conn     *Conn
}

// Hub maps identities to their live connection token and tokens to
// connections. At most one token per identity and one identity per token.
type Hub struct {
	mu         sync.RWMutex
	byIdentity map[string]string
	byToken    map[string]*binding
	buffer     int
}

// NewHub returns an empty hub. buffer sets the per-connection queue size;
// values below 1 use the default.
func NewHub(buffer int) *Hub {
	if buffer < 1 {
		buffer = defaultBuffer
	}
	return &Hub{
		byIdentity: make(map[string]string),
		byToken:    make(map[string]*binding),
		buffer:     buffer,
	}
}

// Attach opens a live connection with a fresh token. It is not bound to an
// identity until Register is called.
func (h *Hub) Attach() *Conn {
	c := &Conn{
		Token: ids.New(),
		ch:    make(chan Message, h.buffer),
		done:  make(chan struct{}),
	}
	h.mu.Lock()
	h.byToken[c.Token] = &binding{conn: c}
	n := len(h.byToken)
	h.mu.Unlock()
	obs.SetLiveConnections(n)
	return c
}

// Register binds identity to token, replacing any earlier token of that
// identity and any other identity bound to the same token.
func (h *Hub) Register(identity, token string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	b, ok := h.byToken[token]
	if !ok {
		return ErrUnknownConnection
	}
	if b.identity != "" && b.identity != identity {
		if h.byIdentity[b.identity] == token {
			delete(h.byIdentity, b.identity)
		}
	}
	if prev, ok := h.byIdentity[identity]; ok && prev != token {
		if pb, ok := h.byToken[prev]; ok && pb.identity == identity {
			pb.identity = ""
		}
	}
	b.identity = identity
	h.byIdentity[identity] = token
	return nil
}

// Unregister detaches the connection identified by token and drops its
// identity binding. Unknown tokens are ignored.
func (h *Hub) Unregister(token string) {
	h.mu.Lock()
	b, ok := h.byToken[token]
	if ok {
		delete(h.byToken, token)
		if b.identity != "" && h.byIdentity[b.identity] == token {
			delete(h.byIdentity, b.identity)
		}
	}
	n := len(h.byToken)
	h.mu.Unlock()
	if ok {
		b.conn.close()
		obs.SetLiveConnections(n)
	}
}

// Emit queues event for the live connection of identity. It reports whether
// identity had a registered connection. Delivery never blocks: a full queue
// drops the event.
func (h *Hub) Emit(identity, event string, payload any) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	token, ok := h.byIdentity[identity]
	if !ok {
		obs.Notification(event, ResultOffline)
		return false
	}
	b := h.byToken[token]
	select {
	case b.conn.ch <- Message{Event: event, Payload: payload}:
		obs.Notification(event, ResultDelivered)
	default:
		obs.Notification(event, ResultDropped)
	}
	return true
}

// Rename moves the registration of oldIdentity to newIdentity, keeping the
// same token. It is a no-op when oldIdentity has no registration.
func (h *Hub) Rename(oldIdentity, newIdentity string) {
	if oldIdentity == newIdentity {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	token, ok := h.byIdentity[oldIdentity]
	if !ok {
		return
	}
	delete(h.byIdentity, oldIdentity)
	if prev, ok := h.byIdentity[newIdentity]; ok {
		if pb, ok := h.byToken[prev]; ok {
			pb.identity = ""
		}
	}
	h.byIdentity[newIdentity] = token
	h.byToken[token].identity = newIdentity
}

// Lookup returns the token registered for identity.
func (h *Hub) Lookup(identity string) (string, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	token, ok := h.byIdentity[identity]
	return token, ok
}

// Connections returns the number of attached connections.
func (h *Hub) Connections() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.byToken)
}
