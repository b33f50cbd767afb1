// Package mesh defines the contract against the peer-to-peer transport.
// The AI core consumes the mesh purely as an opaque collaborator: send a
// text, observe connectivity and peer count, react to peer/message events.
// Wire format, discovery, and encryption live entirely on the other side
// of this interface.
package mesh

import "sync"

// Transport is the surface the core depends on.
type Transport interface {
	// SendMessage delivers text to the mesh. Delivery semantics are the
	// transport's problem; an error only means the hand-off failed.
	SendMessage(text string) error
	// Connected reports whether the transport currently has any link.
	Connected() bool
	// PeerCount is the number of currently visible peers.
	PeerCount() int
}

// Events is optionally implemented by transports that push notifications.
type Events interface {
	// OnPeersChanged registers a callback invoked when the peer list
	// changes. The callback must not block.
	OnPeersChanged(func(count int))
	// OnMessage registers a callback for inbound mesh messages.
	OnMessage(func(text string))
}

// Loopback is an in-process transport used by tests and by the daemon when
// no real radio is attached. Messages "sent" are recorded and can be
// delivered back through the message callback.
type Loopback struct {
	mu        sync.Mutex
	connected bool
	peers     int
	sent      []string
	onPeers   func(int)
	onMessage func(string)
}

// NewLoopback returns a disconnected loopback transport.
func NewLoopback() *Loopback { return &Loopback{} }

func (l *Loopback) SendMessage(text string) error {
	l.mu.Lock()
	l.sent = append(l.sent, text)
	l.mu.Unlock()
	return nil
}

func (l *Loopback) Connected() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.connected
}

func (l *Loopback) PeerCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.peers
}

func (l *Loopback) OnPeersChanged(fn func(int)) {
	l.mu.Lock()
	l.onPeers = fn
	l.mu.Unlock()
}

func (l *Loopback) OnMessage(fn func(string)) {
	l.mu.Lock()
	l.onMessage = fn
	l.mu.Unlock()
}

// SetPeers updates connectivity and fires the peers-changed callback.
func (l *Loopback) SetPeers(n int) {
	l.mu.Lock()
	l.peers = n
	l.connected = n > 0
	fn := l.onPeers
	l.mu.Unlock()
	if fn != nil {
		fn(n)
	}
}

// Deliver injects an inbound message, as a peer would.
func (l *Loopback) Deliver(text string) {
	l.mu.Lock()
	fn := l.onMessage
	l.mu.Unlock()
	if fn != nil {
		fn(text)
	}
}

// Sent returns a copy of everything sent through this transport.
func (l *Loopback) Sent() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]string, len(l.sent))
	copy(out, l.sent)
	return out
}
