// Package events carries lifecycle events out of the core components
// (acquisition, sessions, assistant) without binding them to a sink.
package events

// Event represents a core lifecycle event.
// Minimal and stable: name + subject and optional fields via key/values.
type Event struct {
	Name    string
	Subject string
	Fields  map[string]any
}

// Publisher receives events from the core. Implementations should be
// lightweight and non-blocking; Publish must not panic.
type Publisher interface {
	Publish(Event)
}

// NopPublisher is the default; it drops events.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) {}
