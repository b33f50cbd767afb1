package events

import "testing"

func TestMemoryPublisherRecordsInOrder(t *testing.T) {
	p := NewMemoryPublisher()
	p.Publish(Event{Name: "download_start", Subject: "guard-3b"})
	p.Publish(Event{Name: "download_ready", Subject: "guard-3b", Fields: map[string]any{"attempt": 1}})

	names := p.Names()
	if len(names) != 2 || names[0] != "download_start" || names[1] != "download_ready" {
		t.Fatalf("names=%v", names)
	}
	evs := p.Events()
	if evs[1].Fields["attempt"] != 1 {
		t.Fatalf("fields=%v", evs[1].Fields)
	}
	// Returned slices are copies.
	evs[0].Name = "mutated"
	if p.Events()[0].Name != "download_start" {
		t.Fatal("Events must return a copy")
	}
}

func TestNopPublisherDropsEvents(t *testing.T) {
	var p Publisher = NopPublisher{}
	p.Publish(Event{Name: "anything"})
}
