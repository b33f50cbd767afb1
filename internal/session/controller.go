// Package session coordinates one cancellable streaming generation at a
// time: the Idle -> Streaming -> {Completed | Cancelled | Failed} lifecycle,
// sink-driven cancellation, and wall-clock deadline supervision.
package session

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"safeguardd/internal/events"
	"safeguardd/internal/infer"
)

// State is the lifecycle state of a streaming session.
type State string

const (
	StateIdle      State = "idle"
	StateStreaming State = "streaming"
	StateCompleted State = "completed"
	StateCancelled State = "cancelled"
	StateFailed    State = "failed"
)

// Sink receives each generated fragment in order. final is true exactly
// once, after the last fragment. The return value is the "continue?"
// signal: false cancels the session and no further fragments are delivered
// after the cancelling call returns. The sink is responsible for any
// UI-thread marshaling.
type Sink func(fragment string, final bool) bool

// Result summarizes a finished session.
type Result struct {
	SessionID string
	// Text is the raw accumulated generation; compliance post-processing
	// is the caller's job.
	Text     string
	Tokens   int
	State    State
	Duration time.Duration
}

// errSinkCancelled aborts token production when the sink votes to stop.
var errSinkCancelled = errors.New("sink cancelled")

// Controller runs at most one streaming session against its runtime. A
// request arriving while one is active is rejected outright (never
// cancel-and-replace, never interleave).
type Controller struct {
	mu      sync.Mutex
	rt      *infer.Runtime
	active  *session
	timeout time.Duration

	publisher events.Publisher
}

// session is one in-flight generation. A fresh object is created per
// request; terminal sessions are never reused, so accumulated text cannot
// leak into a later response.
type session struct {
	id        string
	mu        sync.Mutex
	state     State
	text      []byte
	tokens    int
	cancelled bool
	deadline  time.Time
}

// Option customizes Controller construction.
type Option func(*Controller)

// WithTimeout overrides the default wall-clock deadline per session.
func WithTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPublisher installs an event publisher for session lifecycle events.
func WithPublisher(p events.Publisher) Option {
	return func(c *Controller) {
		if p != nil {
			c.publisher = p
		}
	}
}

// New creates a controller bound to rt. Exactly one controller should be
// bound to a runtime instance.
func New(rt *infer.Runtime, opts ...Option) *Controller {
	c := &Controller{
		rt:        rt,
		timeout:   infer.DefaultTimeout,
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State reports the controller's externally visible state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.active != nil {
		return StateStreaming
	}
	return StateIdle
}

// Stream runs one generation, delivering fragments to sink (may be nil) in
// generation order. It blocks until the session reaches a terminal state.
//
// Returns ErrSessionActive when a session is already streaming. A sink
// cancellation is not an error: the Result carries StateCancelled. Deadline
// and runtime failures return the Result observed so far plus the error.
func (c *Controller) Stream(ctx context.Context, prompt string, params infer.Params, sink Sink) (Result, error) {
	s := &session{
		id:       uuid.NewString(),
		state:    StateStreaming,
		deadline: time.Now().Add(c.timeout),
	}

	c.mu.Lock()
	if c.active != nil {
		c.mu.Unlock()
		return Result{State: StateIdle}, ErrSessionActive(c.active.id)
	}
	c.active = s
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		c.active = nil
		c.mu.Unlock()
	}()

	start := time.Now()
	log.Printf("session event=stream_start id=%s", s.id)
	c.publisher.Publish(events.Event{Name: "stream_start", Subject: s.id, Fields: map[string]any{}})
	sessionsStarted.Inc()

	// The wall-clock deadline is enforced independently of the sink.
	streamCtx, cancel := context.WithDeadline(ctx, s.deadline)
	defer cancel()

	onToken := func(tok string) error {
		s.mu.Lock()
		if s.cancelled {
			s.mu.Unlock()
			return errSinkCancelled
		}
		s.text = append(s.text, tok...)
		s.tokens++
		s.mu.Unlock()
		if sink != nil && !sink(tok, false) {
			s.mu.Lock()
			s.cancelled = true
			s.mu.Unlock()
			return errSinkCancelled
		}
		return nil
	}

	_, err := c.rt.GenerateStream(streamCtx, prompt, params, onToken)
	res := s.snapshot()
	res.Duration = time.Since(start)

	switch {
	case err == nil:
		s.setState(StateCompleted)
		res.State = StateCompleted
		if sink != nil {
			sink("", true)
		}
		sessionsFinished.WithLabelValues(string(StateCompleted)).Inc()
		log.Printf("session event=stream_done id=%s tokens=%d dur_ms=%d", s.id, res.Tokens, res.Duration/time.Millisecond)
		c.publisher.Publish(events.Event{Name: "stream_done", Subject: s.id, Fields: map[string]any{"tokens": res.Tokens}})
		return res, nil
	case errors.Is(err, errSinkCancelled) || s.isCancelled():
		s.setState(StateCancelled)
		res.State = StateCancelled
		sessionsFinished.WithLabelValues(string(StateCancelled)).Inc()
		log.Printf("session event=stream_cancelled id=%s tokens=%d", s.id, res.Tokens)
		c.publisher.Publish(events.Event{Name: "stream_cancelled", Subject: s.id, Fields: map[string]any{"tokens": res.Tokens}})
		return res, nil
	case infer.IsTimeout(err) || errors.Is(err, context.DeadlineExceeded):
		s.setState(StateFailed)
		res.State = StateFailed
		sessionsFinished.WithLabelValues("timeout").Inc()
		log.Printf("session event=stream_timeout id=%s tokens=%d", s.id, res.Tokens)
		c.publisher.Publish(events.Event{Name: "stream_timeout", Subject: s.id, Fields: map[string]any{"tokens": res.Tokens}})
		return res, infer.ErrTimeout(c.timeout)
	default:
		s.setState(StateFailed)
		res.State = StateFailed
		sessionsFinished.WithLabelValues("error").Inc()
		log.Printf("session event=stream_error id=%s err=%v", s.id, err)
		c.publisher.Publish(events.Event{Name: "stream_error", Subject: s.id, Fields: map[string]any{"error": err.Error()}})
		return res, err
	}
}

func (s *session) snapshot() Result {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Result{
		SessionID: s.id,
		Text:      string(s.text),
		Tokens:    s.tokens,
		State:     s.state,
	}
}

func (s *session) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

func (s *session) isCancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}
