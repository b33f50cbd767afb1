package infer

import (
	"context"
	"fmt"
	"log"
	"os"
	"strings"
	"sync"
	"time"

	"safeguardd/internal/events"
)

// DefaultTimeout caps a single generation on constrained hardware.
const DefaultTimeout = 30 * time.Second

// Runtime owns the loaded model handle and serializes generations on it.
// At most one generation runs at a time; a concurrent attempt fails with
// ErrBusy rather than interleaving token streams.
type Runtime struct {
	mu      sync.Mutex
	backend Backend
	model   Model
	path    string

	// gate holds the single in-flight generation slot.
	gate chan struct{}

	timeout   time.Duration
	publisher events.Publisher
}

// RuntimeOption customizes Runtime construction.
type RuntimeOption func(*Runtime)

// WithTimeout overrides the default generation deadline.
func WithTimeout(d time.Duration) RuntimeOption {
	return func(r *Runtime) {
		if d > 0 {
			r.timeout = d
		}
	}
}

// WithPublisher installs an event publisher for lifecycle events.
func WithPublisher(p events.Publisher) RuntimeOption {
	return func(r *Runtime) {
		if p != nil {
			r.publisher = p
		}
	}
}

// NewRuntime creates a runtime over the given backend. No model is loaded
// until Load is called.
func NewRuntime(backend Backend, opts ...RuntimeOption) *Runtime {
	r := &Runtime{
		backend:   backend,
		gate:      make(chan struct{}, 1),
		timeout:   DefaultTimeout,
		publisher: events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Load opens the model artifact at path and holds the handle. It fails if
// the file does not exist. Loading while a model is already held replaces
// the handle (the old one is closed first).
func (r *Runtime) Load(path string) error {
	if strings.TrimSpace(path) == "" {
		return fmt.Errorf("model path is empty")
	}
	fi, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("model file: %w", err)
	}
	if fi.IsDir() {
		return fmt.Errorf("model path is a directory: %s", path)
	}

	opts := Options{CtxSize: SafetyPreset().CtxSize}
	start := time.Now()
	mdl, err := r.backend.Open(path, opts)
	if err != nil {
		log.Printf("infer event=load_error path=%q err=%v", path, err)
		r.publisher.Publish(events.Event{Name: "load_error", Subject: path, Fields: map[string]any{"error": err.Error()}})
		return err
	}

	r.mu.Lock()
	old := r.model
	r.model = mdl
	r.path = path
	r.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	log.Printf("infer event=load_ready path=%q dur_ms=%d", path, time.Since(start)/time.Millisecond)
	r.publisher.Publish(events.Event{Name: "load_ready", Subject: path, Fields: map[string]any{"dur_ms": int(time.Since(start) / time.Millisecond)}})
	return nil
}

// Loaded reports whether a model handle is currently held.
func (r *Runtime) Loaded() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.model != nil
}

// Path returns the path of the loaded artifact, or "" when unloaded.
func (r *Runtime) Path() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.path
}

// Unload releases the model handle. It waits for an in-flight generation
// to finish so native resources are never freed under a running predict.
// Valid at any time (memory-pressure trigger); the next Generate fails
// with ErrNotLoaded.
func (r *Runtime) Unload() error {
	r.gate <- struct{}{}
	defer func() { <-r.gate }()

	r.mu.Lock()
	mdl := r.model
	path := r.path
	r.model = nil
	r.path = ""
	r.mu.Unlock()
	if mdl == nil {
		return nil
	}
	err := mdl.Close()
	log.Printf("infer event=unload path=%q", path)
	r.publisher.Publish(events.Event{Name: "unload", Subject: path, Fields: map[string]any{}})
	return err
}

// Generate runs a single-shot completion and returns the full text.
func (r *Runtime) Generate(ctx context.Context, prompt string, params Params) (string, error) {
	return r.GenerateStream(ctx, prompt, params, nil)
}

// GenerateStream streams tokens to onToken (may be nil) and returns the
// accumulated text. The generation races a supervisory timer; whichever
// finishes first wins and the loser's result is discarded. Cancellation is
// cooperative: the backend is asked to stop between tokens, and no token
// reaches onToken after this method returns. The single-flight slot stays
// held until the backend call itself has exited, even when the supervisor
// returns early, so Unload never closes a handle under a running predict.
func (r *Runtime) GenerateStream(ctx context.Context, prompt string, params Params, onToken func(string) error) (string, error) {
	select {
	case r.gate <- struct{}{}:
	default:
		return "", ErrBusy()
	}

	r.mu.Lock()
	mdl := r.model
	r.mu.Unlock()
	if mdl == nil {
		<-r.gate
		return "", ErrNotLoaded()
	}
	if err := ctx.Err(); err != nil {
		<-r.gate
		return "", err
	}

	params = params.withDefaults()
	genCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	// fence stops token forwarding the instant the supervisor gives up,
	// so a late token from a discarded generation never escapes.
	fence := &tokenFence{fn: onToken}

	type outcome struct {
		text string
		err  error
	}
	done := make(chan outcome, 1)
	go func() {
		text, err := mdl.Generate(genCtx, prompt, params, fence.forward)
		// The slot is released here, not by the supervisor: a timed-out
		// generation may still be inside the backend after GenerateStream
		// has returned, and the model must not be freed underneath it.
		// Releasing before the done send keeps the slot free by the time a
		// winning supervisor returns to its caller.
		<-r.gate
		done <- outcome{text: text, err: err}
	}()

	timer := time.NewTimer(r.timeout)
	defer timer.Stop()
	select {
	case out := <-done:
		fence.stop()
		if out.err != nil {
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", out.err
		}
		return out.text, nil
	case <-timer.C:
		fence.stop()
		cancel()
		log.Printf("infer event=generate_timeout after=%s", r.timeout)
		r.publisher.Publish(events.Event{Name: "generate_timeout", Subject: r.path, Fields: map[string]any{"after": r.timeout.String()}})
		return "", ErrTimeout(r.timeout)
	case <-ctx.Done():
		fence.stop()
		cancel()
		return "", ctx.Err()
	}
}

// tokenFence forwards tokens until stopped. stop is called before the
// supervisor returns, guaranteeing the caller sees no fragment afterwards.
type tokenFence struct {
	mu      sync.Mutex
	stopped bool
	fn      func(string) error
}

func (f *tokenFence) forward(tok string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped {
		return context.Canceled
	}
	if f.fn == nil {
		return nil
	}
	return f.fn(tok)
}

func (f *tokenFence) stop() {
	f.mu.Lock()
	f.stopped = true
	f.mu.Unlock()
}
