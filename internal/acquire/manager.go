// Package acquire downloads, verifies, and stores the model artifact. The
// Manager is the single source of truth for DownloadState; UI layers just
// subscribe. Integrity is a byte-size comparison against the asset's
// expected size — a deliberate, documented limitation (no checksum).
package acquire

import (
	"context"
	"log"
	"net/http"
	"os"
	"sync"
	"time"

	"safeguardd/internal/events"
	"safeguardd/pkg/types"
)

const (
	// defaultMaxAttempts bounds transfer retries; corruption and network
	// failures are never retried indefinitely.
	defaultMaxAttempts = 3
	// retryBackoff is the pause between transfer attempts.
	retryBackoff = 500 * time.Millisecond
)

// Manager owns the lifecycle of one model artifact on local storage.
type Manager struct {
	asset types.ModelAsset

	mu       sync.Mutex
	state    types.DownloadState
	subs     map[int]chan types.DownloadState
	nextSub  int
	cancel   context.CancelFunc // in-flight transfer, nil when idle
	inFlight chan struct{}      // closed when the running transfer exits

	client      *http.Client
	maxAttempts int
	publisher   events.Publisher
}

// Option customizes Manager construction.
type Option func(*Manager)

// WithHTTPClient overrides the HTTP client used for transfers.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Manager) {
		if c != nil {
			m.client = c
		}
	}
}

// WithMaxAttempts bounds transfer retries (minimum 1).
func WithMaxAttempts(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.maxAttempts = n
		}
	}
}

// WithPublisher installs an event publisher for acquisition events.
func WithPublisher(p events.Publisher) Option {
	return func(m *Manager) {
		if p != nil {
			m.publisher = p
		}
	}
}

// NewManager creates a manager for the given asset. Initial state reflects
// what is already on disk: a file satisfying the size invariant means ready.
func NewManager(asset types.ModelAsset, opts ...Option) *Manager {
	m := &Manager{
		asset:       asset,
		subs:        make(map[int]chan types.DownloadState),
		client:      &http.Client{},
		maxAttempts: defaultMaxAttempts,
		publisher:   events.NopPublisher{},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.verifyOnDisk() {
		m.state = types.DownloadState{
			Phase:         types.DownloadReady,
			Progress:      1,
			ReceivedBytes: asset.ExpectedBytes,
			ExpectedBytes: asset.ExpectedBytes,
		}
	} else {
		m.state = types.DownloadState{Phase: types.DownloadNotStarted, ExpectedBytes: asset.ExpectedBytes}
	}
	return m
}

// Asset returns the managed asset descriptor.
func (m *Manager) Asset() types.ModelAsset { return m.asset }

// State returns the current download state snapshot.
func (m *Manager) State() types.DownloadState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Subscribe returns a channel that receives the current state immediately
// and every subsequent transition. The returned cancel func releases the
// subscription. Slow subscribers drop intermediate progress updates rather
// than blocking the transfer.
func (m *Manager) Subscribe() (<-chan types.DownloadState, func()) {
	ch := make(chan types.DownloadState, 16)
	m.mu.Lock()
	id := m.nextSub
	m.nextSub++
	m.subs[id] = ch
	ch <- m.state
	m.mu.Unlock()
	cancel := func() {
		m.mu.Lock()
		if sub, ok := m.subs[id]; ok {
			delete(m.subs, id)
			close(sub)
		}
		m.mu.Unlock()
	}
	return ch, cancel
}

// setState publishes a state transition to all subscribers. Caller must
// not hold m.mu.
func (m *Manager) setState(st types.DownloadState) {
	m.mu.Lock()
	m.setStateLocked(st)
	m.mu.Unlock()
}

// setStateLocked records the transition and fans it out. Caller holds m.mu.
func (m *Manager) setStateLocked(st types.DownloadState) {
	m.state = st
	for _, ch := range m.subs {
		select {
		case ch <- st:
		default:
		}
	}
}

// Download acquires the artifact. It is synchronous; run it in a goroutine
// and observe progress via Subscribe. Semantics:
//
//   - an on-disk file already satisfying the size invariant is a no-op
//     that reports ready;
//   - calling Download while a transfer is running is a no-op;
//   - failures surface as the failed state (and the returned error), never
//     as a partial file at the canonical path.
func (m *Manager) Download(ctx context.Context) error {
	m.mu.Lock()
	if m.state.Phase == types.DownloadInProgress {
		m.mu.Unlock()
		log.Printf("acquire event=download_reentrant asset=%q", m.asset.Name)
		return nil
	}
	if m.verifyOnDisk() {
		m.mu.Unlock()
		m.setState(types.DownloadState{
			Phase:         types.DownloadReady,
			Progress:      1,
			ReceivedBytes: m.asset.ExpectedBytes,
			ExpectedBytes: m.asset.ExpectedBytes,
		})
		log.Printf("acquire event=download_cached asset=%q", m.asset.Name)
		m.publisher.Publish(events.Event{Name: "download_cached", Subject: m.asset.Name, Fields: map[string]any{}})
		return nil
	}
	tctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.cancel = cancel
	m.inFlight = done
	// Claim the downloading phase before releasing the lock so a racing
	// Download sees it and becomes the no-op, not a second transfer into
	// the same partial file.
	m.setStateLocked(types.DownloadState{Phase: types.DownloadInProgress, ExpectedBytes: m.asset.ExpectedBytes})
	m.mu.Unlock()
	defer func() {
		m.mu.Lock()
		m.cancel = nil
		m.inFlight = nil
		m.mu.Unlock()
		close(done)
		cancel()
	}()

	log.Printf("acquire event=download_start asset=%q url=%s", m.asset.Name, m.asset.URL)
	m.publisher.Publish(events.Event{Name: "download_start", Subject: m.asset.Name, Fields: map[string]any{"url": m.asset.URL}})
	downloadsStarted.Inc()

	var err error
	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		err = m.transfer(tctx)
		if err == nil {
			m.setState(types.DownloadState{
				Phase:         types.DownloadReady,
				Progress:      1,
				ReceivedBytes: m.asset.ExpectedBytes,
				ExpectedBytes: m.asset.ExpectedBytes,
			})
			log.Printf("acquire event=download_ready asset=%q attempt=%d", m.asset.Name, attempt)
			m.publisher.Publish(events.Event{Name: "download_ready", Subject: m.asset.Name, Fields: map[string]any{"attempt": attempt}})
			downloadsFinished.WithLabelValues("ready").Inc()
			return nil
		}
		if tctx.Err() != nil {
			// Cancelled via Delete or caller context; state is reset by
			// the canceller, not here.
			downloadsFinished.WithLabelValues("cancelled").Inc()
			return tctx.Err()
		}
		log.Printf("acquire event=download_attempt_failed asset=%q attempt=%d err=%v", m.asset.Name, attempt, err)
		m.publisher.Publish(events.Event{Name: "download_attempt_failed", Subject: m.asset.Name, Fields: map[string]any{"attempt": attempt, "error": err.Error()}})
		if attempt < m.maxAttempts {
			select {
			case <-time.After(retryBackoff):
			case <-tctx.Done():
				downloadsFinished.WithLabelValues("cancelled").Inc()
				return tctx.Err()
			}
		}
	}

	reason := err.Error()
	if IsCorrupted(err) {
		reason = ReasonCorrupted
	}
	m.setState(types.DownloadState{
		Phase:         types.DownloadFailedPhase,
		ExpectedBytes: m.asset.ExpectedBytes,
		Reason:        reason,
	})
	log.Printf("acquire event=download_failed asset=%q reason=%q", m.asset.Name, reason)
	m.publisher.Publish(events.Event{Name: "download_failed", Subject: m.asset.Name, Fields: map[string]any{"reason": reason}})
	downloadsFinished.WithLabelValues("failed").Inc()
	return err
}

// Delete cancels any in-flight transfer, removes the artifact and any
// partial file, and resets state to not-downloaded. Idempotent: deleting
// an absent model is not an error.
func (m *Manager) Delete() error {
	m.mu.Lock()
	cancel := m.cancel
	done := m.inFlight
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}

	var firstErr error
	for _, p := range []string{m.asset.Path, partialPath(m.asset)} {
		if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
			if firstErr == nil {
				firstErr = ErrDisk(err.Error())
			}
		}
	}
	if firstErr != nil {
		return firstErr
	}
	m.setState(types.DownloadState{Phase: types.DownloadNotStarted, ExpectedBytes: m.asset.ExpectedBytes})
	log.Printf("acquire event=deleted asset=%q", m.asset.Name)
	m.publisher.Publish(events.Event{Name: "deleted", Subject: m.asset.Name, Fields: map[string]any{}})
	return nil
}

// verifyOnDisk reports whether the canonical file satisfies the size
// invariant. Caller may hold m.mu; this only touches the filesystem.
func (m *Manager) verifyOnDisk() bool {
	fi, err := os.Stat(m.asset.Path)
	if err != nil {
		return false
	}
	return !fi.IsDir() && fi.Size() >= m.asset.ExpectedBytes
}
