// Package app composes the acquisition manager, inference runtime, session
// controller, and compliance pipeline into the single Core the HTTP layer
// talks to.
package app

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"safeguardd/internal/acquire"
	"safeguardd/internal/assistant"
	"safeguardd/internal/infer"
	"safeguardd/pkg/types"
)

// Core implements the HTTP service surface on top of the AI core packages.
type Core struct {
	manager   *acquire.Manager
	runtime   *infer.Runtime
	assistant *assistant.Assistant

	startedAt time.Time

	generations atomic.Uint64
	fallbacks   atomic.Uint64

	mu       sync.Mutex
	lastErr  string
	loadOnce sync.Once // logs the first lazy load exactly once
}

// NewCore wires the collaborators together.
func NewCore(manager *acquire.Manager, runtime *infer.Runtime, asst *assistant.Assistant) *Core {
	return &Core{
		manager:   manager,
		runtime:   runtime,
		assistant: asst,
		startedAt: time.Now(),
	}
}

// Model reports the managed artifact and its acquisition state.
func (c *Core) Model() types.ModelResponse {
	return types.ModelResponse{Asset: c.manager.Asset(), State: c.manager.State()}
}

// StartDownload kicks off acquisition in the background. Progress is
// observable via GET /model; re-entrant calls are no-ops inside the manager.
func (c *Core) StartDownload() error {
	go func() {
		if err := c.manager.Download(context.Background()); err != nil {
			c.recordError(err)
		}
	}()
	return nil
}

// DeleteModel unloads the runtime first so no native handle points at the
// file being removed, then delegates to the manager.
func (c *Core) DeleteModel() error {
	if err := c.runtime.Unload(); err != nil {
		return err
	}
	return c.manager.Delete()
}

// Classify exposes the emergency keyword classifier.
func (c *Core) Classify(text string) types.ClassifyResponse {
	cls := c.assistant.Classify(text)
	return types.ClassifyResponse{Emergency: cls.Emergency, Matches: cls.Matches}
}

// ensureLoaded lazily loads the model when the artifact is ready on disk.
// A missing or still-downloading artifact surfaces as not-loaded from the
// runtime, which the assistant resolves to the fallback reply.
func (c *Core) ensureLoaded() {
	if c.runtime.Loaded() {
		return
	}
	if c.manager.State().Phase != types.DownloadReady {
		return
	}
	asset := c.manager.Asset()
	if err := c.runtime.Load(asset.Path); err != nil {
		c.recordError(err)
		return
	}
	c.loadOnce.Do(func() {
		log.Printf("app event=lazy_load path=%s", asset.Path)
	})
}

// Generate runs one compliance-checked generation and writes NDJSON to w.
// When req.Stream is set, each fragment goes out as its own line before the
// final GenerateResult line.
func (c *Core) Generate(ctx context.Context, req types.GenerateRequest, w io.Writer, flush func()) error {
	c.ensureLoaded()

	if req.TimeoutSeconds > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(req.TimeoutSeconds)*time.Second)
		defer cancel()
	}

	enc := json.NewEncoder(w)
	var sink func(fragment string, final bool) bool
	if req.Stream {
		sink = func(fragment string, final bool) bool {
			if final {
				return true
			}
			if err := enc.Encode(map[string]any{"text": fragment, "done": false}); err != nil {
				return false
			}
			if flush != nil {
				flush()
			}
			return true
		}
	}

	params := paramsFromRequest(req)
	reply, err := c.assistant.RespondWith(ctx, req.Prompt, params, sink)
	if err != nil {
		c.recordError(err)
		return err
	}

	c.generations.Add(1)
	if reply.Fallback {
		c.fallbacks.Add(1)
	}
	result := types.GenerateResult{
		Done:      true,
		Text:      reply.Text,
		Emergency: reply.Emergency,
		Annotation: types.Annotation{
			EmergencyInjected: reply.Annotation.EmergencyInjected,
			MeshInjected:      reply.Annotation.MeshInjected,
			Truncated:         reply.Annotation.Truncated,
		},
		SessionID:      reply.SessionID,
		Tokens:         reply.Tokens,
		Fallback:       reply.Fallback,
		FallbackReason: reply.Reason,
	}
	if err := enc.Encode(result); err != nil {
		return err
	}
	if flush != nil {
		flush()
	}
	return nil
}

// Status returns the core status snapshot.
func (c *Core) Status() types.StatusResponse {
	connected, peers := c.assistant.MeshStatus()
	c.mu.Lock()
	lastErr := c.lastErr
	c.mu.Unlock()
	now := time.Now()
	return types.StatusResponse{
		Download:         c.manager.State(),
		ModelLoaded:      c.runtime.Loaded(),
		SessionState:     string(c.assistant.SessionState()),
		MeshConnected:    connected,
		MeshPeers:        peers,
		GenerationsTotal: c.generations.Load(),
		FallbacksTotal:   c.fallbacks.Load(),
		UptimeSeconds:    int64(now.Sub(c.startedAt).Seconds()),
		ServerTimeUnix:   now.Unix(),
		LastError:        lastErr,
	}
}

// Ready means the artifact is on disk; the runtime may still load lazily.
func (c *Core) Ready() bool {
	return c.manager.State().Phase == types.DownloadReady
}

// OnMemoryPressure forwards the low-memory signal to the assistant.
func (c *Core) OnMemoryPressure() { c.assistant.OnMemoryPressure() }

func (c *Core) recordError(err error) {
	c.mu.Lock()
	c.lastErr = err.Error()
	c.mu.Unlock()
}

// paramsFromRequest maps wire sampling knobs onto runtime params. Zero
// fields keep the safety preset defaults.
func paramsFromRequest(req types.GenerateRequest) infer.Params {
	return infer.Params{
		MaxTokens:     req.MaxTokens,
		Temperature:   float32(req.Temperature),
		TopP:          float32(req.TopP),
		TopK:          req.TopK,
		RepeatPenalty: float32(req.RepeatPenalty),
		CtxSize:       req.CtxSize,
	}
}
