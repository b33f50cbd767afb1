// Package assistant wires the AI core together: classify the input, build
// the compliant prompt, stream the generation, post-process the output.
// Every failure on the generation path resolves to a safe fallback reply
// rather than an empty hand.
package assistant

import (
	"context"
	"log"
	"strings"

	"safeguardd/internal/events"
	"safeguardd/internal/infer"
	"safeguardd/internal/mesh"
	"safeguardd/internal/safety"
	"safeguardd/internal/session"
)

// MaxPromptBytes bounds user input; anything larger is rejected as invalid
// rather than silently truncated.
const MaxPromptBytes = 4096

// Reply is the assistant's final, compliance-checked answer.
type Reply struct {
	Text       string
	Emergency  bool
	Annotation safety.Annotation
	SessionID  string
	Tokens     int
	// Fallback marks a reply produced by the safe-fallback path after a
	// generation failure; Reason records why.
	Fallback bool
	Reason   string
}

// Assistant orchestrates one runtime, one session controller, and the
// compliance pipeline.
type Assistant struct {
	pipeline   *safety.Pipeline
	controller *session.Controller
	runtime    *infer.Runtime
	transport  mesh.Transport
	params     infer.Params
	publisher  events.Publisher
}

// Config collects the assistant's collaborators.
type Config struct {
	Pipeline   *safety.Pipeline
	Controller *session.Controller
	Runtime    *infer.Runtime
	// Transport may be nil; mesh-dependent behavior degrades gracefully.
	Transport mesh.Transport
	// Params defaults to the safety preset when zero.
	Params    infer.Params
	Publisher events.Publisher
}

// New builds an assistant. Pipeline, Controller, and Runtime are required.
func New(cfg Config) *Assistant {
	a := &Assistant{
		pipeline:   cfg.Pipeline,
		controller: cfg.Controller,
		runtime:    cfg.Runtime,
		transport:  cfg.Transport,
		params:     cfg.Params,
		publisher:  cfg.Publisher,
	}
	if a.publisher == nil {
		a.publisher = events.NopPublisher{}
	}
	return a
}

// Classify exposes the shared classifier verdict for the given text; the
// UI uses it to decide on the emergency-dial affordance.
func (a *Assistant) Classify(text string) safety.Classification {
	return a.pipeline.Classifier().Classify(text)
}

// Respond runs the full pipeline for one user input. Fragments go to sink
// (may be nil) as they are generated; the returned Reply carries the
// post-processed final text.
//
// Invalid input and a concurrent-session rejection surface as errors.
// Generation failures do not: they resolve to the fallback Reply so the
// caller always has a safe response, with the emergency injection applied
// even on that path.
func (a *Assistant) Respond(ctx context.Context, userText string, sink session.Sink) (Reply, error) {
	return a.RespondWith(ctx, userText, a.params, sink)
}

// RespondWith is Respond with per-call sampling params. Zero fields fall
// back to the assistant's configured params; anything still zero gets the
// safety preset inside the runtime.
func (a *Assistant) RespondWith(ctx context.Context, userText string, params infer.Params, sink session.Sink) (Reply, error) {
	trimmed := strings.TrimSpace(userText)
	if trimmed == "" {
		return Reply{}, ErrInvalidInput("prompt is empty")
	}
	if len(userText) > MaxPromptBytes {
		return Reply{}, ErrInvalidInput("prompt exceeds maximum length")
	}

	cls := a.Classify(trimmed)
	prompt := a.pipeline.WrapPrompt(trimmed)

	res, err := a.controller.Stream(ctx, prompt, mergeParams(params, a.params), sink)
	if err != nil {
		if session.IsSessionActive(err) {
			return Reply{}, err
		}
		// Generation failed: resolve to the safe fallback. The pipeline's
		// post-processing still runs, so emergency-tagged input gets the
		// priority sentence here too.
		text, ann := a.pipeline.PostProcess(a.pipeline.Fallback(), trimmed)
		log.Printf("assistant event=fallback emergency=%v err=%v", cls.Emergency, err)
		a.publisher.Publish(events.Event{Name: "fallback", Subject: res.SessionID, Fields: map[string]any{"error": err.Error()}})
		return Reply{
			Text:       text,
			Emergency:  cls.Emergency,
			Annotation: ann,
			SessionID:  res.SessionID,
			Fallback:   true,
			Reason:     err.Error(),
		}, nil
	}

	text, ann := a.pipeline.PostProcess(res.Text, trimmed)
	return Reply{
		Text:       text,
		Emergency:  cls.Emergency,
		Annotation: ann,
		SessionID:  res.SessionID,
		Tokens:     res.Tokens,
	}, nil
}

// mergeParams fills zero fields of p from the fallback set.
func mergeParams(p, fallback infer.Params) infer.Params {
	if p.MaxTokens == 0 {
		p.MaxTokens = fallback.MaxTokens
	}
	if p.Temperature == 0 {
		p.Temperature = fallback.Temperature
	}
	if p.TopP == 0 {
		p.TopP = fallback.TopP
	}
	if p.TopK == 0 {
		p.TopK = fallback.TopK
	}
	if p.RepeatPenalty == 0 {
		p.RepeatPenalty = fallback.RepeatPenalty
	}
	if p.CtxSize == 0 {
		p.CtxSize = fallback.CtxSize
	}
	return p
}

// ShareToMesh pushes a reply onto the mesh transport, if one is attached
// and connected.
func (a *Assistant) ShareToMesh(text string) error {
	if a.transport == nil || !a.transport.Connected() {
		return ErrMeshUnavailable()
	}
	return a.transport.SendMessage(text)
}

// MeshStatus reports transport connectivity for status surfaces.
func (a *Assistant) MeshStatus() (connected bool, peers int) {
	if a.transport == nil {
		return false, 0
	}
	return a.transport.Connected(), a.transport.PeerCount()
}

// OnMemoryPressure proactively unloads the model. The next generation
// fails with not-loaded (and therefore resolves to the fallback reply)
// until the model is loaded again.
func (a *Assistant) OnMemoryPressure() {
	log.Printf("assistant event=memory_pressure_unload")
	a.publisher.Publish(events.Event{Name: "memory_pressure_unload", Fields: map[string]any{}})
	_ = a.runtime.Unload()
}

// SessionState exposes the controller state for status reporting.
func (a *Assistant) SessionState() session.State { return a.controller.State() }

// ModelLoaded reports whether the runtime holds a model.
func (a *Assistant) ModelLoaded() bool { return a.runtime.Loaded() }
