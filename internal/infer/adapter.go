package infer

import "context"

// LlamaBuilt reports whether this binary carries the real llama backend.
func LlamaBuilt() bool { return llamaBuilt }

// Backend abstracts the model runtime implementation used by Runtime.
// Concrete implementations (e.g., llama.cpp) should satisfy this interface.
type Backend interface {
	// Open loads the model artifact at path and returns a handle for it.
	Open(path string, opts Options) (Model, error)
}

// Model is a loaded model handle. Generations on one handle are sequential;
// Runtime enforces that.
type Model interface {
	// Generate streams tokens for the given prompt. onToken is invoked for
	// each token in generation order; returning an error stops production.
	// Implementations must return promptly when the context is canceled.
	Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (string, error)
	// Close releases the handle and any native resources behind it.
	Close() error
}

// Options configures a backend at model-open time.
type Options struct {
	CtxSize int
	Threads int
}

// Params captures per-request generation parameters. They are explicit per
// request, never global state.
type Params struct {
	MaxTokens     int
	Temperature   float32
	TopP          float32
	TopK          int
	RepeatPenalty float32
	CtxSize       int
}

// SafetyPreset returns the generation parameters used for this domain:
// low temperature and short outputs to bias toward concise, low-variance
// answers on constrained hardware.
func SafetyPreset() Params {
	return Params{
		MaxTokens:     256,
		Temperature:   0.3,
		TopP:          0.9,
		TopK:          40,
		RepeatPenalty: 1.15,
		CtxSize:       1024,
	}
}

// withDefaults fills zero fields from the safety preset.
func (p Params) withDefaults() Params {
	def := SafetyPreset()
	if p.MaxTokens <= 0 {
		p.MaxTokens = def.MaxTokens
	}
	if p.Temperature <= 0 {
		p.Temperature = def.Temperature
	}
	if p.TopP <= 0 {
		p.TopP = def.TopP
	}
	if p.TopK <= 0 {
		p.TopK = def.TopK
	}
	if p.RepeatPenalty <= 0 {
		p.RepeatPenalty = def.RepeatPenalty
	}
	if p.CtxSize <= 0 {
		p.CtxSize = def.CtxSize
	}
	return p
}
