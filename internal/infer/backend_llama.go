//go:build llama

package infer

import (
	"context"
	"errors"
	"strings"
	"sync"

	llama "github.com/go-skynet/go-llama.cpp"
)

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = true

// llamaBackend loads gguf artifacts in-process via go-llama.cpp.
type llamaBackend struct {
	threads int
}

// NewLlamaBackend returns the production backend. threads <= 0 lets the
// library pick.
func NewLlamaBackend(threads int) Backend {
	return &llamaBackend{threads: threads}
}

func (b *llamaBackend) Open(path string, opts Options) (Model, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("model path is empty")
	}
	mo := []llama.ModelOption{}
	if opts.CtxSize > 0 {
		mo = append(mo, llama.SetContext(opts.CtxSize))
	}
	m, err := llama.New(path, mo...)
	if err != nil {
		return nil, err
	}
	threads := b.threads
	if opts.Threads > 0 {
		threads = opts.Threads
	}
	return &llamaModel{model: m, threads: threads}, nil
}

// llamaModel owns one loaded gguf model. Predict calls are serialized by
// the Runtime gate; the mutex below only protects Close.
type llamaModel struct {
	mu      sync.Mutex
	model   *llama.LLama
	threads int
}

func (s *llamaModel) Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (string, error) {
	s.mu.Lock()
	m := s.model
	s.mu.Unlock()
	if m == nil {
		return "", errors.New("llama model not initialized")
	}

	// Bridge token streaming to onToken and respect cancellation between
	// tokens (cooperative, never mid-token).
	m.SetTokenCallback(func(tok string) bool {
		select {
		case <-ctx.Done():
			return false
		default:
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return false
			}
		}
		return true
	})
	po := mapParamsToPredictOptions(params, s.threads)
	text, err := m.Predict(prompt, po...)
	if err != nil {
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		return "", err
	}
	return text, nil
}

func (s *llamaModel) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.model != nil {
		s.model.Free()
		s.model = nil
	}
	return nil
}

// helpers
func maxi(a, b int) int {
	if a > b {
		return a
	}
	return b
}
func zn(v, def int) int {
	if v > 0 {
		return v
	}
	return def
}
func zf(v, def float32) float32 {
	if v > 0 {
		return v
	}
	return def
}

// mapParamsToPredictOptions converts generation params into go-llama.cpp options.
func mapParamsToPredictOptions(params Params, threads int) []llama.PredictOption {
	return []llama.PredictOption{
		llama.SetTokens(maxi(1, params.MaxTokens)),
		llama.SetThreads(maxi(1, threads)),
		llama.SetTopP(zf(params.TopP, llama.DefaultOptions.TopP)),
		llama.SetTopK(zn(params.TopK, llama.DefaultOptions.TopK)),
		llama.SetTemperature(zf(params.Temperature, llama.DefaultOptions.Temperature)),
		llama.SetPenalty(zf(params.RepeatPenalty, llama.DefaultOptions.Penalty)),
	}
}
