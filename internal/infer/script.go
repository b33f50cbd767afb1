package infer

import (
	"context"
	"strings"
	"sync"
	"time"
)

// ScriptBackend replays a fixed token script for every prompt. It is the
// deterministic stand-in used by tests and by `safeguardd serve
// --backend=script` when no gguf artifact or CGO toolchain is available.
type ScriptBackend struct {
	// Tokens emitted per generation. Empty means a small built-in script.
	Tokens []string
	// TokenDelay is slept between tokens, making cancellation and timeout
	// observable in tests.
	TokenDelay time.Duration
	// OpenErr, when set, is returned by Open.
	OpenErr error
	// GenerateErr, when set, is returned after the last token.
	GenerateErr error
}

var defaultScript = []string{"Stay", " calm", " and", " move", " to", " a", " safe", " place", "."}

func (b *ScriptBackend) Open(path string, opts Options) (Model, error) {
	if b.OpenErr != nil {
		return nil, b.OpenErr
	}
	tokens := b.Tokens
	if len(tokens) == 0 {
		tokens = defaultScript
	}
	return &scriptModel{
		tokens:      append([]string(nil), tokens...),
		delay:       b.TokenDelay,
		generateErr: b.GenerateErr,
	}, nil
}

type scriptModel struct {
	mu          sync.Mutex
	closed      bool
	tokens      []string
	delay       time.Duration
	generateErr error
}

func (s *scriptModel) Generate(ctx context.Context, prompt string, params Params, onToken func(string) error) (string, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return "", ErrNotLoaded()
	}

	var b strings.Builder
	max := params.MaxTokens
	for i, tok := range s.tokens {
		if max > 0 && i >= max {
			break
		}
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if s.delay > 0 {
			select {
			case <-time.After(s.delay):
			case <-ctx.Done():
				return "", ctx.Err()
			}
		}
		if onToken != nil {
			if err := onToken(tok); err != nil {
				return "", err
			}
		}
		b.WriteString(tok)
	}
	if s.generateErr != nil {
		return "", s.generateErr
	}
	return b.String(), nil
}

func (s *scriptModel) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
