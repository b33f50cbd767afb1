//go:build !llama

package infer

// This file provides a no-CGO stub for the llama backend. It is compiled
// when the 'llama' build tag is NOT set, keeping default builds and CI
// CGO-free. The real backend lives in backend_llama.go (tagged 'llama').

// llamaBuilt indicates this binary was compiled with real llama support.
var llamaBuilt = false

type llamaBackend struct {
	threads int
}

// NewLlamaBackend returns a stub that satisfies Backend but refuses to load
// models without the 'llama' build tag. This avoids mocked behavior in
// production binaries built without CGO support.
func NewLlamaBackend(threads int) Backend {
	return &llamaBackend{threads: threads}
}

func (b *llamaBackend) Open(path string, opts Options) (Model, error) {
	return nil, ErrBackendUnavailable("llama support not built (missing 'llama' build tag)")
}
