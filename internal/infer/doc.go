// Package infer owns the loaded model handle and the generation path. It is
// structured into small files by concern:
//
//   - runtime.go: Runtime type; Load/Unload lifecycle and the
//     generate/stream entry points with timeout supervision.
//   - adapter.go: Backend/Model interfaces and generation parameters.
//   - errors.go: error types and helpers (IsNotLoaded, IsTimeout, ...).
//   - script.go: deterministic scripted backend for tests and offline runs.
//
// Build tags and backends:
//
//   - In-process llama (production):
//     Uses the go-llama.cpp backend. Enabled with `-tags=llama`.
//     Files: backend_llama.go. A no-CGO stub compiles when the tag is not
//     set: backend_llama_stub.go.
//
// External packages should depend only on Runtime and the Backend
// interface; concrete backends are an implementation detail.
package infer
