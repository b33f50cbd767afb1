package types

// GenerateRequest represents a generation request payload.
type GenerateRequest struct {
	// Required prompt text to generate a response for.
	// example: Where is the nearest shelter?
	Prompt string `json:"prompt" example:"Where is the nearest shelter?"`
	// If true, stream fragments as NDJSON lines before the final line.
	// example: true
	Stream bool `json:"stream,omitempty" example:"true"`
	// Maximum number of new tokens to generate.
	// example: 256
	MaxTokens int `json:"max_tokens,omitempty" example:"256"`
	// Sampling temperature (higher = more random).
	// example: 0.3
	Temperature float64 `json:"temperature,omitempty" example:"0.3"`
	// Nucleus sampling probability.
	// example: 0.9
	TopP float64 `json:"top_p,omitempty" example:"0.9"`
	// Top-K sampling: limit candidates to the top K tokens.
	// example: 40
	TopK int `json:"top_k,omitempty" example:"40"`
	// Repeat penalty applied during sampling.
	// example: 1.15
	RepeatPenalty float64 `json:"repeat_penalty,omitempty" example:"1.15"`
	// Context window size in tokens; 0 uses the safety preset.
	// example: 1024
	CtxSize int `json:"ctx_size,omitempty" example:"1024"`
	// Deadline for the whole generation in seconds; 0 uses the server default.
	// example: 30
	TimeoutSeconds int `json:"timeout_seconds,omitempty" example:"30"`
}

// ClassifyRequest asks the emergency keyword classifier to tag a text.
type ClassifyRequest struct {
	// Text to classify.
	// example: I am bleeding and trapped, help
	Text string `json:"text" example:"I am bleeding and trapped, help"`
}

// ClassifyResponse is the classifier verdict.
type ClassifyResponse struct {
	// True when the text references a safety emergency.
	// example: true
	Emergency bool `json:"emergency" example:"true"`
	// Vocabulary entries that matched, lowercased.
	// example: ["bleeding","trapped","help"]
	Matches []string `json:"matches,omitempty"`
}

// Annotation records which compliance steps fired during post-processing.
type Annotation struct {
	// Emergency-priority sentence was prepended.
	// example: true
	EmergencyInjected bool `json:"emergency_injected" example:"true"`
	// Mesh-network suggestion was appended.
	// example: true
	MeshInjected bool `json:"mesh_injected" example:"true"`
	// Output was truncated to the display limit.
	// example: false
	Truncated bool `json:"truncated" example:"false"`
}

// GenerateResult is the final NDJSON line of a generation stream.
type GenerateResult struct {
	// Always true on the final line.
	Done bool `json:"done"`
	// Post-processed response text.
	Text string `json:"text"`
	// True when the prompt was classified as an emergency.
	// example: true
	Emergency bool `json:"emergency" example:"true"`
	// Compliance steps applied to the response.
	Annotation Annotation `json:"annotation"`
	// Identifier of the streaming session that produced this result.
	// example: 7b4f3f1e-8a3e-4d0b-9f2a-1c2d3e4f5a6b
	SessionID string `json:"session_id" example:"7b4f3f1e-8a3e-4d0b-9f2a-1c2d3e4f5a6b"`
	// Number of fragments produced before post-processing.
	// example: 42
	Tokens int `json:"tokens" example:"42"`
	// True when the text is the safe fallback instead of model output.
	Fallback bool `json:"fallback,omitempty"`
	// Cause of the fallback, when Fallback is true.
	// example: generation timeout after 30s
	FallbackReason string `json:"fallback_reason,omitempty"`
}

// ModelResponse describes the managed artifact and its acquisition state.
type ModelResponse struct {
	Asset ModelAsset    `json:"asset"`
	State DownloadState `json:"state"`
}

// ErrorResponse is a consistent JSON error payload.
type ErrorResponse struct {
	// Error message.
	// example: prompt is required
	Error string `json:"error" example:"prompt is required"`
	// HTTP status code.
	// example: 400
	Code int `json:"code" example:"400"`
}

// StatusResponse is returned by GET /status.
type StatusResponse struct {
	// Model artifact acquisition state.
	Download DownloadState `json:"download"`
	// True when a model is loaded in the inference runtime.
	// example: true
	ModelLoaded bool `json:"model_loaded" example:"true"`
	// Streaming session controller state (idle, streaming, ...).
	// example: idle
	SessionState string `json:"session_state" example:"idle"`
	// True when the mesh transport reports connectivity.
	// example: true
	MeshConnected bool `json:"mesh_connected" example:"true"`
	// Number of mesh peers currently visible.
	// example: 4
	MeshPeers int `json:"mesh_peers" example:"4"`
	// Total generations served since start.
	// example: 12
	GenerationsTotal uint64 `json:"generations_total" example:"12"`
	// Total generations that resolved to the safe fallback.
	// example: 1
	FallbacksTotal uint64 `json:"fallbacks_total" example:"1"`
	// Uptime of the server in seconds.
	// example: 3600
	UptimeSeconds int64 `json:"uptime_seconds" example:"3600"`
	// Server time in unix seconds.
	// example: 1700000000
	ServerTimeUnix int64 `json:"server_time_unix" example:"1700000000"`
	// Last error observed by the core (if any).
	LastError string `json:"last_error,omitempty"`
}
