package types

// ModelAsset identifies the model artifact managed by the acquisition layer.
type ModelAsset struct {
	// Stable name for the artifact, also used as the on-disk filename.
	// example: guardian-3b-q4
	Name string `json:"name" example:"guardian-3b-q4"`
	// Canonical HTTPS download URL for the artifact.
	// example: https://models.example.org/guardian-3b-q4.gguf
	URL string `json:"url" example:"https://models.example.org/guardian-3b-q4.gguf"`
	// Expected size of the artifact in bytes; the sole integrity check.
	// example: 1900000000
	ExpectedBytes int64 `json:"expected_bytes" example:"1900000000"`
	// Absolute canonical path of the artifact on disk.
	// example: /home/user/.safeguardd/models/guardian-3b-q4.gguf
	Path string `json:"path" example:"/home/user/.safeguardd/models/guardian-3b-q4.gguf"`
}

// DownloadPhase is the lifecycle phase of the model artifact on disk.
type DownloadPhase string

const (
	DownloadNotStarted  DownloadPhase = "not_downloaded"
	DownloadInProgress  DownloadPhase = "downloading"
	DownloadReady       DownloadPhase = "ready"
	DownloadFailedPhase DownloadPhase = "failed"
)

// DownloadState is a read-only projection of the acquisition manager state.
// Ready implies the backing file exists and its size is at least ExpectedBytes.
//
// The phase also carries the artifact's integrity verdict, so no separate
// integrity field exists: ready means the size check passed (verified);
// failed with reason "corrupted or incomplete" means the check failed and
// the offending file was deleted on the spot; every other phase means
// nothing has been verified yet.
type DownloadState struct {
	// Current phase.
	// example: downloading
	Phase DownloadPhase `json:"phase" example:"downloading"`
	// Transfer progress in [0,1]; meaningful while downloading.
	// example: 0.42
	Progress float64 `json:"progress" example:"0.42"`
	// Bytes received so far in the current transfer.
	// example: 79800000
	ReceivedBytes int64 `json:"received_bytes" example:"79800000"`
	// Expected total bytes.
	// example: 1900000000
	ExpectedBytes int64 `json:"expected_bytes" example:"1900000000"`
	// Failure reason; set only when phase is failed.
	// example: corrupted or incomplete
	Reason string `json:"reason,omitempty" example:"corrupted or incomplete"`
}
