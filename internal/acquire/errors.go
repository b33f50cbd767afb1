package acquire

// ReasonCorrupted is the failure reason reported when a transfer ends with
// fewer bytes than the artifact's expected size.
const ReasonCorrupted = "corrupted or incomplete"

// networkError signals the transfer failed before or during the HTTP
// exchange (DNS, dial, unexpected status, dropped body).
type networkError struct{ msg string }

func (e networkError) Error() string { return "network failure: " + e.msg }

// ErrNetwork constructs a networkError.
func ErrNetwork(msg string) error { return networkError{msg: msg} }

// IsNetwork reports whether err is a transfer-level network failure.
func IsNetwork(err error) bool {
	_, ok := err.(networkError)
	return ok
}

// diskError signals local storage failed (create, write, sync, rename).
type diskError struct{ msg string }

func (e diskError) Error() string { return "disk failure: " + e.msg }

// ErrDisk constructs a diskError.
func ErrDisk(msg string) error { return diskError{msg: msg} }

// IsDisk reports whether err is a local storage failure.
func IsDisk(err error) bool {
	_, ok := err.(diskError)
	return ok
}

// corruptedError signals the size integrity check failed.
type corruptedError struct{}

func (corruptedError) Error() string { return ReasonCorrupted }

// ErrCorrupted constructs a corruptedError.
func ErrCorrupted() error { return corruptedError{} }

// IsCorrupted reports whether err indicates a size-mismatch corruption.
func IsCorrupted(err error) bool {
	_, ok := err.(corruptedError)
	return ok
}
