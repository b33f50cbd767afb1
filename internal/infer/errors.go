package infer

import "time"

// notLoadedError signals Generate was called with no model loaded.
type notLoadedError struct{}

func (notLoadedError) Error() string { return "model not loaded" }

// ErrNotLoaded constructs the not-loaded error.
func ErrNotLoaded() error { return notLoadedError{} }

// IsNotLoaded reports whether err indicates no model is loaded.
func IsNotLoaded(err error) bool {
	_, ok := err.(notLoadedError)
	return ok
}

// timeoutError signals the generation deadline elapsed.
type timeoutError struct{ after time.Duration }

func (e timeoutError) Error() string { return "generation timeout after " + e.after.String() }

// ErrTimeout constructs a generation timeout error.
func ErrTimeout(after time.Duration) error { return timeoutError{after: after} }

// IsTimeout reports whether err indicates a generation deadline was hit.
func IsTimeout(err error) bool {
	_, ok := err.(timeoutError)
	return ok
}

// busyError signals a second generation was attempted while one is active.
type busyError struct{}

func (busyError) Error() string { return "generation already in progress" }

// ErrBusy constructs the busy error.
func ErrBusy() error { return busyError{} }

// IsBusy reports whether err indicates a concurrent generation attempt.
func IsBusy(err error) bool {
	_, ok := err.(busyError)
	return ok
}

// backendUnavailableError signals a missing runtime dependency (e.g.
// llama.cpp not compiled in) so callers can degrade instead of crash.
type backendUnavailableError struct{ msg string }

func (e backendUnavailableError) Error() string { return e.msg }

// ErrBackendUnavailable constructs a backendUnavailableError.
func ErrBackendUnavailable(msg string) error { return backendUnavailableError{msg: msg} }

// IsBackendUnavailable reports whether err indicates a missing backend.
func IsBackendUnavailable(err error) bool {
	_, ok := err.(backendUnavailableError)
	return ok
}
