package assistant

// invalidInputError signals an empty or oversized prompt (maps to 400).
type invalidInputError struct{ msg string }

func (e invalidInputError) Error() string { return e.msg }

// ErrInvalidInput constructs an invalidInputError.
func ErrInvalidInput(msg string) error { return invalidInputError{msg: msg} }

// IsInvalidInput reports whether err indicates a rejected prompt.
func IsInvalidInput(err error) bool {
	_, ok := err.(invalidInputError)
	return ok
}

// meshUnavailableError signals no connected mesh transport.
type meshUnavailableError struct{}

func (meshUnavailableError) Error() string { return "mesh transport not connected" }

// ErrMeshUnavailable constructs a meshUnavailableError.
func ErrMeshUnavailable() error { return meshUnavailableError{} }

// IsMeshUnavailable reports whether err indicates a missing mesh link.
func IsMeshUnavailable(err error) bool {
	_, ok := err.(meshUnavailableError)
	return ok
}
