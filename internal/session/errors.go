package session

// sessionActiveError signals a generation request while one is streaming.
type sessionActiveError struct{ id string }

func (e sessionActiveError) Error() string { return "a streaming session is already active: " + e.id }

// ErrSessionActive constructs a sessionActiveError for the given session id.
func ErrSessionActive(id string) error { return sessionActiveError{id: id} }

// IsSessionActive reports whether err indicates a rejected concurrent
// session (maps to 409 in the HTTP layer).
func IsSessionActive(err error) bool {
	_, ok := err.(sessionActiveError)
	return ok
}
