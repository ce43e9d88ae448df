package errors

// Predefined error types for submission outcomes

// ErrEmptyQuery is returned when a live submission carries no query text.
var ErrEmptyQuery = &StandardError{
	Type:    "VALIDATION_ERROR",
	Message: "Please enter a query or enable Demo mode.",
}

// ErrTopKOutOfRange is returned when top_k falls outside [1,10].
var ErrTopKOutOfRange = &StandardError{
	Type:    "VALIDATION_ERROR",
	Message: "top_k must be between 1 and 10",
}

// ErrRemoteStatus marks a reachable remote service answering with a non-2xx status.
var ErrRemoteStatus = &StandardError{
	Type:    "REMOTE_HTTP_ERROR",
	Message: "Remote service returned an error status",
}

// ErrTransport marks a request that could not be completed.
var ErrTransport = &StandardError{
	Type:    "TRANSPORT_ERROR",
	Message: "Request failed",
}

// StandardError represents a standard application error
type StandardError struct {
	Type    string
	Message string
	Cause   error
}

// Error implements the error interface
func (e *StandardError) Error() string {
	if e.Cause != nil {
		return e.Message + ": " + e.Cause.Error()
	}
	return e.Message
}

// Unwrap returns the underlying cause
func (e *StandardError) Unwrap() error {
	return e.Cause
}

// Is matches any StandardError of the same Type and Message
func (e *StandardError) Is(target error) bool {
	t, ok := target.(*StandardError)
	if !ok {
		return false
	}
	return e.Type == t.Type && e.Message == t.Message
}

// WithCause adds a cause to the error
func (e *StandardError) WithCause(cause error) *StandardError {
	return &StandardError{
		Type:    e.Type,
		Message: e.Message,
		Cause:   cause,
	}
}
