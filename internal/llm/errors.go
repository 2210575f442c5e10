package llm

import "fmt"

// ModelError reports that a call to the model backend failed or the
// backend could not be reached.
type ModelError struct {
	Provider string
	Op       string
	Err      error
}

func (e *ModelError) Error() string {
	return fmt.Sprintf("%s %s failed: %v", e.Provider, e.Op, e.Err)
}

func (e *ModelError) Unwrap() error { return e.Err }

// MalformedResponseError reports that the backend answered but the body
// could not be parsed as the requested structured shape.
type MalformedResponseError struct {
	Body string
	Err  error
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed model response: %v", e.Err)
}

func (e *MalformedResponseError) Unwrap() error { return e.Err }

// StreamInterruptedError reports that a streaming call failed after it
// had started delivering output.
type StreamInterruptedError struct {
	Err error
}

func (e *StreamInterruptedError) Error() string {
	return fmt.Sprintf("stream interrupted: %v", e.Err)
}

func (e *StreamInterruptedError) Unwrap() error { return e.Err }
