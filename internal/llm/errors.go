package llm

import "fmt"

// TransportError indicates the model backend could not be reached.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("llm transport: %v", e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// ServerError indicates the model backend returned an error response.
type ServerError struct {
	Status  int
	Message string
}

func (e *ServerError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("llm server: status %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("llm server: %s", e.Message)
}
