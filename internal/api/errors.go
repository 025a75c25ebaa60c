package api

import (
	"errors"
	"fmt"
)

// BackendError is a reply the server marked with success:false.
type BackendError struct {
	Op      string
	Status  int
	Message string
}

func (e *BackendError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("%s: backend reported failure (status %d)", e.Op, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Op, e.Message)
}

// StatusError is a non-2xx reply without a usable JSON body.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d", e.Op, e.Status)
}

// BackendMessage extracts the server-provided failure text from err, if any.
func BackendMessage(err error) (string, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Message, true
	}
	return "", false
}
