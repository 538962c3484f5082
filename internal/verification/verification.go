package verification

import (
	"context"
	"fmt"
	"net/http"
)

// Request is the payload shared by the registration and face-match endpoints.
type Request struct {
	PersonID   string `json:"personId"`
	SessionID  string `json:"sessionId"`
	SDKVersion string `json:"sdkVersion"`
}

// Response is a fully read HTTP response from the verification service.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Success reports whether the service accepted the call.
func (r *Response) Success() bool {
	return r != nil && r.StatusCode == http.StatusOK
}

// Service exposes the remote operations used by the face authentication flow.
// A returned error means the call itself failed; a non-200 status is not an error.
type Service interface {
	RegisterLiveness(ctx context.Context, bearerToken string, req Request) (*Response, error)
	FaceMatch(ctx context.Context, bearerToken string, req Request) (*Response, error)
}

// ResponseError is returned when a response was received but could not be
// consumed. It keeps the response for inspection.
type ResponseError struct {
	Response *Response
	Err      error
}

// Error implements the error interface.
func (e *ResponseError) Error() string {
	if e.Response == nil {
		return e.Err.Error()
	}
	return fmt.Sprintf("status %d: %v", e.Response.StatusCode, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *ResponseError) Unwrap() error {
	return e.Err
}
