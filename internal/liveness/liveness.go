package liveness

import (
	"context"
	"fmt"
	"strings"
)

// DefaultSDKVersion is the version tag reported to the verification service
// when no explicit tag is configured.
const DefaultSDKVersion = "2.4.1"

// Outcome is the result of a single liveness capture. Every field is optional.
type Outcome struct {
	Realness      *bool   `json:"realness,omitempty"`
	SessionID     *string `json:"sessionId,omitempty"`
	CapturedImage *string `json:"capturedImage,omitempty"`
}

// Capture starts an on-device liveness check and waits for its outcome.
type Capture interface {
	Start(ctx context.Context) (*Outcome, error)
}

// CaptureFunc adapts an ordinary function to the Capture interface.
type CaptureFunc func(ctx context.Context) (*Outcome, error)

// Start calls f(ctx).
func (f CaptureFunc) Start(ctx context.Context) (*Outcome, error) {
	return f(ctx)
}

// ErrorKind enumerates the failures the liveness SDK reports by name.
type ErrorKind int

const (
	ErrorKindUnspecified ErrorKind = iota
	ErrorKindAuthorization
	ErrorKindPermission
	ErrorKindUserCancelled
	ErrorKindGeneric
)

var errorKindNames = map[ErrorKind]string{
	ErrorKindAuthorization: "authorization",
	ErrorKindPermission:    "permission",
	ErrorKindUserCancelled: "user_cancelled",
	ErrorKindGeneric:       "generic",
}

// String returns the wire name of the kind.
func (k ErrorKind) String() string {
	if name, ok := errorKindNames[k]; ok {
		return name
	}
	return "unspecified"
}

// Known reports whether k is one of the SDK's named error kinds.
func (k ErrorKind) Known() bool {
	_, ok := errorKindNames[k]
	return ok
}

// ParseErrorKind resolves a wire name into an ErrorKind. Unrecognised names
// yield ErrorKindUnspecified and false.
func ParseErrorKind(name string) (ErrorKind, bool) {
	name = strings.ToLower(strings.TrimSpace(name))
	for kind, candidate := range errorKindNames {
		if candidate == name {
			return kind, true
		}
	}
	return ErrorKindUnspecified, false
}

// SDKError is returned by a Capture when the SDK fails with a named error.
type SDKError struct {
	Kind    ErrorKind
	Message string
}

// Error implements the error interface.
func (e *SDKError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("liveness sdk: %s", e.Kind)
	}
	return fmt.Sprintf("liveness sdk: %s: %s", e.Kind, e.Message)
}
