package faceauth

import (
	"errors"
	"fmt"

	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/verification"
)

// Kind classifies the failures Initialize and StartLiveness surface.
type Kind int

const (
	// KindUnknown covers every failure that is not a named SDK error or a
	// failed remote call.
	KindUnknown Kind = iota
	// KindLivenessSDK means the liveness SDK failed with one of its named kinds.
	KindLivenessSDK
	// KindAPI means a call to the verification service itself failed.
	KindAPI
)

func (k Kind) String() string {
	switch k {
	case KindLivenessSDK:
		return "liveness_sdk"
	case KindAPI:
		return "api"
	default:
		return "unknown"
	}
}

// Error is the single error type returned by the authenticator.
type Error struct {
	Kind Kind
	// SDKKind is set for KindLivenessSDK.
	SDKKind liveness.ErrorKind
	// Operation names the step that failed, e.g. "faceauth.face_match".
	Operation string
	// Response is the offending response for KindAPI, when one was received.
	Response *verification.Response
	Err      error
}

func (e *Error) Error() string {
	switch e.Kind {
	case KindLivenessSDK:
		return fmt.Sprintf("faceauth: liveness sdk failure (%s): %v", e.SDKKind, e.Err)
	case KindAPI:
		if e.Response != nil {
			return fmt.Sprintf("faceauth: %s: api failure (status %d): %v", e.Operation, e.Response.StatusCode, e.Err)
		}
		return fmt.Sprintf("faceauth: %s: api failure: %v", e.Operation, e.Err)
	default:
		return fmt.Sprintf("faceauth: %s: unknown failure: %v", e.Operation, e.Err)
	}
}

func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the Kind of err, or KindUnknown when err is not an *Error.
func KindOf(err error) Kind {
	var authErr *Error
	if errors.As(err, &authErr) {
		return authErr.Kind
	}
	return KindUnknown
}

// IsLivenessSDK reports whether err is a liveness SDK failure.
func IsLivenessSDK(err error) bool {
	var authErr *Error
	return errors.As(err, &authErr) && authErr.Kind == KindLivenessSDK
}

// IsAPI reports whether err is a verification service failure.
func IsAPI(err error) bool {
	var authErr *Error
	return errors.As(err, &authErr) && authErr.Kind == KindAPI
}

func mapCaptureError(err error) *Error {
	var sdkErr *liveness.SDKError
	if errors.As(err, &sdkErr) && sdkErr.Kind.Known() {
		return &Error{Kind: KindLivenessSDK, SDKKind: sdkErr.Kind, Operation: opStartLiveness, Err: err}
	}
	return &Error{Kind: KindUnknown, Operation: opStartLiveness, Err: err}
}

func apiError(operation string, err error) *Error {
	out := &Error{Kind: KindAPI, Operation: operation, Err: err}
	var respErr *verification.ResponseError
	if errors.As(err, &respErr) {
		out.Response = respErr.Response
	}
	return out
}
