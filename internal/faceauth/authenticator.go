package faceauth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/logging"
	"github.com/example/faceauth/internal/verification"
)

const (
	// MessageRegistrationFailed is reported when the service rejects the
	// liveness registration.
	MessageRegistrationFailed = "Fail to register liveness usage"
	// MessageFaceMatchFailed is reported when the service rejects the match
	// request.
	MessageFaceMatchFailed = "Fail to try face match"

	opStartLiveness = "faceauth.start_liveness"
	opRegister      = "faceauth.register_liveness"
	opFaceMatch     = "faceauth.face_match"
)

var (
	ErrMissingCredentials = errors.New("faceauth: bearer token and subject id are required")
	ErrMissingDependency  = errors.New("faceauth: liveness capture and verification service are required")
)

// Credentials identify the caller to the verification service.
type Credentials struct {
	BearerToken  string
	ClientID     string
	ClientSecret string
	SubjectID    string
}

// MarshalLogObject logs the identifying fields only.
func (c Credentials) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("subject_id", c.SubjectID)
	if c.ClientID != "" {
		enc.AddString("client_id", c.ClientID)
	}
	return nil
}

// Result is the outcome of one authentication attempt.
type Result struct {
	IsAlive       bool    `json:"isAlive"`
	IsMatch       bool    `json:"isMatch"`
	SessionID     *string `json:"sessionId,omitempty"`
	CapturedImage *string `json:"capturedImage,omitempty"`
	ErrorMessage  *string `json:"errorMessage,omitempty"`
}

// Authenticator runs the liveness, registration and face-match sequence for a
// fixed set of credentials. It holds no per-call state.
type Authenticator struct {
	creds      Credentials
	capture    liveness.Capture
	service    verification.Service
	sdkVersion string
	logger     *zap.Logger
}

// Option customises an Authenticator.
type Option func(*Authenticator)

// WithLogger attaches a structured logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Authenticator) {
		if logger != nil {
			a.logger = logger
		}
	}
}

// WithSDKVersion overrides the version tag sent to the service.
func WithSDKVersion(version string) Option {
	return func(a *Authenticator) {
		if version = strings.TrimSpace(version); version != "" {
			a.sdkVersion = version
		}
	}
}

// New constructs an Authenticator.
func New(creds Credentials, capture liveness.Capture, service verification.Service, opts ...Option) (*Authenticator, error) {
	if strings.TrimSpace(creds.BearerToken) == "" || strings.TrimSpace(creds.SubjectID) == "" {
		return nil, ErrMissingCredentials
	}
	if capture == nil || service == nil {
		return nil, ErrMissingDependency
	}
	a := &Authenticator{
		creds:      creds,
		capture:    capture,
		service:    service,
		sdkVersion: liveness.DefaultSDKVersion,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	a.logger = a.logger.Named("faceauth").With(zap.Object("credentials", creds))
	return a, nil
}

// IsLivenessResultValid reports whether an outcome proves a live subject and
// carries a session to verify.
func IsLivenessResultValid(outcome *liveness.Outcome) bool {
	if outcome == nil {
		return false
	}
	return outcome.Realness != nil && *outcome.Realness && outcome.SessionID != nil
}

// StartLiveness runs the liveness capture and maps its failures to *Error.
func (a *Authenticator) StartLiveness(ctx context.Context) (*liveness.Outcome, error) {
	outcome, err := a.capture.Start(ctx)
	if err != nil {
		mapped := mapCaptureError(err)
		a.logger.Warn("liveness capture failed",
			zap.Stringer("kind", mapped.Kind),
			zap.Stringer("sdk_kind", mapped.SDKKind),
			zap.Error(err),
		)
		return nil, mapped
	}
	return outcome, nil
}

// Initialize performs one full authentication attempt. Negative outcomes are
// returned as a Result; only unexpected failures are returned as *Error.
func (a *Authenticator) Initialize(ctx context.Context) (*Result, error) {
	outcome, err := a.StartLiveness(ctx)
	if err != nil {
		return nil, err
	}
	if !IsLivenessResultValid(outcome) {
		a.logger.Info("liveness capture rejected")
		return &Result{}, nil
	}

	sessionID, image := outcome.SessionID, outcome.CapturedImage
	opLogger := logging.WithOperation(a.logger, "faceauth.initialize", *sessionID)
	req := verification.Request{
		PersonID:   a.creds.SubjectID,
		SessionID:  *sessionID,
		SDKVersion: a.sdkVersion,
	}

	registered, err := a.service.RegisterLiveness(ctx, a.creds.BearerToken, req)
	if err != nil {
		return nil, apiError(opRegister, err)
	}
	if !registered.Success() {
		opLogger.Warn("liveness registration rejected", zap.Int("status", statusCode(registered)))
		return &Result{
			SessionID:     sessionID,
			CapturedImage: image,
			ErrorMessage:  message(MessageRegistrationFailed),
		}, nil
	}

	matched, err := a.service.FaceMatch(ctx, a.creds.BearerToken, req)
	if err != nil {
		return nil, apiError(opFaceMatch, err)
	}
	if !matched.Success() {
		opLogger.Warn("face match rejected", zap.Int("status", statusCode(matched)))
		return &Result{
			IsAlive:       true,
			SessionID:     sessionID,
			CapturedImage: image,
			ErrorMessage:  message(MessageFaceMatchFailed),
		}, nil
	}

	isMatch, err := decodeMatch(matched)
	if err != nil {
		return nil, apiError(opFaceMatch, err)
	}
	opLogger.Info("face authentication completed", zap.Bool("is_match", isMatch))
	return &Result{
		IsAlive:       true,
		IsMatch:       isMatch,
		SessionID:     sessionID,
		CapturedImage: image,
	}, nil
}

type matchBody struct {
	IsMatch *bool `json:"isMatch"`
}

func decodeMatch(resp *verification.Response) (bool, error) {
	var body matchBody
	if err := json.Unmarshal(resp.Body, &body); err != nil {
		return false, &verification.ResponseError{Response: resp, Err: err}
	}
	if body.IsMatch == nil {
		return false, &verification.ResponseError{Response: resp, Err: errors.New("isMatch field missing")}
	}
	return *body.IsMatch, nil
}

func statusCode(resp *verification.Response) int {
	if resp == nil {
		return 0
	}
	return resp.StatusCode
}

func message(s string) *string {
	return &s
}
