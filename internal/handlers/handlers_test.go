package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/example/faceauth/internal/auth"
	"github.com/example/faceauth/internal/faceauth"
	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/logging"
	"github.com/example/faceauth/internal/repository"
	"github.com/example/faceauth/internal/usecase"
	"github.com/example/faceauth/internal/verification"
)

const testJWTSecret = "test-secret"

type stubService struct {
	gotSubject string
	gotToken   string
	gotOutcome *liveness.Outcome
	gotErr     error

	result  *faceauth.Result
	err     error
	attempt *repository.AuthenticationLog
	findErr error
}

func (s *stubService) Authenticate(ctx context.Context, subjectID, bearerToken string, capture liveness.Capture) (string, *faceauth.Result, error) {
	s.gotSubject = subjectID
	s.gotToken = bearerToken
	s.gotOutcome, s.gotErr = capture.Start(ctx)
	if s.err != nil {
		return "req-1", nil, s.err
	}
	return "req-1", s.result, nil
}

func (s *stubService) GetAttempt(ctx context.Context, subjectID, requestID string) (*repository.AuthenticationLog, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	return s.attempt, nil
}

func (s *stubService) GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error) {
	return &usecase.MetricsSummary{TotalAttempts: 3}, nil
}

func newRouter(svc AuthenticationService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	RegisterRoutes(router, svc, auth.JWTMiddleware(testJWTSecret, ""))
	return router
}

func doRequest(t *testing.T, router *gin.Engine, method, path string, body []byte) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+buildTestToken(t, "person-1"))
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestAuthenticateReturnsResult(t *testing.T) {
	session := "S"
	svc := &stubService{result: &faceauth.Result{IsAlive: true, IsMatch: true, SessionID: &session}}
	router := newRouter(svc)

	resp := doRequest(t, router, http.MethodPost, "/v1/face-auth", []byte(`{"realness":true,"sessionId":"S","capturedImage":"B64"}`))
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}

	var payload struct {
		RequestID string          `json:"requestId"`
		Result    faceauth.Result `json:"result"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &payload); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if payload.RequestID != "req-1" || !payload.Result.IsMatch {
		t.Fatalf("unexpected payload: %+v", payload)
	}
	if svc.gotSubject != "person-1" || svc.gotToken == "" {
		t.Fatalf("expected caller identity to be forwarded, got %q / %q", svc.gotSubject, svc.gotToken)
	}
	if svc.gotOutcome == nil || svc.gotOutcome.CapturedImage == nil || *svc.gotOutcome.CapturedImage != "B64" {
		t.Fatalf("expected report to be replayed, got %+v", svc.gotOutcome)
	}
}

func TestAuthenticateReplaysReportedSDKError(t *testing.T) {
	svc := &stubService{result: &faceauth.Result{}}
	router := newRouter(svc)

	doRequest(t, router, http.MethodPost, "/v1/face-auth", []byte(`{"error":{"kind":"user_cancelled","message":"closed"}}`))

	var sdkErr *liveness.SDKError
	if !errors.As(svc.gotErr, &sdkErr) || sdkErr.Kind != liveness.ErrorKindUserCancelled {
		t.Fatalf("expected user_cancelled SDK error, got %v", svc.gotErr)
	}
}

func TestAuthenticateRejectsMalformedBody(t *testing.T) {
	router := newRouter(&stubService{})

	resp := doRequest(t, router, http.MethodPost, "/v1/face-auth", []byte(`{"realness":`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	resp = doRequest(t, router, http.MethodPost, "/v1/face-auth", []byte(`{"error":{"message":"no kind"}}`))
	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for error without kind, got %d", resp.Code)
	}
}

func TestAuthenticateRejectsLargeReport(t *testing.T) {
	router := newRouter(&stubService{})
	image := bytes.Repeat([]byte("a"), MaxReportSize+1)
	body := []byte(fmt.Sprintf(`{"realness":true,"sessionId":"S","capturedImage":"%s"}`, image))

	resp := doRequest(t, router, http.MethodPost, "/v1/face-auth", body)
	if resp.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", resp.Code)
	}
}

func TestAuthenticateMapsErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"in progress", usecase.ErrAttemptInProgress, http.StatusConflict},
		{"sdk", &faceauth.Error{Kind: faceauth.KindLivenessSDK, SDKKind: liveness.ErrorKindPermission, Err: errors.New("denied")}, http.StatusUnprocessableEntity},
		{"api", &faceauth.Error{Kind: faceauth.KindAPI, Response: &verification.Response{StatusCode: 200}, Err: errors.New("bad json")}, http.StatusBadGateway},
		{"unknown", &faceauth.Error{Kind: faceauth.KindUnknown, Err: errors.New("???")}, http.StatusInternalServerError},
		{"infrastructure", logging.NewOperationError("lock.acquire", "req-1", errors.New("redis down")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		router := newRouter(&stubService{err: tc.err})
		resp := doRequest(t, router, http.MethodPost, "/v1/face-auth", []byte(`{"realness":true,"sessionId":"S"}`))
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d: %s", tc.name, tc.want, resp.Code, resp.Body.String())
		}
	}
}

func TestAuthenticateSDKErrorBodyCarriesKind(t *testing.T) {
	err := &faceauth.Error{Kind: faceauth.KindLivenessSDK, SDKKind: liveness.ErrorKindPermission, Err: errors.New("denied")}
	router := newRouter(&stubService{err: err})

	resp := doRequest(t, router, http.MethodPost, "/v1/face-auth", []byte(`{}`))
	var body map[string]interface{}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["kind"] != "liveness_sdk" || body["sdkKind"] != "permission" || body["requestId"] != "req-1" {
		t.Fatalf("unexpected body: %v", body)
	}
}

func TestGetAttempt(t *testing.T) {
	svc := &stubService{attempt: &repository.AuthenticationLog{RequestID: "req-1", SessionID: "S", IsAlive: true}}
	resp := doRequest(t, newRouter(svc), http.MethodGet, "/v1/face-auth/attempts/req-1", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	svc = &stubService{findErr: logging.NewOperationError("repository.find_by_request", "req-2", gorm.ErrRecordNotFound)}
	resp = doRequest(t, newRouter(svc), http.MethodGet, "/v1/face-auth/attempts/req-2", nil)
	if resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestRoutesRequireToken(t *testing.T) {
	router := newRouter(&stubService{})
	req := httptest.NewRequest(http.MethodGet, "/v1/face-auth/metrics", nil)
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	if resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}

	if resp := doRequest(t, router, http.MethodGet, "/v1/face-auth/metrics", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
}

func buildTestToken(t *testing.T, subject string) string {
	t.Helper()

	claims := jwt.RegisteredClaims{
		Subject:   subject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		t.Fatalf("failed to sign token: %v", err)
	}
	return signed
}
