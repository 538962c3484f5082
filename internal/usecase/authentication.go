package usecase

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/example/faceauth/internal/faceauth"
	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/logging"
	"github.com/example/faceauth/internal/repository"
	"github.com/example/faceauth/internal/retry"
	"github.com/example/faceauth/internal/verification"
)

// ErrAttemptInProgress is returned when the subject already has an attempt running.
var ErrAttemptInProgress = errors.New("usecase: authentication attempt already in progress")

// AuthenticationRepository defines the persistence operations needed by the use case.
type AuthenticationRepository interface {
	SaveLog(ctx context.Context, log *repository.AuthenticationLog) error
	FindByRequestIDAndSubject(ctx context.Context, requestID, subjectID string) (*repository.AuthenticationLog, error)
	AggregateMetrics(ctx context.Context) (*repository.MetricsAggregation, error)
}

// LockPolicy guards the per-subject attempt lock. The caller is waiting before
// any capture work starts, so it gives up after one quick retry.
var LockPolicy = retry.Policy{Attempts: 2, InitialBackoff: 25 * time.Millisecond, MaxBackoff: 100 * time.Millisecond}

// Settings carries the static parameters of every attempt.
type Settings struct {
	ClientID     string
	ClientSecret string
	SDKVersion   string
	LockTTL      time.Duration
}

// AuthenticationUseCase runs face authentication attempts for API callers.
type AuthenticationUseCase struct {
	repo     AuthenticationRepository
	locker   Locker
	service  verification.Service
	settings Settings
	logger   *zap.Logger
	policy   retry.Policy
	now      func() time.Time
}

// NewAuthenticationUseCase constructs a new use case instance.
func NewAuthenticationUseCase(repo AuthenticationRepository, locker Locker, service verification.Service, settings Settings, logger *zap.Logger) *AuthenticationUseCase {
	if settings.LockTTL <= 0 {
		settings.LockTTL = 2 * time.Minute
	}
	return &AuthenticationUseCase{
		repo:     repo,
		locker:   locker,
		service:  service,
		settings: settings,
		logger:   logger.Named("authentication_usecase"),
		policy:   LockPolicy,
		now:      time.Now,
	}
}

// Authenticate runs one attempt for subjectID using the caller's bearer token.
// It returns the request id under which the attempt was recorded.
func (uc *AuthenticationUseCase) Authenticate(ctx context.Context, subjectID, bearerToken string, capture liveness.Capture) (string, *faceauth.Result, error) {
	requestID := uuid.NewString()
	opLogger := logging.WithOperation(uc.logger, "usecase.authenticate", requestID).With(zap.String("subject_id", subjectID))

	release, err := uc.acquire(ctx, requestID, subjectID)
	if err != nil {
		if !errors.Is(err, ErrAttemptInProgress) {
			opLogger.Error("failed to acquire attempt lock", zap.Error(err), zap.String("failed_operation", logging.OperationOf(err)))
		}
		return "", nil, err
	}
	defer release()

	creds := faceauth.Credentials{
		BearerToken:  bearerToken,
		ClientID:     uc.settings.ClientID,
		ClientSecret: uc.settings.ClientSecret,
		SubjectID:    subjectID,
	}
	authenticator, err := faceauth.New(creds, capture, uc.service,
		faceauth.WithLogger(opLogger),
		faceauth.WithSDKVersion(uc.settings.SDKVersion),
	)
	if err != nil {
		return "", nil, logging.NewOperationError("usecase.new_authenticator", requestID, err)
	}

	started := uc.now()
	result, authErr := authenticator.Initialize(ctx)
	uc.record(context.WithoutCancel(ctx), opLogger, requestID, subjectID, started, result, authErr)

	if authErr != nil {
		opLogger.Warn("authentication attempt failed", zap.Error(authErr))
		return requestID, nil, authErr
	}
	return requestID, result, nil
}

// GetAttempt returns a recorded attempt owned by subjectID.
func (uc *AuthenticationUseCase) GetAttempt(ctx context.Context, subjectID, requestID string) (*repository.AuthenticationLog, error) {
	return uc.repo.FindByRequestIDAndSubject(ctx, requestID, subjectID)
}

func lockKey(subjectID string) string {
	return fmt.Sprintf("faceauth:lock:%s", subjectID)
}

func (uc *AuthenticationUseCase) acquire(ctx context.Context, requestID, subjectID string) (func(), error) {
	key := lockKey(subjectID)
	var acquired bool
	tries := 0
	err := retry.Do(ctx, uc.policy, uc.logger, "lock.acquire", requestID, func() error {
		tries++
		ok, err := uc.locker.SetNX(ctx, key, requestID, uc.settings.LockTTL)
		acquired = ok
		return err
	})
	if err != nil {
		return nil, err
	}
	if !acquired && tries > 1 {
		// A timed out try may still have written the key.
		holder, err := uc.locker.Get(ctx, key)
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, logging.NewOperationError("lock.acquire", requestID, err)
		}
		acquired = holder == requestID
	}
	if !acquired {
		return nil, ErrAttemptInProgress
	}

	return func() {
		opLogger := logging.WithOperation(uc.logger, "lock.release", requestID)
		released, err := uc.locker.Release(context.WithoutCancel(ctx), key, requestID)
		switch {
		case err != nil:
			opLogger.Warn("failed to release attempt lock", zap.Error(err))
		case !released:
			opLogger.Warn("attempt lock expired before release")
		}
	}, nil
}

func (uc *AuthenticationUseCase) record(ctx context.Context, opLogger *zap.Logger, requestID, subjectID string, started time.Time, result *faceauth.Result, authErr error) {
	entry := &repository.AuthenticationLog{
		RequestID: requestID,
		SubjectID: subjectID,
		LatencyMs: uc.now().Sub(started).Milliseconds(),
		CreatedAt: started.UTC(),
	}
	if result != nil {
		entry.IsAlive = result.IsAlive
		entry.IsMatch = result.IsMatch
		if result.SessionID != nil {
			entry.SessionID = *result.SessionID
		}
		if result.ErrorMessage != nil {
			entry.ErrorMessage = *result.ErrorMessage
		}
	}
	if authErr != nil {
		entry.ErrorKind = errorKindLabel(authErr)
		entry.ErrorMessage = truncate(authErr.Error(), 255)
	}

	if err := uc.repo.SaveLog(ctx, entry); err != nil {
		var opErr *logging.OperationError
		if errors.As(err, &opErr) {
			opLogger.Error("failed to persist authentication log", zap.Object("failure", opErr))
			return
		}
		opLogger.Error("failed to persist authentication log", zap.Error(err))
	}
}

func errorKindLabel(err error) string {
	var authErr *faceauth.Error
	if errors.As(err, &authErr) && authErr.Kind == faceauth.KindLivenessSDK {
		return authErr.Kind.String() + "/" + authErr.SDKKind.String()
	}
	return faceauth.KindOf(err).String()
}

// truncate keeps at most n characters of s, replacing invalid UTF-8.
func truncate(s string, n int) string {
	s = strings.ToValidUTF8(s, "\uFFFD")
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
