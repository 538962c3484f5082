package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/example/faceauth/internal/retry"
)

// AuthenticationLog is the audit record of one face authentication attempt.
// Captured images are never stored.
type AuthenticationLog struct {
	ID           uint      `gorm:"primaryKey"`
	RequestID    string    `gorm:"column:request_id;uniqueIndex;size:64"`
	SubjectID    string    `gorm:"column:subject_id;index;type:text"`
	SessionID    string    `gorm:"column:session_id;index;type:text"`
	IsAlive      bool      `gorm:"column:is_alive"`
	IsMatch      bool      `gorm:"column:is_match"`
	ErrorMessage string    `gorm:"column:error_message;size:255"`
	ErrorKind    string    `gorm:"column:error_kind;size:32"`
	LatencyMs    int64     `gorm:"column:latency_ms"`
	CreatedAt    time.Time `gorm:"column:created_at"`
}

// TableName overrides the default table name.
func (AuthenticationLog) TableName() string {
	return "authentication_logs"
}

// MetricsAggregation holds raw counters computed over the audit log.
type MetricsAggregation struct {
	TotalCount       int64
	AliveCount       int64
	MatchCount       int64
	ErrorCount       int64
	AverageLatencyMs float64
}

// StorePolicy retries audit log queries on network timeouts and on postgres
// failures the driver reports as safe to resend.
var StorePolicy = retry.Policy{
	Attempts:       3,
	InitialBackoff: 50 * time.Millisecond,
	MaxBackoff:     time.Second,
	Retryable: func(err error) bool {
		return retry.IsTransient(err) || pgconn.SafeToRetry(err)
	},
}

// AuthenticationRepository provides persistence APIs for authentication logs.
type AuthenticationRepository struct {
	db     *gorm.DB
	logger *zap.Logger
	policy retry.Policy
}

// NewAuthenticationRepository creates a new repository instance.
func NewAuthenticationRepository(db *gorm.DB, logger *zap.Logger) *AuthenticationRepository {
	return &AuthenticationRepository{
		db:     db,
		logger: logger.Named("authentication_repository"),
		policy: StorePolicy,
	}
}

// AutoMigrate ensures the schema is available.
func (r *AuthenticationRepository) AutoMigrate(ctx context.Context) error {
	return r.executeWithRetry(ctx, "repository.auto_migrate", "", func() error {
		return r.db.WithContext(ctx).AutoMigrate(&AuthenticationLog{})
	})
}

// SaveLog persists an authentication log entry.
func (r *AuthenticationRepository) SaveLog(ctx context.Context, log *AuthenticationLog) error {
	return r.executeWithRetry(ctx, "repository.save_log", log.RequestID, func() error {
		return r.db.WithContext(ctx).Create(log).Error
	})
}

// FindByRequestIDAndSubject retrieves an attempt owned by the subject.
func (r *AuthenticationRepository) FindByRequestIDAndSubject(ctx context.Context, requestID, subjectID string) (*AuthenticationLog, error) {
	var log AuthenticationLog
	err := r.executeWithRetry(ctx, "repository.find_by_request", requestID, func() error {
		return r.db.WithContext(ctx).First(&log, "request_id = ? AND subject_id = ?", requestID, subjectID).Error
	})
	if err != nil {
		return nil, err
	}
	return &log, nil
}

// AggregateMetrics computes outcome counters across all attempts.
func (r *AuthenticationRepository) AggregateMetrics(ctx context.Context) (*MetricsAggregation, error) {
	var agg MetricsAggregation
	err := r.executeWithRetry(ctx, "repository.aggregate_metrics", "", func() error {
		return r.db.WithContext(ctx).
			Model(&AuthenticationLog{}).
			Select(`COUNT(*) AS total_count,
				COALESCE(SUM(CASE WHEN is_alive THEN 1 ELSE 0 END), 0) AS alive_count,
				COALESCE(SUM(CASE WHEN is_match THEN 1 ELSE 0 END), 0) AS match_count,
				COALESCE(SUM(CASE WHEN error_kind <> '' THEN 1 ELSE 0 END), 0) AS error_count,
				COALESCE(AVG(latency_ms), 0) AS average_latency_ms`).
			Scan(&agg).Error
	})
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *AuthenticationRepository) executeWithRetry(ctx context.Context, operation, requestID string, fn func() error) error {
	return retry.Do(ctx, r.policy, r.logger, operation, requestID, fn)
}
