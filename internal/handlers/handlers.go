package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/example/faceauth/internal/auth"
	"github.com/example/faceauth/internal/faceauth"
	"github.com/example/faceauth/internal/liveness"
	"github.com/example/faceauth/internal/repository"
	"github.com/example/faceauth/internal/usecase"
)

// MaxReportSize bounds the liveness report body, captured image included.
const MaxReportSize = 8 << 20

// AuthenticationService is the subset of the use case the handlers depend on.
type AuthenticationService interface {
	Authenticate(ctx context.Context, subjectID, bearerToken string, capture liveness.Capture) (string, *faceauth.Result, error)
	GetAttempt(ctx context.Context, subjectID, requestID string) (*repository.AuthenticationLog, error)
	GetMetricsSummary(ctx context.Context) (*usecase.MetricsSummary, error)
}

// RegisterRoutes wires the HTTP handlers to the Gin router.
func RegisterRoutes(router *gin.Engine, svc AuthenticationService, authMiddleware gin.HandlerFunc) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	v1 := router.Group("/v1/face-auth", authMiddleware)

	v1.POST("", func(c *gin.Context) {
		subjectID, bearerToken, ok := caller(c)
		if !ok {
			return
		}

		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, MaxReportSize)
		var report liveness.Report
		if err := c.ShouldBindJSON(&report); err != nil {
			var maxErr *http.MaxBytesError
			if errors.As(err, &maxErr) {
				c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "liveness report too large"})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid liveness report"})
			return
		}

		requestID, result, err := svc.Authenticate(c.Request.Context(), subjectID, bearerToken, liveness.FromReport(report))
		if err != nil {
			writeAuthError(c, requestID, err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requestId": requestID,
			"result":    result,
		})
	})

	v1.GET("/attempts/:id", func(c *gin.Context) {
		subjectID, _, ok := caller(c)
		if !ok {
			return
		}
		requestID := c.Param("id")
		if requestID == "" {
			c.JSON(http.StatusBadRequest, gin.H{"error": "id is required"})
			return
		}

		log, err := svc.GetAttempt(c.Request.Context(), subjectID, requestID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "attempt not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load attempt"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"requestId":    log.RequestID,
			"sessionId":    log.SessionID,
			"isAlive":      log.IsAlive,
			"isMatch":      log.IsMatch,
			"errorMessage": log.ErrorMessage,
			"errorKind":    log.ErrorKind,
			"latencyMs":    log.LatencyMs,
			"createdAt":    log.CreatedAt,
		})
	})

	v1.GET("/metrics", func(c *gin.Context) {
		summary, err := svc.GetMetricsSummary(c.Request.Context())
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to aggregate metrics"})
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}

func caller(c *gin.Context) (string, string, bool) {
	subjectID, ok := auth.GetSubjectID(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", "", false
	}
	token, ok := auth.GetBearerToken(c.Request.Context())
	if !ok {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return "", "", false
	}
	return subjectID, token, true
}

func writeAuthError(c *gin.Context, requestID string, err error) {
	if errors.Is(err, usecase.ErrAttemptInProgress) {
		c.JSON(http.StatusConflict, gin.H{"error": "authentication attempt already in progress"})
		return
	}

	body := gin.H{"error": err.Error()}
	if requestID != "" {
		body["requestId"] = requestID
	}

	var authErr *faceauth.Error
	if !errors.As(err, &authErr) {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}

	body["kind"] = authErr.Kind.String()
	switch authErr.Kind {
	case faceauth.KindLivenessSDK:
		body["sdkKind"] = authErr.SDKKind.String()
		c.JSON(http.StatusUnprocessableEntity, body)
	case faceauth.KindAPI:
		if authErr.Response != nil {
			body["upstreamStatus"] = authErr.Response.StatusCode
		}
		c.JSON(http.StatusBadGateway, body)
	default:
		c.JSON(http.StatusInternalServerError, body)
	}
}
