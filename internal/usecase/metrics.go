package usecase

import "context"

// MetricsSummary represents aggregated authentication insights.
type MetricsSummary struct {
	TotalAttempts    int64   `json:"total_attempts"`
	AliveAttempts    int64   `json:"alive_attempts"`
	MatchedAttempts  int64   `json:"matched_attempts"`
	FailedAttempts   int64   `json:"failed_attempts"`
	LivenessRate     float64 `json:"liveness_rate"`
	MatchRate        float64 `json:"match_rate"`
	AverageLatencyMs float64 `json:"average_latency_ms"`
}

// GetMetricsSummary aggregates authentication metrics from persisted logs.
// MatchRate is relative to attempts that passed liveness.
func (uc *AuthenticationUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalAttempts:    aggregation.TotalCount,
		AliveAttempts:    aggregation.AliveCount,
		MatchedAttempts:  aggregation.MatchCount,
		FailedAttempts:   aggregation.ErrorCount,
		AverageLatencyMs: aggregation.AverageLatencyMs,
	}

	if aggregation.TotalCount > 0 {
		summary.LivenessRate = float64(aggregation.AliveCount) / float64(aggregation.TotalCount)
	}
	if aggregation.AliveCount > 0 {
		summary.MatchRate = float64(aggregation.MatchCount) / float64(aggregation.AliveCount)
	}

	return summary, nil
}
