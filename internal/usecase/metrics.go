package usecase

import "context"

// MetricsSummary represents aggregated extraction insights.
type MetricsSummary struct {
	TotalRequests              int64            `json:"total_requests"`
	SuccessfulRequests         int64            `json:"successful_requests"`
	SuccessRate                float64          `json:"success_rate"`
	AverageProcessingLatencyMs float64          `json:"average_processing_latency_ms"`
	FailuresByKind             map[string]int64 `json:"failures_by_kind"`
}

// GetMetricsSummary aggregates extraction metrics from persisted logs.
func (uc *ExtractionUseCase) GetMetricsSummary(ctx context.Context) (*MetricsSummary, error) {
	aggregation, err := uc.repo.AggregateMetrics(ctx)
	if err != nil {
		return nil, err
	}

	failures, err := uc.repo.CountFailuresByKind(ctx)
	if err != nil {
		return nil, err
	}

	summary := &MetricsSummary{
		TotalRequests:              aggregation.TotalCount,
		SuccessfulRequests:         aggregation.SuccessCount,
		AverageProcessingLatencyMs: aggregation.AverageProcessingLatencyMs,
		FailuresByKind:             make(map[string]int64, len(failures)),
	}
	for _, row := range failures {
		summary.FailuresByKind[row.ErrorKind] = row.Count
	}

	if aggregation.TotalCount > 0 {
		summary.SuccessRate = float64(aggregation.SuccessCount) / float64(aggregation.TotalCount)
	}

	return summary, nil
}
