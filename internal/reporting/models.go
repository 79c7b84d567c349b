package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

func (r TimeRange) valid() bool {
	return !r.From.IsZero() && !r.To.IsZero() && r.To.After(r.From)
}

// CallsSummaryRequest requests aggregated call metrics.
// Tenant isolation: TenantID is required.
type CallsSummaryRequest struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`
}

type CallsSummary struct {
	TenantID string    `json:"tenant_id"`
	Range    TimeRange `json:"range"`

	TotalCalls      int `json:"total_calls"`
	CompletedCalls  int `json:"completed_calls"`
	FailedCalls     int `json:"failed_calls"`
	InProgressCalls int `json:"in_progress_calls"`

	// EndReasons counts finished calls by why they ended.
	EndReasons map[string]int `json:"end_reasons"`

	TotalDurationSeconds   int `json:"total_duration_seconds"`
	AverageDurationSeconds int `json:"average_duration_seconds"`

	FramesToAI      int64 `json:"frames_to_ai"`
	FramesToCarrier int64 `json:"frames_to_carrier"`
	FramesDropped   int64 `json:"frames_dropped"`
	FramesMalformed int64 `json:"frames_malformed"`
}
