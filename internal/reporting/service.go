package reporting

import (
	"context"
	"errors"
	"time"

	"merxus-voice-bridge/internal/calls"
)

var ErrInvalidRequest = errors.New("reporting: invalid request")

// Repository abstracts data access for reporting.
//
// IMPORTANT: implementations must filter by tenant.
type Repository interface {
	// ListCalls returns calls that started in [from, to).
	ListCalls(ctx context.Context, tenantID string, from, to time.Time) ([]calls.Record, error)
}

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service { return &Service{repo: repo} }

func (s *Service) CallsSummary(ctx context.Context, req CallsSummaryRequest) (CallsSummary, error) {
	if req.TenantID == "" || !req.Range.valid() {
		return CallsSummary{}, ErrInvalidRequest
	}
	if s.repo == nil {
		return CallsSummary{}, errors.New("reporting: repository not configured")
	}

	rows, err := s.repo.ListCalls(ctx, req.TenantID, req.Range.From, req.Range.To)
	if err != nil {
		return CallsSummary{}, err
	}

	out := CallsSummary{TenantID: req.TenantID, Range: req.Range, EndReasons: map[string]int{}}
	ended := 0
	for _, c := range rows {
		out.TotalCalls++
		out.FramesToAI += c.Counters.ToAI
		out.FramesToCarrier += c.Counters.ToCarrier
		out.FramesDropped += c.Counters.Dropped
		out.FramesMalformed += c.Counters.Malformed

		switch c.Status {
		case calls.StatusCompleted:
			out.CompletedCalls++
		case calls.StatusFailed:
			out.FailedCalls++
		case calls.StatusInProgress:
			out.InProgressCalls++
		}
		if c.EndedAt == nil {
			continue
		}
		ended++
		if c.EndReason != "" {
			out.EndReasons[c.EndReason]++
		}
		if d := c.EndedAt.Sub(c.StartedAt); d > 0 {
			out.TotalDurationSeconds += int(d.Seconds())
		}
	}
	if ended > 0 {
		out.AverageDurationSeconds = out.TotalDurationSeconds / ended
	}
	return out, nil
}
