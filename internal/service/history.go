package service

import (
	"context"
	"errors"
	"strings"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/repository"
)

// HistoryFilter narrows the notification history listing.
type HistoryFilter struct {
	From        time.Time
	To          time.Time
	Kind        string
	SimulatorID string
}

var (
	errInvalidTimeRange = errors.New("invalid time range: from must be <= to")
	errUnknownKind      = errors.New("unknown kind: expected threshold, startup, or shutdown")
)

// HistoryService exposes the append-only dispatch record with filtering.
type HistoryService struct {
	history repository.HistoryRepo
}

func NewHistoryService(history repository.HistoryRepo) *HistoryService {
	return &HistoryService{history: history}
}

func (s *HistoryService) List(ctx context.Context, f HistoryFilter) ([]md.NotificationHistoryEntry, error) {
	from := normalizeToUTC(f.From)
	to := normalizeToUTC(f.To)
	if !from.IsZero() && !to.IsZero() && from.After(to) {
		return nil, errInvalidTimeRange
	}

	kind := strings.ToLower(strings.TrimSpace(f.Kind))
	switch kind {
	case "", md.NotificationThreshold, md.NotificationStartup, md.NotificationShutdown:
	default:
		return nil, errUnknownKind
	}

	return s.history.List(ctx, from, to, kind, f.SimulatorID)
}

// normalizeToUTC returns t in UTC, preserving zero values.
func normalizeToUTC(t time.Time) time.Time {
	if t.IsZero() {
		return t
	}
	return t.UTC()
}
