package service

import (
	"context"
	"errors"

	md "metering_dashboard"
	"metering_dashboard/internal/repository"
)

var (
	ErrNegativeCooldown = errors.New("cooldown_minutes must be >= 0")
	ErrInvalidDailyCap  = errors.New("max_daily_notifications_per_trigger must be >= 1")
)

// SettingsService reads and mutates the global dispatch policy.
type SettingsService struct {
	settings repository.SettingsRepo
}

func NewSettingsService(settings repository.SettingsRepo) *SettingsService {
	return &SettingsService{settings: settings}
}

// Get returns the stored policy, or the defaults when never saved.
func (s *SettingsService) Get(ctx context.Context) (md.Settings, error) {
	stored, err := s.settings.Load(ctx)
	if err != nil {
		return md.Settings{}, err
	}
	if stored == nil {
		return defaultSettings, nil
	}
	return *stored, nil
}

// Update validates and persists the policy. Validation failures prevent the
// store mutation entirely.
func (s *SettingsService) Update(ctx context.Context, in md.Settings) (md.Settings, error) {
	if in.CooldownMinutes < 0 {
		return md.Settings{}, ErrNegativeCooldown
	}
	if in.MaxDailyNotificationsPerTrigger < 1 {
		return md.Settings{}, ErrInvalidDailyCap
	}
	if err := s.settings.Save(ctx, in); err != nil {
		return md.Settings{}, err
	}
	return in, nil
}
