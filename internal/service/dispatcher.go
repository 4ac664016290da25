package service

import (
	"context"
	"fmt"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/repository"

	"github.com/google/uuid"
)

// Messenger is the outbound messaging gateway. Expected failure modes come
// back as SendResult{Success:false}, never as a panic or error.
type Messenger interface {
	Send(ctx context.Context, phoneNumber, message string) md.SendResult
}

// Fallback policy when no settings row was ever saved.
var defaultSettings = md.Settings{
	CooldownMinutes:                 5,
	MaxDailyNotificationsPerTrigger: 10,
	EnabledGlobally:                 true,
}

// AlertDispatcher enforces cooldown-per-trigger and the per-trigger daily cap
// before sending, and records one history entry per attempt regardless of
// outcome. Failures must stay visible, never silently dropped.
type AlertDispatcher struct {
	settings  repository.SettingsRepo
	history   repository.HistoryRepo
	state     repository.EvalStateRepo
	messenger Messenger
	loc       *time.Location
	log       *logger.Logger
	now       func() time.Time
}

func NewAlertDispatcher(
	settings repository.SettingsRepo,
	history repository.HistoryRepo,
	state repository.EvalStateRepo,
	messenger Messenger,
	loc *time.Location,
	log *logger.Logger,
) *AlertDispatcher {
	return &AlertDispatcher{
		settings:  settings,
		history:   history,
		state:     state,
		messenger: messenger,
		loc:       loc,
		log:       log,
		now:       time.Now,
	}
}

// DispatchThreshold handles one candidate from the monitor. Returns whether a
// send was attempted (skips due to policy return false, nil).
func (d *AlertDispatcher) DispatchThreshold(ctx context.Context, t md.Trigger, actualPercent float64) (bool, error) {
	policy, err := d.loadSettings(ctx)
	if err != nil {
		return false, err
	}
	if !policy.EnabledGlobally {
		// Globally off: skip without recording history.
		return false, nil
	}

	now := d.now()

	// Cooldown is per trigger, independent of every other trigger on this or
	// any other simulator. Only a successful send arms it.
	if last, ok := d.state.LastNotificationTime(t.ID); ok {
		cooldown := time.Duration(policy.CooldownMinutes) * time.Minute
		if now.Sub(last) < cooldown {
			return false, nil
		}
	}

	attempts, err := d.history.CountForTriggerSince(ctx, t.ID, d.startOfDay(now))
	if err != nil {
		return false, fmt.Errorf("daily cap check for trigger %s: %w", t.ID, err)
	}
	if attempts >= policy.MaxDailyNotificationsPerTrigger {
		return false, nil
	}

	message := fmt.Sprintf(
		"Usage alert: simulator %s reached %.1f%% of its 30-minute target (threshold %.0f%%).",
		t.SimulatorID, actualPercent, t.ThresholdPercent,
	)
	res := d.messenger.Send(ctx, t.PhoneNumber, message)

	entry := md.NotificationHistoryEntry{
		ID:               uuid.NewString(),
		TriggerID:        t.ID,
		SimulatorID:      t.SimulatorID,
		PhoneNumber:      t.PhoneNumber,
		ThresholdPercent: t.ThresholdPercent,
		ActualPercent:    actualPercent,
		SentAt:           now.UTC(),
		Success:          res.Success,
		Kind:             md.NotificationThreshold,
	}
	if !res.Success {
		entry.ErrorMessage = res.Error
		if entry.ErrorMessage == "" {
			entry.ErrorMessage = "send failed"
		}
	}
	if err := d.history.Append(ctx, entry); err != nil && d.log != nil {
		d.log.Errorw("history append failed", "trigger_id", t.ID, "err", err)
	}

	if res.Success {
		d.state.SetLastNotificationTime(t.ID, now)
	}
	// A failed send does not start the cooldown; the outer per-update cadence
	// and the daily cap bound how often it can retry.
	return true, nil
}

// DispatchLifecycle sends a startup/shutdown notice for a simulator to every
// distinct phone number with an active trigger on it. Lifecycle notices
// bypass hysteresis and cooldown but are still capped-free history records.
func (d *AlertDispatcher) DispatchLifecycle(ctx context.Context, triggers []md.Trigger, simulatorID, kind string) error {
	policy, err := d.loadSettings(ctx)
	if err != nil {
		return err
	}
	if !policy.EnabledGlobally {
		return nil
	}

	var verb string
	switch kind {
	case md.NotificationStartup:
		verb = "started"
	case md.NotificationShutdown:
		verb = "stopped"
	default:
		return fmt.Errorf("unknown lifecycle kind %q", kind)
	}

	seen := make(map[string]bool, len(triggers))
	for _, t := range triggers {
		if seen[t.PhoneNumber] {
			continue
		}
		seen[t.PhoneNumber] = true

		message := fmt.Sprintf("Simulator %s %s.", simulatorID, verb)
		res := d.messenger.Send(ctx, t.PhoneNumber, message)

		entry := md.NotificationHistoryEntry{
			ID:          uuid.NewString(),
			SimulatorID: simulatorID,
			PhoneNumber: t.PhoneNumber,
			SentAt:      d.now().UTC(),
			Success:     res.Success,
			Kind:        kind,
		}
		if !res.Success {
			entry.ErrorMessage = res.Error
			if entry.ErrorMessage == "" {
				entry.ErrorMessage = "send failed"
			}
		}
		if err := d.history.Append(ctx, entry); err != nil && d.log != nil {
			d.log.Errorw("history append failed", "simulator_id", simulatorID, "kind", kind, "err", err)
		}
	}
	return nil
}

func (d *AlertDispatcher) loadSettings(ctx context.Context) (md.Settings, error) {
	s, err := d.settings.Load(ctx)
	if err != nil {
		return md.Settings{}, fmt.Errorf("load settings: %w", err)
	}
	if s == nil {
		return defaultSettings, nil
	}
	return *s, nil
}

// startOfDay returns local midnight in the dashboard timezone; the daily cap
// resets there, not at UTC midnight.
func (d *AlertDispatcher) startOfDay(now time.Time) time.Time {
	local := now.In(d.loc)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, d.loc)
}
