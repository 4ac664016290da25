package service

import (
	"context"
	"fmt"

	md "metering_dashboard"
	"metering_dashboard/internal/repository"
)

// HysteresisMarginPercent is the percentage-point gap a reading must fall
// below a previous firing before the trigger re-arms. Without it a value
// oscillating by a point around the threshold would fire on every update.
const HysteresisMarginPercent = 2.0

// ThresholdMonitor decides which configured triggers should fire for a new
// percent-of-target sample. Each trigger cycles between armed and fired with
// fully independent hysteresis state; state for one threshold never affects
// another. Callers must serialize Evaluate calls per simulator.
type ThresholdMonitor struct {
	triggers repository.TriggerRepo
	state    repository.EvalStateRepo
}

func NewThresholdMonitor(triggers repository.TriggerRepo, state repository.EvalStateRepo) *ThresholdMonitor {
	return &ThresholdMonitor{triggers: triggers, state: state}
}

// Evaluate returns the active triggers for simulatorID that qualify at
// percent. Qualifying transitions the trigger to Fired and records the firing
// percent here, so repeated high readings do not re-qualify. A fired trigger
// re-arms only once percent drops below lastFired - margin, and is then
// evaluated against its raw threshold again on the next call, not this one.
func (m *ThresholdMonitor) Evaluate(ctx context.Context, simulatorID string, percent float64) ([]md.Trigger, error) {
	active, err := m.triggers.ListActive(ctx, simulatorID)
	if err != nil {
		return nil, fmt.Errorf("list active triggers for %s: %w", simulatorID, err)
	}

	var fired []md.Trigger
	for _, t := range active {
		lastFired, hasFired := m.state.LastFiredPercent(t.ID)
		if hasFired {
			if percent < lastFired-HysteresisMarginPercent {
				m.state.ClearLastFiredPercent(t.ID)
			}
			continue
		}
		if percent >= t.ThresholdPercent {
			m.state.SetLastFiredPercent(t.ID, percent)
			fired = append(fired, t)
		}
	}
	return fired, nil
}
