package service

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/repository"

	"github.com/google/uuid"
)

// TriggerParams is the mutable part of a trigger supplied by the API.
type TriggerParams struct {
	SimulatorID      string
	PhoneNumber      string
	ThresholdPercent float64
	IsActive         bool
}

// Validation errors surface before any store mutation (no partial writes).
var (
	ErrSimulatorRequired = errors.New("simulator_id is required")
	ErrInvalidPhone      = errors.New("invalid phone number: expected + and 7-15 digits")
	ErrInvalidThreshold  = errors.New("invalid threshold: must be in (0, 1000]")
	ErrDuplicateTrigger  = errors.New("an active trigger with this phone number and threshold already exists for the simulator")
	ErrTriggerNotFound   = errors.New("trigger not found")
)

var phonePattern = regexp.MustCompile(`^\+?[0-9]{7,15}$`)

// TriggerService owns trigger CRUD and the uniqueness invariant: no two
// active triggers on one simulator may share (phone, threshold).
type TriggerService struct {
	triggers repository.TriggerRepo
	state    repository.EvalStateRepo
}

func NewTriggerService(triggers repository.TriggerRepo, state repository.EvalStateRepo) *TriggerService {
	return &TriggerService{triggers: triggers, state: state}
}

func (s *TriggerService) Create(ctx context.Context, p TriggerParams) (md.Trigger, error) {
	if err := validateTriggerParams(p); err != nil {
		return md.Trigger{}, err
	}
	if p.IsActive {
		if err := s.checkDuplicate(ctx, p, ""); err != nil {
			return md.Trigger{}, err
		}
	}

	now := time.Now().UTC()
	t := md.Trigger{
		ID:               uuid.NewString(),
		SimulatorID:      p.SimulatorID,
		PhoneNumber:      p.PhoneNumber,
		ThresholdPercent: p.ThresholdPercent,
		IsActive:         p.IsActive,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if err := s.triggers.Create(ctx, t); err != nil {
		return md.Trigger{}, err
	}
	return t, nil
}

func (s *TriggerService) Update(ctx context.Context, id string, p TriggerParams) (md.Trigger, error) {
	existing, err := s.triggers.GetByID(ctx, id)
	if err != nil {
		return md.Trigger{}, err
	}
	if existing == nil {
		return md.Trigger{}, ErrTriggerNotFound
	}

	// The simulator binding is immutable; validate against the stored one.
	p.SimulatorID = existing.SimulatorID
	if err := validateTriggerParams(p); err != nil {
		return md.Trigger{}, err
	}
	if p.IsActive {
		if err := s.checkDuplicate(ctx, p, id); err != nil {
			return md.Trigger{}, err
		}
	}

	existing.PhoneNumber = p.PhoneNumber
	existing.ThresholdPercent = p.ThresholdPercent
	existing.IsActive = p.IsActive
	existing.UpdatedAt = time.Now().UTC()
	if err := s.triggers.Update(ctx, *existing); err != nil {
		return md.Trigger{}, err
	}
	return *existing, nil
}

// Toggle flips activation. Re-activating re-checks the uniqueness invariant.
func (s *TriggerService) Toggle(ctx context.Context, id string) (md.Trigger, error) {
	existing, err := s.triggers.GetByID(ctx, id)
	if err != nil {
		return md.Trigger{}, err
	}
	if existing == nil {
		return md.Trigger{}, ErrTriggerNotFound
	}

	if !existing.IsActive {
		p := TriggerParams{
			SimulatorID:      existing.SimulatorID,
			PhoneNumber:      existing.PhoneNumber,
			ThresholdPercent: existing.ThresholdPercent,
		}
		if err := s.checkDuplicate(ctx, p, id); err != nil {
			return md.Trigger{}, err
		}
	}

	existing.IsActive = !existing.IsActive
	existing.UpdatedAt = time.Now().UTC()
	if err := s.triggers.Update(ctx, *existing); err != nil {
		return md.Trigger{}, err
	}
	return *existing, nil
}

// Delete removes the trigger and purges its hysteresis/cooldown state so no
// runtime memory survives the rule.
func (s *TriggerService) Delete(ctx context.Context, id string) error {
	existing, err := s.triggers.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrTriggerNotFound
	}
	if err := s.triggers.Delete(ctx, id); err != nil {
		return err
	}
	s.state.Purge(id)
	return nil
}

func (s *TriggerService) List(ctx context.Context, simulatorID string) ([]md.Trigger, error) {
	return s.triggers.List(ctx, simulatorID)
}

func validateTriggerParams(p TriggerParams) error {
	if p.SimulatorID == "" {
		return ErrSimulatorRequired
	}
	if !phonePattern.MatchString(p.PhoneNumber) {
		return fmt.Errorf("%w: %q", ErrInvalidPhone, p.PhoneNumber)
	}
	if p.ThresholdPercent <= 0 || p.ThresholdPercent > 1000 {
		return fmt.Errorf("%w: %v", ErrInvalidThreshold, p.ThresholdPercent)
	}
	return nil
}

// checkDuplicate rejects an active (phone, threshold) pair already present on
// the simulator. excludeID skips the trigger being updated.
func (s *TriggerService) checkDuplicate(ctx context.Context, p TriggerParams, excludeID string) error {
	active, err := s.triggers.ListActive(ctx, p.SimulatorID)
	if err != nil {
		return err
	}
	for _, t := range active {
		if t.ID == excludeID {
			continue
		}
		if t.PhoneNumber == p.PhoneNumber && t.ThresholdPercent == p.ThresholdPercent {
			return ErrDuplicateTrigger
		}
	}
	return nil
}
