package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"metering_dashboard/internal/repository"
)

func newTriggerService(repo *mockTriggerRepo) (*TriggerService, *repository.EvalStateMemory) {
	state := repository.NewEvalStateMemory()
	return NewTriggerService(repo, state), state
}

func TestTriggerService_CreateValidations(t *testing.T) {
	cases := []struct {
		name    string
		params  TriggerParams
		wantErr error
	}{
		{
			name:    "missing simulator",
			params:  TriggerParams{PhoneNumber: "+6591234567", ThresholdPercent: 80, IsActive: true},
			wantErr: ErrSimulatorRequired,
		},
		{
			name:    "phone too short",
			params:  TriggerParams{SimulatorID: "sim-1", PhoneNumber: "+123", ThresholdPercent: 80},
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "phone with letters",
			params:  TriggerParams{SimulatorID: "sim-1", PhoneNumber: "+65abc34567", ThresholdPercent: 80},
			wantErr: ErrInvalidPhone,
		},
		{
			name:    "zero threshold",
			params:  TriggerParams{SimulatorID: "sim-1", PhoneNumber: "+6591234567", ThresholdPercent: 0},
			wantErr: ErrInvalidThreshold,
		},
		{
			name:    "threshold above 1000",
			params:  TriggerParams{SimulatorID: "sim-1", PhoneNumber: "+6591234567", ThresholdPercent: 1001},
			wantErr: ErrInvalidThreshold,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			repo := newMockTriggerRepo()
			svc, _ := newTriggerService(repo)
			_, err := svc.Create(context.Background(), tc.params)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("Create = %v, want %v", err, tc.wantErr)
			}
			if all, _ := repo.List(context.Background(), ""); len(all) != 0 {
				t.Fatalf("validation failure must not write, got %d triggers", len(all))
			}
		})
	}
}

func TestTriggerService_CreateAssignsIDAndTimestamps(t *testing.T) {
	repo := newMockTriggerRepo()
	svc, _ := newTriggerService(repo)

	created, err := svc.Create(context.Background(), TriggerParams{
		SimulatorID:      "sim-1",
		PhoneNumber:      "+6591234567",
		ThresholdPercent: 80,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if created.ID == "" {
		t.Fatalf("expected generated id")
	}
	if created.CreatedAt.IsZero() || !created.CreatedAt.Equal(created.UpdatedAt) {
		t.Fatalf("timestamps = %v / %v", created.CreatedAt, created.UpdatedAt)
	}
	if created.ThresholdPercent != 80 || !created.IsActive {
		t.Fatalf("created = %+v", created)
	}
}

func TestTriggerService_CreateRejectsActiveDuplicate(t *testing.T) {
	repo := newMockTriggerRepo(activeTrigger("t1", "sim-1", 80))
	svc, _ := newTriggerService(repo)
	ctx := context.Background()

	_, err := svc.Create(ctx, TriggerParams{
		SimulatorID:      "sim-1",
		PhoneNumber:      "+6591234567",
		ThresholdPercent: 80,
		IsActive:         true,
	})
	if !errors.Is(err, ErrDuplicateTrigger) {
		t.Fatalf("Create = %v, want ErrDuplicateTrigger", err)
	}

	// Same pair on a different simulator is fine.
	if _, err := svc.Create(ctx, TriggerParams{
		SimulatorID:      "sim-2",
		PhoneNumber:      "+6591234567",
		ThresholdPercent: 80,
		IsActive:         true,
	}); err != nil {
		t.Fatalf("cross-simulator create: %v", err)
	}

	// An inactive copy of the pair is also fine.
	if _, err := svc.Create(ctx, TriggerParams{
		SimulatorID:      "sim-1",
		PhoneNumber:      "+6591234567",
		ThresholdPercent: 80,
		IsActive:         false,
	}); err != nil {
		t.Fatalf("inactive duplicate create: %v", err)
	}
}

func TestTriggerService_UpdateKeepsSimulatorBinding(t *testing.T) {
	repo := newMockTriggerRepo(activeTrigger("t1", "sim-1", 80))
	svc, _ := newTriggerService(repo)

	updated, err := svc.Update(context.Background(), "t1", TriggerParams{
		SimulatorID:      "sim-other", // ignored
		PhoneNumber:      "+6598765432",
		ThresholdPercent: 90,
		IsActive:         true,
	})
	if err != nil {
		t.Fatalf("Update: %v", err)
	}
	if updated.SimulatorID != "sim-1" {
		t.Fatalf("simulator binding must be immutable, got %q", updated.SimulatorID)
	}
	if updated.PhoneNumber != "+6598765432" || updated.ThresholdPercent != 90 {
		t.Fatalf("updated = %+v", updated)
	}
}

func TestTriggerService_UpdateMissing(t *testing.T) {
	svc, _ := newTriggerService(newMockTriggerRepo())
	_, err := svc.Update(context.Background(), "nope", TriggerParams{
		PhoneNumber:      "+6591234567",
		ThresholdPercent: 80,
	})
	if !errors.Is(err, ErrTriggerNotFound) {
		t.Fatalf("Update = %v, want ErrTriggerNotFound", err)
	}
}

func TestTriggerService_ToggleReactivationChecksDuplicate(t *testing.T) {
	inactive := activeTrigger("t1", "sim-1", 80)
	inactive.IsActive = false
	repo := newMockTriggerRepo(inactive, activeTrigger("t2", "sim-1", 80))
	svc, _ := newTriggerService(repo)

	// t2 already holds the active (phone, threshold) pair.
	if _, err := svc.Toggle(context.Background(), "t1"); !errors.Is(err, ErrDuplicateTrigger) {
		t.Fatalf("Toggle = %v, want ErrDuplicateTrigger", err)
	}

	// Deactivating the holder frees the pair.
	if _, err := svc.Toggle(context.Background(), "t2"); err != nil {
		t.Fatalf("deactivate t2: %v", err)
	}
	toggled, err := svc.Toggle(context.Background(), "t1")
	if err != nil {
		t.Fatalf("reactivate t1: %v", err)
	}
	if !toggled.IsActive {
		t.Fatalf("t1 should be active after toggle")
	}
}

func TestTriggerService_DeletePurgesEvalState(t *testing.T) {
	repo := newMockTriggerRepo(activeTrigger("t1", "sim-1", 80))
	svc, state := newTriggerService(repo)

	state.SetLastFiredPercent("t1", 85)
	state.SetLastNotificationTime("t1", time.Now().UTC())

	if err := svc.Delete(context.Background(), "t1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, ok := state.LastFiredPercent("t1"); ok {
		t.Fatalf("hysteresis state must be purged on delete")
	}
	if _, ok := state.LastNotificationTime("t1"); ok {
		t.Fatalf("cooldown state must be purged on delete")
	}
	if got, _ := repo.GetByID(context.Background(), "t1"); got != nil {
		t.Fatalf("trigger still present after delete")
	}
}

func TestTriggerService_DeleteMissing(t *testing.T) {
	svc, _ := newTriggerService(newMockTriggerRepo())
	if err := svc.Delete(context.Background(), "nope"); !errors.Is(err, ErrTriggerNotFound) {
		t.Fatalf("Delete = %v, want ErrTriggerNotFound", err)
	}
}
