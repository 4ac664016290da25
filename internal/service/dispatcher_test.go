package service

import (
	"context"
	"strings"
	"testing"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/repository"
)

type dispatcherFixture struct {
	settings  *mockSettingsRepo
	history   *mockHistoryRepo
	state     *repository.EvalStateMemory
	messenger *mockMessenger
	d         *AlertDispatcher
	clock     time.Time
}

func newDispatcherFixture(loc *time.Location) *dispatcherFixture {
	f := &dispatcherFixture{
		settings:  &mockSettingsRepo{},
		history:   &mockHistoryRepo{},
		state:     repository.NewEvalStateMemory(),
		messenger: &mockMessenger{},
		clock:     time.Date(2025, 6, 1, 10, 0, 0, 0, loc),
	}
	f.d = NewAlertDispatcher(f.settings, f.history, f.state, f.messenger, loc, nil)
	f.d.now = func() time.Time { return f.clock }
	return f
}

func (f *dispatcherFixture) advance(by time.Duration) {
	f.clock = f.clock.Add(by)
}

func TestAlertDispatcher_SuccessRecordsHistoryAndArmsCooldown(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	trig := activeTrigger("t1", "sim-1", 80)

	attempted, err := f.d.DispatchThreshold(context.Background(), trig, 85.5)
	if err != nil {
		t.Fatalf("DispatchThreshold: %v", err)
	}
	if !attempted {
		t.Fatalf("expected a send attempt")
	}

	sends := f.messenger.sent()
	if len(sends) != 1 || sends[0].phone != trig.PhoneNumber {
		t.Fatalf("sends = %+v", sends)
	}
	if !strings.Contains(sends[0].message, "85.5%") {
		t.Fatalf("message should carry the actual percent: %q", sends[0].message)
	}

	entries := f.history.all()
	if len(entries) != 1 {
		t.Fatalf("expected 1 history entry, got %d", len(entries))
	}
	e := entries[0]
	if !e.Success || e.ErrorMessage != "" || e.Kind != md.NotificationThreshold {
		t.Fatalf("entry = %+v", e)
	}
	if e.TriggerID != "t1" || e.ActualPercent != 85.5 || e.ThresholdPercent != 80 {
		t.Fatalf("entry = %+v", e)
	}

	if _, ok := f.state.LastNotificationTime("t1"); !ok {
		t.Fatalf("successful send must arm the cooldown")
	}
}

func TestAlertDispatcher_CooldownSkipsWithoutHistory(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	trig := activeTrigger("t1", "sim-1", 80)
	ctx := context.Background()

	if _, err := f.d.DispatchThreshold(ctx, trig, 85); err != nil {
		t.Fatalf("first dispatch: %v", err)
	}

	// Default cooldown is 5 minutes; 4 minutes later the attempt is skipped
	// silently.
	f.advance(4 * time.Minute)
	attempted, err := f.d.DispatchThreshold(ctx, trig, 90)
	if err != nil {
		t.Fatalf("second dispatch: %v", err)
	}
	if attempted {
		t.Fatalf("dispatch inside cooldown must be skipped")
	}
	if len(f.history.all()) != 1 {
		t.Fatalf("cooldown skip must not append history")
	}

	// Past the cooldown the next attempt goes through.
	f.advance(2 * time.Minute)
	attempted, err = f.d.DispatchThreshold(ctx, trig, 90)
	if err != nil || !attempted {
		t.Fatalf("post-cooldown dispatch attempted=%v err=%v", attempted, err)
	}
}

func TestAlertDispatcher_CooldownIsPerTrigger(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	ctx := context.Background()
	t1 := activeTrigger("t1", "sim-1", 80)
	t2 := activeTrigger("t2", "sim-1", 90)
	t2.PhoneNumber = "+6598765432"

	if _, err := f.d.DispatchThreshold(ctx, t1, 85); err != nil {
		t.Fatalf("t1: %v", err)
	}

	// t1 is cooling down; t2 has never sent and must not be affected.
	attempted, err := f.d.DispatchThreshold(ctx, t2, 95)
	if err != nil || !attempted {
		t.Fatalf("t2 attempted=%v err=%v", attempted, err)
	}
	if len(f.messenger.sent()) != 2 {
		t.Fatalf("expected 2 sends, got %d", len(f.messenger.sent()))
	}
}

func TestAlertDispatcher_FailureRecordsHistoryWithoutArmingCooldown(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	f.messenger.SendFn = func(ctx context.Context, phone, message string) md.SendResult {
		return md.SendResult{Success: false, Error: "gateway 503"}
	}
	trig := activeTrigger("t1", "sim-1", 80)
	ctx := context.Background()

	attempted, err := f.d.DispatchThreshold(ctx, trig, 85)
	if err != nil || !attempted {
		t.Fatalf("attempted=%v err=%v", attempted, err)
	}

	entries := f.history.all()
	if len(entries) != 1 {
		t.Fatalf("failed attempt must still be recorded, got %d entries", len(entries))
	}
	if entries[0].Success || entries[0].ErrorMessage != "gateway 503" {
		t.Fatalf("entry = %+v", entries[0])
	}
	if _, ok := f.state.LastNotificationTime("t1"); ok {
		t.Fatalf("failed send must not arm the cooldown")
	}

	// With no cooldown armed, the very next evaluation may retry.
	f.advance(time.Second)
	attempted, err = f.d.DispatchThreshold(ctx, trig, 86)
	if err != nil || !attempted {
		t.Fatalf("retry attempted=%v err=%v", attempted, err)
	}
}

func TestAlertDispatcher_FailureWithoutMessageGetsPlaceholder(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	f.messenger.SendFn = func(ctx context.Context, phone, message string) md.SendResult {
		return md.SendResult{Success: false}
	}

	if _, err := f.d.DispatchThreshold(context.Background(), activeTrigger("t1", "sim-1", 80), 85); err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	entries := f.history.all()
	if len(entries) != 1 || entries[0].ErrorMessage == "" {
		t.Fatalf("failure entries must carry a non-empty error message: %+v", entries)
	}
}

func TestAlertDispatcher_DailyCapCountsAttempts(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	f.settings.stored = &md.Settings{
		CooldownMinutes:                 0,
		MaxDailyNotificationsPerTrigger: 2,
		EnabledGlobally:                 true,
	}
	// Alternate success and failure; both count against the cap.
	fail := false
	f.messenger.SendFn = func(ctx context.Context, phone, message string) md.SendResult {
		fail = !fail
		if fail {
			return md.SendResult{Success: false, Error: "gateway 503"}
		}
		return md.SendResult{Success: true}
	}
	trig := activeTrigger("t1", "sim-1", 80)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		attempted, err := f.d.DispatchThreshold(ctx, trig, 85)
		if err != nil || !attempted {
			t.Fatalf("attempt %d: attempted=%v err=%v", i, attempted, err)
		}
		f.advance(time.Minute)
	}

	attempted, err := f.d.DispatchThreshold(ctx, trig, 99)
	if err != nil {
		t.Fatalf("capped dispatch: %v", err)
	}
	if attempted {
		t.Fatalf("dispatch over the daily cap must be skipped")
	}
	if len(f.history.all()) != 2 {
		t.Fatalf("cap skip must not append history")
	}
}

func TestAlertDispatcher_DailyCapResetsAtLocalMidnight(t *testing.T) {
	sg, err := time.LoadLocation("Asia/Singapore")
	if err != nil {
		t.Fatalf("load location: %v", err)
	}
	f := newDispatcherFixture(sg)
	f.settings.stored = &md.Settings{
		CooldownMinutes:                 0,
		MaxDailyNotificationsPerTrigger: 1,
		EnabledGlobally:                 true,
	}
	trig := activeTrigger("t1", "sim-1", 80)
	ctx := context.Background()

	// 23:30 local: one send exhausts the day's cap.
	f.clock = time.Date(2025, 6, 1, 23, 30, 0, 0, sg)
	if attempted, _ := f.d.DispatchThreshold(ctx, trig, 85); !attempted {
		t.Fatalf("expected first send")
	}
	if attempted, _ := f.d.DispatchThreshold(ctx, trig, 86); attempted {
		t.Fatalf("cap not enforced")
	}

	// 00:10 local the next day is a fresh cap even though fewer than 24
	// hours passed.
	f.clock = time.Date(2025, 6, 2, 0, 10, 0, 0, sg)
	if attempted, _ := f.d.DispatchThreshold(ctx, trig, 87); !attempted {
		t.Fatalf("cap must reset at local midnight")
	}
}

func TestAlertDispatcher_GloballyDisabledSkipsSilently(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	f.settings.stored = &md.Settings{
		CooldownMinutes:                 5,
		MaxDailyNotificationsPerTrigger: 10,
		EnabledGlobally:                 false,
	}

	attempted, err := f.d.DispatchThreshold(context.Background(), activeTrigger("t1", "sim-1", 80), 95)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if attempted {
		t.Fatalf("disabled dispatch must not attempt a send")
	}
	if len(f.messenger.sent()) != 0 || len(f.history.all()) != 0 {
		t.Fatalf("disabled dispatch must leave no trace")
	}
}

func TestAlertDispatcher_LifecycleDeduplicatesPhoneNumbers(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	t1 := activeTrigger("t1", "sim-1", 80)
	t2 := activeTrigger("t2", "sim-1", 90) // same phone as t1
	t3 := activeTrigger("t3", "sim-1", 95)
	t3.PhoneNumber = "+6598765432"

	err := f.d.DispatchLifecycle(context.Background(), []md.Trigger{t1, t2, t3}, "sim-1", md.NotificationStartup)
	if err != nil {
		t.Fatalf("DispatchLifecycle: %v", err)
	}

	sends := f.messenger.sent()
	if len(sends) != 2 {
		t.Fatalf("expected one notice per distinct phone, got %d", len(sends))
	}
	for _, s := range sends {
		if !strings.Contains(s.message, "started") {
			t.Fatalf("startup notice should say started: %q", s.message)
		}
	}

	entries := f.history.all()
	if len(entries) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.Kind != md.NotificationStartup || e.SimulatorID != "sim-1" {
			t.Fatalf("entry = %+v", e)
		}
	}
}

func TestAlertDispatcher_LifecycleRejectsUnknownKind(t *testing.T) {
	f := newDispatcherFixture(time.UTC)
	err := f.d.DispatchLifecycle(context.Background(), []md.Trigger{activeTrigger("t1", "sim-1", 80)}, "sim-1", "reboot")
	if err == nil {
		t.Fatalf("expected error for unknown kind")
	}
	if len(f.messenger.sent()) != 0 {
		t.Fatalf("no sends expected for unknown kind")
	}
}
