package metering_dashboard

import "time"

// Block is the 30-minute accounting window snapshot for one simulator.
// WindowEnd is always WindowStart + 30m; Bins holds the cumulative energy
// sampled once per BinSeconds inside the window.
type Block struct {
	SimulatorID     string    `json:"simulator_id"`
	WindowStart     time.Time `json:"window_start"`
	WindowEnd       time.Time `json:"window_end"`
	TargetEnergyKWh float64   `json:"target_energy_kwh"`
	AccumulatedKWh  float64   `json:"accumulated_kwh"`
	PercentOfTarget float64   `json:"percent_of_target"`
	BinSeconds      int       `json:"bin_seconds"`
	Bins            []float64 `json:"bins,omitempty"`
}

// IsZero reports whether the block carries no data yet (no window assigned).
func (b Block) IsZero() bool {
	return b.WindowStart.IsZero()
}

// Reading is one observed power sample. Consumed to advance a Block and
// never stored on its own.
type Reading struct {
	PowerKW               float64   `json:"power_kw"`
	SampleDurationSeconds float64   `json:"sample_duration_seconds"`
	DeviceTimestamp       time.Time `json:"device_timestamp"`
}

// Trigger is a user-configured WhatsApp alert rule.
type Trigger struct {
	ID               string    `json:"id"`
	SimulatorID      string    `json:"simulator_id"`
	PhoneNumber      string    `json:"phone_number"`
	ThresholdPercent float64   `json:"threshold_percent"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// Settings is the global dispatch policy. Single row, read on every evaluation.
type Settings struct {
	CooldownMinutes                 int  `json:"cooldown_minutes"`
	MaxDailyNotificationsPerTrigger int  `json:"max_daily_notifications_per_trigger"`
	EnabledGlobally                 bool `json:"enabled_globally"`
}

// Notification kinds recorded in history.
const (
	NotificationThreshold = "threshold"
	NotificationStartup   = "startup"
	NotificationShutdown  = "shutdown"
)

// NotificationHistoryEntry is an immutable record of one dispatch attempt.
// Exactly one entry is appended per attempt, success or failure.
type NotificationHistoryEntry struct {
	ID               string    `json:"id"`
	TriggerID        string    `json:"trigger_id,omitempty"`
	SimulatorID      string    `json:"simulator_id"`
	PhoneNumber      string    `json:"phone_number"`
	ThresholdPercent float64   `json:"threshold_percent,omitempty"`
	ActualPercent    float64   `json:"actual_percent,omitempty"`
	SentAt           time.Time `json:"sent_at"`
	Success          bool      `json:"success"`
	ErrorMessage     string    `json:"error_message,omitempty"`
	Kind             string    `json:"kind"`
}

// SendResult is the outcome of one messaging gateway call. Expected failure
// modes (provider down, unreachable number) come back as Success=false with a
// populated Error, never as a Go error.
type SendResult struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

type User struct {
	ID           int    `json:"id"`
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // never serialized
}
