package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	md "metering_dashboard"
	"metering_dashboard/internal/service"
)

func settingsRouter(settings *mockSettings) http.Handler {
	s := &service.Service{
		Authorization: &mockAuth{parseID: 1},
		Settings:      settings,
	}
	return newTestRouter(s, nil)
}

func TestSettingsHandlers_Get(t *testing.T) {
	mock := &mockSettings{settings: md.Settings{CooldownMinutes: 5, MaxDailyNotificationsPerTrigger: 10, EnabledGlobally: true}}
	r := settingsRouter(mock)

	w := doJSON(t, r, http.MethodGet, "/api/v1/settings/", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	var got md.Settings
	if err := json.Unmarshal(w.Body.Bytes(), &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got != mock.settings {
		t.Fatalf("settings = %+v", got)
	}
}

func TestSettingsHandlers_Update(t *testing.T) {
	mock := &mockSettings{}
	r := settingsRouter(mock)

	w := doJSON(t, r, http.MethodPut, "/api/v1/settings/",
		`{"cooldown_minutes":15,"max_daily_notifications_per_trigger":3,"enabled_globally":false}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status=%d body=%s", w.Code, w.Body.String())
	}
	want := md.Settings{CooldownMinutes: 15, MaxDailyNotificationsPerTrigger: 3, EnabledGlobally: false}
	if mock.lastIn != want {
		t.Fatalf("passed settings = %+v, want %+v", mock.lastIn, want)
	}
}

func TestSettingsHandlers_UpdateMissingFields(t *testing.T) {
	r := settingsRouter(&mockSettings{})

	// All three fields are required; a partial body is a 400.
	w := doJSON(t, r, http.MethodPut, "/api/v1/settings/", `{"cooldown_minutes":15}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for partial body, got %d", w.Code)
	}
}

func TestSettingsHandlers_UpdateValidationError(t *testing.T) {
	mock := &mockSettings{err: service.ErrInvalidDailyCap}
	r := settingsRouter(mock)

	w := doJSON(t, r, http.MethodPut, "/api/v1/settings/",
		`{"cooldown_minutes":5,"max_daily_notifications_per_trigger":-1,"enabled_globally":true}`)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid cap, got %d", w.Code)
	}
}
