package stream

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/service"

	"github.com/gorilla/websocket"
)

var testUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// feedServer serves one scripted batch of events per accepted connection and
// then drops it.
func feedServer(t *testing.T, batches chan []md.PushEvent) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer func() { _ = conn.Close() }()

		batch, ok := <-batches
		if !ok {
			return
		}
		for _, ev := range batch {
			data, err := md.EncodePushEvent(ev)
			if err != nil {
				t.Errorf("encode: %v", err)
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func recvEvent(t *testing.T, c *Client) md.PushEvent {
	t.Helper()
	select {
	case ev := <-c.Events():
		return ev
	case <-time.After(5 * time.Second):
		t.Fatalf("timed out waiting for event")
		return nil
	}
}

func TestClient_DeliversEventsInArrivalOrder(t *testing.T) {
	batches := make(chan []md.PushEvent, 1)
	srv := feedServer(t, batches)
	defer srv.Close()

	ts := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	batches <- []md.PushEvent{
		md.ReadingEvent{TS: ts},
		md.BlockUpdateEvent{AccumulatedKWh: 5, PercentOfTarget: 5, BlockStart: ts},
		md.AlertEvent{Message: "threshold crossed"},
	}
	close(batches)

	sup := service.NewConnectionSupervisor(nil)
	c := NewClient(wsURL(srv), sup, nil)
	c.Start(context.Background())
	defer c.Close()

	if _, ok := recvEvent(t, c).(md.ReadingEvent); !ok {
		t.Fatalf("first event should be a reading")
	}
	update, ok := recvEvent(t, c).(md.BlockUpdateEvent)
	if !ok || update.AccumulatedKWh != 5 {
		t.Fatalf("second event = %+v", update)
	}
	alert, ok := recvEvent(t, c).(md.AlertEvent)
	if !ok || alert.Message != "threshold crossed" {
		t.Fatalf("third event = %+v", alert)
	}
}

func TestClient_ReportsSupervisorTransitions(t *testing.T) {
	batches := make(chan []md.PushEvent, 1)
	srv := feedServer(t, batches)
	defer srv.Close()

	statusCh := make(chan service.ConnStatus, 16)
	sup := service.NewConnectionSupervisor(func(st service.ConnStatus) {
		statusCh <- st
	})

	c := NewClient(wsURL(srv), sup, nil)
	c.Start(context.Background())

	waitStatus := func(want func(service.ConnStatus) bool, desc string) {
		t.Helper()
		deadline := time.After(5 * time.Second)
		for {
			select {
			case st := <-statusCh:
				if want(st) {
					return
				}
			case <-deadline:
				t.Fatalf("timed out waiting for %s", desc)
			}
		}
	}

	waitStatus(func(st service.ConnStatus) bool { return st.Connected }, "connected")

	// The server drops the connection after its batch; the client flips to
	// reconnecting and dials again.
	batches <- nil
	waitStatus(func(st service.ConnStatus) bool { return st.Reconnecting }, "reconnecting")
	batches <- nil
	waitStatus(func(st service.ConnStatus) bool { return st.Connected }, "reconnected")
	close(batches)

	c.Close()
	if got := sup.State(); got != service.StateDisconnected {
		t.Fatalf("state after Close = %v", got)
	}
}

func TestClient_DialFailureMarksReconnecting(t *testing.T) {
	sup := service.NewConnectionSupervisor(nil)
	c := NewClient("ws://127.0.0.1:1/feed", sup, nil)

	ctx, cancel := context.WithCancel(context.Background())
	c.Start(ctx)

	deadline := time.Now().Add(5 * time.Second)
	for sup.State() != service.StateReconnecting && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if got := sup.State(); got != service.StateReconnecting {
		t.Fatalf("state after failed dial = %v", got)
	}

	cancel()
	c.Close()
}

func TestClient_CloseClosesEventChannel(t *testing.T) {
	batches := make(chan []md.PushEvent)
	srv := feedServer(t, batches)
	defer srv.Close()
	defer close(batches)

	sup := service.NewConnectionSupervisor(nil)
	c := NewClient(wsURL(srv), sup, nil)
	c.Start(context.Background())
	c.Close()

	if _, ok := <-c.Events(); ok {
		t.Fatalf("events channel should be closed after Close")
	}
}

func TestNextBackoff_DoublesAndCaps(t *testing.T) {
	cur := baseBackoff
	for i := 0; i < 10; i++ {
		next := nextBackoff(cur)
		if next > maxBackoff {
			t.Fatalf("backoff exceeded cap: %v", next)
		}
		if cur < maxBackoff && next <= cur {
			t.Fatalf("backoff did not grow: %v then %v", cur, next)
		}
		cur = next
	}
	if cur != maxBackoff {
		t.Fatalf("backoff should settle at the cap, got %v", cur)
	}
}
