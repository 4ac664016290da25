package metering_dashboard

import (
	"encoding/json"
	"fmt"
	"time"
)

// PushEvent is one event on the live feed. The variant set is closed: handlers
// type-switch over the concrete types below and treat any other implementation
// as a programming error, so adding a variant is visible at every switch.
type PushEvent interface {
	isPushEvent()
}

// ReadingEvent signals that a new reading was observed at TS. It carries no
// aggregation data; consumers re-fetch to pick up the effect.
type ReadingEvent struct {
	TS time.Time
}

// BlockUpdateEvent carries the server-side aggregation for the current window.
// BlockStart is zero when the payload omitted it.
type BlockUpdateEvent struct {
	AccumulatedKWh  float64
	PercentOfTarget float64
	BlockStart      time.Time
	BinSeconds      int
	Points          []float64
}

// AlertEvent is a human-readable alert notice pushed alongside dispatch.
type AlertEvent struct {
	Message string
}

// PingEvent only refreshes connected status and carries no data.
type PingEvent struct{}

func (ReadingEvent) isPushEvent()     {}
func (BlockUpdateEvent) isPushEvent() {}
func (AlertEvent) isPushEvent()       {}
func (PingEvent) isPushEvent()        {}

// Wire type tags.
const (
	wireTypeReading     = "reading"
	wireTypeBlockUpdate = "block-update"
	wireTypeAlert       = "alert-80pct"
	wireTypePing        = "ping"
)

type wireBins struct {
	BinSeconds int       `json:"bin_seconds"`
	Points     []float64 `json:"points"`
}

type wireEvent struct {
	Type            string    `json:"type"`
	TS              string    `json:"ts,omitempty"`
	AccumulatedKWh  *float64  `json:"accumulated_kwh,omitempty"`
	PercentOfTarget *float64  `json:"percent_of_target,omitempty"`
	BlockStartLocal string    `json:"block_start_local,omitempty"`
	ChartBins       *wireBins `json:"chart_bins,omitempty"`
	Message         string    `json:"message,omitempty"`
}

// EncodePushEvent marshals an event into its tagged wire shape.
func EncodePushEvent(ev PushEvent) ([]byte, error) {
	var w wireEvent
	switch e := ev.(type) {
	case ReadingEvent:
		w.Type = wireTypeReading
		w.TS = e.TS.Format(time.RFC3339Nano)
	case BlockUpdateEvent:
		w.Type = wireTypeBlockUpdate
		acc, pct := e.AccumulatedKWh, e.PercentOfTarget
		w.AccumulatedKWh = &acc
		w.PercentOfTarget = &pct
		if !e.BlockStart.IsZero() {
			w.BlockStartLocal = e.BlockStart.Format(time.RFC3339)
		}
		if e.BinSeconds > 0 {
			w.ChartBins = &wireBins{BinSeconds: e.BinSeconds, Points: e.Points}
		}
	case AlertEvent:
		w.Type = wireTypeAlert
		w.Message = e.Message
	case PingEvent:
		w.Type = wireTypePing
	default:
		return nil, fmt.Errorf("unknown push event variant %T", ev)
	}
	return json.Marshal(w)
}

// DecodePushEvent parses one tagged wire message. Unknown tags are an error so
// that a protocol drift is surfaced instead of silently dropped.
func DecodePushEvent(data []byte) (PushEvent, error) {
	var w wireEvent
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode push event: %w", err)
	}
	switch w.Type {
	case wireTypeReading:
		ts, err := time.Parse(time.RFC3339Nano, w.TS)
		if err != nil {
			return nil, fmt.Errorf("reading event: bad ts %q: %w", w.TS, err)
		}
		return ReadingEvent{TS: ts}, nil
	case wireTypeBlockUpdate:
		ev := BlockUpdateEvent{}
		if w.AccumulatedKWh != nil {
			ev.AccumulatedKWh = *w.AccumulatedKWh
		}
		if w.PercentOfTarget != nil {
			ev.PercentOfTarget = *w.PercentOfTarget
		}
		if w.BlockStartLocal != "" {
			start, err := time.Parse(time.RFC3339, w.BlockStartLocal)
			if err != nil {
				return nil, fmt.Errorf("block-update event: bad block_start_local %q: %w", w.BlockStartLocal, err)
			}
			ev.BlockStart = start
		}
		if w.ChartBins != nil {
			ev.BinSeconds = w.ChartBins.BinSeconds
			ev.Points = w.ChartBins.Points
		}
		return ev, nil
	case wireTypeAlert:
		return AlertEvent{Message: w.Message}, nil
	case wireTypePing:
		return PingEvent{}, nil
	default:
		return nil, fmt.Errorf("unknown push event type %q", w.Type)
	}
}
