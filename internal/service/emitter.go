package service

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/feed"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/repository"
)

// Emission constants.
const (
	DefaultBinSeconds = 60              // 30 bins per 30-minute window
	DefaultEmitTick   = 2 * time.Second // reading cadence
	rippleAmplitude   = 0.25            // ±25% load swing around base
	ripplePeriodSec   = 600             // one swing per 10 minutes
)

// SimulatorConfig describes one synthetic load emitter. The registry comes
// from configuration; full simulator CRUD is handled elsewhere.
type SimulatorConfig struct {
	ID              string  `mapstructure:"id"`
	Name            string  `mapstructure:"name"`
	TargetEnergyKWh float64 `mapstructure:"target_kwh"`
	BaseLoadKW      float64 `mapstructure:"base_load_kw"`
}

// EmitterStatus is the API view of one emitter.
type EmitterStatus struct {
	SimulatorConfig
	Running bool `json:"running"`
}

var (
	ErrUnknownSimulator  = errors.New("unknown simulator")
	ErrEmitterRunning    = errors.New("emitter already running")
	ErrEmitterNotRunning = errors.New("emitter not running")
)

// EmitterService runs one goroutine per started simulator. Each tick it
// synthesizes a power reading, folds it into the current 30-minute block,
// persists the snapshot, publishes push events, and drives the threshold
// monitor and alert dispatcher. Being the sole caller of Evaluate for its
// simulator, the loop serializes evaluations in production order.
type EmitterService struct {
	blocks     repository.BlockRepo
	triggers   repository.TriggerRepo
	hub        *feed.Hub
	monitor    *ThresholdMonitor
	dispatcher *AlertDispatcher
	loc        *time.Location
	log        *logger.Logger
	tick       time.Duration

	mu      sync.Mutex
	sims    map[string]SimulatorConfig
	order   []string
	running map[string]context.CancelFunc
	wg      sync.WaitGroup
}

func NewEmitterService(
	blocks repository.BlockRepo,
	triggers repository.TriggerRepo,
	hub *feed.Hub,
	monitor *ThresholdMonitor,
	dispatcher *AlertDispatcher,
	loc *time.Location,
	log *logger.Logger,
	tick time.Duration,
	sims []SimulatorConfig,
) *EmitterService {
	if tick <= 0 {
		tick = DefaultEmitTick
	}
	s := &EmitterService{
		blocks:     blocks,
		triggers:   triggers,
		hub:        hub,
		monitor:    monitor,
		dispatcher: dispatcher,
		loc:        loc,
		log:        log,
		tick:       tick,
		sims:       make(map[string]SimulatorConfig, len(sims)),
		running:    make(map[string]context.CancelFunc),
	}
	for _, cfg := range sims {
		s.sims[cfg.ID] = cfg
		s.order = append(s.order, cfg.ID)
	}
	return s
}

// Start launches the emitter for one simulator and sends the startup notice.
func (s *EmitterService) Start(ctx context.Context, simulatorID string) error {
	s.mu.Lock()
	cfg, ok := s.sims[simulatorID]
	if !ok {
		s.mu.Unlock()
		return ErrUnknownSimulator
	}
	if _, up := s.running[simulatorID]; up {
		s.mu.Unlock()
		return ErrEmitterRunning
	}
	runCtx, cancel := context.WithCancel(ctx)
	s.running[simulatorID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		s.run(runCtx, cfg)
	}()

	s.notifyLifecycle(ctx, simulatorID, md.NotificationStartup)
	return nil
}

// Stop cancels the emitter goroutine and sends the shutdown notice.
func (s *EmitterService) Stop(ctx context.Context, simulatorID string) error {
	s.mu.Lock()
	cancel, up := s.running[simulatorID]
	if !up {
		s.mu.Unlock()
		if _, known := s.sims[simulatorID]; !known {
			return ErrUnknownSimulator
		}
		return ErrEmitterNotRunning
	}
	delete(s.running, simulatorID)
	s.mu.Unlock()

	cancel()
	s.notifyLifecycle(ctx, simulatorID, md.NotificationShutdown)
	return nil
}

// StopAll cancels every emitter and waits for the loops to exit. Used on
// process shutdown; no lifecycle notices are sent.
func (s *EmitterService) StopAll() {
	s.mu.Lock()
	for id, cancel := range s.running {
		delete(s.running, id)
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

// Status lists all registered simulators with their running flag, in
// configuration order.
func (s *EmitterService) Status() []EmitterStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]EmitterStatus, 0, len(s.order))
	for _, id := range s.order {
		_, up := s.running[id]
		out = append(out, EmitterStatus{SimulatorConfig: s.sims[id], Running: up})
	}
	return out
}

func (s *EmitterService) run(ctx context.Context, cfg SimulatorConfig) {
	t := time.NewTicker(s.tick)
	defer t.Stop()

	// Resume the persisted window if the emitter restarts mid-block.
	block, err := s.blocks.Load(ctx, cfg.ID)
	if err != nil {
		if s.log != nil {
			s.log.Warnw("block resume failed", "simulator_id", cfg.ID, "err", err)
		}
		block = md.Block{SimulatorID: cfg.ID}
	}
	last := time.Now()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-t.C:
			elapsed := now.Sub(last).Seconds()
			last = now
			block = s.step(ctx, cfg, block, now, elapsed)
		}
	}
}

// step advances one tick: reading -> block -> persist -> publish -> evaluate.
func (s *EmitterService) step(ctx context.Context, cfg SimulatorConfig, block md.Block, now time.Time, elapsedSec float64) md.Block {
	ws := WindowStart(now, s.loc)
	if block.IsZero() || !ws.Equal(block.WindowStart) {
		block = md.Block{
			SimulatorID:     cfg.ID,
			WindowStart:     ws,
			WindowEnd:       WindowEnd(ws),
			TargetEnergyKWh: cfg.TargetEnergyKWh,
			BinSeconds:      DefaultBinSeconds,
		}
	}

	reading := s.synthesize(cfg, now, elapsedSec)
	block.AccumulatedKWh += reading.PowerKW * reading.SampleDurationSeconds / 3600
	if block.TargetEnergyKWh > 0 {
		block.PercentOfTarget = block.AccumulatedKWh / block.TargetEnergyKWh * 100
	} else {
		block.PercentOfTarget = 0
	}
	block.Bins = fillBins(block.Bins, block, now)

	if err := s.blocks.Save(ctx, block); err != nil && s.log != nil {
		s.log.Errorw("block save failed", "simulator_id", cfg.ID, "err", err)
	}

	s.hub.Publish(cfg.ID, md.ReadingEvent{TS: reading.DeviceTimestamp})
	s.hub.Publish(cfg.ID, md.BlockUpdateEvent{
		AccumulatedKWh:  block.AccumulatedKWh,
		PercentOfTarget: block.PercentOfTarget,
		BlockStart:      block.WindowStart,
		BinSeconds:      block.BinSeconds,
		Points:          block.Bins,
	})

	s.evaluate(ctx, cfg.ID, block.PercentOfTarget)
	return block
}

// synthesize produces a deterministic load curve: base load with a slow
// sinusoidal ripple. Deterministic output keeps charts reproducible.
func (s *EmitterService) synthesize(cfg SimulatorConfig, now time.Time, elapsedSec float64) md.Reading {
	phase := 2 * math.Pi * float64(now.Unix()%ripplePeriodSec) / ripplePeriodSec
	power := cfg.BaseLoadKW * (1 + rippleAmplitude*math.Sin(phase))
	return md.Reading{
		PowerKW:               power,
		SampleDurationSeconds: elapsedSec,
		DeviceTimestamp:       now,
	}
}

func (s *EmitterService) evaluate(ctx context.Context, simulatorID string, percent float64) {
	fired, err := s.monitor.Evaluate(ctx, simulatorID, percent)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("threshold evaluation failed", "simulator_id", simulatorID, "err", err)
		}
		return
	}
	for _, t := range fired {
		if _, err := s.dispatcher.DispatchThreshold(ctx, t, percent); err != nil && s.log != nil {
			s.log.Errorw("dispatch failed", "trigger_id", t.ID, "err", err)
		}
		s.hub.Publish(simulatorID, md.AlertEvent{
			Message: alertMessage(simulatorID, percent, t.ThresholdPercent),
		})
	}
}

func (s *EmitterService) notifyLifecycle(ctx context.Context, simulatorID, kind string) {
	active, err := s.triggers.ListActive(ctx, simulatorID)
	if err != nil {
		if s.log != nil {
			s.log.Errorw("lifecycle trigger lookup failed", "simulator_id", simulatorID, "err", err)
		}
		return
	}
	if len(active) == 0 {
		return
	}
	if err := s.dispatcher.DispatchLifecycle(ctx, active, simulatorID, kind); err != nil && s.log != nil {
		s.log.Errorw("lifecycle dispatch failed", "simulator_id", simulatorID, "kind", kind, "err", err)
	}
}

// fillBins records the cumulative energy into the bin slot for now, carrying
// the previous value forward across empty slots.
func fillBins(bins []float64, block md.Block, now time.Time) []float64 {
	if block.BinSeconds <= 0 {
		return bins
	}
	idx := int(now.Sub(block.WindowStart).Seconds()) / block.BinSeconds
	maxBins := int(WindowDuration.Seconds()) / block.BinSeconds
	if idx < 0 {
		return bins
	}
	if idx >= maxBins {
		idx = maxBins - 1
	}
	for len(bins) <= idx {
		prev := 0.0
		if len(bins) > 0 {
			prev = bins[len(bins)-1]
		}
		bins = append(bins, prev)
	}
	bins[idx] = block.AccumulatedKWh
	return bins
}

func alertMessage(simulatorID string, percent, threshold float64) string {
	return fmt.Sprintf("Simulator %s crossed its usage threshold: %.1f%% of target (threshold %.0f%%)",
		simulatorID, percent, threshold)
}
