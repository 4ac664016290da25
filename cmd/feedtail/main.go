// feedtail follows one simulator's live push-event feed and maintains a
// reconciled view of the current accounting block, logging the block whenever
// the view changes. Useful for watching a dashboard server from a terminal.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	md "metering_dashboard"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/service"
	"metering_dashboard/internal/stream"
)

func main() {
	addr := flag.String("addr", "http://localhost:8080", "dashboard server base URL")
	simulatorID := flag.String("simulator", "", "simulator id to follow (required)")
	token := flag.String("token", "", "bearer token for the block pull endpoint")
	interval := flag.Duration("interval", 10*time.Second, "periodic snapshot interval")
	flag.Parse()

	log := logger.Get(logger.InfoLevel)
	if *simulatorID == "" {
		log.Fatalw("missing -simulator flag")
	}

	sup := service.NewConnectionSupervisor(func(st service.ConnStatus) {
		log.Infow("feed status", "connected", st.Connected, "reconnecting", st.Reconnecting)
	})
	rec := service.NewBlockReconciler(*simulatorID, blockFetcher(*addr, *token), func(b md.Block) {
		log.Infow("window change",
			"window_start", b.WindowStart, "accumulated_kwh", b.AccumulatedKWh)
	}, log)

	wsURL := strings.Replace(*addr, "http", "ws", 1) + "/ws/" + *simulatorID
	client := stream.NewClient(wsURL, sup, log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	client.Start(ctx)

	if _, err := rec.LoadInitial(ctx); err != nil {
		log.Warnw("initial block fetch failed", "err", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	tick := time.NewTicker(*interval)
	defer tick.Stop()

	for {
		select {
		case ev, ok := <-client.Events():
			if !ok {
				return
			}
			rec.OnPushEvent(ev)
			if alert, isAlert := ev.(md.AlertEvent); isAlert {
				log.Warnw("alert", "message", alert.Message)
			}
		case <-tick.C:
			logSnapshot(log, rec, sup)
		case <-quit:
			cancel()
			client.Close()
			rec.Close()
			return
		}
	}
}

func logSnapshot(log *logger.Logger, rec *service.BlockReconciler, sup *service.ConnectionSupervisor) {
	block, ok := rec.Block()
	if !ok {
		log.Infow("no block yet", "conn", sup.State().String())
		return
	}
	log.Infow("block",
		"window_start", block.WindowStart,
		"accumulated_kwh", block.AccumulatedKWh,
		"percent_of_target", block.PercentOfTarget,
		"conn", sup.State().String(),
	)
}

// blockFetcher pulls the authoritative block over the HTTP API.
func blockFetcher(addr, token string) service.BlockFetcher {
	httpClient := &http.Client{Timeout: 10 * time.Second}
	return func(ctx context.Context, simulatorID string) (md.Block, error) {
		url := addr + "/api/v1/simulators/" + simulatorID + "/block"
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return md.Block{}, err
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := httpClient.Do(req)
		if err != nil {
			return md.Block{}, err
		}
		defer func() { _ = resp.Body.Close() }()
		if resp.StatusCode != http.StatusOK {
			return md.Block{}, fmt.Errorf("block fetch: unexpected status %d", resp.StatusCode)
		}
		var b md.Block
		if err := json.NewDecoder(resp.Body).Decode(&b); err != nil {
			return md.Block{}, fmt.Errorf("block fetch: decode: %w", err)
		}
		return b, nil
	}
}
