package main

import (
	"context"
	"database/sql"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "metering_dashboard/docs"
	"metering_dashboard/internal/feed"
	"metering_dashboard/internal/handlers"
	"metering_dashboard/internal/logger"
	"metering_dashboard/internal/messaging"
	"metering_dashboard/internal/repository"
	"metering_dashboard/internal/server"
	"metering_dashboard/internal/service"

	"github.com/spf13/viper"
)

// @title        Metering Dashboard API
// @version      1.0
// @description  Telemetry block aggregation and WhatsApp threshold alerts for simulated energy meters.
// @securityDefinitions.apikey BearerAuth
// @in   header
// @name Authorization
func main() {
	// load config.yml first so the log level is configurable
	if err := loadConfig(); err != nil {
		logger.Get(logger.InfoLevel).Fatalw("error reading config", "err", err)
	}
	log := logger.Get(viper.GetString("log_level"))

	// open DB
	db, err := openDB(log)
	if err != nil {
		log.Fatalw("failed to init sqlite", "err", err)
	}
	defer func() {
		if cerr := db.Close(); cerr != nil {
			log.Errorw("failed to close sqlite", "err", cerr)
		}
	}()

	loc, err := loadTimezone()
	if err != nil {
		log.Fatalw("invalid timezone in config", "err", err)
	}

	// wire dependencies
	repos := repository.NewRepository(db)
	hub := feed.NewHub()
	messenger := messaging.NewWhatsAppClient(
		viper.GetString("whatsapp.gateway_url"),
		viper.GetString("whatsapp.token"),
		log,
	)

	var sims []service.SimulatorConfig
	if err := viper.UnmarshalKey("simulators", &sims); err != nil {
		log.Fatalw("invalid simulators config", "err", err)
	}

	services := service.NewService(repos, service.Deps{
		Hub:        hub,
		Messenger:  messenger,
		Location:   loc,
		Log:        log,
		Tick:       viper.GetDuration("emitter.tick"),
		Simulators: sims,
		SigningKey: signingKey(),
	})
	apiHandler := handlers.NewHandler(services, hub, log)

	// context for background goroutines
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if viper.GetBool("emitter.autostart") {
		for _, cfg := range sims {
			if err := services.Emitters.Start(ctx, cfg.ID); err != nil {
				log.Errorw("emitter autostart failed", "simulator_id", cfg.ID, "err", err)
			}
		}
	}

	// start HTTP server
	srv := &server.Server{}
	runHTTPServer(srv, viper.GetString("port"), apiHandler, log)

	// graceful shutdown
	waitForShutdown(cancel, srv, services, hub, log)
}

func loadConfig() error {
	viper.AddConfigPath("configs") // configs/config.yml
	viper.SetConfigName("config")
	viper.SetDefault("log_level", logger.InfoLevel)
	viper.SetDefault("emitter.tick", service.DefaultEmitTick)
	viper.SetDefault("timezone", "UTC")
	return viper.ReadInConfig()
}

func loadTimezone() (*time.Location, error) {
	return time.LoadLocation(viper.GetString("timezone"))
}

func signingKey() string {
	if key := viper.GetString("auth.signing_key"); key != "" {
		return key
	}
	return os.Getenv("DASHBOARD_SIGNING_KEY")
}

// openDB initializes the SQLite database using configuration.
func openDB(log *logger.Logger) (*sql.DB, error) {
	dbPath := viper.GetString("db.path")
	if dbPath == "" {
		log.Infow("db.path not set in config; using default file", "default", "dashboard.db")
		dbPath = "dashboard.db"
	}
	return repository.InitDB(dbPath)
}

// runHTTPServer runs the HTTP server in a separate goroutine.
func runHTTPServer(srv *server.Server, port string, handler *handlers.Handler, log *logger.Logger) {
	go func() {
		if port == "" {
			port = "8080"
		}
		if err := srv.Run(port, handler.InitRoutes()); err != nil {
			log.Fatalw("error starting server", "err", err)
		}
	}()
}

// waitForShutdown listens for termination signals and stops everything in
// dependency order: emitters first, then the feed, then the HTTP server.
func waitForShutdown(cancel context.CancelFunc, srv *server.Server, services *service.Service, hub *feed.Hub, log *logger.Logger) {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Infow("shutting down server...")

	cancel()
	services.Emitters.StopAll()
	hub.Close()

	ctx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatalw("server forced to shutdown", "err", err)
	}
}
