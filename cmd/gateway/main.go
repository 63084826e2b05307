// The fleet gateway terminates raw TCP sessions from GPS tracker devices,
// decodes the Ruptela and Jimi wire protocols, keeps the devices reporting
// with protocol acknowledgements and position polling, and fans validated
// fixes out to real-time subscribers.
package main

import (
	"flag"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/intelcon-group/fleet-gateway/internal/admin"
	"github.com/intelcon-group/fleet-gateway/internal/config"
	"github.com/intelcon-group/fleet-gateway/internal/fanout"
	"github.com/intelcon-group/fleet-gateway/internal/metrics"
	"github.com/intelcon-group/fleet-gateway/internal/server"
	"github.com/intelcon-group/fleet-gateway/internal/session"
	"github.com/intelcon-group/fleet-gateway/internal/telemetry"
)

var (
	configPath = flag.String("config", "", "Path to JSON configuration file")
	debug      = flag.Bool("debug", false, "Enable debug logging")
)

func main() {
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			// The logger is not up yet.
			panic(err)
		}
		cfg = loaded
	}
	if *debug {
		cfg.Debug = true
	}

	log := newLogger(cfg.Debug)
	defer log.Sync()

	log.Info("gateway starting",
		zap.Int("listeners", len(cfg.Listeners)),
		zap.String("admin_addr", cfg.AdminAddr))

	m := metrics.New()
	hub := fanout.NewHub(log)
	registry := session.NewRegistry()
	dedup := telemetry.NewDedupWindow(telemetry.DefaultWindowSize)

	srv := server.New(cfg, log, hub, registry, dedup, m)
	if err := srv.Start(); err != nil {
		log.Fatal("listener start failed", zap.Error(err))
	}

	adm := admin.New(log, cfg, registry, hub, m)
	go func() {
		if err := adm.Serve(); err != nil {
			log.Error("admin server stopped", zap.Error(err))
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh

	log.Info("shutting down", zap.String("signal", sig.String()))
	srv.Shutdown()
}

func newLogger(debug bool) *zap.Logger {
	var cfg zap.Config
	if debug {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}

	log, err := cfg.Build()
	if err != nil {
		panic(err)
	}
	return log
}
