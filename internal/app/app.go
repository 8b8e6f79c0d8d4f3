// Package app assembles a runnable server from its parts: settings, logger,
// transport endpoint, and the authoritative world.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"lanternfall/internal/config"
	"lanternfall/internal/net"
	"lanternfall/internal/net/ws"
	"lanternfall/internal/sim"
	"lanternfall/internal/zone"
)

// App is a fully wired server awaiting Run.
type App struct {
	cfg       config.Config
	log       *zap.SugaredLogger
	transport net.Transport
	world     *sim.World

	diagnostics *http.Server
}

// New wires an App from validated settings.
func New(cfg config.Config) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	log := newLogger(cfg).Sugar()

	transport, err := ws.New(net.Kind(cfg.Transport), ws.Config{
		Secret:           cfg.SharedSecret,
		MaxPeers:         cfg.MaxPeers,
		PacketsPerSecond: int(cfg.PacketsPerSecond),
		PacketBurst:      cfg.PacketBurst,
		Logger:           log.Named("net"),
	})
	if err != nil {
		return nil, fmt.Errorf("build transport: %w", err)
	}

	zones := make([]zone.ID, len(cfg.ZoneIDs))
	for i, id := range cfg.ZoneIDs {
		zones[i] = zone.ID(id)
	}

	world := sim.NewWorld(sim.Config{
		TickRate:          cfg.TickRate,
		MaxPlayersPerZone: cfg.MaxPlayersPerZone,
		ZoneIDs:           zones,
		Seed:              cfg.Seed,
		ReplayPath:        cfg.ReplayPath,
		Logger:            log.Named("sim"),
	}, transport)

	app := &App{
		cfg:       cfg,
		log:       log,
		transport: transport,
		world:     world,
	}
	if cfg.DiagnosticsPort != 0 {
		app.diagnostics = app.newDiagnosticsServer()
	}
	return app, nil
}

// Run starts the listener and drives the simulation until stop closes. It
// returns once everything has shut down.
func (a *App) Run(stop <-chan struct{}) error {
	if err := a.transport.Start(a.cfg.Port); err != nil {
		return fmt.Errorf("start transport: %w", err)
	}
	a.log.Infow("server listening",
		"transport", a.cfg.Transport,
		"port", a.cfg.Port,
		"tickRate", a.cfg.TickRate,
		"zones", a.cfg.ZoneIDs)

	if a.diagnostics != nil {
		go func() {
			if err := a.diagnostics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				a.log.Errorw("diagnostics server failed", "error", err)
			}
		}()
	}

	a.world.Run(stop)

	if a.diagnostics != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = a.diagnostics.Shutdown(ctx)
	}
	a.transport.Stop()
	a.world.Close()
	_ = a.log.Sync()
	a.log.Infow("server stopped")
	return nil
}

func (a *App) newDiagnosticsServer() *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok\n"))
	})

	mux.HandleFunc("/diagnostics", func(w http.ResponseWriter, _ *http.Request) {
		payload := struct {
			Tick    uint64                  `json:"tick"`
			Players []sim.DiagnosticsPlayer `json:"players"`
		}{
			Tick:    a.world.Tick(),
			Players: a.world.DiagnosticsSnapshot(),
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(payload); err != nil {
			a.log.Warnw("diagnostics encode failed", "error", err)
		}
	})

	return &http.Server{
		Addr:    fmt.Sprintf("%s:%d", a.cfg.Host, a.cfg.DiagnosticsPort),
		Handler: mux,
	}
}
