// Command scand runs the scanner's HTTP/websocket server: it loads
// configuration, restores the last session summary, and serves the
// command surface until interrupted.
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	log "github.com/sirupsen/logrus"

	"canscan/internal/command"
	"canscan/internal/config"
	"canscan/internal/httpapi"
	"canscan/internal/persistence"
	"canscan/internal/runtime"
	"canscan/internal/scanner"
	"canscan/internal/store/influx"
	"canscan/internal/store/sqlite"
)

func main() {
	configFile := flag.String("config", "config.yaml", "path to the scanner's YAML config file")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.WithError(err).Warn("using default config")
		cfg = config.Default()
	}

	level, err := log.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = log.InfoLevel
	}

	lastSession := persistence.LoadLastSession(cfg.AppData.Dir)
	rt := runtime.New(lastSession, level)

	// Declared as the narrow interfaces scanner expects (not *sqlite.Store /
	// *influx.Store) so a disabled or failed store leaves a true nil
	// interface behind, not a non-nil interface wrapping a nil pointer.
	var historyStore scanner.HistoryStore
	if cfg.Store.SQLite.Enabled {
		store, err := sqlite.Open(cfg.Store.SQLite.Path)
		if err != nil {
			rt.Log.WithError(err).Warn("session history store unavailable")
		} else {
			defer store.Close()
			rt.Log.WithField("path", cfg.Store.SQLite.Path).Info("session history store opened")
			historyStore = store
		}
	}

	var telemetryStore scanner.TelemetryStore
	if cfg.Store.InfluxDB.Enabled {
		store, err := influx.Open(cfg.Store.InfluxDB.URL, cfg.Store.InfluxDB.Token, cfg.Store.InfluxDB.Org, cfg.Store.InfluxDB.Bucket)
		if err != nil {
			rt.Log.WithError(err).Warn("telemetry store unavailable")
		} else {
			defer store.Close()
			rt.Log.Info("telemetry store opened")
			telemetryStore = store
		}
	}

	surface := command.New(rt, cfg.AppData.Dir, cfg, historyStore, telemetryStore)
	server := httpapi.NewServer(surface, rt.Log)
	rt.OnSnapshot(server.BroadcastSnapshot)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	httpServer := &http.Server{Addr: addr, Handler: server.Router()}

	go func() {
		rt.Log.WithField("addr", addr).Info("starting web server")
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			rt.Log.WithError(err).Fatal("web server failed")
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	<-sigChan

	rt.Log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(ctx); err != nil {
		rt.Log.WithError(err).Warn("error during server shutdown")
	}
}
