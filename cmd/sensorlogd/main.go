// sensorlogd is the sensor telemetry server daemon.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	defaults "github.com/xtxerr/sensorlog/config"
	"github.com/xtxerr/sensorlog/internal/archive"
	"github.com/xtxerr/sensorlog/internal/config"
	"github.com/xtxerr/sensorlog/internal/datastore"
	"github.com/xtxerr/sensorlog/internal/format"
	"github.com/xtxerr/sensorlog/internal/forward"
	"github.com/xtxerr/sensorlog/internal/logging"
	"github.com/xtxerr/sensorlog/internal/peer"
	"github.com/xtxerr/sensorlog/internal/sampler"
	"github.com/xtxerr/sensorlog/internal/server"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	// CLI flags
	cfgPath := flag.String("config", "config.yaml", "config file path")
	listen := flag.String("listen", "", "listen address (overrides config)")
	dataDir := flag.String("data", "", "data directory (overrides config)")
	peerURL := flag.String("peer", "", "peer base URL (overrides config)")
	logLevel := flag.String("log-level", "", "log level (overrides config)")
	flag.Parse()

	// Load config
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			log.Printf("No config file found, using defaults")
			cfg = config.DefaultConfig()
		} else {
			log.Fatalf("Load config: %v", err)
		}
	}

	// CLI overrides
	if *listen != "" {
		cfg.Listen = *listen
	}
	if *dataDir != "" {
		cfg.DataDir = *dataDir
	}
	if *peerURL != "" {
		cfg.Peer.URL = *peerURL
	}
	if *logLevel != "" {
		cfg.Log.Level = *logLevel
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid config: %v", err)
	}

	logging.Init(logging.ParseLevel(cfg.Log.Level), cfg.Log.JSON)
	logging.Info("sensorlogd starting", "version", Version)

	// =========================================================================
	// Data sources: remote peer or local archive
	// =========================================================================

	var arch *archive.Archive
	var peerClient *peer.Client

	if cfg.Peer.URL != "" {
		name := cfg.Peer.Format
		if name == "" {
			name = defaults.DefaultPeerFormat
		}
		peerFormat, err := format.ParseFormat(name)
		if err != nil {
			log.Fatalf("Peer format: %v", err)
		}
		peerClient = peer.New(&peer.Config{
			URL:     cfg.Peer.URL,
			Timeout: cfg.Peer.Timeout.Duration(),
			Format:  peerFormat,
		})
		logging.Info("serving from remote peer", "url", cfg.Peer.URL, "format", name)
	} else {
		if err := cfg.EnsureDirectories(); err != nil {
			log.Fatalf("Prepare data directories: %v", err)
		}
		backend, closeBackend, err := newBackend(cfg)
		if err != nil {
			log.Fatalf("Create archive backend: %v", err)
		}
		if closeBackend != nil {
			defer closeBackend()
		}
		arch = archive.New(backend)
		logging.Info("serving from local archive",
			"driver", cfg.Archive.Driver, "data_dir", cfg.DataDir)
	}

	store := datastore.New(&datastore.Config{
		Archive:         arch,
		Peer:            peerClient,
		BufferCapacity:  cfg.Buffer.Capacity,
		SummaryAccuracy: cfg.Summary.Accuracy,
	})

	forwarder := forward.New(cfg.Forward.Timeout.Duration())

	srv := server.New(&server.Config{
		Listen:  cfg.Listen,
		Store:   store,
		Forward: forwarder,
	})

	// =========================================================================
	// Lifecycle
	// =========================================================================

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Subscribe to the peer's live readings for the life of the process.
	if peerClient != nil {
		if err := peerClient.RegisterForwarding(ctx); err != nil {
			logging.Warn("register forwarding with peer", "error", err)
		} else {
			defer func() {
				unregCtx, cancel := context.WithTimeout(context.Background(), cfg.Peer.Timeout.Duration())
				defer cancel()
				if err := peerClient.UnregisterForwarding(unregCtx); err != nil {
					logging.Warn("unregister forwarding with peer", "error", err)
				}
			}()
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(srv.Run)

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	g.Go(func() error {
		ticker := time.NewTicker(cfg.Flush.Interval.Duration())
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case <-ticker.C:
				if err := srv.Flush(gctx); err != nil {
					logging.Error("periodic flush", "error", err)
				}
			}
		}
	})

	if cfg.Sampler.Enabled {
		smp := sampler.New(&sampler.Config{
			Sink:     srv,
			Path:     cfg.Sampler.Path,
			Interval: cfg.Sampler.Interval.Duration(),
		})
		g.Go(func() error { return smp.Run(gctx) })
	}

	if err := g.Wait(); err != nil {
		logging.Error("server error", "error", err)
		os.Exit(1)
	}

	// Final flush so nothing in memory is lost across a restart.
	flushCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Flush(flushCtx); err != nil {
		logging.Error("shutdown flush", "error", err)
	}

	logging.Info("sensorlogd stopped")
}

// newBackend builds the archive backend selected by the config. The
// returned close function is non-nil when the backend holds resources.
func newBackend(cfg *config.Config) (archive.Backend, func(), error) {
	switch cfg.Archive.Driver {
	case "sqlite":
		backend, err := archive.NewSQLiteBackend(cfg.SQLitePath())
		if err != nil {
			return nil, nil, err
		}
		closeFn := func() {
			if err := backend.Close(); err != nil {
				logging.Warn("close sqlite archive", "error", err)
			}
		}
		return backend, closeFn, nil
	case "memory":
		return archive.NewMemBackend(), nil, nil
	default:
		backend, err := archive.NewDirBackend(cfg.ArchiveDir())
		if err != nil {
			return nil, nil, err
		}
		return backend, nil, nil
	}
}
