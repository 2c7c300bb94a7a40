// Package daemon wires the travels service together and manages its
// lifecycle: dataset loading, HTTP servers, audit store, event publisher,
// periodic jobs, and config watching.
package daemon

import (
	"context"
	"log/slog"
	"os"
	"runtime"
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"git.home.luguber.info/inful/travels/internal/audit"
	"git.home.luguber.info/inful/travels/internal/config"
	"git.home.luguber.info/inful/travels/internal/events"
	"git.home.luguber.info/inful/travels/internal/foundation/errors"
	"git.home.luguber.info/inful/travels/internal/metrics"
	"git.home.luguber.info/inful/travels/internal/server/handlers"
	"git.home.luguber.info/inful/travels/internal/server/httpserver"
	"git.home.luguber.info/inful/travels/internal/store"
)

// Daemon is the long-running travels service.
type Daemon struct {
	mu     sync.RWMutex
	cfg    *config.Config
	status string

	store      *store.Store
	server     *httpserver.Server
	scheduler  *Scheduler
	watcher    *ConfigWatcher
	auditStore audit.Store
	publisher  *events.Publisher
	recorder   *metrics.PrometheusRecorder
	registry   *prom.Registry

	startTime time.Time
}

// New loads the dataset and assembles the daemon. Nothing is listening yet;
// call Start.
func New(cfg *config.Config) (*Daemon, error) {
	if cfg.NumThreads > 0 {
		runtime.GOMAXPROCS(cfg.NumThreads)
	}

	now, err := store.ReadReferenceTime(cfg.OptionsFile)
	if err != nil {
		now = time.Now().Unix()
		slog.Warn("Options file unreadable, using wall-clock reference time",
			"path", cfg.OptionsFile, "error", err)
	}

	st, err := store.Load(cfg.DataFile, now)
	if err != nil {
		return nil, err
	}
	users, locations, visits := st.Counts()
	slog.Info("Dataset loaded",
		slog.Int("users", users),
		slog.Int("locations", locations),
		slog.Int("visits", visits),
		slog.Int64("reference_time", now))

	d := &Daemon{
		cfg:       cfg,
		status:    "initialized",
		store:     st,
		startTime: time.Now(),
		registry:  prom.NewRegistry(),
	}
	d.recorder = metrics.NewPrometheusRecorder(d.registry)

	if cfg.Audit.Path != "" {
		auditStore, err := audit.NewSQLiteStore(cfg.Audit.Path)
		if err != nil {
			return nil, errors.StorageError("could not open audit store").
				WithCause(err).WithContext("path", cfg.Audit.Path).Build()
		}
		d.auditStore = auditStore
	}

	if cfg.Events.Enabled {
		pub, err := events.NewPublisher(cfg.Events, slog.Default())
		if err != nil {
			// A missing broker degrades event publishing, never the API.
			slog.Warn("Event publisher unavailable", "error", err)
		} else {
			d.publisher = pub
		}
	}

	var auditReader handlers.AuditReader
	if d.auditStore != nil {
		auditReader = d.auditStore
	}

	d.server = httpserver.New(cfg, httpserver.Options{
		Store:    st,
		Recorder: d.recorder,
		Registry: d.registry,
		Sink:     &mutationFanout{store: d.auditStore, publisher: d.publisher},
		Daemon:   d,
		Audit:    auditReader,
	})

	return d, nil
}

// Start brings up the HTTP servers, scheduler, and config watcher.
func (d *Daemon) Start(ctx context.Context, configPath string) error {
	if err := d.server.Start(ctx); err != nil {
		return errors.DaemonError("could not start HTTP servers").WithCause(err).Build()
	}

	scheduler, err := NewScheduler()
	if err != nil {
		return errors.DaemonError("could not create scheduler").WithCause(err).Build()
	}
	d.scheduler = scheduler
	if d.cfg.StatsInterval > 0 {
		if err := d.scheduler.ScheduleStats(d.cfg.StatsInterval, d.logStats); err != nil {
			return errors.DaemonError("could not schedule stats job").WithCause(err).Build()
		}
	}
	d.scheduler.Start(ctx)

	if configPath != "" {
		watcher, err := NewConfigWatcher(configPath, d)
		if err != nil {
			slog.Warn("Config watcher unavailable", "error", err)
		} else {
			d.watcher = watcher
			if err := d.watcher.Start(ctx); err != nil {
				slog.Warn("Config watcher failed to start", "error", err)
				d.watcher = nil
			}
		}
	}

	d.setStatus("running")
	slog.Info("Daemon started")
	return nil
}

// Stop shuts components down in reverse start order.
func (d *Daemon) Stop(ctx context.Context) error {
	d.setStatus("stopping")

	if d.watcher != nil {
		if err := d.watcher.Stop(ctx); err != nil {
			slog.Error("Config watcher shutdown failed", "error", err)
		}
	}
	if d.scheduler != nil {
		if err := d.scheduler.Stop(ctx); err != nil {
			slog.Error("Scheduler shutdown failed", "error", err)
		}
	}
	if err := d.server.Stop(ctx); err != nil {
		slog.Error("HTTP shutdown failed", "error", err)
	}
	if d.publisher != nil {
		if err := d.publisher.Close(); err != nil {
			slog.Error("Event publisher close failed", "error", err)
		}
	}
	if d.auditStore != nil {
		if err := d.auditStore.Close(); err != nil {
			slog.Error("Audit store close failed", "error", err)
		}
	}

	d.setStatus("stopped")
	slog.Info("Daemon stopped")
	return nil
}

// logStats is the periodic stats job: it logs dataset totals and refreshes
// the entity gauges.
func (d *Daemon) logStats() {
	users, locations, visits := d.store.Counts()
	d.recorder.SetEntityCount("users", users)
	d.recorder.SetEntityCount("locations", locations)
	d.recorder.SetEntityCount("visits", visits)
	slog.Info("Dataset stats",
		slog.Int("users", users),
		slog.Int("locations", locations),
		slog.Int("visits", visits))
}

func (d *Daemon) setStatus(s string) {
	d.mu.Lock()
	d.status = s
	d.mu.Unlock()
}

// GetStatus returns the daemon's lifecycle state.
func (d *Daemon) GetStatus() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.status
}

// GetStartTime returns when the daemon was constructed.
func (d *Daemon) GetStartTime() time.Time { return d.startTime }

// DatasetCounts returns the stored entity totals.
func (d *Daemon) DatasetCounts() (users, locations, visits int) {
	return d.store.Counts()
}

// ReferenceTime returns the dataset generation timestamp.
func (d *Daemon) ReferenceTime() int64 { return d.store.ReferenceTime() }

// GetConfig returns the active configuration.
func (d *Daemon) GetConfig() *config.Config {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.cfg
}

// ReloadConfig applies a changed configuration. Only the log level is
// hot-swappable; everything else requires a restart.
func (d *Daemon) ReloadConfig(_ context.Context, newCfg *config.Config) error {
	cur := d.GetConfig()

	if newCfg.Bind != cur.Bind || newCfg.AdminPort != cur.AdminPort {
		slog.Warn("Listen address changes require a restart")
	}
	if newCfg.DataFile != cur.DataFile || newCfg.OptionsFile != cur.OptionsFile {
		slog.Warn("Dataset path changes require a restart")
	}

	if newCfg.LogLevel != cur.LogLevel {
		level, err := newCfg.SlogLevel()
		if err != nil {
			return err
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: level,
		})))
		slog.Info("Log level updated", "level", newCfg.LogLevel)
	}

	d.mu.Lock()
	d.cfg = newCfg
	d.mu.Unlock()
	return nil
}
