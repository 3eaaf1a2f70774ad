// Package app wires settings into the running components: logging, the
// relational store, the blob store, metrics and the records service.
// Commands open an App, use it, and close it.
package app

import (
	"context"
	"fmt"
	"io"

	"github.com/clinicdesk/patientkeeper/internal/blobstore"
	"github.com/clinicdesk/patientkeeper/internal/conf"
	"github.com/clinicdesk/patientkeeper/internal/datastore"
	"github.com/clinicdesk/patientkeeper/internal/logger"
	"github.com/clinicdesk/patientkeeper/internal/observability"
	"github.com/clinicdesk/patientkeeper/internal/records"
)

// App holds the application state shared by commands.
type App struct {
	Settings *conf.Settings
	Log      logger.Logger
	Manager  datastore.Manager
	Repos    *datastore.Repositories
	Blobs    blobstore.Store
	Records  *records.Service
	Metrics  *observability.Metrics

	central         *logger.CentralLogger
	uninstallErrors func()
}

// Options adjusts how Open builds the application.
type Options struct {
	// Console receives console log output. Nil means stdout.
	Console io.Writer
	// DisableMetrics skips the Prometheus registry.
	DisableMetrics bool
}

// Open builds every component from settings. On failure, whatever was
// already opened is closed again.
func Open(ctx context.Context, settings *conf.Settings, opts Options) (*App, error) {
	if settings == nil {
		return nil, fmt.Errorf("settings are required")
	}

	central, err := logger.NewCentralLoggerWithConsole(&settings.Logging, opts.Console)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	a := &App{
		Settings: settings,
		Log:      central.Module("app"),
		central:  central,
	}

	a.Manager, err = datastore.Open(&settings.Database, central.Module("datastore"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	a.Repos = datastore.NewRepositories(a.Manager)

	a.Blobs, err = blobstore.Open(ctx, &settings.BlobStore, a.Repos.Blobs)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("failed to open blob store: %w", err)
	}

	serviceOpts := []records.Option{records.WithLogger(central.Module("records"))}
	if !opts.DisableMetrics {
		a.Metrics, err = observability.NewMetrics()
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("failed to initialize metrics: %w", err)
		}
		a.uninstallErrors = a.Metrics.Errors.Install()
		serviceOpts = append(serviceOpts, records.WithRecorder(a.Metrics.Records))
	}

	a.Records = records.New(a.Repos, a.Blobs, records.ConfigFromSettings(settings), serviceOpts...)

	a.Log.Debug("application opened",
		logger.String("database", a.Manager.Path()),
		logger.String("blob_driver", string(a.Blobs.Driver())),
		logger.Bool("metrics", a.Metrics != nil))
	return a, nil
}

// Logger returns the logger for a named module, honoring per-module
// levels and outputs from the logging settings.
func (a *App) Logger(module string) logger.Logger {
	return a.central.Module(module)
}

// Close releases the database pool and flushes logs. It is safe to call
// on a partially opened App.
func (a *App) Close() {
	if a.uninstallErrors != nil {
		a.uninstallErrors()
	}
	if c, ok := a.Blobs.(io.Closer); ok {
		_ = c.Close()
	}
	if a.Manager != nil {
		if err := a.Manager.Close(); err != nil && a.Log != nil {
			a.Log.Warn("failed to close database", logger.Error(err))
		}
	}
	if a.central != nil {
		_ = a.central.Flush()
		_ = a.central.Close()
	}
}
