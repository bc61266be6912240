// Package serverapp assembles and runs the subgraph server: telemetry
// providers, the ISPyB connection pool, the object store presigner, the
// GraphQL handler chain, and the HTTP listener, with teardown in reverse
// order of acquisition.
package serverapp

import (
	"database/sql"
	"fmt"
	"net/http"
	"sync"

	"ispyb-graphql/internal/config"
	"ispyb-graphql/internal/logging"
	"ispyb-graphql/internal/objectstore"
	"ispyb-graphql/internal/observability"
)

// App carries the runtime resources of one server process between the
// lifecycle phases: New, Init, Start, WaitForStop, Shutdown.
type App struct {
	logger *logging.Logger
	cfg    *config.Config
	dbName string

	loggerProvider *observability.LoggerProvider
	meterProvider  *observability.MeterProvider
	tracerProvider *observability.TracerProvider
	gqlMetrics     *observability.GraphQLMetrics

	db          *sql.DB
	poolMetrics interface{ Unregister() error }
	signer      objectstore.URLSigner

	rootHandler http.Handler
	listenAddr  string
	server      *http.Server

	closers []closer

	mu       sync.Mutex
	ready    bool
	serving  bool
	failures chan error

	stopOnce sync.Once
}

// New wraps config and logger into an App. The database name comes out of the
// URL here, so a malformed target fails before anything is acquired.
func New(cfg *config.Config, logger *logging.Logger) (*App, error) {
	switch {
	case cfg == nil:
		return nil, fmt.Errorf("config is required")
	case logger == nil:
		return nil, fmt.Errorf("logger is required")
	}

	dbName, err := cfg.Database.DatabaseName()
	if err != nil {
		return nil, err
	}

	return &App{cfg: cfg, logger: logger, dbName: dbName}, nil
}

// AttachLoggerProvider hands the OTLP log provider over for teardown. The
// provider comes up with the logger, before the App exists.
func (a *App) AttachLoggerProvider(provider *observability.LoggerProvider) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.loggerProvider = provider
}
