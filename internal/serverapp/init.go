package serverapp

import (
	"context"
	"fmt"
	"log/slog"

	"ispyb-graphql/internal/dbexec"
	"ispyb-graphql/internal/resolver"
	"ispyb-graphql/internal/schema"
)

// Init acquires every runtime resource in dependency order. On any failure
// the closers registered so far unwind, so a half-initialized App never
// leaks connections or providers. Calling Init on a ready App is a no-op.
func (a *App) Init(ctx context.Context) error {
	a.mu.Lock()
	if a.ready {
		a.mu.Unlock()
		return nil
	}
	a.mu.Unlock()

	if ctx == nil {
		ctx = context.Background()
	}

	var closers []closer
	completed := false
	defer func() {
		if !completed {
			releaseAll(context.Background(), closers, a.logger)
		}
	}()

	// The log provider predates the App, so its closer goes first and its
	// shutdown runs last. Logging stays alive while everything else stops.
	if a.loggerProvider != nil {
		closers = append(closers, closer{name: "logger provider", stop: func(stopCtx context.Context) error {
			return a.loggerProvider.Shutdown(stopCtx, a.logger.Logger)
		}})
	}

	meterProvider, gqlMetrics, err := initMetrics(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics pipeline: %w", err)
	}
	if meterProvider != nil {
		closers = append(closers, closer{name: "meter provider", stop: func(stopCtx context.Context) error {
			return meterProvider.Shutdown(stopCtx, a.logger.Logger)
		}})
	}

	tracerProvider, err := initTracing(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing pipeline: %w", err)
	}
	if tracerProvider != nil {
		closers = append(closers, closer{name: "tracer provider", stop: func(stopCtx context.Context) error {
			return tracerProvider.Shutdown(stopCtx, a.logger.Logger)
		}})
	}

	a.logger.Info("connecting to ISPyB store",
		slog.String("target", a.cfg.Database.Redacted()),
		slog.String("database", a.dbName),
	)

	db, poolMetrics, err := openDB(a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("failed to connect to database: %w", err)
	}
	closers = append(closers, closer{name: "database", stop: func(context.Context) error {
		if poolMetrics != nil {
			if err := poolMetrics.Unregister(); err != nil {
				a.logger.Warn("failed to unregister DB stats metrics", slog.String("error", err.Error()))
			}
		}
		return db.Close()
	}})

	if err := preparePool(ctx, a.cfg, a.logger, db); err != nil {
		return fmt.Errorf("failed to verify database connection: %w", err)
	}

	signer, err := initObjectStore(ctx, a.cfg, a.logger)
	if err != nil {
		return err
	}

	res := resolver.NewResolver(dbexec.NewStandardExecutor(db), signer)
	gqlSchema, err := schema.Build(res)
	if err != nil {
		return fmt.Errorf("failed to build GraphQL schema: %w", err)
	}

	gqlHandler, err := buildGraphQLHandler(a.cfg, a.logger, &gqlSchema, gqlMetrics, res)
	if err != nil {
		return fmt.Errorf("failed to initialize GraphQL handler: %w", err)
	}

	mux := buildRouter(a.cfg, a.logger, db, gqlHandler, meterProvider)
	rootHandler := wrapHTTPHandler(a.cfg, a.logger, mux)

	listenAddr := a.cfg.Server.Addr()
	server, err := newHTTPServer(a.cfg, a.logger, rootHandler, listenAddr)
	if err != nil {
		return fmt.Errorf("failed to initialize server: %w", err)
	}
	closers = append(closers, closer{name: "HTTP server", stop: func(stopCtx context.Context) error {
		return server.Shutdown(stopCtx)
	}})

	a.mu.Lock()
	a.meterProvider = meterProvider
	a.gqlMetrics = gqlMetrics
	a.tracerProvider = tracerProvider
	a.db = db
	a.poolMetrics = poolMetrics
	a.signer = signer
	a.rootHandler = rootHandler
	a.listenAddr = listenAddr
	a.server = server
	a.closers = closers
	a.ready = true
	a.mu.Unlock()

	completed = true
	return nil
}
