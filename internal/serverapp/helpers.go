package serverapp

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"ispyb-graphql/internal/config"
	"ispyb-graphql/internal/logging"
	"ispyb-graphql/internal/middleware"
	"ispyb-graphql/internal/objectstore"
	"ispyb-graphql/internal/observability"
	"ispyb-graphql/internal/resolver"
	"ispyb-graphql/internal/tlscert"

	"github.com/XSAM/otelsql"
	_ "github.com/go-sql-driver/mysql"
	"github.com/graphql-go/graphql"
	"github.com/graphql-go/handler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// InitLogger builds the process logger. With log export on, the OTLP log
// provider comes up first and the logger is rebuilt around its fan-out
// handler, so everything logged after this point reaches the collector too.
func InitLogger(cfg *config.Config) (*logging.Logger, *observability.LoggerProvider, error) {
	logCfg := logging.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	}
	logger := logging.NewLogger(logCfg)
	slog.SetDefault(logger.Logger)

	if !cfg.Telemetry.Enabled || !cfg.Telemetry.LogExportEnabled {
		return logger, nil, nil
	}

	logger.Info("initializing OpenTelemetry logging",
		slog.String("service_name", cfg.Telemetry.ServiceName),
		slog.String("service_version", cfg.Telemetry.ServiceVersion),
		slog.String("environment", cfg.Telemetry.Environment),
		slog.String("otlp_endpoint", cfg.Telemetry.Endpoint),
		slog.String("otlp_protocol", cfg.Telemetry.Protocol),
		slog.Bool("insecure", cfg.Telemetry.Insecure),
	)

	provider, err := observability.InitLoggerProvider(exporterConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	logCfg.LoggerProvider = provider.Provider()
	logger = logging.NewLogger(logCfg)
	slog.SetDefault(logger.Logger)
	logger.Info("OpenTelemetry logging initialized")

	return logger, provider, nil
}

func exporterConfig(cfg *config.Config) observability.Config {
	return observability.Config{
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Telemetry.ServiceVersion,
		Environment:    cfg.Telemetry.Environment,
		SampleRatio:    cfg.Telemetry.SampleRatio,
		Exporter: observability.ExporterConfig{
			Endpoint: cfg.Telemetry.Endpoint,
			Protocol: cfg.Telemetry.Protocol,
			Insecure: cfg.Telemetry.Insecure,
			Timeout:  cfg.Telemetry.Timeout,
		},
	}
}

func initMetrics(cfg *config.Config, logger *logging.Logger) (*observability.MeterProvider, *observability.GraphQLMetrics, error) {
	if !cfg.Telemetry.MetricsEnabled {
		return nil, nil, nil
	}

	logger.Info("initializing OpenTelemetry metrics",
		slog.String("service_name", cfg.Telemetry.ServiceName),
		slog.String("service_version", cfg.Telemetry.ServiceVersion),
		slog.String("environment", cfg.Telemetry.Environment),
	)

	provider, err := observability.InitMeterProvider(exporterConfig(cfg))
	if err != nil {
		return nil, nil, err
	}

	instruments, err := observability.InitMetrics(logger.Logger)
	if err != nil {
		return nil, nil, err
	}

	return provider, instruments, nil
}

func initTracing(cfg *config.Config, logger *logging.Logger) (*observability.TracerProvider, error) {
	if !cfg.Telemetry.Enabled {
		return nil, nil
	}

	logger.Info("initializing OpenTelemetry tracing",
		slog.String("service_name", cfg.Telemetry.ServiceName),
		slog.String("otlp_endpoint", cfg.Telemetry.Endpoint),
		slog.String("otlp_protocol", cfg.Telemetry.Protocol),
		slog.Bool("insecure", cfg.Telemetry.Insecure),
		slog.Float64("sample_ratio", cfg.Telemetry.SampleRatio),
	)

	provider, err := observability.InitTracerProvider(exporterConfig(cfg))
	if err != nil {
		return nil, err
	}
	logger.Info("OpenTelemetry tracing initialized")

	return provider, nil
}

// openDB opens the MySQL pool, instrumented through otelsql whenever any
// telemetry is on, since both tracing and metrics hang off the same wrapper.
func openDB(cfg *config.Config, logger *logging.Logger) (*sql.DB, interface{ Unregister() error }, error) {
	dsn := cfg.Database.DSN()

	if !cfg.Telemetry.Enabled && !cfg.Telemetry.MetricsEnabled {
		db, err := sql.Open("mysql", dsn)
		return db, nil, err
	}

	opts := []otelsql.Option{otelsql.WithAttributes(semconv.DBSystemMySQL)}
	if cfg.Telemetry.Enabled {
		opts = append(opts, otelsql.WithSpanOptions(otelsql.SpanOptions{DisableErrSkip: true}))
	}
	db, err := otelsql.Open("mysql", dsn, opts...)
	if err != nil {
		return nil, nil, err
	}

	var poolMetrics interface{ Unregister() error }
	if cfg.Telemetry.MetricsEnabled {
		poolMetrics, err = otelsql.RegisterDBStatsMetrics(db, otelsql.WithAttributes(semconv.DBSystemMySQL))
		if err != nil {
			logger.Warn("pool stats metrics not registered", slog.String("error", err.Error()))
		}
	}

	logger.Info("database pool instrumented",
		slog.Bool("metrics", cfg.Telemetry.MetricsEnabled),
		slog.Bool("tracing", cfg.Telemetry.Enabled),
	)
	return db, poolMetrics, nil
}

// preparePool applies the pool limits and blocks until the store answers.
func preparePool(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	if ctx == nil {
		ctx = context.Background()
	}

	pool := cfg.Database.Pool
	db.SetMaxOpenConns(pool.MaxOpen)
	db.SetMaxIdleConns(pool.MaxIdle)
	db.SetConnMaxLifetime(pool.MaxLifetime)

	if err := awaitStore(ctx, cfg, logger, db); err != nil {
		return err
	}

	logger.Info("connected to database",
		slog.String("target", cfg.Database.Redacted()),
		slog.Int("pool_max_open", pool.MaxOpen),
		slog.Int("pool_max_idle", pool.MaxIdle),
		slog.Duration("pool_max_lifetime", pool.MaxLifetime),
	)
	return nil
}

// awaitStore pings until the store answers or the connection timeout runs
// out. The ISPyB instance restarts independently of this service at the
// facilities that run it, so startup rides out a window where it is down.
func awaitStore(ctx context.Context, cfg *config.Config, logger *logging.Logger, db *sql.DB) error {
	timeout := cfg.Database.ConnectionTimeout
	if timeout == 0 {
		// No retry budget: one attempt decides.
		return db.PingContext(ctx)
	}

	var (
		deadline = time.Now().Add(timeout)
		pause    = cfg.Database.ConnectionRetryInterval
	)
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := db.PingContext(ctx)
		switch {
		case err == nil && attempt > 1:
			logger.Info("store reachable after retries", slog.Int("attempts", attempt))
			return nil
		case err == nil:
			return nil
		case time.Now().After(deadline):
			return fmt.Errorf("store unreachable after %v: %w", timeout, err)
		}

		logger.Warn("store not ready, retrying",
			slog.String("error", err.Error()),
			slog.Int("attempt", attempt),
			slog.Duration("retry_in", pause),
		)
		time.Sleep(pause)
		// Back off up to 30s between attempts.
		pause = min(pause*2, 30*time.Second)
	}
}

func initObjectStore(ctx context.Context, cfg *config.Config, logger *logging.Logger) (objectstore.URLSigner, error) {
	if cfg.S3.Bucket == "" {
		logger.Warn("object store bucket not configured, downloadUrl fields will not resolve")
		return nil, nil
	}

	client, err := objectstore.NewClient(ctx, objectstore.Config{
		Bucket:          cfg.S3.Bucket,
		EndpointURL:     cfg.S3.EndpointURL,
		Region:          cfg.S3.Region,
		AccessKeyID:     cfg.S3.AccessKeyID,
		SecretAccessKey: cfg.S3.SecretAccessKey,
		ForcePathStyle:  cfg.S3.ForcePathStyle,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize object store client: %w", err)
	}

	logger.Info("object store configured",
		slog.String("bucket", cfg.S3.Bucket),
		slog.String("endpoint", cfg.S3.EndpointURL),
		slog.Bool("path_style", cfg.S3.ForcePathStyle),
	)

	return objectstore.NewPresigner(client, cfg.S3.Bucket), nil
}

// buildGraphQLHandler assembles the executor and its middleware. Reading
// inside out: batching injects the per-request loader registry, then
// tracing, metrics, and auth wrap it, and analysis runs inside logging so
// the parsed operation can enrich the request logger logging installs.
func buildGraphQLHandler(cfg *config.Config, logger *logging.Logger, gqlSchema *graphql.Schema, gqlMetrics *observability.GraphQLMetrics, res *resolver.Resolver) (http.Handler, error) {
	h := http.Handler(handler.New(&handler.Config{
		Schema:   gqlSchema,
		Pretty:   true,
		GraphiQL: cfg.Server.GraphiQLEnabled,
	}))

	h = middleware.GraphQLBatchingMiddleware(res)(h)
	h = middleware.GraphQLTracingMiddleware()(h)

	if cfg.Telemetry.MetricsEnabled && gqlMetrics != nil {
		h = middleware.GraphQLMetricsMiddleware(gqlMetrics)(h)
		logger.Info("GraphQL metrics middleware enabled")
	}

	if cfg.Auth.Enabled {
		authMiddleware, err := middleware.OIDCAuthMiddleware(middleware.OIDCAuthConfig{
			Enabled:   cfg.Auth.Enabled,
			IssuerURL: cfg.Auth.IssuerURL,
			Audience:  cfg.Auth.Audience,
			ClockSkew: cfg.Auth.ClockSkew,
		}, logger)
		if err != nil {
			return nil, err
		}
		h = authMiddleware(h)
		logger.Info("OIDC auth middleware enabled")
	}

	h = middleware.GraphQLRequestAnalysisMiddleware()(h)
	return middleware.LoggingMiddleware(logger)(h), nil
}

func buildRouter(cfg *config.Config, logger *logging.Logger, db *sql.DB, gqlHandler http.Handler, meterProvider *observability.MeterProvider) *http.ServeMux {
	mux := http.NewServeMux()

	// GraphQL sits at the root, matching existing deployments. The {$}
	// pattern keeps stray paths on the mux's 404 instead of the executor.
	mux.Handle("/{$}", gqlHandler)
	mux.HandleFunc("/health", healthHandler(db, cfg.Server.HealthCheckTimeout))

	if cfg.Telemetry.MetricsEnabled && meterProvider != nil {
		logger.Info("metrics endpoint enabled", slog.String("path", "/metrics"))
		mux.Handle("/metrics", promhttp.Handler())
	}

	return mux
}

func wrapHTTPHandler(cfg *config.Config, logger *logging.Logger, h http.Handler) http.Handler {
	if cfg.Telemetry.Enabled || cfg.Telemetry.MetricsEnabled {
		spanNames := otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			return rootSpanName(r)
		})
		h = otelhttp.NewHandler(h, "http.server", spanNames,
			otelhttp.WithMessageEvents(otelhttp.ReadEvents, otelhttp.WriteEvents))
		logger.Info("HTTP instrumentation enabled")
	}

	if cfg.CORS.Enabled {
		h = middleware.CORSMiddleware(middleware.CORSConfig{
			Enabled:        cfg.CORS.Enabled,
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			AllowedMethods: cfg.CORS.AllowedMethods,
			AllowedHeaders: cfg.CORS.AllowedHeaders,
			// Browser clients can read the request id off responses.
			ExposeHeaders:    []string{middleware.RequestIDHeader},
			AllowCredentials: cfg.CORS.AllowCredentials,
			MaxAge:           cfg.CORS.MaxAge,
		})(h)
	}

	if cfg.RateLimit.Enabled {
		h = middleware.RateLimitMiddleware(middleware.RateLimitConfig{
			Enabled: cfg.RateLimit.Enabled,
			RPS:     cfg.RateLimit.RPS,
			Burst:   cfg.RateLimit.Burst,
		})(h)
	}

	return h
}

func rootSpanName(r *http.Request) string {
	if r == nil {
		return "HTTP /*"
	}
	verb := strings.TrimSpace(r.Method)
	if verb == "" {
		verb = "HTTP"
	}
	return verb + " " + spanRoute(r.URL.Path)
}

// spanRoute collapses unknown paths so span cardinality stays bounded.
func spanRoute(rawPath string) string {
	switch rawPath {
	case "/", "/health", "/metrics":
		return rawPath
	}
	return "/*"
}

func newHTTPServer(cfg *config.Config, logger *logging.Logger, h http.Handler, listenAddr string) (*http.Server, error) {
	server := &http.Server{
		Addr:         listenAddr,
		Handler:      h,
		IdleTimeout:  cfg.Server.IdleTimeout,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}
	if !cfg.Server.TLSEnabled() {
		return server, nil
	}

	manager, err := tlscert.NewManager(tlscert.Config{
		Mode:        tlscert.CertMode(cfg.Server.TLSMode),
		CertFile:    cfg.Server.TLSCertFile,
		KeyFile:     cfg.Server.TLSKeyFile,
		AutoCertDir: cfg.Server.TLSAutoCertDir,
	}, logger.Logger)
	if err != nil {
		return nil, err
	}
	server.TLSConfig, err = manager.GetTLSConfig()
	if err != nil {
		return nil, err
	}

	logger.Info("TLS enabled",
		slog.String("mode", cfg.Server.TLSMode),
		slog.String("cert_source", manager.Description()))

	return server, nil
}

// serve runs the listener on its own goroutine and reports a fatal serve
// error on the returned channel. A clean close sends nothing.
func serve(cfg *config.Config, logger *logging.Logger, server *http.Server, listenAddr string) chan error {
	failures := make(chan error, 1)
	tlsOn := cfg.Server.TLSEnabled()

	go func() {
		scheme := "http"
		if tlsOn {
			scheme = "https"
		}

		attrs := []any{
			slog.String("protocol", scheme),
			slog.String("address", listenAddr),
			slog.String("graphql_endpoint", "/"),
			slog.String("health_endpoint", "/health"),
			slog.Bool("graphiql", cfg.Server.GraphiQLEnabled),
			slog.String("log_level", cfg.Logging.Level),
			slog.String("log_format", cfg.Logging.Format),
		}
		if cfg.Telemetry.MetricsEnabled {
			attrs = append(attrs, slog.String("metrics_endpoint", "/metrics"))
		}
		if cfg.RateLimit.Enabled {
			attrs = append(attrs,
				slog.Float64("rate_limit_rps", cfg.RateLimit.RPS),
				slog.Int("rate_limit_burst", cfg.RateLimit.Burst),
			)
		}
		attrs = append(attrs, slog.Bool("tls_enabled", tlsOn))
		if tlsOn {
			attrs = append(attrs, slog.String("tls_mode", cfg.Server.TLSMode))
		}
		logger.Info("server starting", attrs...)

		var err error
		if tlsOn {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			failures <- fmt.Errorf("server failed: %w", err)
		}
	}()

	return failures
}

// healthHandler reports whether the store answers a ping. The body stays
// generic so internals never leak through an unauthenticated endpoint.
func healthHandler(db *sql.DB, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()

		reqLogger := logging.FromContext(r.Context())
		w.Header().Set("Content-Type", "application/json")

		err := db.PingContext(ctx)
		if err != nil {
			reqLogger.Error("health check failed",
				slog.String("check", "database"),
				slog.String("error", err.Error()),
			)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = io.WriteString(w, `{"status":"unhealthy","database":"failed"}`)
			return
		}

		reqLogger.Debug("health check ok")
		w.WriteHeader(http.StatusOK)
		_, _ = io.WriteString(w, `{"status":"healthy","database":"ok"}`)
	}
}
