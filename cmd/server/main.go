package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"ispyb-graphql/internal/config"
	"ispyb-graphql/internal/logging"
	"ispyb-graphql/internal/schema"
	"ispyb-graphql/internal/serverapp"

	"github.com/spf13/pflag"
)

var (
	// Set at build time via -ldflags "-X main.Version=...".
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	args := os.Args[1:]
	if len(args) > 0 && args[0] == "schema" {
		return runSchema(args[1:])
	}
	if len(args) > 0 && args[0] != "serve" && !strings.HasPrefix(args[0], "-") {
		fmt.Fprintf(os.Stderr, "unknown command %q (expected serve or schema)\n", args[0])
		return 2
	}

	if err := serve(); err != nil {
		slog.Error("server error", slog.String("error", err.Error()))
		return 1
	}
	return 0
}

// runSchema writes the federation SDL and exits. It never touches
// configuration, the database, or the network, so supergraph composition
// checks can run it in CI without a facility database.
func runSchema(args []string) int {
	fs := pflag.NewFlagSet("schema", pflag.ContinueOnError)
	path := fs.String("path", "", "File to write the federation SDL to (default: stdout)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if err := writeSchema(*path); err != nil {
		fmt.Fprintln(os.Stderr, "schema export failed:", err)
		return 1
	}
	return 0
}

func writeSchema(path string) error {
	if path == "" {
		return schema.WriteSDL(os.Stdout)
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := schema.WriteSDL(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func serve() error {
	pflag.Bool("version", false, "Print the version and exit")

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if showVersion, _ := pflag.CommandLine.GetBool("version"); showVersion {
		fmt.Printf("ispyb-graphql %s (%s, %s)\n", Version, Commit, Date)
		return nil
	}

	if cfg.Telemetry.ServiceVersion == "" {
		cfg.Telemetry.ServiceVersion = Version
	}
	if err := logValidation(cfg.Validate()); err != nil {
		return err
	}

	app, logger, err := newApp(cfg)
	if err != nil {
		return err
	}
	if err := app.Init(context.Background()); err != nil {
		return err
	}
	return runUntilSignal(app, cfg, logger)
}

// newApp wires the structured logger and the server application together.
// When app construction fails the log provider is torn down again so
// nothing leaks from a half-finished startup.
func newApp(cfg *config.Config) (*serverapp.App, *logging.Logger, error) {
	logger, provider, err := serverapp.InitLogger(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logging: %w", err)
	}

	app, err := serverapp.New(cfg, logger)
	if err != nil {
		if provider != nil {
			_ = provider.Shutdown(context.Background(), logger.Logger)
		}
		return nil, nil, err
	}
	app.AttachLoggerProvider(provider)
	return app, logger, nil
}

// logValidation reports configuration findings through the bootstrap logger.
// Warnings are informational; any error fails startup.
func logValidation(result *config.ValidationResult) error {
	attrs := func(field, message, hint string) []any {
		return []any{
			slog.String("field", field),
			slog.String("message", message),
			slog.String("hint", hint),
		}
	}
	for _, warn := range result.Warnings {
		slog.Warn("configuration warning", attrs(warn.Field, warn.Message, warn.Hint)...)
	}
	if !result.HasErrors() {
		return nil
	}
	for _, fail := range result.Errors {
		slog.Error("configuration error", attrs(fail.Field, fail.Message, fail.Hint)...)
	}
	return fmt.Errorf("configuration validation failed")
}

// runUntilSignal serves until SIGINT or SIGTERM arrives or a listener fails,
// then drains in-flight work within the configured shutdown timeout.
func runUntilSignal(app *serverapp.App, cfg *config.Config, logger *logging.Logger) error {
	timedShutdown := func() error {
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return app.Shutdown(ctx)
	}

	serverErrors, err := app.Start()
	if err != nil {
		_ = timedShutdown()
		return err
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	_, waitErr := app.WaitForStop(sigs, serverErrors)

	logger.Info("shutting down server gracefully")
	shutdownErr := timedShutdown()
	switch {
	case waitErr != nil:
		return waitErr
	case shutdownErr != nil:
		return shutdownErr
	}

	logger.Info("shutdown complete")
	return nil
}
