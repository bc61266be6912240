package serverapp

import (
	"context"
	"log/slog"

	"ispyb-graphql/internal/logging"
)

// A closer releases one acquired resource. Init appends closers as resources
// come up; releaseAll walks the slice newest first so nothing goes down
// before its dependents.
type closer struct {
	name string
	stop func(context.Context) error
}

func releaseAll(ctx context.Context, closers []closer, logger *logging.Logger) {
	for i := len(closers) - 1; i >= 0; i-- {
		step := closers[i]
		if logger != nil {
			logger.Info("stopping " + step.name)
		}
		err := step.stop(ctx)
		if err != nil && logger != nil {
			logger.Warn("shutdown step failed",
				slog.String("component", step.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Shutdown releases everything Init acquired. Repeated calls are no-ops,
// and a nil ctx falls back to Background.
func (a *App) Shutdown(ctx context.Context) error {
	a.stopOnce.Do(func() {
		if ctx == nil {
			ctx = context.Background()
		}

		a.mu.Lock()
		closers := a.closers
		a.serving = false
		a.mu.Unlock()

		releaseAll(ctx, closers, a.logger)
	})

	return nil
}
