package serverapp

import (
	"fmt"
	"log/slog"
	"os"
)

// Start launches the listener goroutine and returns the channel the serve
// loop reports fatal errors on. Calling Start again while serving returns
// the same channel.
func (a *App) Start() (<-chan error, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	switch {
	case !a.ready:
		return nil, fmt.Errorf("Start called before Init")
	case a.serving:
		return a.failures, nil
	}

	a.failures = serve(a.cfg, a.logger, a.server, a.listenAddr)
	a.serving = true
	return a.failures, nil
}

// WaitForStop blocks until a shutdown signal or a server failure, whichever
// comes first, and names which one it was. Nil channels never fire.
func (a *App) WaitForStop(stop <-chan os.Signal, failures <-chan error) (reason string, err error) {
	if failures == nil {
		a.mu.Lock()
		failures = a.failures
		a.mu.Unlock()
	}
	if stop == nil && failures == nil {
		return "", fmt.Errorf("nothing to wait on")
	}

	select {
	case sig := <-stop:
		if a.logger != nil {
			a.logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		}
		return "signal", nil
	case err := <-failures:
		if err == nil {
			err = fmt.Errorf("server stopped unexpectedly")
		}
		return "server_error", err
	}
}
