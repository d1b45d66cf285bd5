package serviceutil

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
)

// SignalContext returns a context that is cancelled on Ctrl+C or SIGTERM.
func SignalContext() context.Context {
	ctx, cancel := context.WithCancel(context.Background())

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigs
		slog.Info("received signal, shutting down")
		cancel()
	}()

	return ctx
}

// ExitCode exits with the given status after logging the error, status 2 is
// used for configuration errors.
func ExitCode(code int, message string, err error) {
	slog.Error(message, "err", err.Error())
	os.Exit(code)
}
