package api

import (
	"context"
	"log/slog"
	"time"
)

// HTTPServerConfig configures the secret management HTTP server and its
// metrics listener.
type HTTPServerConfig struct {
	ListenAddr  string
	MetricsAddr string // empty disables the metrics listener
	EnablePprof bool

	Log *slog.Logger

	// Timeouts of the public listener.
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// On shutdown /readyz fails for DrainDuration before open requests get
	// GracefulShutdownDuration to finish.
	DrainDuration            time.Duration
	GracefulShutdownDuration time.Duration

	// ReadinessCheck reports dependencies /readyz must see healthy, such as
	// the secret database. Optional.
	ReadinessCheck func(ctx context.Context) error
}
