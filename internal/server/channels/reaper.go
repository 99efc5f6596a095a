package channels

import (
	"context"
	"time"

	"github.com/casanet/remote-server/internal/logging"
)

// Reaper periodically times out requests that local servers never answered.
type Reaper struct {
	interval   time.Duration
	correlator *Correlator
	logger     logging.Logger
}

func NewReaper(interval time.Duration, c *Correlator, logger logging.Logger) *Reaper {
	return &Reaper{interval: interval, correlator: c, logger: logger.With("module", "reaper")}
}

// Start sweeps every interval until ctx is done.
func (r *Reaper) Start(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.logger.Info(ctx, "reaper started", "interval", r.interval.String())

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.reap(ctx)
		}
	}
}

func (r *Reaper) reap(ctx context.Context) {
	httpExpired, logsExpired := r.correlator.Sweep()
	if httpExpired > 0 || logsExpired > 0 {
		r.logger.Warn(ctx, "timed out local server requests", "http", httpExpired, "logs", logsExpired)
	}
}
