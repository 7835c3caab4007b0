package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/logging"
)

// Pruneable is satisfied by *Manager.
type Pruneable interface {
	Prune(ctx context.Context) (int64, error)
}

// Pruner sweeps expired tokens on a fixed interval.
type Pruner struct {
	target   Pruneable
	interval time.Duration
	logger   logging.Logger
}

func NewPruner(target Pruneable, interval time.Duration, logger logging.Logger) *Pruner {
	return &Pruner{target: target, interval: interval, logger: logger.With("module", "pruner")}
}

// Run blocks until ctx is done. A non-positive interval returns immediately.
func (p *Pruner) Run(ctx context.Context) {
	if p.interval <= 0 {
		p.logger.Info(ctx, "pruner disabled")
		return
	}

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	p.logger.Info(ctx, "pruner started", "interval", p.interval)

	for {
		select {
		case <-ticker.C:
			if _, err := p.target.Prune(ctx); err != nil {
				p.logger.Error(ctx, "prune failed", "error", err)
			}
		case <-ctx.Done():
			p.logger.Info(ctx, "pruner stopped")
			return
		}
	}
}
