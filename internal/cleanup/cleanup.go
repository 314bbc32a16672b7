// Package cleanup implements spec.md §4.8: a periodic loop that expires
// terminal runs, their logs and their artifacts by retention policy.
package cleanup

import (
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/GuilhermeBatistaenesa/enesa-automation-hub/internal/domain"
)

// Store is the narrow persistence surface Cleanup needs.
type Store interface {
	DeleteTerminalOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
	DeleteArtifactsOlderThan(ctx context.Context, cutoff any) ([]domain.Artifact, error)
}

type Config struct {
	Interval              time.Duration
	RunRetentionDays      int
	LogRetentionDays      int
	ArtifactRetentionDays int
	Workers               int
}

type Cleaner struct {
	cfg   Config
	store Store
	log   *slog.Logger
}

func New(cfg Config, store Store, log *slog.Logger) *Cleaner {
	return &Cleaner{cfg: cfg, store: store, log: log}
}

// Run ticks every cfg.Interval until ctx is done, running one sweep per
// tick. RunLogs are deleted as a side effect of DeleteTerminalOlderThan's
// foreign key cascade (spec.md §4.8 "Deletions cascade RunLogs and
// Artifacts"). The sweep does not read LogRetentionDays: log lines are
// removed only together with their run, never on their own schedule.
func (c *Cleaner) Run(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Interval)
	defer ticker.Stop()

	c.sweep(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

func (c *Cleaner) sweep(ctx context.Context) {
	p := newPool(ctx, c.cfg.Workers)
	p.start()

	p.submit(func(ctx context.Context) {
		cutoff := time.Now().AddDate(0, 0, -c.cfg.RunRetentionDays)
		n, err := c.store.DeleteTerminalOlderThan(ctx, cutoff)
		if err != nil {
			c.log.Error("cleanup: delete terminal runs failed", "err", err)
			return
		}
		if n > 0 {
			c.log.Info("cleanup: deleted terminal runs", "count", n, "cutoff", cutoff)
		}
	})

	p.submit(func(ctx context.Context) {
		cutoff := time.Now().AddDate(0, 0, -c.cfg.ArtifactRetentionDays)
		deleted, err := c.store.DeleteArtifactsOlderThan(ctx, cutoff)
		if err != nil {
			c.log.Error("cleanup: delete artifact rows failed", "err", err)
			return
		}
		for _, a := range deleted {
			if err := os.Remove(a.Path); err != nil && !os.IsNotExist(err) {
				c.log.Warn("cleanup: could not remove artifact file", "path", a.Path, "err", err)
			}
		}
		if len(deleted) > 0 {
			c.log.Info("cleanup: deleted artifacts", "count", len(deleted))
		}
	})

	p.stop()
}
