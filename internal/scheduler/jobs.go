package scheduler

import (
	"context"

	"github.com/kinship-crm/kinship/pkg/logger"
)

type orphanSweeper interface {
	SweepOrphans(ctx context.Context) (int, error)
}

type embedder interface {
	EmbedMissing(ctx context.Context, limit int) (int, error)
}

// SweepJob removes auto-created relationships whose partner is gone.
func SweepJob(r orphanSweeper, schedule string) Job {
	return Job{
		Name:     "relationship-sweep",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			n, err := r.SweepOrphans(ctx)
			if n > 0 {
				logger.Info("[Scheduler] removed orphaned relationships", "count", n)
			}
			return err
		},
	}
}

// EmbedJob backfills person embeddings, batch persons per run.
func EmbedJob(e embedder, schedule string, batch int) Job {
	return Job{
		Name:     "embedding-backfill",
		Schedule: schedule,
		Run: func(ctx context.Context) error {
			_, err := e.EmbedMissing(ctx, batch)
			return err
		},
	}
}
