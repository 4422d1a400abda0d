package assist

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync/atomic"

	"github.com/kinship-crm/kinship/pkg/loader"
	"github.com/kinship-crm/kinship/pkg/logger"
	"github.com/kinship-crm/kinship/pkg/store"

	"golang.org/x/sync/errgroup"
)

// EmbedPerson recomputes the embedding of one person from its name, tags,
// jobs, addresses and notes.
func (s *Service) EmbedPerson(ctx context.Context, id int64) error {
	client, err := s.model()
	if err != nil {
		return err
	}
	cat, err := s.loadCatalog(ctx)
	if err != nil {
		return err
	}
	p, ok := cat.byID[id]
	if !ok {
		return fmt.Errorf("person %d: %w", id, store.ErrNotFound)
	}

	emb, err := client.GenerateEmbedding(ctx, []byte(cat.document(p)))
	if err != nil {
		return fmt.Errorf("embed person %d: %w", id, err)
	}
	return s.store.SetPersonEmbedding(ctx, id, emb)
}

// embedBatch is how many persons EmbedMissing embeds per catalog load.
const embedBatch = 16

// EmbedMissing embeds up to limit persons that have no embedding yet and
// returns how many succeeded. Persons are embedded in batches; the catalog
// is reloaded per batch and a batch's requests run concurrently. A person
// deleted in the meantime is skipped.
func (s *Service) EmbedMissing(ctx context.Context, limit int) (int, error) {
	ids, err := s.store.PersonsMissingEmbedding(ctx, limit)
	if err != nil || len(ids) == 0 {
		return 0, err
	}
	client, err := s.model()
	if err != nil {
		return 0, err
	}

	var done atomic.Int64
	err = store.ChunkRange(len(ids), embedBatch, func(start, end int) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		cat, err := s.loadCatalog(ctx)
		if err != nil {
			return err
		}
		g, gctx := errgroup.WithContext(ctx)
		for _, id := range ids[start:end] {
			p, ok := cat.byID[id]
			if !ok {
				continue
			}
			g.Go(func() error {
				emb, err := client.GenerateEmbedding(gctx, []byte(cat.document(p)))
				if err != nil {
					return fmt.Errorf("embed person %d: %w", id, err)
				}
				if err := s.store.SetPersonEmbedding(gctx, id, emb); err != nil {
					if errors.Is(err, store.ErrNotFound) {
						return nil
					}
					return err
				}
				done.Add(1)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}
		logger.Debug("[Assist] embedded batch", "from", start, "to", end, "total", len(ids))
		return nil
	})
	n := int(done.Load())
	if n > 0 {
		logger.Info("[Assist] embedded persons", "count", n)
	}
	return n, err
}

// DescribePhoto asks the vision model for a description of a stored photo
// and saves it. Photos that already have a description are left alone.
func (s *Service) DescribePhoto(ctx context.Context, id int64) error {
	if s.photos == nil {
		return ErrUnavailable
	}
	photo, err := s.store.GetPhoto(ctx, id)
	if err != nil {
		return err
	}
	if photo.AIDescription != "" {
		return nil
	}

	desc, err := s.photos.Describe(ctx, loader.Source{
		ID:   strconv.FormatInt(photo.ID, 10),
		Path: photo.FileKey,
	})
	if err != nil {
		return fmt.Errorf("describe photo %d: %w", id, err)
	}

	photo.AIDescription = desc
	_, err = s.store.UpdatePhoto(ctx, photo)
	return err
}
