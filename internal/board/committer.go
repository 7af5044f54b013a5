package board

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/spec-kit/talep-board/internal/repository"
	"github.com/spec-kit/talep-board/pkg/util"
)

// Committer persists a queue order. The fast path is one set_assignee_order
// call; when the function is missing from the database it falls back to one
// positional update per row. The fallback aborts on the first failed row and
// does not reconcile rows already written, so the caller must refetch.
type Committer struct {
	store  repository.TalepStore
	logger *zap.Logger
}

// NewCommitter wires the committer.
func NewCommitter(store repository.TalepStore, logger *zap.Logger) *Committer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Committer{store: store, logger: logger}
}

// Commit writes orderedIDs as positions 1..N for ownerEmail's queue.
func (c *Committer) Commit(ctx context.Context, orderedIDs []int64, ownerEmail string) error {
	if len(orderedIDs) == 0 {
		return nil
	}

	err := c.store.Reorder(ctx, ownerEmail, orderedIDs)
	if err == nil {
		return nil
	}
	if !errors.Is(err, repository.ErrReorderUnsupported) {
		return util.NewPersistenceError(err)
	}

	c.logger.Info("set_assignee_order unavailable, committing row by row",
		zap.String("owner", ownerEmail), zap.Int("rows", len(orderedIDs)))

	for i, id := range orderedIDs {
		if err := c.store.UpdateQueuePosition(ctx, id, ownerEmail, i+1); err != nil {
			c.logger.Error("queue commit aborted",
				zap.Int64("id", id), zap.Int("applied", i), zap.Error(err))
			return util.NewPartialCommitError(i, err)
		}
	}
	return nil
}
