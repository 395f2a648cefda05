// Package sink defines the durable output store for harvested comments
// and the per-post checkpoints that make harvesting resumable.
package sink

import (
	"context"

	"commentharvest/pkg/models"
)

// Sink persists comment records and checkpoints.
//
// Append must be durable before it returns. Callers write a page's
// records with Append and only then advance the post with Checkpoint, so
// a crash can leave records without a checkpoint but never the reverse.
// Implementations serialise concurrent callers.
type Sink interface {
	Append(ctx context.Context, records []models.CommentRecord) error
	Checkpoint(ctx context.Context, cp models.Checkpoint) error
	LoadCheckpoint(ctx context.Context, platform models.Platform, postID string) (models.Checkpoint, bool, error)
	EmittedIDs(ctx context.Context, platform models.Platform, postID string) ([]string, error)
	Close() error
}
