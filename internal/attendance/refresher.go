package attendance

import (
	"context"

	"github.com/rs/zerolog"

	"faceattend/internal/queue"
)

// PhotoWriter writes reference photos.
type PhotoWriter interface {
	Write(employeeID string, image []byte) (string, error)
}

// EmbeddingMarker invalidates a stored embedding.
type EmbeddingMarker interface {
	ClearEmbedding(ctx context.Context, employeeID string) error
}

// EmbedRefreshType labels queue messages that ask the worker to recompute an
// employee's embedding from the current reference photo.
const EmbedRefreshType = "embed_refresh"

// PhotoRefresher overwrites the matched employee's reference photo with the
// scan snapshot, marks the stored embedding stale, and hands the recompute to
// the worker. Enabled by config; the trade-off (a false match slowly drifting
// someone else's reference) is why it is opt-in.
type PhotoRefresher struct {
	Photos    PhotoWriter
	Employees EmbeddingMarker
	Queue     queue.Queue
	Log       zerolog.Logger
}

// Refresh performs the photo swap and enqueues the embedding recompute.
func (p *PhotoRefresher) Refresh(ctx context.Context, employeeID string, image []byte) error {
	if _, err := p.Photos.Write(employeeID, image); err != nil {
		return err
	}
	if err := p.Employees.ClearEmbedding(ctx, employeeID); err != nil {
		return err
	}
	if err := p.Queue.Publish(ctx, queue.Message{Type: EmbedRefreshType, Body: []byte(employeeID)}); err != nil {
		// The photo is already swapped; the periodic reconcile pass will
		// pick up the NULL embedding if the queue is down.
		p.Log.Warn().Err(err).Str("employee_id", employeeID).Msg("embed refresh enqueue failed")
	}
	return nil
}
