package webhook

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"

	"garagecall_backend/platform/logger"
)

const dedupeTTL = 24 * time.Hour

// Deduper short-circuits redelivered webhook events by event id. It is an
// optimization on top of the conditional writes downstream, not the
// correctness mechanism: a Redis miss only costs a redundant no-op update.
type Deduper struct {
	client *redis.Client
	log    *logger.Logger
}

// NewDeduper creates a Deduper. A nil client disables deduplication.
func NewDeduper(client *redis.Client, log *logger.Logger) *Deduper {
	return &Deduper{client: client, log: log}
}

// Seen reports whether the event id was already processed. On any Redis
// error the event is treated as unseen.
func (d *Deduper) Seen(ctx context.Context, eventID string) bool {
	if d == nil || d.client == nil || eventID == "" {
		return false
	}

	n, err := d.client.Exists(ctx, "webhook:event:"+eventID).Result()
	if err != nil {
		d.log.Warn("webhook dedupe check failed, processing anyway", "error", err)
		return false
	}
	return n > 0
}

// Mark records the event id once processing succeeded. Marking only after
// success keeps a 5xx ack honest: the platform's redelivery of a failed
// event must reach the processor again, not short-circuit as a duplicate.
func (d *Deduper) Mark(ctx context.Context, eventID string) {
	if d == nil || d.client == nil || eventID == "" {
		return
	}

	if err := d.client.Set(ctx, "webhook:event:"+eventID, 1, dedupeTTL).Err(); err != nil {
		d.log.Warn("webhook dedupe mark failed", "event_id", eventID, "error", err)
	}
}
