package db

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// ClaimedQueueItem is the row handed to a worker once it holds the claim.
type ClaimedQueueItem struct {
	ID         int64
	QueueKind  string
	ArticleID  int64
	Attempts   int
	ClaimToken string
}

// ClaimNextQueueItem implements the claim protocol of §5: it locks one
// claimable row (claim_token IS NULL OR claim_expires_at < now) ordered by
// enqueued_at with a random tie-break under FOR UPDATE SKIP LOCKED, stamps a fresh claim token and
// lease, and returns it inside the same transaction so the caller can
// commit once the work (or the failure bookkeeping) is done. Grounded on
// claimOnePendingDocumentTx in janitrai-scoop/scoop/internal/pipeline/service.go
// and the raw_arrival claim in janitrai-scoop/news-pipeline/internal/ingest/service.go.
func ClaimNextQueueItem(ctx context.Context, tx Tx, queueKind string, leaseDuration time.Duration, now time.Time) (ClaimedQueueItem, bool, error) {
	const q = `
SELECT id, queue_kind, article_id, attempts
FROM queue_items
WHERE queue_kind = $1
  AND status = 'PENDING'
  AND (claim_token IS NULL OR claim_expires_at < $2)
ORDER BY enqueued_at, random()
LIMIT 1
FOR UPDATE SKIP LOCKED
`
	var item ClaimedQueueItem
	item.QueueKind = queueKind
	err := tx.QueryRow(ctx, q, queueKind, now).Scan(&item.ID, &item.QueueKind, &item.ArticleID, &item.Attempts)
	if err != nil {
		if IsNoRows(err) {
			return ClaimedQueueItem{}, false, nil
		}
		return ClaimedQueueItem{}, false, fmt.Errorf("claim next %s queue item: %w", queueKind, err)
	}

	token := uuid.NewString()
	expiresAt := now.Add(leaseDuration)
	const upd = `
UPDATE queue_items
SET claim_token = $1, claim_expires_at = $2, attempts = attempts + 1
WHERE id = $3
`
	if _, err := tx.Exec(ctx, upd, token, expiresAt, item.ID); err != nil {
		return ClaimedQueueItem{}, false, fmt.Errorf("stamp claim on queue item %d: %w", item.ID, err)
	}

	item.Attempts++
	item.ClaimToken = token
	return item, true, nil
}

// ReleaseQueueItemDone marks a claimed item finished and removes the claim.
func ReleaseQueueItemDone(ctx context.Context, tx Tx, itemID int64) error {
	const q = `UPDATE queue_items SET status = 'DONE', claim_token = NULL, claim_expires_at = NULL WHERE id = $1`
	if _, err := tx.Exec(ctx, q, itemID); err != nil {
		return fmt.Errorf("mark queue item %d done: %w", itemID, err)
	}
	return nil
}

// ReleaseQueueItemRetry clears the claim so the item becomes claimable
// again, or dead-letters it once maxAttempts is reached (spec §5/§7).
func ReleaseQueueItemRetry(ctx context.Context, tx Tx, itemID int64, attempts, maxAttempts int) error {
	if attempts >= maxAttempts {
		const q = `UPDATE queue_items SET status = 'DEAD_LETTERED', claim_token = NULL, claim_expires_at = NULL WHERE id = $1`
		if _, err := tx.Exec(ctx, q, itemID); err != nil {
			return fmt.Errorf("dead-letter queue item %d: %w", itemID, err)
		}
		return nil
	}
	const q = `UPDATE queue_items SET claim_token = NULL, claim_expires_at = NULL WHERE id = $1`
	if _, err := tx.Exec(ctx, q, itemID); err != nil {
		return fmt.Errorf("release queue item %d for retry: %w", itemID, err)
	}
	return nil
}

// EnqueueArticle inserts a queue_items row for an article (e.g. RSS ingest
// or promotion from decision to analysis queues).
func EnqueueArticle(ctx context.Context, tx Tx, queueKind string, articleID int64, now time.Time) error {
	const q = `INSERT INTO queue_items (queue_kind, article_id, enqueued_at, status, attempts) VALUES ($1, $2, $3, 'PENDING', 0)`
	if _, err := tx.Exec(ctx, q, queueKind, articleID, now); err != nil {
		return fmt.Errorf("enqueue article %d onto %s queue: %w", articleID, queueKind, err)
	}
	return nil
}

// CountPendingQueueItems reports the depth of a queue kind, used by the
// Analysis Worker's idle/fallback role-switching (§4.I).
func CountPendingQueueItems(ctx context.Context, q queryer, queueKind string) (int, error) {
	const query = `SELECT count(*) FROM queue_items WHERE queue_kind = $1 AND status = 'PENDING'`
	var n int
	if err := q.QueryRow(ctx, query, queueKind).Scan(&n); err != nil {
		return 0, fmt.Errorf("count pending %s queue items: %w", queueKind, err)
	}
	return n, nil
}

// queryer is the common subset of Pool and Tx used by read-only helpers
// that don't care whether they run inside a transaction.
type queryer interface {
	QueryRow(ctx context.Context, query string, args ...any) *Row
	Query(ctx context.Context, query string, args ...any) (*Rows, error)
}
