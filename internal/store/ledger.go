package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/edgeandnode/graph-ixi/pkg/poi"
)

// ErrAmbiguousIdentity means the ledger holds more than one record for the
// same (key, identity). The unique constraint makes this impossible unless
// the schema has been tampered with; callers stop the cycle rather than risk
// double-notifying.
var ErrAmbiguousIdentity = errors.New("ambiguous notification identity match")

// NotificationLedger owns poi_notifications: which exact disagreement state
// has already been alerted for each key. The identity is persisted as a
// sorted BYTEA[] so matching is a pure set-equality test.
type NotificationLedger struct {
	DB *pgxpool.Pool
}

func NewNotificationLedger(db *pgxpool.Pool) *NotificationLedger {
	return &NotificationLedger{DB: db}
}

// HasNotified reports whether an alert for exactly this identity has already
// been delivered for key.
func (l *NotificationLedger) HasNotified(ctx context.Context, key poi.Key, identity poi.Identity) (bool, error) {
	var n int
	err := l.DB.QueryRow(ctx, `
SELECT count(*)
FROM poi_notifications
WHERE deployment_id = $1 AND block_number = $2 AND poi_set = $3::bytea[]
`, key.Deployment, key.Block, [][]byte(identity)).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query notification ledger for %s: %w", key, err)
	}
	if n > 1 {
		return false, fmt.Errorf("ledger for %s: %w", key, ErrAmbiguousIdentity)
	}
	return n == 1, nil
}

// RecordNotified commits that message was delivered for (key, identity).
// A single insert: either the record is fully visible or absent. Re-recording
// the same identity is a no-op.
func (l *NotificationLedger) RecordNotified(ctx context.Context, key poi.Key, identity poi.Identity, message string) error {
	_, err := l.DB.Exec(ctx, `
INSERT INTO poi_notifications (deployment_id, block_number, poi_set, message, sent_at)
VALUES ($1, $2, $3::bytea[], $4, now())
ON CONFLICT (deployment_id, block_number, poi_set) DO NOTHING
`, key.Deployment, key.Block, [][]byte(identity), message)
	if err != nil {
		return fmt.Errorf("record notification for %s: %w", key, err)
	}
	return nil
}

// PurgeOlderThan deletes ledger records older than age and returns the count.
// Deletion is unconditional on age: a still-unresolved disagreement whose
// record ages out will be re-alerted on the next cycle.
func (l *NotificationLedger) PurgeOlderThan(ctx context.Context, age time.Duration) (int64, error) {
	cutoff := time.Now().Add(-age)
	tag, err := l.DB.Exec(ctx, `DELETE FROM poi_notifications WHERE sent_at < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("purge notification ledger: %w", err)
	}
	return tag.RowsAffected(), nil
}
