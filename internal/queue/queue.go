package queue

import (
	"context"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/zeebo/blake3"

	"github.com/soulxhy/tubewatch/internal/feed"
)

// Queue is the sqlite-backed FIFO of accepted notifications.
type Queue struct {
	db        *sql.DB
	dedupeTTL time.Duration
}

func New(db *sql.DB, dedupeTTL time.Duration) *Queue {
	if dedupeTTL <= 0 {
		dedupeTTL = 24 * time.Hour
	}
	return &Queue{db: db, dedupeTTL: dedupeTTL}
}

// DedupeKey derives a stable identity for a notification from the fields the
// hub cannot change between redeliveries of the same publish event.
func DedupeKey(videoID, publishedAt string) string {
	h := blake3.New()
	_, _ = h.Write([]byte(videoID))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(publishedAt))
	return hex.EncodeToString(h.Sum(nil))
}

// Enqueue records an accepted event for dispatch. Redeliveries of an event
// that is already pending, or that completed within the dedupe TTL, return
// ErrDuplicateDelivery.
func (q *Queue) Enqueue(ctx context.Context, ev feed.Event) (string, error) {
	if ev.VideoID == "" {
		return "", fmt.Errorf("event video_id is empty")
	}

	key := DedupeKey(ev.VideoID, ev.PublishedAt)
	dup, err := q.seen(ctx, key)
	if err != nil {
		return "", err
	}
	if dup {
		return "", ErrDuplicateDelivery
	}

	payload, err := json.Marshal(ev)
	if err != nil {
		return "", fmt.Errorf("marshal event: %w", err)
	}

	id := uuid.NewString()
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = q.db.ExecContext(ctx, `
INSERT INTO delivery_queue(id, video_id, event, dedupe_key, status, created_at)
VALUES(?, ?, ?, ?, ?, ?);
`, id, ev.VideoID, string(payload), key, StatusQueued, now)
	if err != nil {
		return "", fmt.Errorf("enqueue delivery: %w", err)
	}
	return id, nil
}

// seen reports whether key is pending in the queue or completed recently
// enough to still count as a duplicate.
func (q *Queue) seen(ctx context.Context, key string) (bool, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM delivery_queue WHERE dedupe_key = ? AND status IN (?, ?);
`, key, StatusQueued, StatusRunning).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dedupe lookup (queue): %w", err)
	}
	if n > 0 {
		return true, nil
	}

	cutoff := time.Now().UTC().Add(-q.dedupeTTL).Format(time.RFC3339Nano)
	err = q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM delivery_log WHERE dedupe_key = ? AND completed_at >= ?;
`, key, cutoff).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("dedupe lookup (log): %w", err)
	}
	return n > 0, nil
}

// Dequeue claims the oldest queued delivery and marks it running. Returns
// (nil, nil) if the queue is empty.
func (q *Queue) Dequeue(ctx context.Context) (*Delivery, error) {
	nowS := time.Now().UTC().Format(time.RFC3339Nano)

	row := q.db.QueryRowContext(ctx, `
WITH next AS (
  SELECT id
  FROM delivery_queue
  WHERE status = ?
  ORDER BY created_at ASC, rowid ASC
  LIMIT 1
)
UPDATE delivery_queue
SET status = ?, started_at = ?
WHERE id IN (SELECT id FROM next)
RETURNING id, event, dedupe_key, status, created_at, started_at, completed_at, last_error;
`, StatusQueued, StatusRunning, nowS)

	var (
		d            Delivery
		payload      string
		statusS      string
		createdAtS   string
		startedAtS   sql.NullString
		completedAtS sql.NullString
		lastError    sql.NullString
	)
	err := row.Scan(&d.ID, &payload, &d.DedupeKey, &statusS, &createdAtS, &startedAtS, &completedAtS, &lastError)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("dequeue delivery: %w", err)
	}

	d.Status = Status(statusS)
	if err := json.Unmarshal([]byte(payload), &d.Event); err != nil {
		return nil, fmt.Errorf("unmarshal delivery %s event: %w", d.ID, err)
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
		d.CreatedAt = t
	}
	if startedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, startedAtS.String); err == nil {
			d.StartedAt = &t
		}
	}
	if completedAtS.Valid {
		if t, err := time.Parse(time.RFC3339Nano, completedAtS.String); err == nil {
			d.CompletedAt = &t
		}
	}
	if lastError.Valid {
		d.LastError = &lastError.String
	}
	return &d, nil
}

// Complete marks a delivery terminal and appends a row to delivery_log.
// outputPath records the downloaded artifact location when the download
// stage succeeded, regardless of what happened afterwards.
func (q *Queue) Complete(ctx context.Context, deliveryID string, status Status, lastError *string, outputPath string) error {
	if deliveryID == "" {
		return fmt.Errorf("deliveryID is empty")
	}
	if status != StatusSucceeded && status != StatusFailed {
		return fmt.Errorf("invalid terminal status: %q", status)
	}

	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		videoID   string
		payload   string
		dedupeKey string
		createdAt string
	)
	if err := tx.QueryRowContext(ctx, `
SELECT video_id, event, dedupe_key, created_at
FROM delivery_queue
WHERE id = ?;
`, deliveryID).Scan(&videoID, &payload, &dedupeKey, &createdAt); err != nil {
		return fmt.Errorf("load delivery for completion: %w", err)
	}

	var ev feed.Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		return fmt.Errorf("unmarshal delivery %s event: %w", deliveryID, err)
	}

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)

	_, err = tx.ExecContext(ctx, `
UPDATE delivery_queue
SET status = ?, completed_at = ?, last_error = ?
WHERE id = ?;
`, status, completedAt, lastError, deliveryID)
	if err != nil {
		return fmt.Errorf("update delivery completion: %w", err)
	}

	var outputVal any
	if outputPath != "" {
		outputVal = outputPath
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO delivery_log(id, video_id, title, dedupe_key, status, output_path, created_at, completed_at, last_error)
VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?);
`, deliveryID, videoID, ev.Title, dedupeKey, status, outputVal, createdAt, completedAt, lastError)
	if err != nil {
		return fmt.Errorf("insert delivery_log: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

// Depth returns the number of deliveries still waiting in the queue.
func (q *Queue) Depth(ctx context.Context) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx, `
SELECT COUNT(*) FROM delivery_queue WHERE status = ?;
`, StatusQueued).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("queue depth: %w", err)
	}
	return n, nil
}

// RecentLog returns up to limit terminal deliveries, newest first.
func (q *Queue) RecentLog(ctx context.Context, limit int) ([]LogEntry, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := q.db.QueryContext(ctx, `
SELECT id, video_id, title, status, output_path, created_at, completed_at, last_error
FROM delivery_log
ORDER BY completed_at DESC
LIMIT ?;
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query delivery_log: %w", err)
	}
	defer rows.Close()

	var out []LogEntry
	for rows.Next() {
		var (
			e            LogEntry
			statusS      string
			outputPath   sql.NullString
			createdAtS   string
			completedAtS string
			lastError    sql.NullString
		)
		if err := rows.Scan(&e.ID, &e.VideoID, &e.Title, &statusS, &outputPath, &createdAtS, &completedAtS, &lastError); err != nil {
			return nil, fmt.Errorf("scan delivery_log: %w", err)
		}
		e.Status = Status(statusS)
		if outputPath.Valid {
			e.OutputPath = &outputPath.String
		}
		if t, err := time.Parse(time.RFC3339Nano, createdAtS); err == nil {
			e.CreatedAt = t
		}
		if t, err := time.Parse(time.RFC3339Nano, completedAtS); err == nil {
			e.CompletedAt = t
		}
		if lastError.Valid {
			e.LastError = &lastError.String
		}
		out = append(out, e)
	}
	return out, rows.Err()
}
