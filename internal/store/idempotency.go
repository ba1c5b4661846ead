package store

import (
	"context"
		"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/punchamoorthee/procurefin/internal/models"
)

// GetIdempotencyKey returns the stored record and request hash, or a nil
// record when the key is unused.
func (q *Queries) GetIdempotencyKey(ctx context.Context, key string) (*models.IdempotencyRecord, string, error) {
	var status string
	var storedStatus *int
	var storedBody []byte
	var storedHash string
	err := q.db.QueryRow(ctx,
		"SELECT status, response_status, response_body, request_hash FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&status, &storedStatus, &storedBody, &storedHash)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", fmt.Errorf("idempotency query failed: %w", err)
	}

	rec := &models.IdempotencyRecord{Key: key, Status: status, ResponseBody: storedBody}
	if storedStatus != nil {
		rec.ResponseStatus = *storedStatus
	}
	return rec, storedHash, nil
}

func (q *Queries) ReserveIdempotencyKey(ctx context.Context, key, requestHash string) error {
	_, err := q.db.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')",
		key, requestHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return ErrIdempotencyConflict
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

func (q *Queries) CompleteIdempotencyKey(ctx context.Context, key, contributionID string, status int, body []byte) error {
	_, err := q.db.Exec(ctx,
		"UPDATE idempotency_keys SET status = 'completed', contribution_id = $1, response_status = $2, response_body = $3 WHERE key = $4",
		contributionID, status, body, key,
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}
