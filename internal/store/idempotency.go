package store

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/campushq/campusledger/internal/domain"
)

// checkIdempotency looks the key up inside the workflow transaction. A hit
// with a matching request hash returns the stored response for replay; a hit
// with a different hash is a hard error.
func checkIdempotency(ctx context.Context, tx pgx.Tx, key, reqHash string) (*domain.StoredResponse, error) {
	var storedStatus int
	var storedBody json.RawMessage
	var storedHash string
	err := tx.QueryRow(ctx,
		"SELECT response_status, response_body, request_hash FROM idempotency_keys WHERE key = $1",
		key,
	).Scan(&storedStatus, &storedBody, &storedHash)

	if err == nil {
		if storedHash != reqHash {
			return nil, domain.ErrIdempotencyMismatch
		}
		return &domain.StoredResponse{
			Key:            key,
			Status:         "completed",
			ResponseBody:   storedBody,
			ResponseStatus: storedStatus,
		}, nil
	}
	if err != pgx.ErrNoRows {
		return nil, fmt.Errorf("idempotency query failed: %w", err)
	}
	return nil, nil
}

// reserveIdempotency claims the key. A concurrent in-flight request holding
// the same key surfaces as ErrIdempotencyConflict.
func reserveIdempotency(ctx context.Context, tx pgx.Tx, key, reqHash string) error {
	_, err := tx.Exec(ctx,
		"INSERT INTO idempotency_keys (key, request_hash, status) VALUES ($1, $2, 'in_progress')",
		key, reqHash,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrIdempotencyConflict
		}
		return fmt.Errorf("key reservation failed: %w", err)
	}
	return nil
}

// finalizeIdempotency records the response so replays can serve it verbatim.
func finalizeIdempotency(ctx context.Context, tx pgx.Tx, key string, status int, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	_, err = tx.Exec(ctx,
		"UPDATE idempotency_keys SET status = 'completed', response_status = $1, response_body = $2 WHERE key = $3",
		status, body, key,
	)
	if err != nil {
		return fmt.Errorf("idempotency update failed: %w", err)
	}
	return nil
}
