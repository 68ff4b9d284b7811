package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"

	"stockledger/internal/core/apperror"
)

const idempotencyTable = "sys_idempotency"

// A pending claim untouched for this long belongs to a crashed request.
const staleClaimAfter = time.Minute

// IdempotencyStatus is the lifecycle state of a key.
type IdempotencyStatus string

const (
	IdempotencyStatusPending IdempotencyStatus = "pending"
	IdempotencyStatusSuccess IdempotencyStatus = "success"
	IdempotencyStatusFailed  IdempotencyStatus = "failed"
)

// IdempotencyRecord is one row of sys_idempotency.
type IdempotencyRecord struct {
	Key         string            `db:"idempotency_key"`
	UserID      string            `db:"user_id"`
	Operation   string            `db:"operation"`
	Status      IdempotencyStatus `db:"status"`
	RequestHash string            `db:"request_hash"`
	Response    []byte            `db:"response"`
	StatusCode  int               `db:"response_status"`
	ContentType string            `db:"response_content_type"`
	CreatedAt   time.Time         `db:"created_at"`
	UpdatedAt   time.Time         `db:"updated_at"`
	ExpiresAt   time.Time         `db:"expires_at"`
}

// IdempotencyReplay is a stored response served again to a retried request.
type IdempotencyReplay struct {
	StatusCode  int
	ContentType string
	Body        []byte
}

// claimOutcome is what a caller must do after looking at an existing key.
type claimOutcome int

const (
	claimProceed claimOutcome = iota
	claimReclaim
	claimReplay
)

// IdempotencyStore remembers the outcome of mutating ledger requests so a
// retried receipt or approval is answered from storage instead of applied
// twice.
type IdempotencyStore struct {
	txm     *TxManager
	ttl     time.Duration
	now     func() time.Time
	builder squirrel.StatementBuilderType
}

// NewIdempotencyStore creates a store whose keys live for ttl.
func NewIdempotencyStore(txManager *TxManager, ttl time.Duration) *IdempotencyStore {
	return &IdempotencyStore{
		txm:     txManager,
		ttl:     ttl,
		now:     func() time.Time { return time.Now().UTC() },
		builder: squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
	}
}

// AcquireKey claims key for the request. A nil replay and nil error mean the
// caller owns the key and must finish it with CompleteKey or FailKey.
func (s *IdempotencyStore) AcquireKey(ctx context.Context, key, userID, operation, requestHash string) (*IdempotencyReplay, error) {
	now := s.now()

	sql, args, err := s.builder.Insert(idempotencyTable).
		Columns("idempotency_key", "user_id", "operation", "status", "request_hash", "created_at", "updated_at", "expires_at").
		Values(key, userID, operation, IdempotencyStatusPending, requestHash, now, now, now.Add(s.ttl)).
		Suffix(`ON CONFLICT (idempotency_key) DO UPDATE
			SET expires_at = GREATEST(sys_idempotency.expires_at, EXCLUDED.expires_at)
			RETURNING *, (xmax = 0) AS inserted`).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim: %w", err)
	}

	var row struct {
		IdempotencyRecord
		Inserted bool `db:"inserted"`
	}
	if err := pgxscan.Get(ctx, s.txm.GetQuerier(ctx), &row, sql, args...); err != nil {
		return nil, fmt.Errorf("acquire idempotency key: %w", err)
	}
	if row.Inserted {
		return nil, nil
	}

	outcome, err := inspectClaim(&row.IdempotencyRecord, userID, operation, requestHash, now)
	if err != nil {
		return nil, err
	}
	switch outcome {
	case claimReplay:
		return replayOf(&row.IdempotencyRecord), nil
	case claimReclaim:
		if err := s.touch(ctx, key, now); err != nil {
			return nil, err
		}
	}
	return nil, nil
}

// inspectClaim decides what to do with a key that already existed.
func inspectClaim(rec *IdempotencyRecord, userID, operation, requestHash string, now time.Time) (claimOutcome, error) {
	if rec.UserID != userID || rec.Operation != operation || rec.RequestHash != requestHash {
		return 0, apperror.NewIdempotencyMismatch(rec.Key).
			WithDetail("stored_operation", rec.Operation).
			WithDetail("request_operation", operation)
	}

	switch rec.Status {
	case IdempotencyStatusSuccess, IdempotencyStatusFailed:
		return claimReplay, nil
	case IdempotencyStatusPending:
		if now.Sub(rec.UpdatedAt) > staleClaimAfter {
			return claimReclaim, nil
		}
		return 0, apperror.NewIdempotencyConflict(rec.Key)
	}
	return claimProceed, nil
}

func replayOf(rec *IdempotencyRecord) *IdempotencyReplay {
	r := &IdempotencyReplay{
		StatusCode:  rec.StatusCode,
		ContentType: rec.ContentType,
		Body:        rec.Response,
	}
	if r.StatusCode == 0 {
		r.StatusCode = http.StatusOK
	}
	if r.ContentType == "" {
		r.ContentType = "application/json"
	}
	return r
}

func (s *IdempotencyStore) touch(ctx context.Context, key string, now time.Time) error {
	sql, args, err := s.builder.Update(idempotencyTable).
		Set("updated_at", now).
		Where(squirrel.Eq{"idempotency_key": key, "status": IdempotencyStatusPending}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build reclaim: %w", err)
	}
	if _, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("reclaim stale key: %w", err)
	}
	return nil
}

// CompleteKey stores a successful response for replay.
func (s *IdempotencyStore) CompleteKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		return fmt.Errorf("marshal response: %w", err)
	}
	return s.finish(ctx, key, IdempotencyStatusSuccess, statusCode, contentType, body)
}

// FailKey stores an error response for replay. An unencodable response is
// replaced by a minimal error body so the key never stays pending.
func (s *IdempotencyStore) FailKey(ctx context.Context, key string, statusCode int, contentType string, response any) error {
	body, err := json.Marshal(response)
	if err != nil {
		body, _ = json.Marshal(map[string]string{"error": err.Error()})
	}
	return s.finish(ctx, key, IdempotencyStatusFailed, statusCode, contentType, body)
}

func (s *IdempotencyStore) finish(ctx context.Context, key string, status IdempotencyStatus, statusCode int, contentType string, body []byte) error {
	sql, args, err := s.builder.Update(idempotencyTable).
		SetMap(map[string]any{
			"status":                status,
			"response":              body,
			"response_status":       statusCode,
			"response_content_type": contentType,
			"updated_at":            s.now(),
		}).
		Where(squirrel.Eq{"idempotency_key": key}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish: %w", err)
	}
	_, err = s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	return err
}

// CleanupExpired deletes keys past their expiry.
func (s *IdempotencyStore) CleanupExpired(ctx context.Context) (int64, error) {
	sql, args, err := s.builder.Delete(idempotencyTable).
		Where(squirrel.Lt{"expires_at": s.now()}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("build cleanup: %w", err)
	}
	tag, err := s.txm.GetQuerier(ctx).Exec(ctx, sql, args...)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency: %w", err)
	}
	return tag.RowsAffected(), nil
}
