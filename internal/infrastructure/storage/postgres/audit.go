package postgres

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/klauspost/compress/zstd"

	appctx "stockledger/internal/core/context"
	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
	"stockledger/internal/domain"
)

const auditTable = "sys_audit"

// Payloads above this size are stored zstd-compressed. Count approvals
// with thousands of lines are the usual case.
const auditCompressAbove = 10 << 10

// CompressionAlgo names how sys_audit.changes_compressed is encoded.
type CompressionAlgo string

const (
	CompressionNone CompressionAlgo = "none"
	CompressionZstd CompressionAlgo = "zstd"
)

// auditRow mirrors sys_audit.
type auditRow struct {
	ID                id.ID              `db:"id"`
	EntityType        string             `db:"entity_type"`
	EntityID          id.ID              `db:"entity_id"`
	Action            domain.AuditAction `db:"action"`
	UserID            *string            `db:"user_id"`
	UserEmail         *string            `db:"user_email"`
	Changes           []byte             `db:"changes"`
	ChangesCompressed []byte             `db:"changes_compressed"`
	CompressionAlgo   *CompressionAlgo   `db:"compression_algo"`
	Metadata          []byte             `db:"metadata"`
	CreatedAt         time.Time          `db:"created_at"`
}

type auditMetadata struct {
	RequestID string `json:"request_id,omitempty"`
	TraceID   string `json:"trace_id,omitempty"`
}

// AuditService records reversals, approvals and other ledger-affecting
// changes in sys_audit, inside the caller's transaction.
type AuditService struct {
	txManager *TxManager
	builder   squirrel.StatementBuilderType
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
}

var (
	_ domain.AuditLogger = (*AuditService)(nil)
	_ domain.AuditReader = (*AuditService)(nil)
)

// NewAuditService creates an audit service. txManager may be nil when the
// service is only used to encode or decode payloads.
func NewAuditService(txManager *TxManager) (*AuditService, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}
	return &AuditService{
		txManager: txManager,
		builder:   squirrel.StatementBuilder.PlaceholderFormat(squirrel.Dollar),
		encoder:   enc,
		decoder:   dec,
	}, nil
}

// LogChange implements domain.AuditLogger. The actor, email and request id
// are taken from ctx.
func (s *AuditService) LogChange(ctx context.Context, entityType string, entityID id.ID, action domain.AuditAction, changes map[string]any) error {
	payload, err := json.Marshal(changes)
	if err != nil {
		return fmt.Errorf("marshal audit changes: %w", err)
	}

	row := s.encode(payload)
	row.ID = id.New()
	row.EntityType = entityType
	row.EntityID = entityID
	row.Action = action
	row.CreatedAt = time.Now().UTC()

	actor := security.ActorOrSystem(ctx)
	row.UserID = &actor
	if u := appctx.GetUser(ctx); u != nil && u.Email != "" {
		row.UserEmail = &u.Email
	}
	if tc := appctx.GetTrace(ctx); tc != nil {
		row.Metadata, _ = json.Marshal(auditMetadata{RequestID: tc.RequestID, TraceID: tc.TraceID})
	}

	sql, args, err := s.builder.Insert(auditTable).
		SetMap(StructToMap(row)).
		ToSql()
	if err != nil {
		return fmt.Errorf("build audit insert: %w", err)
	}
	if _, err := s.txManager.GetQuerier(ctx).Exec(ctx, sql, args...); err != nil {
		return fmt.Errorf("insert audit entry: %w", err)
	}
	return nil
}

// History implements domain.AuditReader.
func (s *AuditService) History(ctx context.Context, entityType string, entityID id.ID, limit int) ([]domain.AuditEntry, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	sql, args, err := s.builder.Select(ExtractDBColumns[auditRow]()...).
		From(auditTable).
		Where(squirrel.Eq{"entity_type": entityType, "entity_id": entityID}).
		OrderBy("created_at DESC").
		Limit(uint64(limit)).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build audit query: %w", err)
	}

	var rows []auditRow
	if err := pgxscan.Select(ctx, s.txManager.GetQuerier(ctx), &rows, sql, args...); err != nil {
		return nil, fmt.Errorf("query audit history: %w", err)
	}

	out := make([]domain.AuditEntry, 0, len(rows))
	for _, r := range rows {
		e, err := s.decode(r)
		if err != nil {
			return nil, fmt.Errorf("decode audit entry %s: %w", r.ID, err)
		}
		out = append(out, e)
	}
	return out, nil
}

// encode fills the payload columns of a new row.
func (s *AuditService) encode(payload []byte) auditRow {
	algo := CompressionNone
	if len(payload) <= auditCompressAbove {
		return auditRow{Changes: payload, CompressionAlgo: &algo}
	}
	algo = CompressionZstd
	return auditRow{ChangesCompressed: s.encoder.EncodeAll(payload, nil), CompressionAlgo: &algo}
}

func (s *AuditService) decode(r auditRow) (domain.AuditEntry, error) {
	e := domain.AuditEntry{
		ID:         r.ID,
		EntityType: r.EntityType,
		EntityID:   r.EntityID,
		Action:     r.Action,
		Changes:    r.Changes,
		CreatedAt:  r.CreatedAt,
	}
	if r.UserID != nil {
		e.UserID = *r.UserID
	}
	if r.CompressionAlgo != nil && *r.CompressionAlgo == CompressionZstd {
		raw, err := s.decoder.DecodeAll(r.ChangesCompressed, nil)
		if err != nil {
			return e, err
		}
		e.Changes = raw
	}
	if len(r.Metadata) > 0 {
		var md auditMetadata
		if json.Unmarshal(r.Metadata, &md) == nil {
			e.RequestID = md.RequestID
		}
	}
	return e, nil
}
