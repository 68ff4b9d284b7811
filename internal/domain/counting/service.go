package counting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/numerator"
	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
	"stockledger/internal/core/types"
	"stockledger/internal/domain"
	"stockledger/internal/domain/ledger"
	"stockledger/internal/domain/location"
	"stockledger/pkg/logger"
)

// AggregateCountSession is the aggregate type of session events and audit.
const AggregateCountSession = "CountSession"

// NumeratorStrategy draws session codes inside the creating transaction so
// they stay gapless.
var NumeratorStrategy = numerator.StrategyStrict

// uncountedPreview caps the line numbers reported by a refused submit.
const uncountedPreview = 10

// Ledger posts corrective movements. *ledger.Service satisfies it.
type Ledger interface {
	Receipt(ctx context.Context, cmd ledger.Command) (*ledger.Result, error)
	Issue(ctx context.Context, cmd ledger.Command) (*ledger.Result, error)
}

// ServiceConfig configures the counting service.
type ServiceConfig struct {
	Repo      Repository
	Snapshots SnapshotSource
	Ledger    Ledger
	Numerator numerator.Generator
	TxManager tx.Manager

	// Optional; default to no-ops
	Events domain.EventPublisher
	Audit  domain.AuditLogger
	Clock  func() time.Time
}

// Service runs count sessions from creation to approval.
type Service struct {
	repo      Repository
	snapshots SnapshotSource
	ledger    Ledger
	numerator numerator.Generator
	txManager tx.Manager
	events    domain.EventPublisher
	audit     domain.AuditLogger
	now       func() time.Time
}

// NewService creates a counting service.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		repo:      cfg.Repo,
		snapshots: cfg.Snapshots,
		ledger:    cfg.Ledger,
		numerator: cfg.Numerator,
		txManager: cfg.TxManager,
		events:    cfg.Events,
		audit:     cfg.Audit,
		now:       cfg.Clock,
	}
	if svc.events == nil {
		svc.events = domain.NopPublisher{}
	}
	if svc.audit == nil {
		svc.audit = domain.NopAuditLogger{}
	}
	if svc.now == nil {
		svc.now = func() time.Time { return time.Now().UTC() }
	}
	return svc
}

// CreateRequest opens a session.
type CreateRequest struct {
	Type     SessionType
	Scope    Scope
	Counters []string
	Notes    string
}

// Create resolves the scope against the snapshot and freezes one line per
// matching record. A scope matching nothing yields an empty session.
func (s *Service) Create(ctx context.Context, req CreateRequest) (*Session, error) {
	if req.Type == "" {
		req.Type = TypeCycle
	}
	query, err := req.Scope.Build()
	if err != nil {
		return nil, err
	}

	sess := NewSession(req.Type, req.Scope)
	for _, c := range req.Counters {
		sess.Counters = append(sess.Counters, strings.TrimSpace(c))
	}
	sess.Notes = req.Notes
	if err := sess.Validate(ctx); err != nil {
		return nil, err
	}

	at := s.now()
	sess.CreatedAt, sess.UpdatedAt, sess.StartedAt = at, at, &at
	sess.SetCreatedBy(security.ActorOrSystem(ctx))

	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		candidates, err := s.snapshots.Candidates(ctx, query)
		if err != nil {
			return fmt.Errorf("resolve scope: %w", err)
		}

		lines := make([]*Line, 0, len(candidates))
		for _, c := range candidates {
			ok, err := query.Matches(c)
			if err != nil {
				return err
			}
			if ok {
				lines = append(lines, NewLine(sess.ID, len(lines)+1, c))
			}
		}

		code, err := s.numerator.GetNextNumber(ctx, numerator.DefaultConfig("CC"), &numerator.Options{Strategy: NumeratorStrategy}, at)
		if err != nil {
			return fmt.Errorf("generate code: %w", err)
		}
		sess.Code = code
		sess.TotalLines = len(lines)

		if err := s.repo.Create(ctx, sess); err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		if err := s.repo.InsertLines(ctx, lines); err != nil {
			return fmt.Errorf("insert lines: %w", err)
		}
		return s.audit.LogChange(ctx, AggregateCountSession, sess.ID, domain.AuditActionCreate, map[string]any{
			"code":  sess.Code,
			"type":  sess.Type,
			"scope": sess.Scope,
			"lines": len(lines),
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count session created",
		"session_id", sess.ID,
		"code", sess.Code,
		"type", sess.Type,
		"lines", sess.TotalLines,
	)
	return sess, nil
}

// EntryRequest records a count for one line, addressed by LineID or by
// item and location (and lot).
type EntryRequest struct {
	SessionID id.ID
	LineID    id.ID

	ItemID   id.ID
	Location string
	Lot      string

	CountedQty int64
	Notes      string

	// ExpectedVersion rejects the entry when the line changed since it was
	// read. Nil means last write wins.
	ExpectedVersion *int
}

// EnterCount stores a counted quantity and updates session stats by delta.
func (s *Service) EnterCount(ctx context.Context, req EntryRequest) (*Line, error) {
	if req.CountedQty < 0 {
		return nil, apperror.NewValidation("counted quantity cannot be negative").
			WithDetail("field", "countedQty").
			WithDetail("value", req.CountedQty)
	}
	byLine := !id.IsNil(req.LineID)
	if !byLine && (id.IsNil(req.ItemID) || location.CanonicalKey(req.Location) == "") {
		return nil, apperror.NewValidation("line id or item and location are required")
	}

	actor := security.ActorOrSystem(ctx)
	var line *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sess, err := s.repo.GetForShare(ctx, req.SessionID)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return apperror.NewInvalidStateTransition("count session", string(sess.Status), "enter count")
		}
		if !sess.AllowsCounter(actor) && !security.IsPrivileged(ctx) {
			return apperror.NewForbidden("user is not assigned to this count session").
				WithDetail("session_id", sess.ID.String())
		}

		if byLine {
			line, err = s.repo.GetLineForUpdate(ctx, sess.ID, req.LineID)
		} else {
			line, err = s.repo.FindLineForUpdate(ctx, sess.ID, req.ItemID, location.CanonicalKey(req.Location), req.Lot)
		}
		if err != nil {
			return err
		}

		if req.ExpectedVersion != nil && *req.ExpectedVersion != line.Version {
			return apperror.NewConcurrentModification("count line", line.ID.String()).
				WithDetail("expected_version", *req.ExpectedVersion).
				WithDetail("actual_version", line.Version)
		}
		expected := line.Version

		delta, err := line.Record(req.CountedQty, actor, req.Notes, s.now())
		if err != nil {
			return err
		}
		if err := s.repo.UpdateLine(ctx, line, expected); err != nil {
			return err
		}
		if delta.IsZero() {
			return nil
		}
		return s.repo.ApplyStatsDelta(ctx, sess.ID, delta)
	})
	if err != nil {
		return nil, err
	}

	logger.Debug(ctx, "count entered",
		"session_id", req.SessionID,
		"line_no", line.LineNo,
		"counted", req.CountedQty,
	)
	return line, nil
}

// Submit moves an active session to review once every line is counted.
func (s *Service) Submit(ctx context.Context, sessionID id.ID) (*Session, error) {
	var sess *Session
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != StatusActive {
			return apperror.NewInvalidStateTransition("count session", string(sess.Status), "submit")
		}

		n, lineNos, err := s.repo.Uncounted(ctx, sessionID, uncountedPreview)
		if err != nil {
			return fmt.Errorf("count uncounted lines: %w", err)
		}
		if n > 0 {
			e := apperror.NewInvalidStateTransition("count session", string(sess.Status), "submit").
				WithDetail("uncounted", n).
				WithDetail("uncounted_lines", lineNos)
			e.Message = fmt.Sprintf("Cannot submit count session: %d lines are not counted", n)
			return e
		}

		at := s.now()
		if err := sess.transition("submit", StatusReview, StatusActive); err != nil {
			return err
		}
		sess.SubmittedAt = &at
		sess.UpdatedAt = at
		sess.SetUpdatedBy(security.ActorOrSystem(ctx))
		return s.repo.Update(ctx, sess)
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count session submitted", "session_id", sess.ID, "code", sess.Code)
	return sess, nil
}

// ApprovalResult is an approved session and the movements it posted.
type ApprovalResult struct {
	Session   *Session           `json:"session"`
	Movements []*ledger.Movement `json:"movements"`
}

// Approve posts one corrective movement per discrepant line and writes
// every counted quantity back to the snapshot. Any failure rolls back the
// whole approval.
func (s *Service) Approve(ctx context.Context, sessionID id.ID) (*ApprovalResult, error) {
	if err := security.GetScope(ctx).RequirePrivileged("approve count session"); err != nil {
		return nil, err
	}

	result := &ApprovalResult{}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sess, err := s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != StatusReview {
			return apperror.NewInvalidStateTransition("count session", string(sess.Status), "approve")
		}

		lines, err := s.repo.AllLines(ctx, sessionID)
		if err != nil {
			return fmt.Errorf("load lines: %w", err)
		}

		at := s.now()
		stats := Stats{TotalLines: len(lines), MonetaryGap: types.Zero()}
		batchKey := "cc-" + sess.Code
		movements := make([]*ledger.Movement, 0)

		for _, l := range lines {
			if !l.IsCounted() {
				return apperror.NewTransactionAbort("approve count session",
					apperror.NewValidation("line is not counted")).
					WithDetail("line_no", l.LineNo)
			}
			stats = stats.Add(l.contribution())

			if l.IsDiscrepancy {
				m, err := s.correct(ctx, l, batchKey, sess.Code)
				if err != nil {
					return apperror.NewTransactionAbort("approve count session", err).
						WithDetail("session_id", sess.ID.String()).
						WithDetail("line_no", l.LineNo)
				}
				movements = append(movements, m)
			}
			if err := s.snapshots.SetCounted(ctx, l.SnapshotID, *l.CountedQty, at); err != nil {
				return apperror.NewTransactionAbort("approve count session", err).
					WithDetail("line_no", l.LineNo)
			}
		}

		sess.Status = StatusApproved
		sess.ApprovedAt = &at
		sess.ApprovedBy = security.ActorOrSystem(ctx)
		sess.UpdatedAt = at
		sess.SetUpdatedBy(sess.ApprovedBy)
		if err := s.repo.Update(ctx, sess); err != nil {
			return err
		}
		if err := s.repo.SetStats(ctx, sess.ID, stats); err != nil {
			return fmt.Errorf("set stats: %w", err)
		}
		sess.Stats = stats

		summary := map[string]any{
			"code":              sess.Code,
			"lines":             stats.TotalLines,
			"discrepancy_lines": stats.DiscrepancyLines,
			"monetary_gap":      stats.MonetaryGap.String(),
			"batch_key":         batchKey,
			"movements":         len(movements),
		}
		if err := s.audit.LogChange(ctx, AggregateCountSession, sess.ID, domain.AuditActionApprove, summary); err != nil {
			return fmt.Errorf("audit approval: %w", err)
		}
		if err := s.events.Publish(ctx, domain.Event{
			AggregateType: AggregateCountSession,
			AggregateID:   sess.ID,
			EventType:     domain.EventCountSessionApproved,
			Payload:       summary,
		}); err != nil {
			return fmt.Errorf("publish approval: %w", err)
		}

		result.Session = sess
		result.Movements = movements
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count session approved",
		"session_id", result.Session.ID,
		"code", result.Session.Code,
		"discrepancies", result.Session.DiscrepancyLines,
		"monetary_gap", result.Session.MonetaryGap.String(),
	)
	return result, nil
}

// correct posts the movement that brings the ledger to the counted quantity.
func (s *Service) correct(ctx context.Context, l *Line, batchKey, reference string) (*ledger.Movement, error) {
	cmd := ledger.Command{
		ItemID:    l.ItemID,
		BatchKey:  batchKey,
		Reference: reference,
	}

	var (
		res *ledger.Result
		err error
	)
	if l.DiffQty > 0 {
		cmd.Quantity = l.DiffQty
		cmd.To = l.LocationCode
		res, err = s.ledger.Receipt(ctx, cmd)
	} else {
		cmd.Quantity = -l.DiffQty
		cmd.From = l.LocationCode
		res, err = s.ledger.Issue(ctx, cmd)
	}
	if err != nil {
		return nil, err
	}
	return res.Movement, nil
}

// Cancel ends a session that has not been approved. No ledger effect.
func (s *Service) Cancel(ctx context.Context, sessionID id.ID, reason string) (*Session, error) {
	var sess *Session
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		sess, err = s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if err := sess.transition("cancel", StatusCancelled, StatusPlanned, StatusActive, StatusReview); err != nil {
			return err
		}

		at := s.now()
		sess.CancelledAt = &at
		sess.CancelReason = reason
		sess.UpdatedAt = at
		sess.SetUpdatedBy(security.ActorOrSystem(ctx))
		if err := s.repo.Update(ctx, sess); err != nil {
			return err
		}
		return s.audit.LogChange(ctx, AggregateCountSession, sess.ID, domain.AuditActionCancel, map[string]any{
			"code":   sess.Code,
			"reason": reason,
		})
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "count session cancelled", "session_id", sess.ID, "reason", reason)
	return sess, nil
}

// Recount clears a line's count. A session in review goes back to active.
func (s *Service) Recount(ctx context.Context, sessionID, lineID id.ID) (*Line, error) {
	if err := security.GetScope(ctx).RequirePrivileged("request recount"); err != nil {
		return nil, err
	}

	var line *Line
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		sess, err := s.repo.GetForUpdate(ctx, sessionID)
		if err != nil {
			return err
		}
		if sess.Status != StatusReview && sess.Status != StatusActive {
			return apperror.NewInvalidStateTransition("count session", string(sess.Status), "recount")
		}

		line, err = s.repo.GetLineForUpdate(ctx, sessionID, lineID)
		if err != nil {
			return err
		}
		expected := line.Version
		delta := line.Reset()
		if err := s.repo.UpdateLine(ctx, line, expected); err != nil {
			return err
		}
		if !delta.IsZero() {
			if err := s.repo.ApplyStatsDelta(ctx, sessionID, delta); err != nil {
				return err
			}
		}

		if sess.Status == StatusReview {
			sess.Status = StatusActive
			sess.SubmittedAt = nil
			sess.UpdatedAt = s.now()
			sess.SetUpdatedBy(security.ActorOrSystem(ctx))
			return s.repo.Update(ctx, sess)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "recount requested", "session_id", sessionID, "line_no", line.LineNo)
	return line, nil
}

// GetSession retrieves a session.
func (s *Service) GetSession(ctx context.Context, sessionID id.ID) (*Session, error) {
	return s.repo.GetByID(ctx, sessionID)
}

// ListSessions retrieves sessions with filtering.
func (s *Service) ListSessions(ctx context.Context, filter ListFilter) (domain.ListResult[*Session], error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}

// ListLines retrieves the lines of a session. The discrepancy filter is
// honoured for privileged readers only.
func (s *Service) ListLines(ctx context.Context, sessionID id.ID, filter LineFilter) (domain.ListResult[*Line], error) {
	if _, err := s.repo.GetByID(ctx, sessionID); err != nil {
		return domain.ListResult[*Line]{}, err
	}
	filter.Normalize()
	filter.LocationCode = location.CanonicalKey(filter.LocationCode)
	if !security.IsPrivileged(ctx) {
		filter.Discrepancies = false
	}
	return s.repo.ListLines(ctx, sessionID, filter)
}
