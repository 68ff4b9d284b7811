// Package ledger provides the location-aware stock ledger and its movement
// log. Every quantity change is a Movement applied to a locked StockItem
// inside one transaction.
package ledger

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/pkg/logger"
)

// Aggregate types used for events and audit entries.
const (
	AggregateMovement  = "Movement"
	AggregateStockItem = "StockItem"
)

// ServiceConfig configures the ledger service.
type ServiceConfig struct {
	Items     ItemRepository
	Movements MovementRepository
	TxManager tx.Manager

	// Optional; default to no-ops
	Events domain.EventPublisher
	Audit  domain.AuditLogger
	Clock  func() time.Time
}

// Service applies, completes and reverses movements.
type Service struct {
	items     ItemRepository
	movements MovementRepository
	txManager tx.Manager
	events    domain.EventPublisher
	audit     domain.AuditLogger
	now       func() time.Time

	// hooks run inside the transaction for every movement that reached
	// the ledger (AfterUpdate) or was reversed (AfterDelete)
	hooks *domain.HookRegistry[*Movement]
}

// NewService creates a new ledger service.
func NewService(cfg ServiceConfig) *Service {
	svc := &Service{
		items:     cfg.Items,
		movements: cfg.Movements,
		txManager: cfg.TxManager,
		events:    cfg.Events,
		audit:     cfg.Audit,
		now:       cfg.Clock,
		hooks:     domain.NewHookRegistry[*Movement](),
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

// Hooks returns the movement hook registry.
func (s *Service) Hooks() *domain.HookRegistry[*Movement] {
	return s.hooks
}

// Command describes a single completed movement against one item.
type Command struct {
	ItemID    id.ID
	Quantity  int64
	From      string
	To        string
	BatchKey  string
	Reference string
}

// Result is the item state after a movement together with its log record.
type Result struct {
	Item     *StockItem `json:"item"`
	Movement *Movement  `json:"movement"`
}

// Receipt adds qty at To. To becomes the item's primary location.
func (s *Service) Receipt(ctx context.Context, cmd Command) (*Result, error) {
	cmd.From = ""
	return s.post(ctx, cmd, MovementReceipt)
}

// Issue removes qty from From, failing with InsufficientStock when the
// explicit or inferred availability is short.
func (s *Service) Issue(ctx context.Context, cmd Command) (*Result, error) {
	cmd.To = ""
	return s.post(ctx, cmd, MovementIssue)
}

// Transfer moves qty from From to To. Duplicate records of the same product
// holding stock at To are merged into the item.
func (s *Service) Transfer(ctx context.Context, cmd Command) (*Result, error) {
	return s.post(ctx, cmd, MovementTransfer)
}

// Adjustment sets an absolute quantity at To and on the aggregate.
func (s *Service) Adjustment(ctx context.Context, cmd Command) (*Result, error) {
	cmd.From = ""
	return s.post(ctx, cmd, MovementAdjustment)
}

func (s *Service) post(ctx context.Context, cmd Command, typ MovementType) (*Result, error) {
	m := NewMovement(cmd.ItemID, typ, cmd.Quantity)
	m.FromLocation = cmd.From
	m.ToLocation = cmd.To
	m.Reference = cmd.Reference
	if cmd.BatchKey != "" {
		m.BatchKey = cmd.BatchKey
	}
	m.Status = StatusCompleted
	return s.CreateMovement(ctx, m)
}

// CreateMovement records a movement. Drafts have no ledger effect until
// their batch is completed; completed movements are applied immediately.
func (s *Service) CreateMovement(ctx context.Context, m *Movement) (*Result, error) {
	m.Normalize()
	if err := m.Validate(ctx); err != nil {
		return nil, err
	}
	m.CreatedBy = security.ActorOrSystem(ctx)
	m.Version = 1

	result := &Result{Movement: m}
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		if !m.IsCompleted() {
			item, err := s.items.GetByID(ctx, m.ItemID)
			if err != nil {
				return err
			}
			result.Item = item
			return s.movements.Create(ctx, m)
		}

		locked, err := s.items.GetForUpdate(ctx, []id.ID{m.ItemID})
		if err != nil {
			return err
		}
		item := locked[m.ItemID]

		if err := s.apply(ctx, item, m, locked, s.now()); err != nil {
			return err
		}
		if err := s.movements.Create(ctx, m); err != nil {
			return fmt.Errorf("create movement: %w", err)
		}
		if err := s.persist(ctx, locked); err != nil {
			return err
		}
		if err := s.afterApply(ctx, []*Movement{m}); err != nil {
			return err
		}
		result.Item = item
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement recorded",
		"movement_id", m.ID,
		"item_id", m.ItemID,
		"type", m.Type,
		"status", m.Status,
		"quantity", m.Quantity,
		"batch_key", m.BatchKey,
	)
	return result, nil
}

// CompleteBatch applies every draft of a batch as one unit. Either all of
// them reach the ledger or none do.
func (s *Service) CompleteBatch(ctx context.Context, batchKey string) ([]*Movement, error) {
	if batchKey == "" {
		return nil, apperror.NewValidation("batch key is required")
	}

	var completed []*Movement
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		members, err := s.movements.ListBatchForUpdate(ctx, batchKey)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return apperror.NewNotFound("movement batch", batchKey)
		}

		drafts := make([]*Movement, 0, len(members))
		for _, m := range members {
			if !m.IsCompleted() {
				drafts = append(drafts, m)
			}
		}
		if len(drafts) == 0 {
			completed = members
			return nil
		}

		locked, err := s.items.GetForUpdate(ctx, itemIDs(drafts))
		if err != nil {
			return apperror.NewTransactionAbort("complete batch", err)
		}

		at := s.now()
		for _, m := range drafts {
			if err := s.apply(ctx, locked[m.ItemID], m, locked, at); err != nil {
				return apperror.NewTransactionAbort("complete batch", err).
					WithDetail("batch_key", batchKey).
					WithDetail("movement_id", m.ID.String())
			}
		}

		if err := s.persist(ctx, locked); err != nil {
			return err
		}
		for _, m := range drafts {
			if err := s.movements.Update(ctx, m); err != nil {
				return fmt.Errorf("update movement %s: %w", m.ID, err)
			}
		}
		if err := s.afterApply(ctx, drafts); err != nil {
			return err
		}
		completed = drafts
		return nil
	})
	if err != nil {
		return nil, err
	}

	logger.Info(ctx, "movement batch completed", "batch_key", batchKey, "count", len(completed))
	return completed, nil
}

// CompleteMovement completes the batch the movement belongs to.
func (s *Service) CompleteMovement(ctx context.Context, movementID id.ID) ([]*Movement, error) {
	m, err := s.movements.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if m.Deleted {
		return nil, apperror.NewInvalidStateTransition("movement", "deleted", "complete")
	}
	if m.IsCompleted() {
		return nil, apperror.NewInvalidStateTransition("movement", string(m.Status), "complete")
	}
	return s.CompleteBatch(ctx, m.BatchKey)
}

// DeleteMovement reverses a completed movement (or discards a draft) and
// marks it deleted.
func (s *Service) DeleteMovement(ctx context.Context, movementID id.ID, reason string) (*Movement, error) {
	m, err := s.movements.GetByID(ctx, movementID)
	if err != nil {
		return nil, err
	}
	if m.Deleted {
		return nil, apperror.NewInvalidStateTransition("movement", "deleted", "delete")
	}

	var deleted *Movement
	err = s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		members, err := s.movements.ListBatchForUpdate(ctx, m.BatchKey)
		if err != nil {
			return err
		}
		idx := slices.IndexFunc(members, func(x *Movement) bool { return x.ID == movementID })
		if idx < 0 {
			return apperror.NewInvalidStateTransition("movement", "deleted", "delete")
		}
		deleted = members[idx]
		return s.reverse(ctx, []*Movement{deleted}, reason)
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// DeleteBatch reverses and deletes every live member of a batch.
func (s *Service) DeleteBatch(ctx context.Context, batchKey string, reason string) ([]*Movement, error) {
	if batchKey == "" {
		return nil, apperror.NewValidation("batch key is required")
	}

	var members []*Movement
	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		var err error
		members, err = s.movements.ListBatchForUpdate(ctx, batchKey)
		if err != nil {
			return err
		}
		if len(members) == 0 {
			return apperror.NewNotFound("movement batch", batchKey)
		}
		if err := s.reverse(ctx, members, reason); err != nil {
			return apperror.NewTransactionAbort("delete batch", err).
				WithDetail("batch_key", batchKey)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return members, nil
}

// GetMovement retrieves a movement.
func (s *Service) GetMovement(ctx context.Context, movementID id.ID) (*Movement, error) {
	return s.movements.GetByID(ctx, movementID)
}

// ListMovements retrieves the movement log with filtering.
func (s *Service) ListMovements(ctx context.Context, filter MovementFilter) (domain.ListResult[*Movement], error) {
	filter.Normalize()
	return s.movements.List(ctx, filter)
}

// apply runs one movement against an item. Transfers then absorb duplicate
// records of the same product already holding stock at the destination.
func (s *Service) apply(ctx context.Context, item *StockItem, m *Movement, touched map[id.ID]*StockItem, at time.Time) error {
	if item == nil {
		return apperror.NewNotFound("stock item", m.ItemID.String())
	}
	if !item.Active {
		return apperror.NewBusinessRule("ITEM_INACTIVE", "Stock item is inactive").
			WithDetail("item_id", item.ID.String())
	}

	if err := m.Apply(item, at); err != nil {
		code := apperror.CodeInternal
		if appErr, ok := apperror.AsAppError(err); ok {
			code = appErr.Code
		}
		meters().recordRejected(ctx, m, code)
		return err
	}
	meters().recordApplied(ctx, m)

	if m.Type == MovementTransfer {
		if err := s.absorbDuplicates(ctx, item, m.ToLocation, touched); err != nil {
			return err
		}
	}
	return nil
}

func (s *Service) absorbDuplicates(ctx context.Context, item *StockItem, at string, touched map[id.ID]*StockItem) error {
	dups, err := s.items.FindDuplicatesForUpdate(ctx, item.Code, item.ID, at)
	if err != nil {
		return fmt.Errorf("find duplicates: %w", err)
	}

	for _, dup := range dups {
		if cached, ok := touched[dup.ID]; ok {
			dup = cached
		}
		if !dup.Active || dup.Locations.Get(at) <= 0 {
			continue
		}

		absorbed := dup.Quantity
		item.Absorb(dup)
		touched[dup.ID] = dup

		logger.Warn(ctx, "duplicate stock item merged on transfer",
			"item_id", item.ID,
			"duplicate_id", dup.ID,
			"code", item.Code,
			"location", at,
			"quantity", absorbed,
		)
		if err := s.audit.LogChange(ctx, AggregateStockItem, dup.ID, domain.AuditActionUpdate, map[string]any{
			"merged_into": item.ID,
			"quantity":    absorbed,
			"location":    at,
		}); err != nil {
			return fmt.Errorf("audit merge: %w", err)
		}
	}
	return nil
}

// reverse undoes completed members newest first and marks every member
// deleted. Clamped reversals are recorded on the movement, never rejected.
func (s *Service) reverse(ctx context.Context, members []*Movement, reason string) error {
	var completedItems []id.ID
	for _, m := range members {
		if m.IsCompleted() {
			completedItems = append(completedItems, m.ItemID)
		}
	}

	locked := map[id.ID]*StockItem{}
	if len(completedItems) > 0 {
		var err error
		locked, err = s.items.GetForUpdate(ctx, uniqueIDs(completedItems))
		if err != nil {
			return err
		}
	}

	actor := security.ActorOrSystem(ctx)
	at := s.now()
	events := make([]domain.Event, 0, len(members))

	for i := len(members) - 1; i >= 0; i-- {
		m := members[i]
		outcome := ReversalOutcome{Kind: ReversalNone}
		if m.IsCompleted() {
			outcome = locked[m.ItemID].Reverse(m)
			meters().recordReversal(ctx, outcome)
			if outcome.Kind == ReversalClamped {
				logger.Warn(ctx, "movement reversal clamped at zero",
					"movement_id", m.ID,
					"item_id", m.ItemID,
					"type", m.Type,
					"shortfall", outcome.Shortfall,
				)
			}
		}
		m.MarkDeleted(actor, reason, outcome, at)

		if err := s.movements.Update(ctx, m); err != nil {
			return fmt.Errorf("update movement %s: %w", m.ID, err)
		}
		if err := s.audit.LogChange(ctx, AggregateMovement, m.ID, domain.AuditActionReverse, map[string]any{
			"type":      m.Type,
			"status":    m.Status,
			"quantity":  m.Quantity,
			"reversal":  outcome.Kind,
			"shortfall": outcome.Shortfall,
			"reason":    reason,
		}); err != nil {
			return fmt.Errorf("audit reversal: %w", err)
		}
		if m.IsCompleted() {
			if err := s.hooks.Run(ctx, domain.AfterDelete, m); err != nil {
				return err
			}
			events = append(events, domain.Event{
				AggregateType: AggregateMovement,
				AggregateID:   m.ID,
				EventType:     domain.EventMovementReversed,
				Payload:       m,
			})
		}
	}

	if err := s.persist(ctx, locked); err != nil {
		return err
	}
	if err := s.publish(ctx, events); err != nil {
		return err
	}

	logger.Info(ctx, "movements deleted", "count", len(members), "reason", reason)
	return nil
}

func (s *Service) afterApply(ctx context.Context, applied []*Movement) error {
	events := make([]domain.Event, 0, len(applied))
	for _, m := range applied {
		if err := s.hooks.Run(ctx, domain.AfterUpdate, m); err != nil {
			return err
		}
		events = append(events, domain.Event{
			AggregateType: AggregateMovement,
			AggregateID:   m.ID,
			EventType:     domain.EventMovementCompleted,
			Payload:       m,
		})
	}
	return s.publish(ctx, events)
}

// persist writes every touched item in id order.
func (s *Service) persist(ctx context.Context, touched map[id.ID]*StockItem) error {
	for _, itemID := range sortedIDs(touched) {
		if err := s.items.SaveQuantities(ctx, touched[itemID]); err != nil {
			return fmt.Errorf("save item %s: %w", itemID, err)
		}
	}
	return nil
}

type batchPublisher interface {
	PublishBatch(ctx context.Context, events []domain.Event) error
}

func (s *Service) publish(ctx context.Context, events []domain.Event) error {
	if len(events) == 0 {
		return nil
	}
	if bp, ok := s.events.(batchPublisher); ok && len(events) > 1 {
		return bp.PublishBatch(ctx, events)
	}
	for _, e := range events {
		if err := s.events.Publish(ctx, e); err != nil {
			return fmt.Errorf("publish %s: %w", e.EventType, err)
		}
	}
	return nil
}

func itemIDs(ms []*Movement) []id.ID {
	ids := make([]id.ID, 0, len(ms))
	for _, m := range ms {
		ids = append(ids, m.ItemID)
	}
	return uniqueIDs(ids)
}

func uniqueIDs(ids []id.ID) []id.ID {
	seen := make(map[id.ID]struct{}, len(ids))
	out := make([]id.ID, 0, len(ids))
	for _, v := range ids {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		out = append(out, v)
	}
	return out
}

func sortedIDs(items map[id.ID]*StockItem) []id.ID {
	return slices.SortedFunc(maps.Keys(items), func(a, b id.ID) int {
		return slices.Compare(a[:], b[:])
	})
}
