package location

import (
	"context"
	"fmt"
	"time"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/id"
	"stockledger/internal/core/security"
	"stockledger/internal/core/tx"
	"stockledger/internal/domain"
	"stockledger/pkg/logger"
)

// Service provides business logic for the location directory.
type Service struct {
	repo      Repository
	txManager tx.Manager
	hooks     *domain.HookRegistry[*Location]
}

// NewService creates a new Location service.
func NewService(repo Repository, txManager tx.Manager) *Service {
	return &Service{
		repo:      repo,
		txManager: txManager,
		hooks:     domain.NewHookRegistry[*Location](),
	}
}

// Hooks returns the hook registry for external registration.
func (s *Service) Hooks() *domain.HookRegistry[*Location] {
	return s.hooks
}

// Create adds a location. The code is canonicalized before storage.
func (s *Service) Create(ctx context.Context, loc *Location) error {
	loc.Code = CanonicalKey(loc.Code)
	if err := loc.Validate(ctx); err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, domain.BeforeCreate, loc); err != nil {
		return err
	}

	err := s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		exists, err := s.repo.ExistsByCode(ctx, loc.Code)
		if err != nil {
			return fmt.Errorf("check code: %w", err)
		}
		if exists {
			return apperror.NewDuplicate("location", "code", loc.Code)
		}
		loc.SetCreatedBy(security.ActorOrSystem(ctx))
		return s.repo.Create(ctx, loc)
	})
	if err != nil {
		return err
	}

	logger.Info(ctx, "location created", "id", loc.ID, "code", loc.Code)
	return nil
}

// GetByID retrieves a location.
func (s *Service) GetByID(ctx context.Context, locID id.ID) (*Location, error) {
	return s.repo.GetByID(ctx, locID)
}

// GetByCode retrieves a location by any label that canonicalizes to its code.
func (s *Service) GetByCode(ctx context.Context, code string) (*Location, error) {
	key := CanonicalKey(code)
	if key == "" {
		return nil, apperror.NewValidation("location code is required")
	}
	return s.repo.GetByCode(ctx, key)
}

// List retrieves locations with filtering.
func (s *Service) List(ctx context.Context, filter ListFilter) (domain.ListResult[*Location], error) {
	filter.Normalize()
	return s.repo.List(ctx, filter)
}

// Update modifies descriptive fields. The code is immutable because ledger
// quantity maps and snapshot records reference it.
func (s *Service) Update(ctx context.Context, loc *Location) error {
	if err := loc.Validate(ctx); err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, domain.BeforeUpdate, loc); err != nil {
		return err
	}

	return s.txManager.RunInTransaction(ctx, func(ctx context.Context) error {
		current, err := s.repo.GetByID(ctx, loc.ID)
		if err != nil {
			return err
		}
		if current.Code != loc.Code {
			return apperror.NewValidation("location code cannot be changed").
				WithDetail("field", "code")
		}
		loc.AutoCreated = false
		loc.CreatedAt = current.CreatedAt
		loc.CreatedBy = current.CreatedBy
		loc.UpdatedAt = time.Now().UTC()
		loc.SetUpdatedBy(security.ActorOrSystem(ctx))
		return s.repo.Update(ctx, loc)
	})
}

// Delete sets the deletion mark. Quantities held at the location are left
// untouched.
func (s *Service) Delete(ctx context.Context, locID id.ID) error {
	loc, err := s.repo.GetByID(ctx, locID)
	if err != nil {
		return err
	}
	if err := s.repo.SetDeletionMark(ctx, locID, true); err != nil {
		return err
	}
	if err := s.hooks.Run(ctx, domain.AfterDelete, loc); err != nil {
		logger.Warn(ctx, "after-delete hook failed", "error", err)
	}
	return nil
}

// Ensure returns the location for a code, creating a placeholder when it
// does not exist yet. Runs in the caller's transaction when there is one.
func (s *Service) Ensure(ctx context.Context, code string) (*Location, bool, error) {
	key := CanonicalKey(code)
	if key == "" {
		return nil, false, apperror.NewValidation("location code is required")
	}

	existing, err := s.repo.GetByCode(ctx, key)
	if err == nil {
		return existing, false, nil
	}
	if !apperror.IsNotFound(err) {
		return nil, false, fmt.Errorf("get location %s: %w", key, err)
	}

	loc := NewPlaceholder(key)
	loc.SetCreatedBy(security.ActorOrSystem(ctx))
	created, err := s.repo.CreateIfAbsent(ctx, loc)
	if err != nil {
		return nil, false, fmt.Errorf("create placeholder %s: %w", key, err)
	}
	if !created {
		existing, err = s.repo.GetByCode(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return existing, false, nil
	}

	logger.Info(ctx, "placeholder location created", "code", key)
	return loc, true, nil
}
