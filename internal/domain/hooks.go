package domain

import "context"

// HookEvent names a point in an entity's lifecycle.
type HookEvent string

const (
	BeforeCreate HookEvent = "before_create"
	AfterCreate  HookEvent = "after_create"
	BeforeUpdate HookEvent = "before_update"
	AfterUpdate  HookEvent = "after_update"
	BeforeDelete HookEvent = "before_delete"
	AfterDelete  HookEvent = "after_delete"
)

// Hook runs inside the operation's transaction; an error aborts it.
type Hook[T any] func(ctx context.Context, entity T) error

// HookRegistry keeps hooks per event in registration order. Registration
// happens during wiring and is not synchronised with Run.
type HookRegistry[T any] struct {
	hooks map[HookEvent][]Hook[T]
}

func NewHookRegistry[T any]() *HookRegistry[T] {
	return &HookRegistry[T]{hooks: map[HookEvent][]Hook[T]{}}
}

func (r *HookRegistry[T]) On(event HookEvent, hook Hook[T]) {
	r.hooks[event] = append(r.hooks[event], hook)
}

// Run calls the hooks for event until one fails.
func (r *HookRegistry[T]) Run(ctx context.Context, event HookEvent, entity T) error {
	for _, h := range r.hooks[event] {
		if err := h(ctx, entity); err != nil {
			return err
		}
	}
	return nil
}
