// Package location provides the location directory and canonical location
// keys used by every ledger and counting path.
package location

import (
	"context"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
)

// Placeholder is the location assigned to stock that has no known home.
const Placeholder = "UNASSIGNED"

// Location is a physical storage place. Capacity and occupancy are
// informational; the ledger never enforces them.
type Location struct {
	entity.BaseDocument

	// Code is the canonical key, unique across the directory
	Code string `db:"code" json:"code"`
	Name string `db:"name" json:"name"`

	Zone    string `db:"zone" json:"zone,omitempty"`
	Level   string `db:"level" json:"level,omitempty"`
	Section string `db:"section" json:"section,omitempty"`

	Capacity  *int64 `db:"capacity" json:"capacity,omitempty"`
	Occupancy int64  `db:"occupancy" json:"occupancy"`

	// AutoCreated marks placeholders vivified by snapshot sync
	AutoCreated bool `db:"auto_created" json:"autoCreated"`
}

// NewLocation creates a location with a canonical code.
func NewLocation(code, name, zone string) *Location {
	key := CanonicalKey(code)
	if name == "" {
		name = strings.TrimSpace(code)
	}
	return &Location{
		BaseDocument: entity.NewBaseDocument(),
		Code:         key,
		Name:         name,
		Zone:         strings.TrimSpace(zone),
	}
}

// NewPlaceholder creates the minimal record Sync writes for an unknown code.
func NewPlaceholder(code string) *Location {
	loc := NewLocation(code, "", "")
	loc.AutoCreated = true
	return loc
}

// Validate implements entity.Validatable.
func (l *Location) Validate(ctx context.Context) error {
	if l.Code == "" {
		return apperror.NewValidation("location code is required").
			WithDetail("field", "code")
	}
	if l.Code != CanonicalKey(l.Code) {
		return apperror.NewValidation("location code must be canonical").
			WithDetail("field", "code").
			WithDetail("value", l.Code).
			WithDetail("canonical", CanonicalKey(l.Code))
	}
	if l.Capacity != nil && *l.Capacity < 0 {
		return apperror.NewValidation("capacity cannot be negative").
			WithDetail("field", "capacity")
	}
	if l.Occupancy < 0 {
		return apperror.NewValidation("occupancy cannot be negative").
			WithDetail("field", "occupancy")
	}
	return nil
}

// CanonicalKey resolves a raw location label to its key: the trimmed text of
// the first parenthesized group when present, otherwise the trimmed label.
// "Warehouse A (A1)" and " A1 " both resolve to "A1".
func CanonicalKey(raw string) string {
	if open := strings.IndexByte(raw, '('); open >= 0 {
		if end := strings.IndexByte(raw[open+1:], ')'); end >= 0 {
			if inner := strings.TrimSpace(raw[open+1 : open+1+end]); inner != "" {
				return inner
			}
		}
	}
	return strings.TrimSpace(raw)
}

// MergeCounts returns a new map holding both inputs under canonical keys.
// Values of keys that collapse together are summed. Empty keys are dropped.
func MergeCounts(dst, src map[string]int64) map[string]int64 {
	out := make(map[string]int64, len(dst)+len(src))
	for _, m := range []map[string]int64{dst, src} {
		for k, v := range m {
			key := CanonicalKey(k)
			if key == "" {
				continue
			}
			out[key] += v
		}
	}
	return out
}
