package ledger

import (
	"context"
	"strings"

	"stockledger/internal/core/apperror"
	"stockledger/internal/core/entity"
	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/location"
)

// ABCClass is the velocity class used to scope cycle counts.
type ABCClass string

const (
	ClassA    ABCClass = "A"
	ClassB    ABCClass = "B"
	ClassC    ABCClass = "C"
	ClassNone ABCClass = ""
)

// StockItem is a product position: the aggregate on-hand quantity and its
// per-location breakdown. Quantities change only through ledger operations.
type StockItem struct {
	entity.BaseDocument

	// Code is the SKU; active items sharing a code are duplicates
	Code     string      `db:"code" json:"code"`
	Name     string      `db:"name" json:"name"`
	Category string      `db:"category" json:"category,omitempty"`
	ABCClass ABCClass    `db:"abc_class" json:"abcClass,omitempty"`
	UnitCost types.Money `db:"unit_cost" json:"unitCost"`

	Quantity        int64      `db:"quantity" json:"quantity"`
	Locations       Quantities `db:"locations" json:"locations"`
	PrimaryLocation string     `db:"primary_location" json:"primaryLocation,omitempty"`

	Active     bool   `db:"active" json:"active"`
	MergedInto *id.ID `db:"merged_into" json:"mergedInto,omitempty"`
}

// NewStockItem creates an empty, active item.
func NewStockItem(code, name string) *StockItem {
	return &StockItem{
		BaseDocument: entity.NewBaseDocument(),
		Code:         strings.TrimSpace(code),
		Name:         name,
		UnitCost:     types.Zero(),
		Locations:    make(Quantities),
		Active:       true,
	}
}

// Validate implements entity.Validatable.
func (it *StockItem) Validate(ctx context.Context) error {
	if strings.TrimSpace(it.Code) == "" {
		return apperror.NewValidation("item code is required").
			WithDetail("field", "code")
	}
	if strings.TrimSpace(it.Name) == "" {
		return apperror.NewValidation("item name is required").
			WithDetail("field", "name")
	}
	switch it.ABCClass {
	case ClassA, ClassB, ClassC, ClassNone:
	default:
		return apperror.NewValidation("abc class must be A, B or C").
			WithDetail("field", "abcClass").
			WithDetail("value", string(it.ABCClass))
	}
	if it.UnitCost.IsNegative() {
		return apperror.NewValidation("unit cost cannot be negative").
			WithDetail("field", "unitCost")
	}
	return nil
}

// Normalize canonicalizes storage-loaded state.
func (it *StockItem) Normalize() {
	it.PrimaryLocation = location.CanonicalKey(it.PrimaryLocation)
	if it.Locations == nil {
		it.Locations = make(Quantities)
		return
	}
	it.Locations = it.Locations.Canonical()
}

// Available returns the quantity that can be sourced from a location.
func (it *StockItem) Available(at string) int64 {
	return Available(it.Quantity, it.Locations, it.PrimaryLocation, at)
}

// Receive adds stock at a location and makes it the primary location.
// Stock inferred at the previous primary is written down explicitly first,
// otherwise it would no longer be inferred anywhere.
func (it *StockItem) Receive(to string, qty int64) error {
	key, err := requireKey(to, "toLocation")
	if err != nil {
		return err
	}
	if err := requirePositive(qty); err != nil {
		return err
	}
	it.ensureMap()
	if old := location.CanonicalKey(it.PrimaryLocation); old != "" && old != key && it.Locations.Get(old) == 0 {
		it.Locations.Set(old, it.Available(old))
	}
	it.Quantity += qty
	it.Locations[key] += qty
	it.PrimaryLocation = key
	return nil
}

// Issue removes stock from a location, inferring availability at the
// primary location when the breakdown is incomplete.
func (it *StockItem) Issue(from string, qty int64) error {
	key, err := requireKey(from, "fromLocation")
	if err != nil {
		return err
	}
	if err := requirePositive(qty); err != nil {
		return err
	}
	available, err := it.source(key, qty)
	if err != nil {
		return err
	}
	if it.Quantity < qty {
		return apperror.NewInsufficientStock(it.ID.String(), key, qty, it.Quantity)
	}
	it.Locations[key] = available - qty
	it.Quantity -= qty
	return nil
}

// Transfer moves stock between two locations. The aggregate is unchanged.
func (it *StockItem) Transfer(from, to string, qty int64) error {
	src, err := requireKey(from, "fromLocation")
	if err != nil {
		return err
	}
	dst, err := requireKey(to, "toLocation")
	if err != nil {
		return err
	}
	if src == dst {
		return apperror.NewValidation("transfer source and destination must differ").
			WithDetail("location", src)
	}
	if err := requirePositive(qty); err != nil {
		return err
	}
	available, err := it.source(src, qty)
	if err != nil {
		return err
	}
	it.Locations[src] = available - qty
	it.Locations[dst] += qty
	return nil
}

// Adjust sets an absolute quantity at a location and on the aggregate.
// The previous values are returned so the adjustment can be reversed.
func (it *StockItem) Adjust(to string, qty int64) (prevLocation, prevAggregate int64, err error) {
	key, err := requireKey(to, "toLocation")
	if err != nil {
		return 0, 0, err
	}
	if qty < 0 {
		return 0, 0, apperror.NewValidation("adjusted quantity cannot be negative").
			WithDetail("field", "quantity")
	}
	it.ensureMap()
	prevLocation, prevAggregate = it.Locations[key], it.Quantity
	it.Locations[key] = qty
	it.Quantity = qty
	return prevLocation, prevAggregate, nil
}

// Absorb merges a duplicate record of the same product into this item.
// The duplicate is zeroed, deactivated and pointed at the survivor.
func (it *StockItem) Absorb(dup *StockItem) {
	it.Locations = Quantities(location.MergeCounts(it.Locations, dup.Locations))
	it.Quantity += dup.Quantity

	dup.Locations = make(Quantities)
	dup.Quantity = 0
	dup.Active = false
	survivor := it.ID
	dup.MergedInto = &survivor
}

// Reverse undoes the effect of a completed movement. Quantities never drop
// below zero; when a clamp happens the outcome records the shortfall.
func (it *StockItem) Reverse(m *Movement) ReversalOutcome {
	it.ensureMap()
	var shortfall int64

	switch m.Type {
	case MovementReceipt:
		shortfall = max(it.take(m.ToLocation, m.Quantity), it.takeAggregate(m.Quantity))
	case MovementIssue:
		it.Locations[location.CanonicalKey(m.FromLocation)] += m.Quantity
		it.Quantity += m.Quantity
	case MovementTransfer:
		to := location.CanonicalKey(m.ToLocation)
		moved := min(m.Quantity, it.Locations[to])
		it.Locations[to] -= moved
		it.Locations[location.CanonicalKey(m.FromLocation)] += moved
		shortfall = m.Quantity - moved
	case MovementAdjustment:
		var prevLoc, prevAgg int64
		if m.PreviousLocationQty != nil {
			prevLoc = *m.PreviousLocationQty
		}
		if m.PreviousAggregate != nil {
			prevAgg = *m.PreviousAggregate
		}
		shortfall = max(
			it.addClamped(m.ToLocation, prevLoc-m.Quantity),
			it.addAggregateClamped(prevAgg-m.Quantity),
		)
	}

	if shortfall > 0 {
		return ReversalOutcome{Kind: ReversalClamped, Shortfall: shortfall}
	}
	return ReversalOutcome{Kind: ReversalExact}
}

// source checks availability at a canonical key and materializes the
// inferred quantity so the breakdown stays convergent with the aggregate.
func (it *StockItem) source(key string, qty int64) (int64, error) {
	it.ensureMap()
	available := it.Available(key)
	if available < qty {
		return 0, apperror.NewInsufficientStock(it.ID.String(), key, qty, available)
	}
	return available, nil
}

func (it *StockItem) take(at string, qty int64) int64 {
	key := location.CanonicalKey(at)
	cur := it.Locations[key]
	if cur >= qty {
		it.Locations[key] = cur - qty
		return 0
	}
	it.Locations[key] = 0
	return qty - cur
}

func (it *StockItem) takeAggregate(qty int64) int64 {
	if it.Quantity >= qty {
		it.Quantity -= qty
		return 0
	}
	short := qty - it.Quantity
	it.Quantity = 0
	return short
}

func (it *StockItem) addClamped(at string, delta int64) int64 {
	if delta >= 0 {
		it.Locations[location.CanonicalKey(at)] += delta
		return 0
	}
	return it.take(at, -delta)
}

func (it *StockItem) addAggregateClamped(delta int64) int64 {
	if delta >= 0 {
		it.Quantity += delta
		return 0
	}
	return it.takeAggregate(-delta)
}

// ensureMap prepares the breakdown for direct indexing by canonical key.
func (it *StockItem) ensureMap() {
	switch {
	case it.Locations == nil:
		it.Locations = make(Quantities)
	case !it.Locations.IsCanonical():
		it.Locations = it.Locations.Canonical()
	}
}

func requireKey(raw, field string) (string, error) {
	key := location.CanonicalKey(raw)
	if key == "" {
		return "", apperror.NewValidation(field+" is required").
			WithDetail("field", field)
	}
	return key, nil
}

func requirePositive(qty int64) error {
	if qty <= 0 {
		return apperror.NewValidation("quantity must be positive").
			WithDetail("field", "quantity").
			WithDetail("value", qty)
	}
	return nil
}
