// Package snapshot materializes the ledger into per-location inventory
// records that cycle counts freeze and approvals write back to.
package snapshot

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/domain"
)

// Record is the quantity of one item at one location and lot.
// (ItemID, LocationCode, Lot) is unique.
type Record struct {
	ID           id.ID  `db:"id" json:"id"`
	ItemID       id.ID  `db:"item_id" json:"itemId"`
	LocationCode string `db:"location_code" json:"locationCode"`
	Lot          string `db:"lot" json:"lot"`

	Quantity  int64      `db:"quantity" json:"quantity"`
	Reserved  int64      `db:"reserved" json:"reserved"`
	ExpiresAt *time.Time `db:"expires_at" json:"expiresAt,omitempty"`

	LastCountedAt  *time.Time `db:"last_counted_at" json:"lastCountedAt,omitempty"`
	LastMovementAt *time.Time `db:"last_movement_at" json:"lastMovementAt,omitempty"`
	UpdatedAt      time.Time  `db:"updated_at" json:"updatedAt"`
}

// Key is the natural key of a record.
type Key struct {
	ItemID       id.ID
	LocationCode string
	Lot          string
}

// Key returns the record's natural key.
func (r *Record) Key() Key {
	return Key{ItemID: r.ItemID, LocationCode: r.LocationCode, Lot: r.Lot}
}

// NewRecord creates a record for the default lot.
func NewRecord(itemID id.ID, locationCode string, qty int64, at time.Time) *Record {
	return &Record{
		ID:           id.New(),
		ItemID:       itemID,
		LocationCode: locationCode,
		Quantity:     qty,
		UpdatedAt:    at,
	}
}

// Filter narrows snapshot lists.
type Filter struct {
	domain.ListFilter

	ItemID       *id.ID
	LocationCode string
	Zones        []string

	// NonZero hides records with zero quantity
	NonZero bool
}

// SyncResult summarizes one Sync run.
type SyncResult struct {
	Items            int       `json:"items"`
	Records          int       `json:"records"`
	Changed          int64     `json:"changed"`
	LocationsCreated int       `json:"locationsCreated"`
	Zeroed           int64     `json:"zeroed"`
	StartedAt        time.Time `json:"startedAt"`
	FinishedAt       time.Time `json:"finishedAt"`
}
