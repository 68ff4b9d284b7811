package dto

import (
	"stockledger/internal/domain/snapshot"
)

// SnapshotListQuery filters GET /snapshot.
type SnapshotListQuery struct {
	ListQuery
	ItemID   string   `form:"itemId"`
	Location string   `form:"location"`
	Zones    []string `form:"zone"`
	NonZero  bool     `form:"nonZero"`
}

// ToFilter converts the query to a domain filter.
func (q SnapshotListQuery) ToFilter() (snapshot.Filter, error) {
	itemID, err := ParseOptionalID("itemId", q.ItemID)
	if err != nil {
		return snapshot.Filter{}, err
	}
	return snapshot.Filter{
		ListFilter:   q.ListQuery.ToFilter(),
		ItemID:       itemID,
		LocationCode: q.Location,
		Zones:        q.Zones,
		NonZero:      q.NonZero,
	}, nil
}
