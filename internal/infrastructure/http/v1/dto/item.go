package dto

import (
	"time"

	"stockledger/internal/core/id"
	"stockledger/internal/core/types"
	"stockledger/internal/domain/ledger"
)

// CreateItemRequest is the request body for creating a stock item.
// Items start empty; quantities arrive through movements.
type CreateItemRequest struct {
	Code     string      `json:"code" binding:"required"`
	Name     string      `json:"name" binding:"required"`
	Category string      `json:"category"`
	ABCClass string      `json:"abcClass"`
	UnitCost types.Money `json:"unitCost"`
}

// ToEntity converts DTO to domain entity.
func (r *CreateItemRequest) ToEntity() *ledger.StockItem {
	item := ledger.NewStockItem(r.Code, r.Name)
	item.Category = r.Category
	item.ABCClass = ledger.ABCClass(r.ABCClass)
	item.UnitCost = r.UnitCost
	return item
}

// UpdateItemRequest is the request body for updating catalog fields.
type UpdateItemRequest struct {
	Name     string      `json:"name" binding:"required"`
	Category string      `json:"category"`
	ABCClass string      `json:"abcClass"`
	UnitCost types.Money `json:"unitCost"`
	Version  int         `json:"version" binding:"required,min=1"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateItemRequest) ApplyTo(item *ledger.StockItem) {
	item.Name = r.Name
	item.Category = r.Category
	item.ABCClass = ledger.ABCClass(r.ABCClass)
	item.UnitCost = r.UnitCost
	item.Version = r.Version
}

// ItemListQuery filters GET /items.
type ItemListQuery struct {
	ListQuery
	Categories []string `form:"category"`
	Classes    []string `form:"abcClass"`
	Location   string   `form:"location"`
	ActiveOnly bool     `form:"activeOnly"`
}

// ToFilter converts the query to a domain filter.
func (q ItemListQuery) ToFilter() ledger.ItemFilter {
	classes := make([]ledger.ABCClass, 0, len(q.Classes))
	for _, c := range q.Classes {
		classes = append(classes, ledger.ABCClass(c))
	}
	return ledger.ItemFilter{
		ListFilter: q.ListQuery.ToFilter(),
		Categories: q.Categories,
		Classes:    classes,
		Location:   q.Location,
		ActiveOnly: q.ActiveOnly,
	}
}

// ItemResponse is the response body for a stock item.
type ItemResponse struct {
	ID              string           `json:"id"`
	Code            string           `json:"code"`
	Name            string           `json:"name"`
	Category        string           `json:"category,omitempty"`
	ABCClass        string           `json:"abcClass,omitempty"`
	UnitCost        types.Money      `json:"unitCost"`
	Quantity        int64            `json:"quantity"`
	Locations       map[string]int64 `json:"locations"`
	PrimaryLocation string           `json:"primaryLocation,omitempty"`
	Active          bool             `json:"active"`
	MergedInto      *string          `json:"mergedInto,omitempty"`
	Version         int              `json:"version"`
	CreatedAt       time.Time        `json:"createdAt"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}

// FromItem creates response DTO from domain entity.
func FromItem(item *ledger.StockItem) ItemResponse {
	locations := make(map[string]int64, len(item.Locations))
	for k, v := range item.Locations {
		locations[k] = v
	}
	var merged *string
	if item.MergedInto != nil {
		s := item.MergedInto.String()
		merged = &s
	}
	return ItemResponse{
		ID:              item.ID.String(),
		Code:            item.Code,
		Name:            item.Name,
		Category:        item.Category,
		ABCClass:        string(item.ABCClass),
		UnitCost:        item.UnitCost,
		Quantity:        item.Quantity,
		Locations:       locations,
		PrimaryLocation: item.PrimaryLocation,
		Active:          item.Active,
		MergedInto:      merged,
		Version:         item.Version,
		CreatedAt:       item.CreatedAt,
		UpdatedAt:       item.UpdatedAt,
	}
}

// ItemMovementRequest is the body of POST /items/:id/{receipt,issue,transfer,adjustment}.
// Receipt needs To, issue needs From, transfer needs both; adjustment sets
// the absolute quantity at To.
type ItemMovementRequest struct {
	Quantity  int64  `json:"quantity" binding:"min=0"`
	From      string `json:"from"`
	To        string `json:"to"`
	BatchKey  string `json:"batchKey"`
	Reference string `json:"reference"`
}

// ToCommand converts DTO to a ledger command.
func (r *ItemMovementRequest) ToCommand(itemID id.ID) ledger.Command {
	return ledger.Command{
		ItemID:    itemID,
		Quantity:  r.Quantity,
		From:      r.From,
		To:        r.To,
		BatchKey:  r.BatchKey,
		Reference: r.Reference,
	}
}

// MovementResultResponse is the item state after a movement.
type MovementResultResponse struct {
	Item     ItemResponse     `json:"item"`
	Movement MovementResponse `json:"movement"`
}

// FromResult creates response DTO from a ledger result.
func FromResult(res *ledger.Result) MovementResultResponse {
	out := MovementResultResponse{Movement: FromMovement(res.Movement)}
	if res.Item != nil {
		out.Item = FromItem(res.Item)
	}
	return out
}
