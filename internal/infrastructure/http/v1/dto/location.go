package dto

import (
	"time"

	"stockledger/internal/domain/location"
)

// CreateLocationRequest is the request body for creating a location.
type CreateLocationRequest struct {
	Code      string `json:"code" binding:"required"`
	Name      string `json:"name"`
	Zone      string `json:"zone"`
	Level     string `json:"level"`
	Section   string `json:"section"`
	Capacity  *int64 `json:"capacity"`
	Occupancy int64  `json:"occupancy"`
}

// ToEntity converts DTO to domain entity. The code is canonicalized.
func (r *CreateLocationRequest) ToEntity() *location.Location {
	loc := location.NewLocation(r.Code, r.Name, r.Zone)
	loc.Level = r.Level
	loc.Section = r.Section
	loc.Capacity = r.Capacity
	loc.Occupancy = r.Occupancy
	return loc
}

// UpdateLocationRequest is the request body for updating a location.
// The code cannot change.
type UpdateLocationRequest struct {
	Name      string `json:"name" binding:"required"`
	Zone      string `json:"zone"`
	Level     string `json:"level"`
	Section   string `json:"section"`
	Capacity  *int64 `json:"capacity"`
	Occupancy int64  `json:"occupancy"`
	Version   int    `json:"version" binding:"required,min=1"`
}

// ApplyTo applies update DTO to existing entity.
func (r *UpdateLocationRequest) ApplyTo(loc *location.Location) {
	loc.Name = r.Name
	loc.Zone = r.Zone
	loc.Level = r.Level
	loc.Section = r.Section
	loc.Capacity = r.Capacity
	loc.Occupancy = r.Occupancy
	loc.Version = r.Version
}

// LocationListQuery filters GET /locations.
type LocationListQuery struct {
	ListQuery
	Zones       []string `form:"zone"`
	AutoCreated *bool    `form:"autoCreated"`
}

// ToFilter converts the query to a domain filter.
func (q LocationListQuery) ToFilter() location.ListFilter {
	return location.ListFilter{
		ListFilter:  q.ListQuery.ToFilter(),
		Zones:       q.Zones,
		AutoCreated: q.AutoCreated,
	}
}

// LocationResponse is the response body for a location.
type LocationResponse struct {
	ID           string    `json:"id"`
	Code         string    `json:"code"`
	Name         string    `json:"name"`
	Zone         string    `json:"zone,omitempty"`
	Level        string    `json:"level,omitempty"`
	Section      string    `json:"section,omitempty"`
	Capacity     *int64    `json:"capacity,omitempty"`
	Occupancy    int64     `json:"occupancy"`
	AutoCreated  bool      `json:"autoCreated"`
	DeletionMark bool      `json:"deletionMark"`
	Version      int       `json:"version"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

// FromLocation creates response DTO from domain entity.
func FromLocation(loc *location.Location) LocationResponse {
	return LocationResponse{
		ID:           loc.ID.String(),
		Code:         loc.Code,
		Name:         loc.Name,
		Zone:         loc.Zone,
		Level:        loc.Level,
		Section:      loc.Section,
		Capacity:     loc.Capacity,
		Occupancy:    loc.Occupancy,
		AutoCreated:  loc.AutoCreated,
		DeletionMark: loc.DeletionMark,
		Version:      loc.Version,
		CreatedAt:    loc.CreatedAt,
		UpdatedAt:    loc.UpdatedAt,
	}
}
