// Package beaming finds an assignee for an open job by widening a search
// radius around the pickup point, wave by wave, and collecting proposals
// from notified candidates.
package beaming

import (
	"time"

	"beam/internal/types"
)

// Candidate is one available courier/driver known to the geo index.
// Couriers without a recent position never enter the index, so they are
// excluded from waves entirely.
type Candidate struct {
	ID           types.ID
	Position     types.Point
	DistanceM    float64
	VehicleClass string
}

// CourierProfile is the display/identity data attached to a proposal.
type CourierProfile struct {
	ID           types.ID
	Name         string
	Vehicle      string
	VehicleClass string
	Rating       float64
}

// Proposal is a courier's bid on an open job. One proposal per
// (job, courier); resubmitting replaces the previous bid.
type Proposal struct {
	JobID       types.ID    `json:"job_id"`
	CourierID   types.ID    `json:"courier_id"`
	CourierName string      `json:"courier_name"`
	Vehicle     string      `json:"vehicle"`
	Rating      float64     `json:"rating"`
	DistanceM   float64     `json:"distance_m"`
	TopUp       types.Money `json:"top_up"`
	TotalFare   types.Money `json:"total_fare"`
	Notes       string      `json:"notes,omitempty"`
	CreatedAt   time.Time   `json:"created_at"`
}

// Offer is what a notified candidate sees.
type Offer struct {
	JobID         types.ID    `json:"job_id"`
	Kind          string      `json:"kind"`
	Pickup        types.Point `json:"pickup"`
	PickupAddress string      `json:"pickup_address"`
	BaseFare      types.Money `json:"base_fare"`
	DistanceM     float64     `json:"distance_m"`
}
