// Package pricing computes fare estimates from admin-owned fare
// configurations.
package pricing

import "beam/internal/types"

type FeeType string

const (
	FeeFlat    FeeType = "flat"
	FeePercent FeeType = "percent"
)

// FareConfig is one pricing configuration, keyed by service class and
// region. Read-only at estimation time; admin tooling owns mutation.
type FareConfig struct {
	ServiceClass string
	Region       string
	Currency     string
	Base         types.Money
	PerKm        types.Money
	PerMin       types.Money
	MinFare      types.Money
	FeeType      FeeType
	FeeFlat      types.Money // used when FeeType == FeeFlat
	FeePercent   float64     // used when FeeType == FeePercent, e.g. 10 for 10%
}

// Quote is the result of a fare estimate. Total equals Subtotal; the
// platform fee comes out of the assignee's take, not on top of the fare.
type Quote struct {
	Subtotal    types.Money `json:"subtotal"`
	PlatformFee types.Money `json:"platform_fee"`
	Total       types.Money `json:"total"`
	DriverTake  types.Money `json:"driver_take"`
}
