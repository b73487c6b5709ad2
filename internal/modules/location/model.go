package location

import (
	"time"

	"beam/internal/types"
)

// Sample is one courier position report.
type Sample struct {
	CourierID    types.ID
	Position     types.Point
	VehicleClass string
	Heading      float64
	SpeedKmh     float64
	RecordedAt   time.Time
}

// Snapshot is a persisted sample, kept for trip replay and audits.
type Snapshot struct {
	ID         int64
	CourierID  types.ID
	Position   types.Point
	RecordedAt time.Time
}
