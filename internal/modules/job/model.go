// Package job owns the ride/delivery aggregate and its status state
// machine. Every status write goes through a conditional update keyed on
// (status, status_version); the transition table below is the single
// authority on which writes are legal.
package job

import (
	"time"

	"beam/internal/types"
)

type Kind string

const (
	KindRide     Kind = "ride"
	KindDelivery Kind = "delivery"
)

type Status string

const (
	StatusNone       Status = "none"
	StatusRequested  Status = "requested"
	StatusAccepted   Status = "accepted"
	StatusInProgress Status = "in_progress"
	StatusCompleted  Status = "completed"
	StatusCancelled  Status = "cancelled"
)

type NegotiationStatus string

const (
	NegotiationNone     NegotiationStatus = "none"
	NegotiationPending  NegotiationStatus = "pending"
	NegotiationAccepted NegotiationStatus = "accepted"
	NegotiationRejected NegotiationStatus = "rejected"
)

// Cancellation reasons the engine cares about. Only ReasonNoShow unlocks a
// platform fee refund.
const (
	ReasonUserCancel      = "user_cancel"
	ReasonNoShow          = "no_show_timeout"
	ReasonSearchExhausted = "search_exhausted"
)

type Job struct {
	ID            types.ID
	Kind          Kind
	RequesterID   types.ID
	AssigneeID    *types.ID
	Status        Status
	StatusVersion int

	Pickup         types.Point
	Dropoff        types.Point
	PickupAddress  string
	DropoffAddress string
	ServiceClass   string
	Region         string

	BaseFare  types.Money
	TopUpFare types.Money
	TotalFare types.Money

	PlatformFeeCharged  bool
	PlatformFeeRefunded bool

	NegotiationStatus   NegotiationStatus
	NegotiationAssignee *types.ID
	NegotiationTopUp    *types.Money

	SearchRadiusM    int
	MaxRadiusReached bool
	NotifiedIDs      []types.ID

	CancelReason *string

	CreatedAt   time.Time
	AcceptedAt  *time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	CancelledAt *time.Time
}

func (j *Job) IsTerminal() bool {
	return j.Status == StatusCompleted || j.Status == StatusCancelled
}

// Event is one audit record of a status transition.
type Event struct {
	ID        int64
	JobID     types.ID
	From      Status
	To        Status
	ActorType string
	ActorID   *types.ID
	CreatedAt time.Time
}

// AllowedTransitions is the canonical status flow. Terminal states have no
// outgoing edges.
var AllowedTransitions = map[Status][]Status{
	StatusRequested:  {StatusAccepted, StatusCancelled},
	StatusAccepted:   {StatusInProgress, StatusCancelled},
	StatusInProgress: {StatusCompleted, StatusCancelled},
}

func CanTransition(from, to Status) bool {
	for _, s := range AllowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// StatusLabel maps the canonical status to the wording each vertical shows
// its users. Deliveries speak of couriers picking up and delivering parcels.
func StatusLabel(kind Kind, status Status) string {
	if kind != KindDelivery {
		return string(status)
	}
	switch status {
	case StatusAccepted:
		return "assigned"
	case StatusInProgress:
		return "in_transit"
	case StatusCompleted:
		return "delivered"
	default:
		return string(status)
	}
}
