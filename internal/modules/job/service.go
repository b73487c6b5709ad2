package job

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"beam/internal/geo"
	"beam/internal/modules/pricing"
	"beam/internal/types"
)

var (
	ErrNotFound     = errors.New("job not found")
	ErrBadRequest   = errors.New("bad request")
	ErrInvalidState = errors.New("invalid transition")
	// ErrConflict is what the loser of a conditional-update race sees:
	// the job is no longer available in the state they observed.
	ErrConflict = errors.New("job no longer available")
)

// StatusWrite carries the optional column writes that ride along with a
// status transition.
type StatusWrite struct {
	// AssigneeID is set on accept. When non-nil the update additionally
	// requires the current assignee to be null, so two racing accepts
	// cannot both win.
	AssigneeID *types.ID
	TopUp      *types.Money
	Total      *types.Money
	Reason     *string
	// MaxRadiusReached is set when the search loop cancels an exhausted job.
	MaxRadiusReached bool
}

// Store is the persistence contract for jobs. All mutations are
// conditional on the (status, status_version) the caller read; zero rows
// affected reports false.
type Store interface {
	Create(ctx context.Context, j *Job) error
	Get(ctx context.Context, id types.ID) (*Job, error)
	UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, w StatusWrite) (bool, error)
	RecordWave(ctx context.Context, id types.ID, radiusM int, notified []types.ID) error
	ReopenForBidding(ctx context.Context, id types.ID) (bool, error)
	ProposeNegotiation(ctx context.Context, id, assignee types.ID, topUp types.Money) (bool, error)
	AcceptNegotiation(ctx context.Context, id types.ID) (bool, error)
	RejectNegotiation(ctx context.Context, id types.ID) (bool, error)
	SetFeeCharged(ctx context.Context, id types.ID) (bool, error)
	SetFeeRefunded(ctx context.Context, id types.ID) (bool, error)
	AppendEvent(ctx context.Context, e *Event) error
	EventsFor(ctx context.Context, jobID types.ID) ([]Event, error)
}

// FeeCharger charges the one-time platform fee after an assignment lands.
type FeeCharger interface {
	ChargeForJob(ctx context.Context, jobID types.ID) error
}

// FeeChargerFunc adapts a function to the FeeCharger interface.
type FeeChargerFunc func(ctx context.Context, jobID types.ID) error

func (f FeeChargerFunc) ChargeForJob(ctx context.Context, jobID types.ID) error {
	return f(ctx, jobID)
}

// FeeRefunder reverses the platform fee when a charged job dies through no
// fault of the assignee.
type FeeRefunder interface {
	RefundForJob(ctx context.Context, jobID types.ID) error
}

// FeeRefunderFunc adapts a function to the FeeRefunder interface.
type FeeRefunderFunc func(ctx context.Context, jobID types.ID) error

func (f FeeRefunderFunc) RefundForJob(ctx context.Context, jobID types.ID) error {
	return f(ctx, jobID)
}

// StatusFeed receives fire-and-forget status change notifications for the
// realtime feed. Failures must never block a transition.
type StatusFeed interface {
	PublishStatus(ctx context.Context, jobID types.ID, status Status)
}

// Pricing produces the base fare quote at job creation.
type Pricing interface {
	Quote(ctx context.Context, serviceClass, region string, distanceKm, timeMin float64) (pricing.Quote, error)
}

type Service struct {
	store   Store
	pricing Pricing
	fees    FeeCharger  // optional
	refunds FeeRefunder // optional
	feed    StatusFeed  // optional
	log     zerolog.Logger
}

func NewService(store Store, pricing Pricing, log zerolog.Logger) *Service {
	return &Service{store: store, pricing: pricing, log: log}
}

// SetFeeCharger wires the platform fee engine. Set after construction to
// break the engine's dependency on this service's store.
func (s *Service) SetFeeCharger(f FeeCharger) { s.fees = f }

func (s *Service) SetFeeRefunder(f FeeRefunder) { s.refunds = f }

func (s *Service) SetStatusFeed(f StatusFeed) { s.feed = f }

type CreateCommand struct {
	Kind           Kind
	RequesterID    types.ID
	Pickup         types.Point
	Dropoff        types.Point
	PickupAddress  string
	DropoffAddress string
	ServiceClass   string
	Region         string
}

type AssignCommand struct {
	JobID      types.ID
	AssigneeID types.ID
	TopUp      types.Money
}

type StartCommand struct {
	JobID   types.ID
	ActorID types.ID
}

type CompleteCommand struct {
	JobID   types.ID
	ActorID types.ID
}

type CancelCommand struct {
	JobID     types.ID
	ActorType string
	ActorID   *types.ID
	Reason    string
}

func (s *Service) Create(ctx context.Context, cmd CreateCommand) (*Job, error) {
	if cmd.RequesterID == "" || cmd.ServiceClass == "" || cmd.Region == "" {
		return nil, ErrBadRequest
	}
	if cmd.Kind != KindRide && cmd.Kind != KindDelivery {
		return nil, ErrBadRequest
	}

	distKm := geo.DistanceKm(cmd.Pickup.Lat, cmd.Pickup.Lng, cmd.Dropoff.Lat, cmd.Dropoff.Lng)
	quote, err := s.pricing.Quote(ctx, cmd.ServiceClass, cmd.Region, distKm, 0)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	j := &Job{
		ID:                types.ID(uuid.NewString()),
		Kind:              cmd.Kind,
		RequesterID:       cmd.RequesterID,
		Status:            StatusRequested,
		Pickup:            cmd.Pickup,
		Dropoff:           cmd.Dropoff,
		PickupAddress:     cmd.PickupAddress,
		DropoffAddress:    cmd.DropoffAddress,
		ServiceClass:      cmd.ServiceClass,
		Region:            cmd.Region,
		BaseFare:          quote.Total,
		TopUpFare:         types.Money{Currency: quote.Total.Currency},
		TotalFare:         quote.Total,
		NegotiationStatus: NegotiationNone,
		CreatedAt:         now,
	}
	if err := s.store.Create(ctx, j); err != nil {
		return nil, err
	}
	s.recordEvent(ctx, j.ID, StatusNone, StatusRequested, string(cmd.Kind)+"_requester", &cmd.RequesterID)
	s.publish(ctx, j.ID, StatusRequested)
	return j, nil
}

func (s *Service) Get(ctx context.Context, id types.ID) (*Job, error) {
	return s.store.Get(ctx, id)
}

// Events returns the job's transition audit trail, oldest first.
func (s *Service) Events(ctx context.Context, id types.ID) ([]Event, error) {
	if _, err := s.store.Get(ctx, id); err != nil {
		return nil, err
	}
	return s.store.EventsFor(ctx, id)
}

// Assign moves a requested job to accepted for one assignee. The store's
// conditional update also requires a null assignee, so exactly one of any
// concurrent accepts wins; losers get ErrConflict. The platform fee is
// charged best-effort after the transition commits.
func (s *Service) Assign(ctx context.Context, cmd AssignCommand) error {
	if cmd.AssigneeID == "" {
		return ErrBadRequest
	}
	if cmd.TopUp.IsNegative() {
		return ErrBadRequest
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return err
	}
	if !CanTransition(j.Status, StatusAccepted) {
		return ErrInvalidState
	}
	if j.AssigneeID != nil {
		return ErrConflict
	}

	total := j.BaseFare.Add(cmd.TopUp)
	ok, err := s.store.UpdateStatus(ctx, j.ID, j.Status, StatusAccepted, j.StatusVersion, StatusWrite{
		AssigneeID: &cmd.AssigneeID,
		TopUp:      &cmd.TopUp,
		Total:      &total,
	})
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.recordEvent(ctx, j.ID, j.Status, StatusAccepted, "assignee", &cmd.AssigneeID)
	s.publish(ctx, j.ID, StatusAccepted)
	s.chargeFee(ctx, j.ID)
	return nil
}

func (s *Service) Start(ctx context.Context, cmd StartCommand) error {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return err
	}
	if j.AssigneeID == nil || *j.AssigneeID != cmd.ActorID {
		return ErrBadRequest
	}
	return s.transition(ctx, j, StatusInProgress, "assignee", &cmd.ActorID, StatusWrite{})
}

func (s *Service) Complete(ctx context.Context, cmd CompleteCommand) error {
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return err
	}
	if j.AssigneeID == nil || *j.AssigneeID != cmd.ActorID {
		return ErrBadRequest
	}
	return s.transition(ctx, j, StatusCompleted, "assignee", &cmd.ActorID, StatusWrite{})
}

func (s *Service) Cancel(ctx context.Context, cmd CancelCommand) error {
	if cmd.Reason == "" {
		return ErrBadRequest
	}
	j, err := s.store.Get(ctx, cmd.JobID)
	if err != nil {
		return err
	}
	if err := s.transition(ctx, j, StatusCancelled, cmd.ActorType, cmd.ActorID, StatusWrite{
		Reason: &cmd.Reason,
	}); err != nil {
		return err
	}
	// A no-show is not the assignee's fault; give the fee back.
	if cmd.Reason == ReasonNoShow {
		s.refundFee(ctx, cmd.JobID)
	}
	return nil
}

// RecordWave appends a search wave's candidates to the job's notified set
// and remembers the radius that produced them.
func (s *Service) RecordWave(ctx context.Context, jobID types.ID, radiusM int, notified []types.ID) error {
	return s.store.RecordWave(ctx, jobID, radiusM, notified)
}

// ReopenForBidding steers an unassigned job back to requested so late
// proposals stay comparable. No-op if the job moved on.
func (s *Service) ReopenForBidding(ctx context.Context, jobID types.ID) error {
	_, err := s.store.ReopenForBidding(ctx, jobID)
	return err
}

// CancelExhausted is the search loop's terminal outcome when the maximum
// radius produced no proposals. Not an error path.
func (s *Service) CancelExhausted(ctx context.Context, jobID types.ID) error {
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	reason := ReasonSearchExhausted
	return s.transition(ctx, j, StatusCancelled, "system", nil, StatusWrite{
		Reason:           &reason,
		MaxRadiusReached: true,
	})
}

func (s *Service) transition(ctx context.Context, j *Job, to Status, actorType string, actorID *types.ID, w StatusWrite) error {
	if !CanTransition(j.Status, to) {
		return ErrInvalidState
	}
	ok, err := s.store.UpdateStatus(ctx, j.ID, j.Status, to, j.StatusVersion, w)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.recordEvent(ctx, j.ID, j.Status, to, actorType, actorID)
	s.publish(ctx, j.ID, to)
	return nil
}

// chargeFee is best-effort: assignment never rolls back over fee
// bookkeeping. Failures are logged for reconciliation; the charged flag on
// the job row keeps a retry safe.
func (s *Service) chargeFee(ctx context.Context, jobID types.ID) {
	if s.fees == nil {
		return
	}
	if err := s.fees.ChargeForJob(ctx, jobID); err != nil {
		s.log.Error().Err(err).
			Str("job_id", string(jobID)).
			Msg("platform fee charge failed; needs reconciliation")
	}
}

// refundFee mirrors chargeFee: best-effort with the refunded flag as the
// at-most-once guard.
func (s *Service) refundFee(ctx context.Context, jobID types.ID) {
	if s.refunds == nil {
		return
	}
	if err := s.refunds.RefundForJob(ctx, jobID); err != nil {
		s.log.Error().Err(err).
			Str("job_id", string(jobID)).
			Msg("platform fee refund failed; needs reconciliation")
	}
}

func (s *Service) recordEvent(ctx context.Context, jobID types.ID, from, to Status, actorType string, actorID *types.ID) {
	err := s.store.AppendEvent(ctx, &Event{
		JobID:     jobID,
		From:      from,
		To:        to,
		ActorType: actorType,
		ActorID:   actorID,
		CreatedAt: time.Now(),
	})
	if err != nil {
		s.log.Warn().Err(err).Str("job_id", string(jobID)).Msg("append status event failed")
	}
}

func (s *Service) publish(ctx context.Context, jobID types.ID, status Status) {
	if s.feed == nil {
		return
	}
	s.feed.PublishStatus(ctx, jobID, status)
}
