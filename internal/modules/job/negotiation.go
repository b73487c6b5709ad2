package job

import (
	"context"
	"errors"

	"beam/internal/types"
)

// ErrNegotiationNotPending is returned when accept/reject is called
// outside the pending state. Silent success here would hide double-accept
// bugs, so the failure is loud.
var ErrNegotiationNotPending = errors.New("negotiation not pending")

type NegotiateCommand struct {
	JobID      types.ID
	AssigneeID types.ID
	TopUp      types.Money
}

// ProposeCounterOffer opens (or updates) a two-party negotiation on an
// unassigned, still-requested job. The assignee and top-up are held aside
// in negotiation fields; they only land on the job itself at accept time,
// which keeps the null-assignee accept guard intact.
func (s *Service) ProposeCounterOffer(ctx context.Context, cmd NegotiateCommand) error {
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
	if j.Status != StatusRequested {
		return ErrInvalidState
	}
	if j.NegotiationStatus == NegotiationAccepted {
		return ErrInvalidState
	}
	ok, err := s.store.ProposeNegotiation(ctx, cmd.JobID, cmd.AssigneeID, cmd.TopUp)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.log.Info().
		Str("job_id", string(cmd.JobID)).
		Str("assignee_id", string(cmd.AssigneeID)).
		Int64("top_up_cents", cmd.TopUp.Amount).
		Msg("counter-offer proposed")
	return nil
}

// AcceptNegotiation commits the pending counter-offer: the negotiated
// assignee and top-up become the job's assignment, total = base + top-up,
// and the job transitions to accepted. Only valid from pending.
func (s *Service) AcceptNegotiation(ctx context.Context, jobID types.ID) error {
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.NegotiationStatus != NegotiationPending {
		return ErrNegotiationNotPending
	}
	if j.NegotiationAssignee == nil {
		return ErrConflict
	}
	if !CanTransition(j.Status, StatusAccepted) {
		return ErrInvalidState
	}
	ok, err := s.store.AcceptNegotiation(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.recordEvent(ctx, jobID, j.Status, StatusAccepted, "negotiation", j.NegotiationAssignee)
	s.publish(ctx, jobID, StatusAccepted)
	s.chargeFee(ctx, jobID)
	return nil
}

// RejectNegotiation closes the pending counter-offer and returns the job
// to open search: negotiated assignee and top-up are cleared. Only valid
// from pending.
func (s *Service) RejectNegotiation(ctx context.Context, jobID types.ID) error {
	j, err := s.store.Get(ctx, jobID)
	if err != nil {
		return err
	}
	if j.NegotiationStatus != NegotiationPending {
		return ErrNegotiationNotPending
	}
	ok, err := s.store.RejectNegotiation(ctx, jobID)
	if err != nil {
		return err
	}
	if !ok {
		return ErrConflict
	}
	s.log.Info().Str("job_id", string(jobID)).Msg("counter-offer rejected; job back to open search")
	return nil
}
