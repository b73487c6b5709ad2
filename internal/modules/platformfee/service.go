// Package platformfee charges the fixed per-job platform fee exactly once
// at assignment time and refunds it for the single cancellation path that
// deserves one (assignee no-show).
package platformfee

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"beam/internal/modules/job"
	"beam/internal/modules/wallet"
	"beam/internal/observability"
	"beam/internal/types"
)

var ErrNoAssignee = errors.New("job has no assignee")

// JobStore is the slice of the job store the engine needs. The flag
// setters are conditional writes; they report false when the flag was
// already set, which is the at-most-once guard.
type JobStore interface {
	Get(ctx context.Context, id types.ID) (*job.Job, error)
	SetFeeCharged(ctx context.Context, id types.ID) (bool, error)
	SetFeeRefunded(ctx context.Context, id types.ID) (bool, error)
}

// Ledger applies the wallet transaction for a charge or refund.
type Ledger interface {
	Apply(ctx context.Context, cmd wallet.ApplyCommand) (types.Money, error)
}

type Engine struct {
	jobs   JobStore
	ledger Ledger
	fee    types.Money
	log    zerolog.Logger
}

func NewEngine(jobs JobStore, ledger Ledger, fee types.Money, log zerolog.Logger) *Engine {
	return &Engine{jobs: jobs, ledger: ledger, fee: fee, log: log}
}

type ChargeResult struct {
	Charged bool   `json:"charged"`
	Reason  string `json:"reason,omitempty"`
}

type RefundResult struct {
	Refunded bool   `json:"refunded"`
	Reason   string `json:"reason,omitempty"`
}

// ChargeForJob deducts the platform fee from the job's assignee. The
// charged flag is checked first and is the single source of truth: a
// retry of the whole operation after a partial failure is safe because a
// prior successful charge short-circuits here.
func (e *Engine) ChargeForJob(ctx context.Context, jobID types.ID) (ChargeResult, error) {
	j, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return ChargeResult{}, err
	}
	if j.PlatformFeeCharged {
		return ChargeResult{Charged: false, Reason: "already charged"}, nil
	}
	if j.AssigneeID == nil {
		return ChargeResult{}, ErrNoAssignee
	}

	_, err = e.ledger.Apply(ctx, wallet.ApplyCommand{
		UserID:    *j.AssigneeID,
		Amount:    e.fee.Neg(),
		Type:      wallet.TxDeduct,
		Reference: "platform_fee",
		JobID:     &j.ID,
	})
	if err != nil {
		observability.FeeFailures.Inc()
		return ChargeResult{}, fmt.Errorf("platform fee deduct for job %s: %w", jobID, err)
	}

	ok, err := e.jobs.SetFeeCharged(ctx, jobID)
	if err != nil {
		// The deduct is committed but the flag write failed; the caller
		// retries the whole operation and the flag check above keeps it
		// from deducting twice only once this write eventually lands.
		observability.FeeFailures.Inc()
		return ChargeResult{}, fmt.Errorf("mark fee charged for job %s: %w", jobID, err)
	}
	if !ok {
		e.log.Warn().Str("job_id", string(jobID)).Msg("fee charged flag already set by a racing charge")
		return ChargeResult{Charged: false, Reason: "already charged"}, nil
	}

	observability.FeeCharges.Inc()
	e.log.Info().
		Str("job_id", string(jobID)).
		Str("assignee_id", string(*j.AssigneeID)).
		Int64("fee_cents", e.fee.Amount).
		Msg("platform fee charged")
	return ChargeResult{Charged: true}, nil
}

// RefundForJob returns the fee for the assignee no-show cancellation path
// only. Every other cancellation keeps the fee: the matching work was
// already done. Each failed precondition names itself and mutates nothing.
func (e *Engine) RefundForJob(ctx context.Context, jobID types.ID) (RefundResult, error) {
	j, err := e.jobs.Get(ctx, jobID)
	if err != nil {
		return RefundResult{}, err
	}
	switch {
	case j.Status != job.StatusCancelled:
		return RefundResult{Refunded: false, Reason: "job not cancelled"}, nil
	case j.CancelReason == nil || *j.CancelReason != job.ReasonNoShow:
		return RefundResult{Refunded: false, Reason: "not a no-show cancellation"}, nil
	case !j.PlatformFeeCharged:
		return RefundResult{Refunded: false, Reason: "fee never charged"}, nil
	case j.PlatformFeeRefunded:
		return RefundResult{Refunded: false, Reason: "already refunded"}, nil
	}
	if j.AssigneeID == nil {
		return RefundResult{}, ErrNoAssignee
	}

	_, err = e.ledger.Apply(ctx, wallet.ApplyCommand{
		UserID:    *j.AssigneeID,
		Amount:    e.fee,
		Type:      wallet.TxAdjust,
		Reference: "platform_fee_refund",
		JobID:     &j.ID,
	})
	if err != nil {
		observability.FeeFailures.Inc()
		return RefundResult{}, fmt.Errorf("platform fee refund for job %s: %w", jobID, err)
	}

	ok, err := e.jobs.SetFeeRefunded(ctx, jobID)
	if err != nil {
		observability.FeeFailures.Inc()
		return RefundResult{}, fmt.Errorf("mark fee refunded for job %s: %w", jobID, err)
	}
	if !ok {
		e.log.Warn().Str("job_id", string(jobID)).Msg("fee refunded flag already set by a racing refund")
		return RefundResult{Refunded: false, Reason: "already refunded"}, nil
	}

	observability.FeeRefunds.Inc()
	e.log.Info().
		Str("job_id", string(jobID)).
		Str("assignee_id", string(*j.AssigneeID)).
		Msg("platform fee refunded")
	return RefundResult{Refunded: true}, nil
}
