package job

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"beam/internal/types"
)

// PGStore persists jobs in Postgres. Status writes are conditional on the
// (status, status_version) pair the caller read, which is the concurrency
// control for the whole state machine.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Create(ctx context.Context, j *Job) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO jobs (
            id, kind, requester_id, assignee_id, status, status_version,
            pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
            pickup_address, dropoff_address, service_class, region,
            base_fare, top_up_fare, total_fare, currency,
            negotiation_status, search_radius_m, notified_ids, created_at
        ) VALUES (
            $1, $2, $3, $4, $5, $6,
            $7, $8, $9, $10,
            $11, $12, $13, $14,
            $15, $16, $17, $18,
            $19, $20, $21, $22
        )`,
		string(j.ID), string(j.Kind), string(j.RequesterID), idPtr(j.AssigneeID),
		string(j.Status), j.StatusVersion,
		j.Pickup.Lat, j.Pickup.Lng, j.Dropoff.Lat, j.Dropoff.Lng,
		j.PickupAddress, j.DropoffAddress, j.ServiceClass, j.Region,
		j.BaseFare.Amount, j.TopUpFare.Amount, j.TotalFare.Amount, j.BaseFare.Currency,
		string(j.NegotiationStatus), j.SearchRadiusM, idsToStrings(j.NotifiedIDs), j.CreatedAt,
	)
	return err
}

func (s *PGStore) Get(ctx context.Context, id types.ID) (*Job, error) {
	row := s.db.QueryRow(ctx, `
        SELECT id, kind, requester_id, assignee_id, status, status_version,
               pickup_lat, pickup_lng, dropoff_lat, dropoff_lng,
               pickup_address, dropoff_address, service_class, region,
               base_fare, top_up_fare, total_fare, currency,
               platform_fee_charged, platform_fee_refunded,
               negotiation_status, negotiation_assignee_id, negotiation_top_up,
               search_radius_m, max_radius_reached, notified_ids, cancel_reason,
               created_at, accepted_at, started_at, completed_at, cancelled_at
        FROM jobs
        WHERE id = $1`, string(id),
	)

	var j Job
	var assignee, negAssignee, cancelReason sql.NullString
	var negTopUp sql.NullInt64
	var currency string
	var notified []string
	var acceptedAt, startedAt, completedAt, cancelledAt sql.NullTime

	err := row.Scan(
		&j.ID, &j.Kind, &j.RequesterID, &assignee, &j.Status, &j.StatusVersion,
		&j.Pickup.Lat, &j.Pickup.Lng, &j.Dropoff.Lat, &j.Dropoff.Lng,
		&j.PickupAddress, &j.DropoffAddress, &j.ServiceClass, &j.Region,
		&j.BaseFare.Amount, &j.TopUpFare.Amount, &j.TotalFare.Amount, &currency,
		&j.PlatformFeeCharged, &j.PlatformFeeRefunded,
		&j.NegotiationStatus, &negAssignee, &negTopUp,
		&j.SearchRadiusM, &j.MaxRadiusReached, &notified, &cancelReason,
		&j.CreatedAt, &acceptedAt, &startedAt, &completedAt, &cancelledAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	j.BaseFare.Currency = currency
	j.TopUpFare.Currency = currency
	j.TotalFare.Currency = currency
	j.AssigneeID = nullToIDPtr(assignee)
	j.NegotiationAssignee = nullToIDPtr(negAssignee)
	if negTopUp.Valid {
		m := types.Money{Amount: negTopUp.Int64, Currency: currency}
		j.NegotiationTopUp = &m
	}
	if cancelReason.Valid {
		j.CancelReason = &cancelReason.String
	}
	j.NotifiedIDs = stringsToIDs(notified)
	j.AcceptedAt = nullToTimePtr(acceptedAt)
	j.StartedAt = nullToTimePtr(startedAt)
	j.CompletedAt = nullToTimePtr(completedAt)
	j.CancelledAt = nullToTimePtr(cancelledAt)
	return &j, nil
}

func (s *PGStore) UpdateStatus(ctx context.Context, id types.ID, from, to Status, version int, w StatusWrite) (bool, error) {
	assigneeGuard := "TRUE"
	if w.AssigneeID != nil {
		assigneeGuard = "assignee_id IS NULL"
	}
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET status = $1,
            status_version = status_version + 1,
            assignee_id = COALESCE($2, assignee_id),
            top_up_fare = COALESCE($3, top_up_fare),
            total_fare = COALESCE($4, total_fare),
            cancel_reason = COALESCE($5, cancel_reason),
            max_radius_reached = max_radius_reached OR $6,
            accepted_at = CASE WHEN $1 = 'accepted' THEN NOW() ELSE accepted_at END,
            started_at = CASE WHEN $1 = 'in_progress' THEN NOW() ELSE started_at END,
            completed_at = CASE WHEN $1 = 'completed' THEN NOW() ELSE completed_at END,
            cancelled_at = CASE WHEN $1 = 'cancelled' THEN NOW() ELSE cancelled_at END
        WHERE id = $7 AND status = $8 AND status_version = $9 AND `+assigneeGuard,
		string(to),
		idPtr(w.AssigneeID),
		moneyPtr(w.TopUp),
		moneyPtr(w.Total),
		w.Reason,
		w.MaxRadiusReached,
		string(id),
		string(from),
		version,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) RecordWave(ctx context.Context, id types.ID, radiusM int, notified []types.ID) error {
	_, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET search_radius_m = $1,
            notified_ids = notified_ids || $2
        WHERE id = $3`,
		radiusM, idsToStrings(notified), string(id),
	)
	return err
}

func (s *PGStore) ReopenForBidding(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET status = 'requested', status_version = status_version + 1
        WHERE id = $1
          AND assignee_id IS NULL
          AND status NOT IN ('requested', 'in_progress', 'completed', 'cancelled')`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) ProposeNegotiation(ctx context.Context, id, assignee types.ID, topUp types.Money) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET negotiation_status = 'pending',
            negotiation_assignee_id = $1,
            negotiation_top_up = $2
        WHERE id = $3
          AND status = 'requested'
          AND assignee_id IS NULL
          AND negotiation_status IN ('none', 'pending', 'rejected')`,
		string(assignee), topUp.Amount, string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AcceptNegotiation(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET status = 'accepted',
            status_version = status_version + 1,
            assignee_id = negotiation_assignee_id,
            top_up_fare = negotiation_top_up,
            total_fare = base_fare + negotiation_top_up,
            negotiation_status = 'accepted',
            accepted_at = NOW()
        WHERE id = $1
          AND status = 'requested'
          AND assignee_id IS NULL
          AND negotiation_status = 'pending'`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) RejectNegotiation(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET negotiation_status = 'rejected',
            negotiation_assignee_id = NULL,
            negotiation_top_up = NULL
        WHERE id = $1 AND negotiation_status = 'pending'`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// SetFeeCharged flips the charged flag false -> true. The WHERE clause is
// the at-most-once guard.
func (s *PGStore) SetFeeCharged(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET platform_fee_charged = TRUE
        WHERE id = $1 AND platform_fee_charged = FALSE`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) SetFeeRefunded(ctx context.Context, id types.ID) (bool, error) {
	tag, err := s.db.Exec(ctx, `
        UPDATE jobs
        SET platform_fee_refunded = TRUE
        WHERE id = $1 AND platform_fee_charged = TRUE AND platform_fee_refunded = FALSE`,
		string(id),
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

func (s *PGStore) AppendEvent(ctx context.Context, e *Event) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO job_status_events (
            job_id, from_status, to_status, actor_type, actor_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6)`,
		string(e.JobID), string(e.From), string(e.To),
		e.ActorType, idPtr(e.ActorID), e.CreatedAt,
	)
	return err
}

func (s *PGStore) EventsFor(ctx context.Context, jobID types.ID) ([]Event, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, job_id, from_status, to_status, actor_type, actor_id, created_at
        FROM job_status_events
        WHERE job_id = $1
        ORDER BY created_at ASC, id ASC`, string(jobID))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Event
	for rows.Next() {
		var e Event
		var jID, from, to string
		var actorID sql.NullString
		if err := rows.Scan(&e.ID, &jID, &from, &to, &e.ActorType, &actorID, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.JobID = types.ID(jID)
		e.From = Status(from)
		e.To = Status(to)
		e.ActorID = nullToIDPtr(actorID)
		out = append(out, e)
	}
	return out, rows.Err()
}

func idPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func moneyPtr(m *types.Money) *int64 {
	if m == nil {
		return nil
	}
	n := m.Amount
	return &n
}

func idsToStrings(ids []types.ID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = string(id)
	}
	return out
}

func stringsToIDs(ss []string) []types.ID {
	if len(ss) == 0 {
		return nil
	}
	out := make([]types.ID, len(ss))
	for i, s := range ss {
		out[i] = types.ID(s)
	}
	return out
}

func nullToIDPtr(v sql.NullString) *types.ID {
	if !v.Valid {
		return nil
	}
	id := types.ID(v.String)
	return &id
}

func nullToTimePtr(v sql.NullTime) *time.Time {
	if !v.Valid {
		return nil
	}
	t := v.Time
	return &t
}
