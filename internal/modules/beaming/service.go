package beaming

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"beam/internal/config"
	"beam/internal/geo"
	"beam/internal/modules/job"
	"beam/internal/observability"
	"beam/internal/types"
)

var (
	ErrBadRequest       = errors.New("bad proposal request")
	ErrProposalNotFound = errors.New("proposal not found")
)

// Jobs is the slice of the job service the search loop drives.
type Jobs interface {
	Get(ctx context.Context, id types.ID) (*job.Job, error)
	RecordWave(ctx context.Context, id types.ID, radiusM int, notified []types.ID) error
	ReopenForBidding(ctx context.Context, id types.ID) error
	Assign(ctx context.Context, cmd job.AssignCommand) error
	CancelExhausted(ctx context.Context, id types.ID) error
}

// CandidateIndex is the geo store of available couriers. It also keeps a
// short-lived notified set per job; the job row is the durable copy, the
// set just makes re-seeding cheap for a restarted search.
type CandidateIndex interface {
	Nearby(ctx context.Context, origin types.Point, radiusM float64, vehicleClass string, limit int) ([]Candidate, error)
	Position(ctx context.Context, id types.ID) (types.Point, bool, error)
	RecordNotified(ctx context.Context, jobID types.ID, courierIDs []types.ID) error
	Notified(ctx context.Context, jobID types.ID) ([]types.ID, error)
}

// ProposalStore keeps proposals as a child collection keyed by
// (job, courier), so concurrent bids never race over one serialized blob.
type ProposalStore interface {
	Upsert(ctx context.Context, p *Proposal) error
	ByJob(ctx context.Context, jobID types.ID) ([]Proposal, error)
	Get(ctx context.Context, jobID, courierID types.ID) (*Proposal, error)
	Clear(ctx context.Context, jobID types.ID) error
}

// Profiles resolves courier display data.
type Profiles interface {
	Courier(ctx context.Context, id types.ID) (CourierProfile, error)
}

// Notifier pushes job offers to candidates. Fire-and-forget: delivery
// failure never stalls a wave.
type Notifier interface {
	NotifyCandidate(ctx context.Context, courierID types.ID, offer Offer)
}

type Service struct {
	jobs      Jobs
	index     CandidateIndex
	proposals ProposalStore
	profiles  Profiles
	notifier  Notifier
	cfg       config.BeamingConfig
	log       zerolog.Logger

	wg sync.WaitGroup
}

func NewService(
	jobs Jobs,
	index CandidateIndex,
	proposals ProposalStore,
	profiles Profiles,
	notifier Notifier,
	cfg config.BeamingConfig,
	log zerolog.Logger,
) *Service {
	return &Service{
		jobs:      jobs,
		index:     index,
		proposals: proposals,
		profiles:  profiles,
		notifier:  notifier,
		cfg:       cfg,
		log:       log,
	}
}

// Launch runs the search loop for a freshly created job in the
// background. The loop stops with the process context.
func (s *Service) Launch(ctx context.Context, jobID types.ID) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		matched, err := s.Run(ctx, jobID)
		if err != nil {
			s.log.Error().Err(err).Str("job_id", string(jobID)).Msg("beaming search aborted")
			return
		}
		s.log.Info().Str("job_id", string(jobID)).Bool("matched", matched).Msg("beaming search finished")
	}()
}

// Wait blocks until all launched searches have finished.
func (s *Service) Wait() { s.wg.Wait() }

// Run executes the expanding-radius search for one job. It returns true
// once at least one proposal has arrived (the requester then chooses), and
// false when the search ends without one. Exhausting the maximum radius is
// a normal terminal outcome: the job is cancelled with the max-radius flag
// set, and no error is returned.
func (s *Service) Run(ctx context.Context, jobID types.ID) (bool, error) {
	observability.SearchesStarted.Inc()
	timer := prometheus.NewTimer(observability.SearchDuration)
	defer timer.ObserveDuration()

	j, err := s.jobs.Get(ctx, jobID)
	if err != nil {
		return false, err
	}
	if j.Status != job.StatusRequested {
		return false, job.ErrInvalidState
	}

	notified := make(map[types.ID]bool, len(j.NotifiedIDs))
	for _, id := range j.NotifiedIDs {
		notified[id] = true
	}
	if cached, err := s.index.Notified(ctx, jobID); err == nil {
		for _, id := range cached {
			notified[id] = true
		}
	}

	for radius := s.cfg.InitialRadiusM; radius <= s.cfg.MaxRadiusM; radius += s.cfg.RadiusIncrementM {
		fresh, err := s.wave(ctx, j, radius, notified)
		if err != nil {
			return false, err
		}
		if len(fresh) > 0 {
			observability.SearchWaves.Inc()
			s.log.Debug().
				Str("job_id", string(jobID)).
				Int("radius_m", radius).
				Int("candidates", len(fresh)).
				Msg("wave dispatched")
		}

		// Suspension point: candidates submit proposals while we wait.
		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(s.cfg.WaveTimeout):
		}

		j, err = s.jobs.Get(ctx, jobID)
		if err != nil {
			return false, err
		}
		if j.IsTerminal() {
			// Externally cancelled mid-search; stop without penalty.
			return false, nil
		}
		if j.AssigneeID != nil {
			// Assigned through negotiation while we slept.
			observability.SearchesMatched.Inc()
			return true, nil
		}
		props, err := s.proposals.ByJob(ctx, jobID)
		if err != nil {
			return false, err
		}
		if len(props) > 0 {
			observability.SearchesMatched.Inc()
			return true, nil
		}
	}

	observability.SearchesExhausted.Inc()
	if err := s.jobs.CancelExhausted(ctx, jobID); err != nil {
		// A racing transition beat us to the job; whatever state it is in
		// now supersedes exhaustion.
		if errors.Is(err, job.ErrInvalidState) || errors.Is(err, job.ErrConflict) {
			return false, nil
		}
		return false, err
	}
	return false, nil
}

// wave queries one radius, records and notifies the fresh candidates, and
// returns them. Already-notified candidates are skipped.
func (s *Service) wave(ctx context.Context, j *job.Job, radiusM int, notified map[types.ID]bool) ([]Candidate, error) {
	limit := s.cfg.MaxCandidatesPerWave + len(notified)
	cands, err := s.index.Nearby(ctx, j.Pickup, float64(radiusM), j.ServiceClass, limit)
	if err != nil {
		return nil, err
	}

	fresh := make([]Candidate, 0, s.cfg.MaxCandidatesPerWave)
	for _, c := range cands {
		if notified[c.ID] {
			continue
		}
		fresh = append(fresh, c)
		if len(fresh) == s.cfg.MaxCandidatesPerWave {
			break
		}
	}
	if len(fresh) == 0 {
		return nil, nil
	}

	ids := make([]types.ID, len(fresh))
	for i, c := range fresh {
		ids[i] = c.ID
	}
	if err := s.jobs.RecordWave(ctx, j.ID, radiusM, ids); err != nil {
		return nil, err
	}
	if err := s.index.RecordNotified(ctx, j.ID, ids); err != nil {
		s.log.Warn().Err(err).Str("job_id", string(j.ID)).Msg("record notified set failed")
	}
	for _, c := range fresh {
		notified[c.ID] = true
		s.notifier.NotifyCandidate(ctx, c.ID, Offer{
			JobID:         j.ID,
			Kind:          string(j.Kind),
			Pickup:        j.Pickup,
			PickupAddress: j.PickupAddress,
			BaseFare:      j.BaseFare,
			DistanceM:     c.DistanceM,
		})
	}
	return fresh, nil
}

type SubmitCommand struct {
	JobID     types.ID
	CourierID types.ID
	TopUp     types.Money
	Notes     string
}

// SubmitProposal records (or replaces) a courier's bid on an open job.
func (s *Service) SubmitProposal(ctx context.Context, cmd SubmitCommand) (*Proposal, error) {
	if cmd.CourierID == "" {
		return nil, ErrBadRequest
	}
	if cmd.TopUp.IsNegative() {
		return nil, ErrBadRequest
	}
	j, err := s.jobs.Get(ctx, cmd.JobID)
	if err != nil {
		return nil, err
	}
	if j.IsTerminal() {
		return nil, job.ErrInvalidState
	}
	if j.AssigneeID != nil {
		return nil, job.ErrConflict
	}

	prof, err := s.profiles.Courier(ctx, cmd.CourierID)
	if err != nil {
		return nil, err
	}

	var distanceM float64
	if pos, ok, err := s.index.Position(ctx, cmd.CourierID); err == nil && ok {
		distanceM = geo.DistanceMeters(pos, j.Pickup)
	}

	p := &Proposal{
		JobID:       j.ID,
		CourierID:   prof.ID,
		CourierName: prof.Name,
		Vehicle:     prof.Vehicle,
		Rating:      prof.Rating,
		DistanceM:   distanceM,
		TopUp:       cmd.TopUp,
		TotalFare:   j.BaseFare.Add(cmd.TopUp),
		Notes:       cmd.Notes,
		CreatedAt:   time.Now(),
	}
	if err := s.proposals.Upsert(ctx, p); err != nil {
		return nil, err
	}

	// Keep the job open for comparison if its status drifted while the
	// bid was in flight.
	if j.Status != job.StatusRequested {
		if err := s.jobs.ReopenForBidding(ctx, j.ID); err != nil {
			s.log.Warn().Err(err).Str("job_id", string(j.ID)).Msg("reopen for bidding failed")
		}
	}
	return p, nil
}

// AcceptProposal converts a courier's proposal into the job's canonical
// assignment. The assign path charges the platform fee.
func (s *Service) AcceptProposal(ctx context.Context, jobID, courierID types.ID) error {
	p, err := s.proposals.Get(ctx, jobID, courierID)
	if err != nil {
		return err
	}
	if p == nil {
		return ErrProposalNotFound
	}
	if err := s.jobs.Assign(ctx, job.AssignCommand{
		JobID:      jobID,
		AssigneeID: courierID,
		TopUp:      p.TopUp,
	}); err != nil {
		return err
	}
	// Bidding is over; stray proposals from other couriers are void.
	if err := s.proposals.Clear(ctx, jobID); err != nil {
		s.log.Warn().Err(err).Str("job_id", string(jobID)).Msg("clear proposals failed")
	}
	return nil
}

// Proposals lists the current bids on a job, oldest first.
func (s *Service) Proposals(ctx context.Context, jobID types.ID) ([]Proposal, error) {
	return s.proposals.ByJob(ctx, jobID)
}
