package beaming

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beam/internal/config"
	"beam/internal/geo"
	"beam/internal/modules/job"
	"beam/internal/types"
)

// ---------------------------------------------------------------------------
// In-memory fakes
// ---------------------------------------------------------------------------

type fakeJobs struct {
	mu    sync.Mutex
	jobs  map[types.ID]*job.Job
	waves [][]types.ID
}

func newFakeJobs() *fakeJobs {
	return &fakeJobs{jobs: make(map[types.ID]*job.Job)}
}

func (f *fakeJobs) add(j *job.Job) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.jobs[j.ID] = j
}

func (f *fakeJobs) Get(_ context.Context, id types.ID) (*job.Job, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[id]
	if !ok {
		return nil, job.ErrNotFound
	}
	cp := *j
	cp.NotifiedIDs = append([]types.ID(nil), j.NotifiedIDs...)
	return &cp, nil
}

func (f *fakeJobs) RecordWave(_ context.Context, id types.ID, radiusM int, notified []types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	j.SearchRadiusM = radiusM
	j.NotifiedIDs = append(j.NotifiedIDs, notified...)
	f.waves = append(f.waves, append([]types.ID(nil), notified...))
	return nil
}

func (f *fakeJobs) ReopenForBidding(_ context.Context, id types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	if j.AssigneeID == nil && !j.IsTerminal() {
		j.Status = job.StatusRequested
	}
	return nil
}

func (f *fakeJobs) Assign(_ context.Context, cmd job.AssignCommand) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j, ok := f.jobs[cmd.JobID]
	if !ok {
		return job.ErrNotFound
	}
	if j.AssigneeID != nil || j.Status != job.StatusRequested {
		return job.ErrConflict
	}
	id := cmd.AssigneeID
	j.AssigneeID = &id
	j.Status = job.StatusAccepted
	j.TopUpFare = cmd.TopUp
	j.TotalFare = j.BaseFare.Add(cmd.TopUp)
	return nil
}

func (f *fakeJobs) CancelExhausted(_ context.Context, id types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	j := f.jobs[id]
	if j.IsTerminal() || j.AssigneeID != nil {
		return job.ErrInvalidState
	}
	reason := job.ReasonSearchExhausted
	j.Status = job.StatusCancelled
	j.CancelReason = &reason
	j.MaxRadiusReached = true
	return nil
}

type fakeIndex struct {
	mu         sync.Mutex
	candidates []Candidate
	notified   map[types.ID][]types.ID
}

func (f *fakeIndex) Nearby(_ context.Context, origin types.Point, radiusM float64, vehicleClass string, limit int) ([]Candidate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []Candidate
	for _, c := range f.candidates {
		d := geo.DistanceMeters(origin, c.Position)
		if d > radiusM {
			continue
		}
		if vehicleClass != "" && c.VehicleClass != vehicleClass {
			continue
		}
		c.DistanceM = d
		out = append(out, c)
		if len(out) == limit {
			break
		}
	}
	return out, nil
}

func (f *fakeIndex) Position(_ context.Context, id types.ID) (types.Point, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.candidates {
		if c.ID == id {
			return c.Position, true, nil
		}
	}
	return types.Point{}, false, nil
}

func (f *fakeIndex) RecordNotified(_ context.Context, jobID types.ID, courierIDs []types.ID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.notified == nil {
		f.notified = make(map[types.ID][]types.ID)
	}
	f.notified[jobID] = append(f.notified[jobID], courierIDs...)
	return nil
}

func (f *fakeIndex) Notified(_ context.Context, jobID types.ID) ([]types.ID, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.notified[jobID], nil
}

type memProposals struct {
	mu   sync.Mutex
	byID map[types.ID]map[types.ID]Proposal
}

func newMemProposals() *memProposals {
	return &memProposals{byID: make(map[types.ID]map[types.ID]Proposal)}
}

func (m *memProposals) Upsert(_ context.Context, p *Proposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byID[p.JobID] == nil {
		m.byID[p.JobID] = make(map[types.ID]Proposal)
	}
	m.byID[p.JobID][p.CourierID] = *p
	return nil
}

func (m *memProposals) ByJob(_ context.Context, jobID types.ID) ([]Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Proposal
	for _, p := range m.byID[jobID] {
		out = append(out, p)
	}
	return out, nil
}

func (m *memProposals) Get(_ context.Context, jobID, courierID types.ID) (*Proposal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.byID[jobID][courierID]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *memProposals) Clear(_ context.Context, jobID types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.byID, jobID)
	return nil
}

type fakeProfiles struct {
	profiles map[types.ID]CourierProfile
}

func (f *fakeProfiles) Courier(_ context.Context, id types.ID) (CourierProfile, error) {
	p, ok := f.profiles[id]
	if !ok {
		return CourierProfile{}, job.ErrNotFound
	}
	return p, nil
}

type recordNotifier struct {
	mu     sync.Mutex
	offers map[types.ID][]Offer
}

func newRecordNotifier() *recordNotifier {
	return &recordNotifier{offers: make(map[types.ID][]Offer)}
}

func (n *recordNotifier) NotifyCandidate(_ context.Context, courierID types.ID, offer Offer) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.offers[courierID] = append(n.offers[courierID], offer)
}

func (n *recordNotifier) count(id types.ID) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.offers[id])
}

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

var pickup = types.Point{Lat: 14.5896, Lng: 120.9813}

func fastCfg() config.BeamingConfig {
	return config.BeamingConfig{
		InitialRadiusM:       200,
		MaxRadiusM:           1000,
		RadiusIncrementM:     200,
		WaveTimeout:          5 * time.Millisecond,
		MaxCandidatesPerWave: 3,
	}
}

func openJob(id types.ID) *job.Job {
	return &job.Job{
		ID:           id,
		Kind:         job.KindRide,
		RequesterID:  "p1",
		Status:       job.StatusRequested,
		Pickup:       pickup,
		ServiceClass: "motorcycle",
		BaseFare:     types.Money{Amount: 10000, Currency: "PHP"},
		TotalFare:    types.Money{Amount: 10000, Currency: "PHP"},
	}
}

// nearPickup returns a point roughly meters north of pickup.
func nearPickup(meters float64) types.Point {
	return types.Point{Lat: pickup.Lat + meters/111_000, Lng: pickup.Lng}
}

func newTestBeaming(jobs *fakeJobs, index *fakeIndex, props *memProposals, profiles *fakeProfiles, n Notifier) *Service {
	if profiles == nil {
		profiles = &fakeProfiles{profiles: map[types.ID]CourierProfile{}}
	}
	return NewService(jobs, index, props, profiles, n, fastCfg(), zerolog.Nop())
}

// ---------------------------------------------------------------------------
// Search loop
// ---------------------------------------------------------------------------

func TestRunExhaustsAndCancels(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	svc := newTestBeaming(jobs, &fakeIndex{}, newMemProposals(), nil, newRecordNotifier())

	matched, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, matched)

	j, err := jobs.Get(context.Background(), "j1")
	require.NoError(t, err)
	assert.Equal(t, job.StatusCancelled, j.Status)
	assert.True(t, j.MaxRadiusReached)
	require.NotNil(t, j.CancelReason)
	assert.Equal(t, job.ReasonSearchExhausted, *j.CancelReason)
}

func TestRunNotifiesEachCandidateOnce(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	index := &fakeIndex{candidates: []Candidate{
		{ID: "d1", Position: nearPickup(50), VehicleClass: "motorcycle"},
		{ID: "d2", Position: nearPickup(600), VehicleClass: "motorcycle"},
	}}
	notifier := newRecordNotifier()
	svc := newTestBeaming(jobs, index, newMemProposals(), nil, notifier)

	_, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)

	// d1 is inside every radius but must be offered the job exactly once.
	assert.Equal(t, 1, notifier.count("d1"))
	// d2 only enters the pool once the radius expands past 600m.
	assert.Equal(t, 1, notifier.count("d2"))

	j, _ := jobs.Get(context.Background(), "j1")
	assert.ElementsMatch(t, []types.ID{"d1", "d2"}, j.NotifiedIDs)
	assert.ElementsMatch(t, []types.ID{"d1", "d2"}, index.notified["j1"])
}

func TestRunCapsCandidatesPerWave(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	// Five couriers inside the very first radius; the wave cap is three.
	index := &fakeIndex{candidates: []Candidate{
		{ID: "d1", Position: nearPickup(10), VehicleClass: "motorcycle"},
		{ID: "d2", Position: nearPickup(30), VehicleClass: "motorcycle"},
		{ID: "d3", Position: nearPickup(50), VehicleClass: "motorcycle"},
		{ID: "d4", Position: nearPickup(70), VehicleClass: "motorcycle"},
		{ID: "d5", Position: nearPickup(90), VehicleClass: "motorcycle"},
	}}
	notifier := newRecordNotifier()
	svc := newTestBeaming(jobs, index, newMemProposals(), nil, notifier)

	_, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)

	jobs.mu.Lock()
	waves := jobs.waves
	jobs.mu.Unlock()

	require.NotEmpty(t, waves)
	assert.Len(t, waves[0], 3, "first wave must stop at the per-wave cap")
	assert.ElementsMatch(t, []types.ID{"d1", "d2", "d3"}, waves[0])
	// The overflow couriers get the next wave instead of being dropped.
	require.GreaterOrEqual(t, len(waves), 2)
	assert.ElementsMatch(t, []types.ID{"d4", "d5"}, waves[1])

	for _, id := range []types.ID{"d1", "d2", "d3", "d4", "d5"} {
		assert.Equal(t, 1, notifier.count(id))
	}
}

func TestRunSkipsPreviouslyNotified(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	index := &fakeIndex{
		candidates: []Candidate{
			{ID: "d1", Position: nearPickup(50), VehicleClass: "motorcycle"},
		},
		// Left over from an earlier run of the same search.
		notified: map[types.ID][]types.ID{"j1": {"d1"}},
	}
	notifier := newRecordNotifier()
	svc := newTestBeaming(jobs, index, newMemProposals(), nil, notifier)

	_, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.Zero(t, notifier.count("d1"))
}

func TestRunFiltersVehicleClass(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	index := &fakeIndex{candidates: []Candidate{
		{ID: "car1", Position: nearPickup(50), VehicleClass: "sedan"},
	}}
	notifier := newRecordNotifier()
	svc := newTestBeaming(jobs, index, newMemProposals(), nil, notifier)

	matched, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, matched)
	assert.Zero(t, notifier.count("car1"))
}

func TestRunStopsOnProposal(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	props := newMemProposals()
	require.NoError(t, props.Upsert(context.Background(), &Proposal{
		JobID:     "j1",
		CourierID: "d1",
		TopUp:     types.Money{Amount: 0, Currency: "PHP"},
	}))
	svc := newTestBeaming(jobs, &fakeIndex{}, props, nil, newRecordNotifier())

	matched, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.True(t, matched)

	// The job stays open; the requester picks a proposal separately.
	j, _ := jobs.Get(context.Background(), "j1")
	assert.Equal(t, job.StatusRequested, j.Status)
}

func TestRunStopsWhenAssigned(t *testing.T) {
	jobs := newFakeJobs()
	j := openJob("j1")
	jobs.add(j)
	svc := newTestBeaming(jobs, &fakeIndex{}, newMemProposals(), nil, newRecordNotifier())

	require.NoError(t, jobs.Assign(context.Background(), job.AssignCommand{
		JobID: "j1", AssigneeID: "d9",
	}))

	_, err := svc.Run(context.Background(), "j1")
	assert.ErrorIs(t, err, job.ErrInvalidState)
}

func TestRunStopsOnExternalCancel(t *testing.T) {
	jobs := newFakeJobs()
	j := openJob("j1")
	jobs.add(j)
	svc := newTestBeaming(jobs, &fakeIndex{}, newMemProposals(), nil, newRecordNotifier())

	// Cancel underneath the loop after the first wave.
	go func() {
		time.Sleep(2 * time.Millisecond)
		jobs.mu.Lock()
		reason := job.ReasonUserCancel
		j.Status = job.StatusCancelled
		j.CancelReason = &reason
		jobs.mu.Unlock()
	}()

	matched, err := svc.Run(context.Background(), "j1")
	require.NoError(t, err)
	assert.False(t, matched)

	got, _ := jobs.Get(context.Background(), "j1")
	assert.False(t, got.MaxRadiusReached, "external cancel must not be marked as exhaustion")
}

func TestRunHonorsContext(t *testing.T) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	cfg := fastCfg()
	cfg.WaveTimeout = time.Hour
	svc := NewService(jobs, &fakeIndex{}, newMemProposals(),
		&fakeProfiles{profiles: map[types.ID]CourierProfile{}}, newRecordNotifier(), cfg, zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := svc.Run(ctx, "j1")
		done <- err
	}()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("search loop did not stop on context cancellation")
	}
}

// ---------------------------------------------------------------------------
// Proposals
// ---------------------------------------------------------------------------

func proposalFixtures() (*fakeJobs, *fakeIndex, *memProposals, *fakeProfiles, *Service) {
	jobs := newFakeJobs()
	jobs.add(openJob("j1"))
	index := &fakeIndex{candidates: []Candidate{
		{ID: "d1", Position: nearPickup(300), VehicleClass: "motorcycle"},
	}}
	props := newMemProposals()
	profiles := &fakeProfiles{profiles: map[types.ID]CourierProfile{
		"d1": {ID: "d1", Name: "Ana", Vehicle: "Honda Click", VehicleClass: "motorcycle", Rating: 4.8},
	}}
	svc := NewService(jobs, index, props, profiles, newRecordNotifier(), fastCfg(), zerolog.Nop())
	return jobs, index, props, profiles, svc
}

func TestSubmitProposal(t *testing.T) {
	_, _, _, _, svc := proposalFixtures()
	ctx := context.Background()

	p, err := svc.SubmitProposal(ctx, SubmitCommand{
		JobID:     "j1",
		CourierID: "d1",
		TopUp:     types.Money{Amount: 3000, Currency: "PHP"},
		Notes:     "heavy traffic on the bridge",
	})
	require.NoError(t, err)
	assert.Equal(t, "Ana", p.CourierName)
	assert.Equal(t, int64(13000), p.TotalFare.Amount)
	assert.InDelta(t, 300, p.DistanceM, 5)

	listed, err := svc.Proposals(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
}

func TestSubmitProposalReplacesEarlierBid(t *testing.T) {
	_, _, _, _, svc := proposalFixtures()
	ctx := context.Background()

	_, err := svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", CourierID: "d1", TopUp: types.Money{Amount: 5000, Currency: "PHP"}})
	require.NoError(t, err)
	_, err = svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", CourierID: "d1", TopUp: types.Money{Amount: 2000, Currency: "PHP"}})
	require.NoError(t, err)

	listed, err := svc.Proposals(ctx, "j1")
	require.NoError(t, err)
	require.Len(t, listed, 1)
	assert.Equal(t, int64(2000), listed[0].TopUp.Amount)
	assert.Equal(t, int64(12000), listed[0].TotalFare.Amount)
}

func TestSubmitProposalValidation(t *testing.T) {
	jobs, _, _, _, svc := proposalFixtures()
	ctx := context.Background()

	_, err := svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", TopUp: types.Money{}})
	assert.ErrorIs(t, err, ErrBadRequest, "missing courier")

	_, err = svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", CourierID: "d1", TopUp: types.Money{Amount: -100, Currency: "PHP"}})
	assert.ErrorIs(t, err, ErrBadRequest, "negative top-up")

	require.NoError(t, jobs.Assign(ctx, job.AssignCommand{JobID: "j1", AssigneeID: "d9"}))
	_, err = svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", CourierID: "d1", TopUp: types.Money{}})
	assert.ErrorIs(t, err, job.ErrConflict, "job already assigned")
}

func TestAcceptProposalAssignsAndClears(t *testing.T) {
	jobs, _, props, _, svc := proposalFixtures()
	ctx := context.Background()

	_, err := svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", CourierID: "d1", TopUp: types.Money{Amount: 3000, Currency: "PHP"}})
	require.NoError(t, err)

	require.NoError(t, svc.AcceptProposal(ctx, "j1", "d1"))

	j, err := jobs.Get(ctx, "j1")
	require.NoError(t, err)
	require.NotNil(t, j.AssigneeID)
	assert.Equal(t, types.ID("d1"), *j.AssigneeID)
	assert.Equal(t, job.StatusAccepted, j.Status)
	assert.Equal(t, int64(13000), j.TotalFare.Amount)

	left, err := props.ByJob(ctx, "j1")
	require.NoError(t, err)
	assert.Empty(t, left, "accepted job must not keep stale bids")
}

func TestAcceptProposalNotFound(t *testing.T) {
	_, _, _, _, svc := proposalFixtures()
	err := svc.AcceptProposal(context.Background(), "j1", "ghost")
	assert.ErrorIs(t, err, ErrProposalNotFound)
}

func TestAcceptProposalLosesRace(t *testing.T) {
	jobs, _, _, _, svc := proposalFixtures()
	ctx := context.Background()

	_, err := svc.SubmitProposal(ctx, SubmitCommand{JobID: "j1", CourierID: "d1", TopUp: types.Money{Amount: 1000, Currency: "PHP"}})
	require.NoError(t, err)

	// Someone else takes the job between listing and accepting.
	require.NoError(t, jobs.Assign(ctx, job.AssignCommand{JobID: "j1", AssigneeID: "d7"}))

	err = svc.AcceptProposal(ctx, "j1", "d1")
	assert.ErrorIs(t, err, job.ErrConflict)
}
