package job

import (
	"context"
	"sync"
	"time"

	"beam/internal/modules/pricing"
	"beam/internal/types"
)

// memStore reproduces the PG store's conditional-update semantics in
// memory so service behavior can be tested under real races.
type memStore struct {
	mu     sync.Mutex
	jobs   map[types.ID]*Job
	events []Event
}

func newMemStore() *memStore {
	return &memStore{jobs: make(map[types.ID]*Job)}
}

func (m *memStore) Create(_ context.Context, j *Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *j
	m.jobs[j.ID] = &cp
	return nil
}

func (m *memStore) Get(_ context.Context, id types.ID) (*Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memStore) UpdateStatus(_ context.Context, id types.ID, from, to Status, version int, w StatusWrite) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if j.Status != from || j.StatusVersion != version {
		return false, nil
	}
	if w.AssigneeID != nil && j.AssigneeID != nil {
		return false, nil
	}
	j.Status = to
	j.StatusVersion++
	if w.AssigneeID != nil {
		v := *w.AssigneeID
		j.AssigneeID = &v
	}
	if w.TopUp != nil {
		j.TopUpFare = *w.TopUp
	}
	if w.Total != nil {
		j.TotalFare = *w.Total
	}
	if w.Reason != nil {
		r := *w.Reason
		j.CancelReason = &r
	}
	if w.MaxRadiusReached {
		j.MaxRadiusReached = true
	}
	now := time.Now()
	switch to {
	case StatusAccepted:
		j.AcceptedAt = &now
	case StatusInProgress:
		j.StartedAt = &now
	case StatusCompleted:
		j.CompletedAt = &now
	case StatusCancelled:
		j.CancelledAt = &now
	}
	return true, nil
}

func (m *memStore) RecordWave(_ context.Context, id types.ID, radiusM int, notified []types.ID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return ErrNotFound
	}
	j.SearchRadiusM = radiusM
	j.NotifiedIDs = append(j.NotifiedIDs, notified...)
	return nil
}

func (m *memStore) ReopenForBidding(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if j.AssigneeID != nil || j.Status == StatusRequested || j.Status == StatusInProgress || j.IsTerminal() {
		return false, nil
	}
	j.Status = StatusRequested
	j.StatusVersion++
	return true, nil
}

func (m *memStore) ProposeNegotiation(_ context.Context, id, assignee types.ID, topUp types.Money) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if j.Status != StatusRequested || j.AssigneeID != nil || j.NegotiationStatus == NegotiationAccepted {
		return false, nil
	}
	j.NegotiationStatus = NegotiationPending
	j.NegotiationAssignee = &assignee
	j.NegotiationTopUp = &topUp
	return true, nil
}

func (m *memStore) AcceptNegotiation(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if j.Status != StatusRequested || j.AssigneeID != nil || j.NegotiationStatus != NegotiationPending {
		return false, nil
	}
	j.Status = StatusAccepted
	j.StatusVersion++
	j.AssigneeID = j.NegotiationAssignee
	j.TopUpFare = *j.NegotiationTopUp
	j.TotalFare = j.BaseFare.Add(*j.NegotiationTopUp)
	j.NegotiationStatus = NegotiationAccepted
	now := time.Now()
	j.AcceptedAt = &now
	return true, nil
}

func (m *memStore) RejectNegotiation(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return false, nil
	}
	if j.NegotiationStatus != NegotiationPending {
		return false, nil
	}
	j.NegotiationStatus = NegotiationRejected
	j.NegotiationAssignee = nil
	j.NegotiationTopUp = nil
	return true, nil
}

func (m *memStore) SetFeeCharged(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || j.PlatformFeeCharged {
		return false, nil
	}
	j.PlatformFeeCharged = true
	return true, nil
}

func (m *memStore) SetFeeRefunded(_ context.Context, id types.ID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok || !j.PlatformFeeCharged || j.PlatformFeeRefunded {
		return false, nil
	}
	j.PlatformFeeRefunded = true
	return true, nil
}

func (m *memStore) AppendEvent(_ context.Context, e *Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events = append(m.events, *e)
	return nil
}

func (m *memStore) EventsFor(_ context.Context, jobID types.ID) ([]Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Event
	for _, e := range m.events {
		if e.JobID == jobID {
			out = append(out, e)
		}
	}
	return out, nil
}

// fixedPricing quotes the same fare regardless of distance.
type fixedPricing struct {
	total int64
}

func (p fixedPricing) Quote(context.Context, string, string, float64, float64) (pricing.Quote, error) {
	m := types.Money{Amount: p.total, Currency: "PHP"}
	return pricing.Quote{Subtotal: m, Total: m, DriverTake: m}, nil
}
