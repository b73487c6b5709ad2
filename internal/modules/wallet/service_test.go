package wallet

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"beam/internal/types"
)

// memStore mirrors the PG store's contract: serialized per-account apply,
// balance and transaction written together.
type memStore struct {
	mu       sync.Mutex
	balances map[types.ID]int64
	txs      map[types.ID][]Transaction
	currency string
}

func newMemStore() *memStore {
	return &memStore{
		balances: make(map[types.ID]int64),
		txs:      make(map[types.ID][]Transaction),
		currency: "PHP",
	}
}

func (m *memStore) Apply(_ context.Context, t *Transaction) (types.Money, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[t.UserID]; !ok {
		return types.Money{}, ErrNotFound
	}
	m.balances[t.UserID] += t.Amount.Amount
	m.txs[t.UserID] = append(m.txs[t.UserID], *t)
	return types.Money{Amount: m.balances[t.UserID], Currency: m.currency}, nil
}

func (m *memStore) Account(_ context.Context, userID types.ID) (*Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.balances[userID]
	if !ok {
		return nil, ErrNotFound
	}
	return &Account{UserID: userID, Balance: types.Money{Amount: b, Currency: m.currency}}, nil
}

func (m *memStore) Transactions(_ context.Context, userID types.ID) ([]Transaction, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Transaction(nil), m.txs[userID]...), nil
}

func (m *memStore) CreateAccount(_ context.Context, userID types.ID, _ string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.balances[userID]; !ok {
		m.balances[userID] = 0
	}
	return nil
}

func newTestService(t *testing.T) (*Service, *memStore) {
	t.Helper()
	store := newMemStore()
	return NewService(store, zerolog.Nop()), store
}

func TestApplyValidation(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	cases := []struct {
		name string
		cmd  ApplyCommand
	}{
		{"missing user", ApplyCommand{Amount: types.Money{Amount: 100}, Type: TxLoad}},
		{"zero amount", ApplyCommand{UserID: "u1", Type: TxLoad}},
		{"unknown type", ApplyCommand{UserID: "u1", Amount: types.Money{Amount: 100}, Type: "tip"}},
		{"positive deduct", ApplyCommand{UserID: "u1", Amount: types.Money{Amount: 100}, Type: TxDeduct}},
		{"negative load", ApplyCommand{UserID: "u1", Amount: types.Money{Amount: -100}, Type: TxLoad}},
		{"negative adjust", ApplyCommand{UserID: "u1", Amount: types.Money{Amount: -100}, Type: TxAdjust}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Apply(ctx, tc.cmd)
			assert.ErrorIs(t, err, ErrBadRequest)
		})
	}
}

func TestApplyUnknownAccount(t *testing.T) {
	svc, _ := newTestService(t)
	_, err := svc.Apply(context.Background(), ApplyCommand{
		UserID: "ghost", Amount: types.Money{Amount: 100}, Type: TxLoad,
	})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestReconciliationInvariant(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Provision(ctx, "u1", "PHP"))

	amounts := []struct {
		amount int64
		typ    TxType
	}{
		{10000, TxLoad},
		{-500, TxDeduct},
		{-500, TxDeduct},
		{500, TxAdjust},
		{2500, TxLoad},
		{-1200, TxDeduct},
	}
	for _, a := range amounts {
		_, err := svc.Apply(ctx, ApplyCommand{
			UserID: "u1",
			Amount: types.Money{Amount: a.amount, Currency: "PHP"},
			Type:   a.typ,
		})
		require.NoError(t, err)
	}

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)

	history, err := svc.History(ctx, "u1")
	require.NoError(t, err)

	var sum int64
	for _, tx := range history {
		sum += tx.Amount.Amount
	}
	assert.Equal(t, sum, balance.Amount, "balance must equal the sum of all transactions")
	assert.Equal(t, int64(10800), balance.Amount)
	assert.Len(t, history, len(amounts))
}

func TestConcurrentAppliesDoNotLoseUpdates(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Provision(ctx, "u1", "PHP"))

	const workers = 16
	var wg sync.WaitGroup
	errs := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := svc.Apply(ctx, ApplyCommand{
				UserID:    "u1",
				Amount:    types.Money{Amount: 100, Currency: "PHP"},
				Type:      TxLoad,
				Reference: fmt.Sprintf("load-%d", n),
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(workers*100), balance.Amount)
}

func TestProvisionIsIdempotent(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()
	require.NoError(t, svc.Provision(ctx, "u1", "PHP"))

	_, err := svc.Apply(ctx, ApplyCommand{UserID: "u1", Amount: types.Money{Amount: 300}, Type: TxLoad})
	require.NoError(t, err)

	require.NoError(t, svc.Provision(ctx, "u1", "PHP"))
	balance, err := svc.Balance(ctx, "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(300), balance.Amount, "re-provisioning must not reset the balance")
}
