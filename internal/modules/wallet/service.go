package wallet

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"beam/internal/observability"
	"beam/internal/types"
)

var (
	ErrNotFound   = errors.New("wallet account not found")
	ErrBadRequest = errors.New("bad wallet request")
)

// Store persists accounts and transactions. Apply must mutate the balance
// and append the transaction as one unit, serialized per account.
type Store interface {
	Apply(ctx context.Context, tx *Transaction) (types.Money, error)
	Account(ctx context.Context, userID types.ID) (*Account, error)
	Transactions(ctx context.Context, userID types.ID) ([]Transaction, error)
	CreateAccount(ctx context.Context, userID types.ID, currency string) error
}

type Service struct {
	store Store
	log   zerolog.Logger
}

func NewService(store Store, log zerolog.Logger) *Service {
	return &Service{store: store, log: log}
}

type ApplyCommand struct {
	UserID      types.ID
	Amount      types.Money // signed; deduct negative, load/adjust positive
	Type        TxType
	Reference   string
	JobID       *types.ID
	ActorUserID *types.ID
}

// Apply validates the command, then hands it to the store's atomic
// read-modify-write. Returns the balance after the transaction.
func (s *Service) Apply(ctx context.Context, cmd ApplyCommand) (types.Money, error) {
	if cmd.UserID == "" || cmd.Amount.IsZero() {
		return types.Money{}, ErrBadRequest
	}
	switch cmd.Type {
	case TxDeduct:
		if !cmd.Amount.IsNegative() {
			return types.Money{}, ErrBadRequest
		}
	case TxLoad, TxAdjust:
		if cmd.Amount.IsNegative() {
			return types.Money{}, ErrBadRequest
		}
	default:
		return types.Money{}, ErrBadRequest
	}

	tx := &Transaction{
		ID:          types.ID(uuid.NewString()),
		UserID:      cmd.UserID,
		Amount:      cmd.Amount,
		Type:        cmd.Type,
		Reference:   cmd.Reference,
		JobID:       cmd.JobID,
		ActorUserID: cmd.ActorUserID,
	}
	balance, err := s.store.Apply(ctx, tx)
	if err != nil {
		return types.Money{}, err
	}

	observability.WalletTransactions.WithLabelValues(string(cmd.Type)).Inc()
	s.log.Info().
		Str("user_id", string(cmd.UserID)).
		Str("tx_id", string(tx.ID)).
		Str("type", string(cmd.Type)).
		Int64("amount_cents", cmd.Amount.Amount).
		Int64("balance_cents", balance.Amount).
		Msg("wallet transaction applied")
	return balance, nil
}

func (s *Service) Balance(ctx context.Context, userID types.ID) (types.Money, error) {
	acct, err := s.store.Account(ctx, userID)
	if err != nil {
		return types.Money{}, err
	}
	return acct.Balance, nil
}

func (s *Service) History(ctx context.Context, userID types.ID) ([]Transaction, error) {
	return s.store.Transactions(ctx, userID)
}

func (s *Service) Provision(ctx context.Context, userID types.ID, currency string) error {
	if userID == "" || currency == "" {
		return ErrBadRequest
	}
	return s.store.CreateAccount(ctx, userID, currency)
}
