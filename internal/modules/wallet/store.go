package wallet

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"beam/internal/types"
)

// PGStore persists wallets in Postgres. Apply runs in one SQL transaction;
// the balance UPDATE takes the row lock, which serializes concurrent
// mutations for the same account.
type PGStore struct {
	db *pgxpool.Pool
}

func NewPGStore(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

func (s *PGStore) Apply(ctx context.Context, t *Transaction) (types.Money, error) {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return types.Money{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var balance types.Money
	err = tx.QueryRow(ctx, `
        UPDATE wallet_accounts
        SET balance = balance + $1, updated_at = NOW()
        WHERE user_id = $2
        RETURNING balance, currency`,
		t.Amount.Amount, string(t.UserID),
	).Scan(&balance.Amount, &balance.Currency)
	if errors.Is(err, pgx.ErrNoRows) {
		return types.Money{}, ErrNotFound
	}
	if err != nil {
		return types.Money{}, err
	}

	_, err = tx.Exec(ctx, `
        INSERT INTO wallet_transactions (
            id, user_id, amount, currency, type, reference, job_id, actor_user_id, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW())`,
		string(t.ID),
		string(t.UserID),
		t.Amount.Amount,
		balance.Currency,
		string(t.Type),
		t.Reference,
		toStringPtr(t.JobID),
		toStringPtr(t.ActorUserID),
	)
	if err != nil {
		return types.Money{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return types.Money{}, err
	}
	return balance, nil
}

func (s *PGStore) Account(ctx context.Context, userID types.ID) (*Account, error) {
	row := s.db.QueryRow(ctx, `
        SELECT user_id, balance, currency, created_at, updated_at
        FROM wallet_accounts
        WHERE user_id = $1`, string(userID),
	)
	var a Account
	err := row.Scan(&a.UserID, &a.Balance.Amount, &a.Balance.Currency, &a.CreatedAt, &a.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *PGStore) Transactions(ctx context.Context, userID types.ID) ([]Transaction, error) {
	rows, err := s.db.Query(ctx, `
        SELECT id, user_id, amount, currency, type, reference, job_id, actor_user_id, created_at
        FROM wallet_transactions
        WHERE user_id = $1
        ORDER BY created_at DESC`, string(userID),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Transaction
	for rows.Next() {
		var t Transaction
		var jobID, actorID *string
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.Amount.Amount, &t.Amount.Currency,
			&t.Type, &t.Reference, &jobID, &actorID, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		t.JobID = toIDPtr(jobID)
		t.ActorUserID = toIDPtr(actorID)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (s *PGStore) CreateAccount(ctx context.Context, userID types.ID, currency string) error {
	_, err := s.db.Exec(ctx, `
        INSERT INTO wallet_accounts (user_id, balance, currency, created_at, updated_at)
        VALUES ($1, 0, $2, NOW(), NOW())
        ON CONFLICT (user_id) DO NOTHING`,
		string(userID), currency,
	)
	return err
}

func toStringPtr(v *types.ID) *string {
	if v == nil {
		return nil
	}
	s := string(*v)
	return &s
}

func toIDPtr(v *string) *types.ID {
	if v == nil {
		return nil
	}
	id := types.ID(*v)
	return &id
}
