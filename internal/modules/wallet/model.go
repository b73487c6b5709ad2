// Package wallet is the ledger: every balance mutation flows through one
// atomic apply operation that updates the account and appends a
// transaction record together.
package wallet

import (
	"time"

	"beam/internal/types"
)

type TxType string

const (
	TxLoad   TxType = "load"
	TxDeduct TxType = "deduct"
	TxAdjust TxType = "adjust"
)

// Account holds one user's balance. Balances can dip negative transiently
// through deductions; they are never written directly.
type Account struct {
	UserID    types.ID
	Balance   types.Money
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Transaction is an immutable, append-only ledger entry. The sum of a
// user's transactions always equals the account balance.
type Transaction struct {
	ID          types.ID
	UserID      types.ID
	Amount      types.Money // signed
	Type        TxType
	Reference   string
	JobID       *types.ID
	ActorUserID *types.ID
	CreatedAt   time.Time
}
