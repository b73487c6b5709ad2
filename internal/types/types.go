// Package types holds the small value objects shared across modules.
package types

import "fmt"

// ID identifies an entity (job, courier, passenger, wallet owner).
type ID string

// Point is a WGS84 coordinate pair in decimal degrees.
type Point struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Money is an amount in minor units (cents) of a single currency.
type Money struct {
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

func (m Money) Add(o Money) Money {
	return Money{Amount: m.Amount + o.Amount, Currency: m.Currency}
}

func (m Money) Sub(o Money) Money {
	return Money{Amount: m.Amount - o.Amount, Currency: m.Currency}
}

func (m Money) Neg() Money {
	return Money{Amount: -m.Amount, Currency: m.Currency}
}

func (m Money) IsZero() bool { return m.Amount == 0 }

func (m Money) IsNegative() bool { return m.Amount < 0 }

// String renders the amount with two decimal places, e.g. "PHP 96.00".
// The sign is carried separately so sub-unit negatives keep it.
func (m Money) String() string {
	amount := m.Amount
	sign := ""
	if amount < 0 {
		sign = "-"
		amount = -amount
	}
	return fmt.Sprintf("%s %s%d.%02d", m.Currency, sign, amount/100, amount%100)
}
