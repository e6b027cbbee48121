package models

import (
	"fmt"

	pkgerrors "github.com/honeynil/marketplace-tx/pkg/errors"
)

// Money is an amount in minor units tagged with an ISO 4217 currency code.
type Money struct {
	Cents    int64  `json:"cents"`
	Currency string `json:"currency"`
}

func NewMoney(cents int64, currency string) Money {
	return Money{Cents: cents, Currency: currency}
}

func (m Money) IsZero() bool {
	return m.Cents == 0
}

// SameCurrency reports whether both amounts carry the same currency. A zero amount
// with an empty currency is compatible with anything.
func (m Money) SameCurrency(o Money) bool {
	if m.Currency == "" && m.Cents == 0 || o.Currency == "" && o.Cents == 0 {
		return true
	}
	return m.Currency == o.Currency
}

func (m Money) currencyWith(o Money) string {
	if m.Currency != "" {
		return m.Currency
	}
	return o.Currency
}

func (m Money) Add(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s vs %s", pkgerrors.ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Cents: m.Cents + o.Cents, Currency: m.currencyWith(o)}, nil
}

func (m Money) Sub(o Money) (Money, error) {
	if !m.SameCurrency(o) {
		return Money{}, fmt.Errorf("%w: %s vs %s", pkgerrors.ErrCurrencyMismatch, m.Currency, o.Currency)
	}
	return Money{Cents: m.Cents - o.Cents, Currency: m.currencyWith(o)}, nil
}

func (m Money) Mul(n int64) Money {
	return Money{Cents: m.Cents * n, Currency: m.Currency}
}

func (m Money) String() string {
	sign := ""
	cents := m.Cents
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d %s", sign, cents/100, cents%100, m.Currency)
}
