package domain

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

// TransactionKind discriminates deposits, withdrawals and transactions
// that are neither (exchange-internal credits and the like).
type TransactionKind string

const (
	// KindDeposit is an inbound transfer of funds.
	KindDeposit TransactionKind = "deposit"
	// KindWithdrawal is an outbound transfer of funds.
	KindWithdrawal TransactionKind = "withdrawal"
	// KindGeneric is a transaction that is neither deposit nor
	// withdrawal, such as an exchange point credit.
	KindGeneric TransactionKind = "generic"
)

// ErrNetAmountUndefined is returned by NetAmount for generic transactions,
// which have no defined net amount.
var ErrNetAmountUndefined = errors.New("net amount undefined for generic transaction")

// Transaction represents a single entry of an exchange's funding history.
type Transaction struct {
	// ID is the transaction identifier assigned by the exchange.
	ID string
	// Kind discriminates deposit, withdrawal or generic.
	Kind TransactionKind
	// Time is when the transaction happened, in UTC.
	Time time.Time
	// Currency is the currency moved.
	Currency string
	// Amount is the quantity moved.
	Amount decimal.Decimal
	// Address is the external address involved, if any.
	Address string
	// Fee is the fee charged, or nil when the exchange does not report
	// one.
	Fee *decimal.Decimal
}

// NetAmount returns the effective amount of the transaction. Deposits
// subtract the fee from the amount; withdrawals add it, since the fee is
// paid on top of the requested amount. Without a fee the amount is
// returned as-is. Generic transactions return ErrNetAmountUndefined.
func (t Transaction) NetAmount() (decimal.Decimal, error) {
	switch t.Kind {
	case KindDeposit:
		if t.Fee != nil {
			return Quantize(t.Amount.Sub(*t.Fee)), nil
		}
		return t.Amount, nil
	case KindWithdrawal:
		if t.Fee != nil {
			return Quantize(t.Amount.Add(*t.Fee)), nil
		}
		return t.Amount, nil
	default:
		return decimal.Decimal{}, ErrNetAmountUndefined
	}
}
