package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// TransactionNotBalancedError is raised when a transaction's debit and
// credit totals disagree on the exact decimal grid.
type TransactionNotBalancedError struct {
	TotalDebits  decimal.Decimal
	TotalCredits decimal.Decimal
}

func (e *TransactionNotBalancedError) Error() string {
	return fmt.Sprintf("transaction not balanced: debits %s != credits %s",
		e.TotalDebits, e.TotalCredits)
}

// InsufficientFundsError is raised when a buyer's Clearing balance does not
// cover the cost of a fill.
type InsufficientFundsError struct {
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient funds: required %s, available %s",
		e.Required, e.Available)
}

// InvalidOutcomeError rejects an order for an outcome the registry does not
// recognise.
type InvalidOutcomeError struct {
	OutcomeID string
}

func (e *InvalidOutcomeError) Error() string {
	return fmt.Sprintf("invalid outcome: %q", e.OutcomeID)
}

// AccountNotFoundError is raised when a trade participant has no account
// registered under their user id.
type AccountNotFoundError struct {
	Role   string // "buyer" or "seller"
	UserID string
}

func (e *AccountNotFoundError) Error() string {
	return fmt.Sprintf("%s %q has no account", e.Role, e.UserID)
}
