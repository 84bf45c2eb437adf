package service

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"study_ledger_back/internal/money"
	"study_ledger_back/pkg/repository"
)

var (
	ErrNotFound = repository.ErrNotFound
	ErrConflict = errors.New("request was already decided")
)

// ValidationError rejects a request before any balance is touched. No ledger entry is written.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

func invalidf(format string, args ...interface{}) error {
	return &ValidationError{Msg: fmt.Sprintf(format, args...)}
}

// InsufficientFundsError is a business failure recorded as one failed ledger entry.
type InsufficientFundsError struct {
	Account   string
	Required  decimal.Decimal
	Available decimal.Decimal
}

func (e *InsufficientFundsError) Error() string {
	return fmt.Sprintf("insufficient %s funds", e.Account)
}

func (e *InsufficientFundsError) Shortfall() decimal.Decimal {
	return e.Required.Sub(e.Available)
}

// Diagnostic is the user-facing text stored in the entry's dsc.
func (e *InsufficientFundsError) Diagnostic() string {
	return money.Shortfall(e.Required, e.Available)
}

// ResolutionError means the bonus ceiling could not be obtained. It fails the operation
// the same way insufficient funds does.
type ResolutionError struct {
	ProfileID int64
	Err       error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("bonus ceiling for profile %d: %v", e.ProfileID, e.Err)
}

func (e *ResolutionError) Unwrap() error { return e.Err }

type RateLimitError struct {
	Limit         int
	WindowDays    int
	RemainingDays int
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("no more than %d withdrawals per %d days, try again in %d day(s)",
		e.Limit, e.WindowDays, e.RemainingDays)
}

// CompensationError is raised when returning frozen funds after a failed approval also failed.
// The request is cancelled but the money is still frozen and needs an operator.
type CompensationError struct {
	WithdrawalID int64
	UserID       int64
	Amount       decimal.Decimal
	Reason       string
}

func (e *CompensationError) Error() string {
	return fmt.Sprintf("withdrawal %d: could not return %s to user %d: %s",
		e.WithdrawalID, money.Format(e.Amount), e.UserID, e.Reason)
}

// OutcomeError carries a failed ledger outcome out of a workflow step that cannot continue.
type OutcomeError struct {
	Outcome Outcome
}

func (e *OutcomeError) Error() string {
	return "ledger operation failed: " + diagnostic(e.Outcome)
}
