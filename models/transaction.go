package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OperationType string

const (
	OpDeposit       OperationType = "deposit"
	OpBonusAdd      OperationType = "bonus_add"
	OpBonusTransfer OperationType = "bonus_transfer"
	OpPayment       OperationType = "payment"
	OpRefund        OperationType = "refund"
	OpWithdrawal    OperationType = "withdrawal"
	OpFreeze        OperationType = "freeze"
	OpUnfreeze      OperationType = "unfreeze"
	// OpForfeit records bonus that could not be credited because of the ceiling.
	OpForfeit OperationType = "forfeit"
)

func (t OperationType) Valid() bool {
	switch t {
	case OpDeposit, OpBonusAdd, OpBonusTransfer, OpPayment, OpRefund,
		OpWithdrawal, OpFreeze, OpUnfreeze, OpForfeit:
		return true
	}
	return false
}

type TransactionStatus string

const (
	TransactionCompleted TransactionStatus = "completed"
	TransactionFailed    TransactionStatus = "failed"
)

// Transaction is one immutable ledger entry. Profiles are soft references.
type Transaction struct {
	ID              int64             `db:"id" json:"id"`
	ProfileID       int64             `db:"profile_id" json:"profile_id"`
	TargetProfileID *int64            `db:"target_profile_id" json:"target_profile_id,omitempty"`
	Amount          decimal.Decimal   `db:"amount" json:"amount"`
	Type            OperationType     `db:"transaction_type" json:"transaction_type"`
	Status          TransactionStatus `db:"status" json:"status"`
	Comment         string            `db:"comment" json:"comment"`
	Dsc             *string           `db:"dsc" json:"dsc,omitempty"`
	ErrorMessage    *string           `db:"error_message" json:"error_message,omitempty"`
	CreatedAt       time.Time         `db:"created_at" json:"created_at"`
}

type TransactionFilter struct {
	ProfileID *int64
	Type      OperationType
	MinAmount *decimal.Decimal
	MaxAmount *decimal.Decimal
	StartDate *time.Time
	EndDate   *time.Time
	Limit     int
	Offset    int
}

// ExecuteInput is the wire form of an engine request sent by other services
// (order payment, rank purchase, referral crediting).
type ExecuteInput struct {
	ProfileID       int64            `json:"profile_id" binding:"required"`
	TargetProfileID *int64           `json:"target_profile_id"`
	Type            OperationType    `json:"transaction_type" binding:"required"`
	Amount          decimal.Decimal  `json:"amount"`
	Comment         string           `json:"comment" binding:"max=155"`
	Commission      *decimal.Decimal `json:"commission"`
	UseBonus        bool             `json:"use_bonus"`
	ReferralPercent *decimal.Decimal `json:"referral_percent"`
}
