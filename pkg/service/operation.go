package service

import (
	"github.com/shopspring/decimal"
	"study_ledger_back/internal/money"
	"study_ledger_back/models"
)

// Operation is one of the engine's operation kinds. The set is closed: only the types
// declared in this file implement it.
type Operation interface {
	Type() models.OperationType
	validate(profileID int64) error
	isOperation()
}

type Deposit struct {
	Amount decimal.Decimal
}

// BonusAdd credits bonus against the profile's ceiling. ReferralPercent inflates the credit.
type BonusAdd struct {
	Amount          decimal.Decimal
	ReferralPercent decimal.Decimal
}

type BonusTransfer struct {
	Receiver   int64
	Amount     decimal.Decimal
	Commission decimal.Decimal
}

// Payment settles directly: the receiver, when set, is credited immediately.
type Payment struct {
	Receiver   *int64
	Amount     decimal.Decimal
	Commission decimal.Decimal
	UseBonus   bool
}

type Refund struct {
	Amount decimal.Decimal
}

type Withdrawal struct {
	Amount      decimal.Decimal
	Commission  decimal.Decimal
	// FeeIncluded takes the commission out of Amount, so exactly Amount leaves frozen.
	FeeIncluded bool
}

type Freeze struct {
	Amount decimal.Decimal
}

type Unfreeze struct {
	Amount decimal.Decimal
}

func (Deposit) Type() models.OperationType       { return models.OpDeposit }
func (BonusAdd) Type() models.OperationType      { return models.OpBonusAdd }
func (BonusTransfer) Type() models.OperationType { return models.OpBonusTransfer }
func (Payment) Type() models.OperationType       { return models.OpPayment }
func (Refund) Type() models.OperationType        { return models.OpRefund }
func (Withdrawal) Type() models.OperationType    { return models.OpWithdrawal }
func (Freeze) Type() models.OperationType        { return models.OpFreeze }
func (Unfreeze) Type() models.OperationType      { return models.OpUnfreeze }

func (Deposit) isOperation()       {}
func (BonusAdd) isOperation()      {}
func (BonusTransfer) isOperation() {}
func (Payment) isOperation()       {}
func (Refund) isOperation()        {}
func (Withdrawal) isOperation()    {}
func (Freeze) isOperation()        {}
func (Unfreeze) isOperation()      {}

func (o Deposit) validate(int64) error  { return checkAmount(o.Amount) }
func (o Refund) validate(int64) error   { return checkAmount(o.Amount) }
func (o Freeze) validate(int64) error   { return checkAmount(o.Amount) }
func (o Unfreeze) validate(int64) error { return checkAmount(o.Amount) }

func (o BonusAdd) validate(int64) error {
	if err := checkAmount(o.Amount); err != nil {
		return err
	}
	return checkPercent("referral percent", o.ReferralPercent)
}

func (o BonusTransfer) validate(profileID int64) error {
	if o.Receiver <= 0 {
		return invalidf("recipient is required")
	}
	if o.Receiver == profileID {
		return invalidf("cannot transfer bonuses to yourself")
	}
	if !o.Amount.IsPositive() {
		return invalidf("transfer amount must be positive")
	}
	if err := checkAmount(o.Amount); err != nil {
		return err
	}
	return checkPercent("commission", o.Commission)
}

func (o Payment) validate(profileID int64) error {
	if o.Receiver != nil && (*o.Receiver <= 0 || *o.Receiver == profileID) {
		return invalidf("invalid payment receiver")
	}
	if err := checkAmount(o.Amount); err != nil {
		return err
	}
	return checkPercent("commission", o.Commission)
}

func (o Withdrawal) validate(int64) error {
	if err := checkAmount(o.Amount); err != nil {
		return err
	}
	return checkPercent("commission", o.Commission)
}

func checkAmount(amount decimal.Decimal) error {
	if err := money.Check(amount); err != nil {
		return invalidf("invalid amount %s: %v", amount.String(), err)
	}
	return nil
}

func checkPercent(name string, p decimal.Decimal) error {
	if err := money.CheckPercent(p); err != nil {
		return invalidf("invalid %s %s: %v", name, p.String(), err)
	}
	return nil
}

// ParseOperation maps the wire form of a request onto an operation variant.
func ParseOperation(in models.ExecuteInput) (Operation, error) {
	commission := decimal.Zero
	if in.Commission != nil {
		commission = *in.Commission
	}

	switch in.Type {
	case models.OpDeposit:
		return Deposit{Amount: in.Amount}, nil
	case models.OpBonusAdd:
		referral := decimal.Zero
		if in.ReferralPercent != nil {
			referral = *in.ReferralPercent
		}
		return BonusAdd{Amount: in.Amount, ReferralPercent: referral}, nil
	case models.OpBonusTransfer:
		if in.TargetProfileID == nil {
			return nil, invalidf("bonus_transfer requires target_profile_id")
		}
		return BonusTransfer{Receiver: *in.TargetProfileID, Amount: in.Amount, Commission: commission}, nil
	case models.OpPayment:
		return Payment{Receiver: in.TargetProfileID, Amount: in.Amount, Commission: commission, UseBonus: in.UseBonus}, nil
	case models.OpRefund:
		return Refund{Amount: in.Amount}, nil
	case models.OpWithdrawal:
		return Withdrawal{Amount: in.Amount, Commission: commission}, nil
	case models.OpFreeze:
		return Freeze{Amount: in.Amount}, nil
	case models.OpUnfreeze:
		return Unfreeze{Amount: in.Amount}, nil
	}
	return nil, invalidf("unsupported transaction type %q", in.Type)
}

// counterparty returns the second profile an operation touches, if any.
func counterparty(op Operation) *int64 {
	switch o := op.(type) {
	case BonusTransfer:
		return &o.Receiver
	case Payment:
		return o.Receiver
	}
	return nil
}

func operationAmount(op Operation) decimal.Decimal {
	switch o := op.(type) {
	case Deposit:
		return o.Amount
	case BonusAdd:
		return o.Amount
	case BonusTransfer:
		return o.Amount
	case Payment:
		return o.Amount
	case Refund:
		return o.Amount
	case Withdrawal:
		return o.Amount
	case Freeze:
		return o.Amount
	case Unfreeze:
		return o.Amount
	}
	return decimal.Zero
}
