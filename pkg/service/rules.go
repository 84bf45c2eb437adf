package service

import (
	"fmt"

	"github.com/shopspring/decimal"
	"study_ledger_back/internal/money"
	"study_ledger_back/models"
)

const (
	failureComment   = "Payment error"
	noTechnicalError = "no technical errors detected"
	ceilingReached   = "bonus ceiling reached"
)

var defaultComments = map[models.OperationType]string{
	models.OpDeposit:       "Fiat deposit",
	models.OpBonusAdd:      "Bonus credit",
	models.OpBonusTransfer: "Bonus transfer",
	models.OpPayment:       "Order payment",
	models.OpRefund:        "Refund",
	models.OpWithdrawal:    "Withdrawal",
	models.OpFreeze:        "Funds frozen",
	models.OpUnfreeze:      "Funds unfrozen",
	models.OpForfeit:       "Bonus forfeited",
}

func commentFor(t models.OperationType, given string) string {
	if given != "" {
		return given
	}
	return defaultComments[t]
}

// result is what a rule decided: balances are already mutated in place, entries are not yet stored.
type result struct {
	status  OutcomeStatus
	comment string
	dsc     string
	errText string
	entries []models.Transaction
}

// splitCredit decides how much of credit fits under ceiling given the current bonus.
func splitCredit(ceiling, current, credit decimal.Decimal) (credited, forfeited decimal.Decimal) {
	available := ceiling.Sub(current)
	switch {
	case available.GreaterThanOrEqual(credit):
		return credit, decimal.Zero
	case available.IsPositive():
		return available, credit.Sub(available)
	default:
		return decimal.Zero, credit
	}
}

// apply runs the operation rule against locked balances. A non-nil error means nothing
// may be persisted; the caller rolls back and records a failed entry.
func apply(req Request, balances map[int64]*models.Balance, ceiling decimal.Decimal) (result, error) {
	sender := balances[req.ProfileID]
	op := req.Operation
	res := result{status: OutcomeSuccess, comment: commentFor(op.Type(), req.Comment)}

	entry := func(profileID int64, target *int64, t models.OperationType, amount decimal.Decimal, comment string) *models.Transaction {
		res.entries = append(res.entries, models.Transaction{
			ProfileID:       profileID,
			TargetProfileID: target,
			Amount:          amount,
			Type:            t,
			Status:          models.TransactionCompleted,
			Comment:         comment,
		})
		return &res.entries[len(res.entries)-1]
	}

	switch o := op.(type) {
	case Deposit:
		sender.Fiat = sender.Fiat.Add(o.Amount)
		entry(req.ProfileID, nil, o.Type(), o.Amount, res.comment)

	case Refund:
		sender.Fiat = sender.Fiat.Add(o.Amount)
		entry(req.ProfileID, nil, o.Type(), o.Amount, res.comment)

	case BonusAdd:
		credit := money.WithPercent(o.Amount, o.ReferralPercent)
		credited, forfeited := splitCredit(ceiling, sender.Bonus, credit)
		sender.Bonus = sender.Bonus.Add(credited)
		sender.Forfeited = sender.Forfeited.Add(forfeited)

		if credited.IsPositive() || forfeited.IsZero() {
			entry(req.ProfileID, nil, o.Type(), credited, res.comment)
		}
		if forfeited.IsPositive() {
			res.dsc = fmt.Sprintf("%s forfeited, %s %s", money.Format(forfeited), ceilingReached, money.Format(ceiling))
			entry(req.ProfileID, nil, models.OpForfeit, forfeited, defaultComments[models.OpForfeit])
		}
		if credited.IsZero() && forfeited.IsPositive() {
			res.status = OutcomeFailure
			res.errText = ceilingReached
		}
		setDsc(res.entries, res.dsc)

	case BonusTransfer:
		receiver := balances[o.Receiver]
		total := o.Amount.Add(money.Percent(o.Amount, o.Commission))
		if sender.Bonus.LessThan(total) {
			return result{}, &InsufficientFundsError{Account: "bonus", Required: total, Available: sender.Bonus}
		}

		credited, forfeited := splitCredit(ceiling, receiver.Bonus, o.Amount)
		if credited.IsZero() {
			receiver.Forfeited = receiver.Forfeited.Add(forfeited)
			res.status = OutcomeFailure
			res.comment = failureComment
			res.errText = "recipient " + ceilingReached
			res.dsc = fmt.Sprintf("recipient %s, %s forfeited", ceilingReached, money.Format(forfeited))

			failed := entry(req.ProfileID, &o.Receiver, o.Type(), o.Amount, failureComment)
			failed.Status = models.TransactionFailed
			failed.Dsc = &res.dsc
			failed.ErrorMessage = &res.errText
			entry(o.Receiver, &req.ProfileID, models.OpForfeit, forfeited, defaultComments[models.OpForfeit])
			break
		}

		commission := money.Percent(credited, o.Commission)
		sender.Bonus = sender.Bonus.Sub(credited.Add(commission))
		receiver.Bonus = receiver.Bonus.Add(credited)
		receiver.Forfeited = receiver.Forfeited.Add(forfeited)

		if commission.IsPositive() {
			res.dsc = fmt.Sprintf("commission %s", money.Format(commission))
		}
		entry(req.ProfileID, &o.Receiver, o.Type(), credited, res.comment)
		entry(o.Receiver, &req.ProfileID, o.Type(), credited, res.comment)
		if forfeited.IsPositive() {
			res.dsc = joinDsc(res.dsc, fmt.Sprintf("%s forfeited, recipient %s", money.Format(forfeited), ceilingReached))
			entry(o.Receiver, &req.ProfileID, models.OpForfeit, forfeited, defaultComments[models.OpForfeit])
		}
		setDsc(res.entries, res.dsc)

	case Payment:
		commission := money.Percent(o.Amount, o.Commission)
		bonusUsed := decimal.Zero
		if o.UseBonus {
			bonusUsed = money.Min(sender.Bonus, o.Amount)
		}
		fiatUsed := o.Amount.Sub(bonusUsed).Add(commission)
		if sender.Fiat.LessThan(fiatUsed) {
			return result{}, &InsufficientFundsError{Account: "fiat", Required: fiatUsed, Available: sender.Fiat}
		}

		sender.Bonus = sender.Bonus.Sub(bonusUsed)
		sender.Fiat = sender.Fiat.Sub(fiatUsed)
		if o.Receiver != nil {
			receiver := balances[*o.Receiver]
			receiver.Fiat = receiver.Fiat.Add(o.Amount)
		}
		if bonusUsed.IsPositive() {
			res.dsc = fmt.Sprintf("%s paid from bonus, %s from fiat", money.Format(bonusUsed), money.Format(fiatUsed))
		}
		entry(req.ProfileID, o.Receiver, o.Type(), o.Amount, res.comment)
		setDsc(res.entries, res.dsc)

	case Withdrawal:
		commission := money.Percent(o.Amount, o.Commission)
		total := o.Amount.Add(commission)
		if o.FeeIncluded {
			total = o.Amount
		}
		if sender.Frozen.LessThan(total) {
			return result{}, &InsufficientFundsError{Account: "frozen", Required: total, Available: sender.Frozen}
		}
		sender.Frozen = sender.Frozen.Sub(total)
		switch {
		case commission.IsPositive() && o.FeeIncluded:
			res.dsc = fmt.Sprintf("commission %s, paid out %s", money.Format(commission), money.Format(o.Amount.Sub(commission)))
		case commission.IsPositive():
			res.dsc = fmt.Sprintf("commission %s", money.Format(commission))
		}
		entry(req.ProfileID, nil, o.Type(), o.Amount, res.comment)
		setDsc(res.entries, res.dsc)

	case Freeze:
		if sender.Fiat.LessThan(o.Amount) {
			return result{}, &InsufficientFundsError{Account: "fiat", Required: o.Amount, Available: sender.Fiat}
		}
		sender.Fiat = sender.Fiat.Sub(o.Amount)
		sender.Frozen = sender.Frozen.Add(o.Amount)
		entry(req.ProfileID, nil, o.Type(), o.Amount, res.comment)

	case Unfreeze:
		if sender.Frozen.LessThan(o.Amount) {
			return result{}, &InsufficientFundsError{Account: "frozen", Required: o.Amount, Available: sender.Frozen}
		}
		sender.Frozen = sender.Frozen.Sub(o.Amount)
		sender.Fiat = sender.Fiat.Add(o.Amount)
		entry(req.ProfileID, nil, o.Type(), o.Amount, res.comment)

	default:
		return result{}, invalidf("unsupported operation %T", op)
	}
	return res, nil
}

func setDsc(entries []models.Transaction, dsc string) {
	if dsc == "" {
		return
	}
	for i := range entries {
		if entries[i].Dsc == nil {
			entries[i].Dsc = &dsc
		}
	}
}

func joinDsc(a, b string) string {
	if a == "" {
		return b
	}
	return a + "; " + b
}
