package service

import (
	"context"
	"unicode/utf8"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"study_ledger_back/models"
	"study_ledger_back/pkg/repository"
)

const (
	maxCommentLen = 155
	maxDscLen     = 155
)

type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeFailure OutcomeStatus = "failed"
)

// Outcome is what a caller learns about one engine call. Business failures are reported here,
// not as errors.
type Outcome struct {
	Status  OutcomeStatus        `json:"status"`
	Comment string               `json:"comment"`
	Dsc     string               `json:"dsc,omitempty"`
	Error   string               `json:"error,omitempty"`
	Entries []models.Transaction `json:"transactions"`
}

func (o Outcome) OK() bool { return o.Status == OutcomeSuccess }

// Primary is the initiating profile's entry.
func (o Outcome) Primary() *models.Transaction {
	if len(o.Entries) == 0 {
		return nil
	}
	return &o.Entries[0]
}

type Request struct {
	ProfileID int64
	Operation Operation
	Comment   string
	// Ceiling overrides the service resolver for this call.
	Ceiling CeilingResolver
}

type LedgerService struct {
	store   repository.Store
	ceiling CeilingResolver
	log     logrus.FieldLogger
}

func NewLedgerService(store repository.Store, ceiling CeilingResolver, log logrus.FieldLogger) *LedgerService {
	return &LedgerService{store: store, ceiling: ceiling, log: log}
}

// Execute runs one operation atomically. The returned error is non-nil only for invalid
// requests and infrastructure failures; a rule violation rolls back and is recorded as a
// failed ledger entry in its own transaction.
func (s *LedgerService) Execute(ctx context.Context, req Request) (Outcome, error) {
	if err := validateRequest(req); err != nil {
		return Outcome{}, err
	}
	log := s.log.WithFields(logrus.Fields{
		"profile_id": req.ProfileID,
		"operation":  req.Operation.Type(),
	})

	ids := []int64{req.ProfileID}
	if cp := counterparty(req.Operation); cp != nil {
		ids = append(ids, *cp)
	}
	for _, id := range ids {
		if _, err := s.store.CreateBalance(ctx, id); err != nil {
			return Outcome{}, errors.Wrap(err, "provision balance")
		}
	}

	var ceiling decimal.Decimal
	if holder, ok := bonusHolder(req); ok {
		limit, err := s.resolveCeiling(ctx, req, holder)
		if err != nil {
			return s.fail(ctx, log, req, err)
		}
		ceiling = limit
	}

	var out Outcome
	err := s.store.InTx(ctx, func(tx repository.Store) error {
		locked, err := tx.LockBalances(ctx, ids...)
		if err != nil {
			return err
		}
		balances := make(map[int64]*models.Balance, len(locked))
		for id := range locked {
			b := locked[id]
			balances[id] = &b
		}

		res, err := apply(req, balances, ceiling)
		if err != nil {
			return err
		}

		for _, id := range ids {
			b := balances[id]
			if !b.IsValid() {
				return errors.Errorf("balance of profile %d would go negative", id)
			}
			if err := tx.SaveBalance(ctx, *b); err != nil {
				return err
			}
		}
		for i := range res.entries {
			clipEntry(&res.entries[i])
			if err := tx.CreateTransaction(ctx, &res.entries[i]); err != nil {
				return err
			}
		}

		out = Outcome{
			Status:  res.status,
			Comment: res.comment,
			Dsc:     res.dsc,
			Error:   res.errText,
			Entries: res.entries,
		}
		return nil
	})
	if err != nil {
		return s.fail(ctx, log, req, err)
	}

	if out.OK() {
		log.WithField("entries", len(out.Entries)).Info("transaction completed")
	} else {
		log.WithField("dsc", out.Dsc).Warn(out.Error)
	}
	return out, nil
}

func validateRequest(req Request) error {
	if req.ProfileID <= 0 {
		return invalidf("profile id is required")
	}
	if req.Operation == nil {
		return invalidf("operation is required")
	}
	if utf8.RuneCountInString(req.Comment) > maxCommentLen {
		return invalidf("comment is longer than %d characters", maxCommentLen)
	}
	return req.Operation.validate(req.ProfileID)
}

// bonusHolder returns the profile whose bonus ceiling the operation depends on.
func bonusHolder(req Request) (int64, bool) {
	switch o := req.Operation.(type) {
	case BonusAdd:
		return req.ProfileID, true
	case BonusTransfer:
		return o.Receiver, true
	}
	return 0, false
}

func (s *LedgerService) resolveCeiling(ctx context.Context, req Request, profileID int64) (decimal.Decimal, error) {
	resolver := req.Ceiling
	if resolver == nil {
		resolver = s.ceiling
	}
	if resolver == nil {
		return decimal.Zero, &ResolutionError{ProfileID: profileID, Err: errors.New("no resolver configured")}
	}

	limit, err := resolver.BonusCeiling(ctx, profileID)
	if err != nil {
		return decimal.Zero, &ResolutionError{ProfileID: profileID, Err: err}
	}
	if limit.IsNegative() {
		return decimal.Zero, &ResolutionError{ProfileID: profileID, Err: errors.Errorf("negative ceiling %s", limit)}
	}
	return limit, nil
}

// fail records the single failed entry for an attempt that changed nothing.
func (s *LedgerService) fail(ctx context.Context, log logrus.FieldLogger, req Request, cause error) (Outcome, error) {
	var validation *ValidationError
	if errors.As(cause, &validation) {
		return Outcome{}, cause
	}

	entry := models.Transaction{
		ProfileID:       req.ProfileID,
		TargetProfileID: counterparty(req.Operation),
		Amount:          operationAmount(req.Operation),
		Type:            req.Operation.Type(),
		Status:          models.TransactionFailed,
		Comment:         failureComment,
	}

	var (
		insufficient *InsufficientFundsError
		resolution   *ResolutionError
		business     = true
		dsc          string
		errText      = cause.Error()
	)
	switch {
	case errors.As(cause, &insufficient):
		dsc = insufficient.Diagnostic()
		detail := noTechnicalError
		entry.ErrorMessage = &detail
	case errors.As(cause, &resolution):
		dsc = "bonus ceiling unavailable"
		entry.ErrorMessage = &errText
	default:
		business = false
		dsc = "technical error"
		entry.ErrorMessage = &errText
	}
	entry.Dsc = &dsc
	clipEntry(&entry)

	out := Outcome{Status: OutcomeFailure, Comment: failureComment, Dsc: dsc, Error: errText}

	if err := s.store.CreateTransaction(ctx, &entry); err != nil {
		log.WithError(err).WithField("cause", errText).Error("could not record failed transaction")
		return out, errors.Wrap(err, "record failed transaction")
	}
	out.Entries = []models.Transaction{entry}

	if !business {
		log.WithError(cause).Error("transaction aborted")
		return out, errors.Wrap(cause, "execute transaction")
	}
	log.WithField("dsc", dsc).Warn(errText)
	return out, nil
}

func clipEntry(t *models.Transaction) {
	t.Comment = clip(t.Comment, maxCommentLen)
	if t.Dsc != nil {
		d := clip(*t.Dsc, maxDscLen)
		t.Dsc = &d
	}
}

func clip(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}

// Balance returns the profile's balance, creating a zeroed one on first access.
func (s *LedgerService) Balance(ctx context.Context, profileID int64) (models.Balance, error) {
	b, err := s.store.GetBalance(ctx, profileID)
	if errors.Is(err, repository.ErrNotFound) {
		return s.ProvisionBalance(ctx, profileID)
	}
	return b, err
}

func (s *LedgerService) ProvisionBalance(ctx context.Context, profileID int64) (models.Balance, error) {
	if profileID <= 0 {
		return models.Balance{}, invalidf("profile id is required")
	}
	return s.store.CreateBalance(ctx, profileID)
}

func (s *LedgerService) Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	if filter.Type != "" && !filter.Type.Valid() {
		return nil, invalidf("unknown transaction type %q", filter.Type)
	}
	if filter.StartDate != nil && filter.EndDate != nil && filter.EndDate.Before(*filter.StartDate) {
		return nil, invalidf("end_date is before start_date")
	}
	return s.store.GetTransactions(ctx, filter)
}

// TransferBonus moves bonus from the sender to another profile without commission.
func (s *LedgerService) TransferBonus(ctx context.Context, senderID int64, in models.BonusTransferInput) (Outcome, error) {
	return s.Execute(ctx, Request{
		ProfileID: senderID,
		Operation: BonusTransfer{Receiver: in.RecipientID, Amount: in.Amount},
		Comment:   in.Comment,
	})
}
