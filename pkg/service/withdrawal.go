package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"study_ledger_back/internal/money"
	"study_ledger_back/models"
	"study_ledger_back/pkg/lock"
	"study_ledger_back/pkg/notify"
	"study_ledger_back/pkg/repository"
)

const (
	maxWithdrawalComment = 255

	freezeComment   = "Withdrawal request under review"
	payoutComment   = "Withdrawal to card"
	returnComment   = "Frozen funds returned to fiat"
	rejectedComment = "Frozen funds returned after rejection"
)

// Engine executes ledger operations. *LedgerService implements it.
type Engine interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
}

type WithdrawalResult struct {
	Request models.WithdrawalRequest `json:"request"`
	Outcome Outcome                  `json:"outcome"`
}

type WithdrawalService struct {
	store   repository.Store
	engine  Engine
	locker  lock.Locker
	alerter notify.Alerter
	cfg     WithdrawalConfig
	log     logrus.FieldLogger
	now     func() time.Time
}

func NewWithdrawalService(store repository.Store, engine Engine, locker lock.Locker, alerter notify.Alerter,
	cfg WithdrawalConfig, log logrus.FieldLogger) *WithdrawalService {
	return &WithdrawalService{
		store:   store,
		engine:  engine,
		locker:  locker,
		alerter: alerter,
		cfg:     cfg,
		log:     log,
		now:     time.Now,
	}
}

// Submit freezes the amount and files a request. A failed freeze still files the request,
// already cancelled, so the attempt is visible to finance staff.
func (s *WithdrawalService) Submit(ctx context.Context, in models.WithdrawalInput) (WithdrawalResult, error) {
	if in.UserID <= 0 {
		return WithdrawalResult{}, invalidf("user id is required")
	}
	card := strings.TrimSpace(in.CardNumber)
	if card == "" {
		return WithdrawalResult{}, invalidf("card number is required")
	}
	if err := money.Check(in.Amount); err != nil || !in.Amount.IsPositive() {
		return WithdrawalResult{}, invalidf("invalid withdrawal amount %s", in.Amount.String())
	}
	if in.Amount.LessThan(s.cfg.MinAmount) {
		return WithdrawalResult{}, invalidf("minimum withdrawal is %s, you are short by %s",
			money.Format(s.cfg.MinAmount), money.Format(s.cfg.MinAmount.Sub(in.Amount)))
	}

	log := s.log.WithFields(logrus.Fields{"user_id": in.UserID, "amount": money.Format(in.Amount)})

	now := s.now()
	completed, err := s.store.CompletedWithdrawalDates(ctx, in.UserID, now.Add(-s.cfg.Window))
	if err != nil {
		return WithdrawalResult{}, err
	}
	if days, blocked := remainingDays(completed, s.cfg.MaxPerWindow, s.cfg.Window, now); blocked {
		log.WithField("remaining_days", days).Info("withdrawal rate limit hit")
		return WithdrawalResult{}, &RateLimitError{
			Limit:         s.cfg.MaxPerWindow,
			WindowDays:    s.cfg.windowDays(),
			RemainingDays: days,
		}
	}

	out, err := s.engine.Execute(ctx, Request{
		ProfileID: in.UserID,
		Operation: Freeze{Amount: in.Amount},
		Comment:   freezeComment,
	})
	if err != nil {
		return WithdrawalResult{}, errors.Wrap(err, "freeze withdrawal amount")
	}

	w := models.WithdrawalRequest{
		UserID:      in.UserID,
		Amount:      in.Amount,
		CardNumber:  card,
		CommentUser: optional(in.Comment),
	}
	if entry := out.Primary(); entry != nil {
		w.TransactionID = &entry.ID
	}
	if out.OK() {
		w.Status = models.WithdrawalPending
	} else {
		w.Status = models.WithdrawalCancelledWhores
		w.CommentWhores = appendNote(w.CommentWhores, diagnostic(out))
	}

	if err := s.store.CreateWithdrawal(ctx, &w); err != nil {
		return WithdrawalResult{}, err
	}

	log.WithFields(logrus.Fields{"withdrawal_id": w.ID, "status": w.Status}).Info("withdrawal request filed")
	return WithdrawalResult{Request: w, Outcome: out}, nil
}

// Approve pays out the frozen amount, commission included. When the payout fails the request
// is cancelled and the money is returned to fiat; if that return fails too a CompensationError
// is raised and operators are alerted.
func (s *WithdrawalService) Approve(ctx context.Context, id int64, comment string) (WithdrawalResult, error) {
	var res WithdrawalResult
	err := s.decide(ctx, id, func(ctx context.Context, w *models.WithdrawalRequest) error {
		log := s.log.WithFields(logrus.Fields{"withdrawal_id": w.ID, "user_id": w.UserID})

		out, err := s.engine.Execute(ctx, Request{
			ProfileID: w.UserID,
			Operation: Withdrawal{Amount: w.Amount, Commission: s.cfg.Commission, FeeIncluded: true},
			Comment:   payoutComment,
		})
		if err != nil {
			return errors.Wrap(err, "pay out withdrawal")
		}

		w.Comment = optional(comment)
		if entry := out.Primary(); entry != nil {
			w.TransactionID = &entry.ID
		}

		if out.OK() {
			completedAt := s.now()
			w.Status = models.WithdrawalCompleted
			w.CompletedAt = &completedAt
			w.CommentWhores = appendNote(w.CommentWhores, diagnostic(out))
			if err := s.persist(ctx, w); err != nil {
				return err
			}
			log.Info("withdrawal approved")
			res = WithdrawalResult{Request: *w, Outcome: out}
			return nil
		}

		w.Status = models.WithdrawalCancelledWhores
		w.CommentWhores = appendNote(w.CommentWhores, diagnostic(out))
		if err := s.persist(ctx, w); err != nil {
			return err
		}
		log.WithField("dsc", out.Dsc).Warn("withdrawal payout failed, returning frozen funds")
		res = WithdrawalResult{Request: *w, Outcome: out}

		return s.compensate(ctx, log, w)
	})

	var cerr *CompensationError
	if errors.As(err, &cerr) {
		s.alert(ctx, cerr)
	}
	return res, err
}

func (s *WithdrawalService) compensate(ctx context.Context, log logrus.FieldLogger, w *models.WithdrawalRequest) error {
	out, err := s.engine.Execute(ctx, Request{
		ProfileID: w.UserID,
		Operation: Unfreeze{Amount: w.Amount},
		Comment:   returnComment,
	})

	reason := ""
	switch {
	case err != nil:
		reason = err.Error()
	case !out.OK():
		reason = diagnostic(out)
	default:
		return nil
	}

	cerr := &CompensationError{WithdrawalID: w.ID, UserID: w.UserID, Amount: w.Amount, Reason: reason}
	log.WithField("alert", "compensation_failure").Error(cerr.Error())
	return cerr
}

// alert mails the operators. It runs after the decision lock is released.
func (s *WithdrawalService) alert(ctx context.Context, cerr *CompensationError) {
	alert := notify.Alert{
		Subject: fmt.Sprintf("Withdrawal %d: frozen funds were not returned", cerr.WithdrawalID),
		Body:    cerr.Error(),
	}
	if err := s.alerter.Send(ctx, alert); err != nil {
		s.log.WithError(err).WithField("withdrawal_id", cerr.WithdrawalID).Error("compensation alert was not delivered")
	}
}

// Reject returns the frozen amount to fiat. A staff comment is mandatory.
func (s *WithdrawalService) Reject(ctx context.Context, id int64, comment string) (WithdrawalResult, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return WithdrawalResult{}, invalidf("comment is required to reject a withdrawal")
	}

	var res WithdrawalResult
	err := s.decide(ctx, id, func(ctx context.Context, w *models.WithdrawalRequest) error {
		out, err := s.engine.Execute(ctx, Request{
			ProfileID: w.UserID,
			Operation: Unfreeze{Amount: w.Amount},
			Comment:   rejectedComment,
		})
		if err != nil {
			return errors.Wrap(err, "return frozen funds")
		}
		if !out.OK() {
			res = WithdrawalResult{Request: *w, Outcome: out}
			return &OutcomeError{Outcome: out}
		}

		w.Status = models.WithdrawalCancelled
		w.Comment = optional(comment)
		if entry := out.Primary(); entry != nil {
			w.TransactionID = &entry.ID
		}
		if err := s.persist(ctx, w); err != nil {
			return err
		}

		s.log.WithFields(logrus.Fields{"withdrawal_id": w.ID, "user_id": w.UserID}).Info("withdrawal rejected")
		res = WithdrawalResult{Request: *w, Outcome: out}
		return nil
	})
	return res, err
}

// Decide dispatches a decision by action name.
func (s *WithdrawalService) Decide(ctx context.Context, id int64, in models.WithdrawalDecisionInput) (WithdrawalResult, error) {
	switch in.Action {
	case "approve":
		return s.Approve(ctx, id, in.Comment)
	case "reject":
		return s.Reject(ctx, id, in.Comment)
	}
	return WithdrawalResult{}, invalidf("unknown action %q", in.Action)
}

// decide loads a pending request under its lock and hands it to fn.
func (s *WithdrawalService) decide(ctx context.Context, id int64, fn func(ctx context.Context, w *models.WithdrawalRequest) error) error {
	return s.locker.WithLock(ctx, fmt.Sprintf("withdrawal:%d", id), func(ctx context.Context) error {
		w, err := s.store.GetWithdrawal(ctx, id)
		if err != nil {
			return err
		}
		if w.Status != models.WithdrawalPending {
			return errors.Wrapf(ErrConflict, "withdrawal %d is already %s", id, w.Status)
		}
		return fn(ctx, &w)
	})
}

func (s *WithdrawalService) persist(ctx context.Context, w *models.WithdrawalRequest) error {
	err := s.store.UpdateWithdrawalDecision(ctx, w, models.WithdrawalPending)
	if errors.Is(err, repository.ErrStaleStatus) {
		return errors.Wrapf(ErrConflict, "withdrawal %d", w.ID)
	}
	return err
}

func (s *WithdrawalService) Get(ctx context.Context, id int64) (models.WithdrawalRequest, error) {
	return s.store.GetWithdrawal(ctx, id)
}

func (s *WithdrawalService) ListByUser(ctx context.Context, userID int64, statuses []models.WithdrawalStatus) ([]models.WithdrawalRequest, error) {
	return s.List(ctx, models.WithdrawalFilter{UserID: &userID, Statuses: statuses})
}

func (s *WithdrawalService) List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	for _, st := range filter.Statuses {
		if !st.Valid() {
			return nil, invalidf("unknown withdrawal status %q", st)
		}
	}
	return s.store.GetWithdrawals(ctx, filter)
}

func diagnostic(out Outcome) string {
	note := "comment: " + out.Comment
	if out.Error != "" {
		note += ". " + out.Error
	}
	if out.Dsc != "" {
		note += ". " + out.Dsc
	}
	return note
}

func appendNote(current *string, note string) *string {
	text := note
	if current != nil && *current != "" {
		text = *current + "\n" + note
	}
	text = clip(text, maxWithdrawalComment)
	return &text
}

func optional(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	s = clip(s, maxWithdrawalComment)
	return &s
}
