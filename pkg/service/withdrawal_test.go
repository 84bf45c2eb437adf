package service

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"study_ledger_back/models"
	"study_ledger_back/pkg/lock"
	"study_ledger_back/pkg/notify"
)

type alertRecorder struct {
	mu     sync.Mutex
	alerts []notify.Alert
}

func (r *alertRecorder) Send(_ context.Context, a notify.Alert) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.alerts = append(r.alerts, a)
	return nil
}

// brokenUnfreeze fails every unfreeze, as if the ledger could not return frozen funds.
type brokenUnfreeze struct {
	next Engine
}

func (b brokenUnfreeze) Execute(ctx context.Context, req Request) (Outcome, error) {
	if _, ok := req.Operation.(Unfreeze); ok {
		return Outcome{Status: OutcomeFailure, Comment: failureComment, Error: "ledger unavailable"}, nil
	}
	return b.next.Execute(ctx, req)
}

// declinedPayout fails every payout, as a card gateway decline would.
type declinedPayout struct {
	next Engine
}

func (p declinedPayout) Execute(ctx context.Context, req Request) (Outcome, error) {
	if _, ok := req.Operation.(Withdrawal); ok {
		return Outcome{Status: OutcomeFailure, Comment: failureComment, Error: "card declined", Dsc: "gateway refused the card"}, nil
	}
	return p.next.Execute(ctx, req)
}

// heldLocker reports whether its key is currently held.
type heldLocker struct {
	next lock.Locker
	held atomic.Bool
}

func (l *heldLocker) WithLock(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return l.next.WithLock(ctx, key, func(ctx context.Context) error {
		l.held.Store(true)
		defer l.held.Store(false)
		return fn(ctx)
	})
}

type lockAwareAlerter struct {
	locker       *heldLocker
	sent         int
	sentWhenHeld bool
}

func (a *lockAwareAlerter) Send(context.Context, notify.Alert) error {
	a.sent++
	if a.locker.held.Load() {
		a.sentWhenHeld = true
	}
	return nil
}

type workflowFixture struct {
	svc     *WithdrawalService
	store   *memStore
	alerter *alertRecorder
	hook    *test.Hook
}

func newWorkflow(t *testing.T, cfg WithdrawalConfig, wrap func(Engine) Engine) workflowFixture {
	t.Helper()
	log, hook := test.NewNullLogger()
	store := newMemStore()
	var engine Engine = NewLedgerService(store, nil, log)
	if wrap != nil {
		engine = wrap(engine)
	}
	alerter := &alertRecorder{}
	return workflowFixture{
		svc:     NewWithdrawalService(store, engine, lock.NewLocal(), alerter, cfg, log),
		store:   store,
		alerter: alerter,
		hook:    hook,
	}
}

func submit(t *testing.T, f workflowFixture, amount string) models.WithdrawalRequest {
	t.Helper()
	res, err := f.svc.Submit(context.Background(), models.WithdrawalInput{
		UserID:     1,
		Amount:     d(amount),
		CardNumber: "4276 0000 0000 0001",
		Comment:    "salary",
	})
	require.NoError(t, err)
	return res.Request
}

func TestWithdrawalLifecycle(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "10000"))

	w := submit(t, f, "6000")
	assert.Equal(t, models.WithdrawalPending, w.Status)
	require.NotNil(t, w.TransactionID)
	require.NotNil(t, w.CommentUser)
	assert.Equal(t, "salary", *w.CommentUser)
	assertBalance(t, f.store.balance(1), "4000", "6000", "0", "0")

	res, err := f.svc.Approve(context.Background(), w.ID, "paid via bank")
	require.NoError(t, err)
	assert.True(t, res.Outcome.OK())
	assert.Equal(t, models.WithdrawalCompleted, res.Request.Status)
	require.NotNil(t, res.Request.CompletedAt)
	require.NotNil(t, res.Request.Comment)
	assert.Equal(t, "paid via bank", *res.Request.Comment)
	assert.Equal(t, res.Outcome.Entries[0].ID, *res.Request.TransactionID)
	require.NotNil(t, res.Request.CommentWhores)
	assert.Equal(t, "comment: Withdrawal to card", *res.Request.CommentWhores)
	assertBalance(t, f.store.balance(1), "4000", "0", "0", "0")

	stored, err := f.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCompleted, stored.Status)
}

func TestApproveFailureReturnsFunds(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), func(e Engine) Engine { return declinedPayout{next: e} })
	f.store.setBalance(fiat(1, "10000"))

	w := submit(t, f, "6000")

	res, err := f.svc.Approve(context.Background(), w.ID, "")
	require.NoError(t, err)
	assert.False(t, res.Outcome.OK())
	assert.Equal(t, models.WithdrawalCancelledWhores, res.Request.Status)
	require.NotNil(t, res.Request.CommentWhores)
	assert.Contains(t, *res.Request.CommentWhores, "card declined")
	assert.Contains(t, *res.Request.CommentWhores, "gateway refused the card")
	assertBalance(t, f.store.balance(1), "10000", "0", "0", "0")
	assert.Empty(t, f.alerter.alerts)
}

func TestApproveTakesCommissionFromFrozenAmount(t *testing.T) {
	cfg := DefaultWithdrawalConfig()
	cfg.Commission = d("10")
	f := newWorkflow(t, cfg, nil)
	f.store.setBalance(fiat(1, "20000"))

	first := submit(t, f, "6000")
	second := submit(t, f, "6000")
	assertBalance(t, f.store.balance(1), "8000", "12000", "0", "0")

	for _, w := range []models.WithdrawalRequest{first, second} {
		res, err := f.svc.Approve(context.Background(), w.ID, "")
		require.NoError(t, err)
		assert.True(t, res.Outcome.OK())
		assert.Equal(t, models.WithdrawalCompleted, res.Request.Status)
		assert.Equal(t, "commission 600.00, paid out 5400.00", res.Outcome.Dsc)
		require.NotNil(t, res.Request.CommentWhores)
		assert.Contains(t, *res.Request.CommentWhores, "paid out 5400.00")
	}

	assertBalance(t, f.store.balance(1), "8000", "0", "0", "0")
	assert.Empty(t, f.alerter.alerts)
}

func TestCompensationAlertSentAfterLockRelease(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), func(e Engine) Engine {
		return declinedPayout{next: brokenUnfreeze{next: e}}
	})
	f.store.setBalance(fiat(1, "10000"))
	locker := &heldLocker{next: lock.NewLocal()}
	alerter := &lockAwareAlerter{locker: locker}
	f.svc.locker = locker
	f.svc.alerter = alerter

	w := submit(t, f, "6000")

	_, err := f.svc.Approve(context.Background(), w.ID, "")
	var cerr *CompensationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, 1, alerter.sent)
	assert.False(t, alerter.sentWhenHeld)
}

func TestCompensationFailure(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), func(e Engine) Engine {
		return declinedPayout{next: brokenUnfreeze{next: e}}
	})
	f.store.setBalance(fiat(1, "10000"))

	w := submit(t, f, "6000")

	_, err := f.svc.Approve(context.Background(), w.ID, "")
	var cerr *CompensationError
	require.ErrorAs(t, err, &cerr)
	assert.Equal(t, w.ID, cerr.WithdrawalID)
	assert.Contains(t, cerr.Reason, "ledger unavailable")

	require.Len(t, f.alerter.alerts, 1)
	assert.Contains(t, f.alerter.alerts[0].Body, "6000.00")

	stored, err := f.svc.Get(context.Background(), w.ID)
	require.NoError(t, err)
	assert.Equal(t, models.WithdrawalCancelledWhores, stored.Status)
	assertBalance(t, f.store.balance(1), "4000", "6000", "0", "0")

	var alerted bool
	for _, e := range f.hook.AllEntries() {
		if e.Data["alert"] == "compensation_failure" {
			alerted = true
		}
	}
	assert.True(t, alerted)
}

func TestReject(t *testing.T) {
	t.Run("comment required", func(t *testing.T) {
		f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
		f.store.setBalance(fiat(1, "10000"))
		w := submit(t, f, "6000")

		_, err := f.svc.Reject(context.Background(), w.ID, "   ")
		var verr *ValidationError
		require.ErrorAs(t, err, &verr)

		stored, _ := f.svc.Get(context.Background(), w.ID)
		assert.Equal(t, models.WithdrawalPending, stored.Status)
		assertBalance(t, f.store.balance(1), "4000", "6000", "0", "0")
	})

	t.Run("returns funds", func(t *testing.T) {
		f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
		f.store.setBalance(fiat(1, "10000"))
		w := submit(t, f, "6000")

		res, err := f.svc.Reject(context.Background(), w.ID, " card is blocked ")
		require.NoError(t, err)
		assert.Equal(t, models.WithdrawalCancelled, res.Request.Status)
		assert.Equal(t, "card is blocked", *res.Request.Comment)
		assertBalance(t, f.store.balance(1), "10000", "0", "0", "0")
	})

	t.Run("unfreeze failure keeps request pending", func(t *testing.T) {
		f := newWorkflow(t, DefaultWithdrawalConfig(), func(e Engine) Engine { return brokenUnfreeze{next: e} })
		f.store.setBalance(fiat(1, "10000"))
		w := submit(t, f, "6000")

		_, err := f.svc.Reject(context.Background(), w.ID, "fraud check")
		var oerr *OutcomeError
		require.ErrorAs(t, err, &oerr)

		stored, _ := f.svc.Get(context.Background(), w.ID)
		assert.Equal(t, models.WithdrawalPending, stored.Status)
	})
}

func TestDecisionsOnTerminalRequest(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "10000"))
	w := submit(t, f, "6000")

	_, err := f.svc.Approve(context.Background(), w.ID, "")
	require.NoError(t, err)

	_, err = f.svc.Approve(context.Background(), w.ID, "")
	assert.ErrorIs(t, err, ErrConflict)
	_, err = f.svc.Reject(context.Background(), w.ID, "too late")
	assert.ErrorIs(t, err, ErrConflict)

	_, err = f.svc.Approve(context.Background(), 999, "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestConcurrentApprovalsApplyOnce(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "10000"))
	w := submit(t, f, "6000")

	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.svc.Approve(context.Background(), w.ID, "")
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return
			}
			assert.ErrorIs(t, err, ErrConflict)
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assertBalance(t, f.store.balance(1), "4000", "0", "0", "0")
}

func TestSubmitValidation(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "10000"))

	_, err := f.svc.Submit(context.Background(), models.WithdrawalInput{UserID: 1, Amount: d("4000"), CardNumber: "x"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "1000.00")

	_, err = f.svc.Submit(context.Background(), models.WithdrawalInput{UserID: 1, Amount: d("6000"), CardNumber: " "})
	require.ErrorAs(t, err, &verr)
	assert.Contains(t, verr.Msg, "card")

	assert.Empty(t, f.store.entries())
}

func TestSubmitFreezeFailure(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "1000"))

	res, err := f.svc.Submit(context.Background(), models.WithdrawalInput{UserID: 1, Amount: d("6000"), CardNumber: "card"})
	require.NoError(t, err)
	assert.False(t, res.Outcome.OK())
	assert.Equal(t, models.WithdrawalCancelledWhores, res.Request.Status)
	require.NotNil(t, res.Request.CommentWhores)
	assert.Contains(t, *res.Request.CommentWhores, "short by 5000.00")
	assertBalance(t, f.store.balance(1), "1000", "0", "0", "0")
}

func TestSubmitRateLimit(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "100000"))

	now := time.Now()
	for _, age := range []time.Duration{24 * time.Hour, 48 * time.Hour, 72 * time.Hour} {
		require.NoError(t, f.store.CreateWithdrawal(context.Background(), &models.WithdrawalRequest{
			UserID:      1,
			Amount:      d("5000"),
			CardNumber:  "card",
			Status:      models.WithdrawalCompleted,
			SubmittedAt: now.Add(-age),
		}))
	}

	_, err := f.svc.Submit(context.Background(), models.WithdrawalInput{UserID: 1, Amount: d("5000"), CardNumber: "card"})
	var rerr *RateLimitError
	require.ErrorAs(t, err, &rerr)
	assert.Equal(t, 4, rerr.RemainingDays)
	assert.Equal(t, 7, rerr.WindowDays)
	assert.Empty(t, f.store.entries())
	assertBalance(t, f.store.balance(1), "100000", "0", "0", "0")
}

func TestDecideAndListings(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "20000"))
	first := submit(t, f, "6000")
	second := submit(t, f, "5000")

	_, err := f.svc.Decide(context.Background(), first.ID, models.WithdrawalDecisionInput{Action: "reject", Comment: "duplicate"})
	require.NoError(t, err)

	_, err = f.svc.Decide(context.Background(), second.ID, models.WithdrawalDecisionInput{Action: "hold"})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)

	pending, err := f.svc.ListByUser(context.Background(), 1, []models.WithdrawalStatus{models.WithdrawalPending})
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, second.ID, pending[0].ID)

	all, err := f.svc.List(context.Background(), models.WithdrawalFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = f.svc.List(context.Background(), models.WithdrawalFilter{Statuses: []models.WithdrawalStatus{"lost"}})
	require.ErrorAs(t, err, &verr)
}

func TestEngineErrorLeavesRequestPending(t *testing.T) {
	f := newWorkflow(t, DefaultWithdrawalConfig(), nil)
	f.store.setBalance(fiat(1, "10000"))
	w := submit(t, f, "6000")

	*f.store.saveErr = errors.New("db gone")
	_, err := f.svc.Approve(context.Background(), w.ID, "")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrConflict)

	*f.store.saveErr = nil
	stored, _ := f.svc.Get(context.Background(), w.ID)
	assert.Equal(t, models.WithdrawalPending, stored.Status)
}
