package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"study_ledger_back/models"
	"study_ledger_back/pkg/repository"
)

type memState struct {
	balances     map[int64]models.Balance
	transactions []models.Transaction
	withdrawals  map[int64]models.WithdrawalRequest
	nextTx       int64
	nextW        int64
}

func (st *memState) clone() *memState {
	c := &memState{
		balances:     make(map[int64]models.Balance, len(st.balances)),
		transactions: append([]models.Transaction(nil), st.transactions...),
		withdrawals:  make(map[int64]models.WithdrawalRequest, len(st.withdrawals)),
		nextTx:       st.nextTx,
		nextW:        st.nextW,
	}
	for k, v := range st.balances {
		c.balances[k] = v
	}
	for k, v := range st.withdrawals {
		c.withdrawals[k] = v
	}
	return c
}

// memStore is an in-memory repository.Store. InTx works on a copy of the state that is
// swapped in only on success, so a failing callback leaves nothing behind.
type memStore struct {
	mu    *sync.Mutex
	root  **memState
	state *memState
	inTx  bool

	// saveErr, when set, is returned by SaveBalance.
	saveErr *error
}

func newMemStore() *memStore {
	st := &memState{
		balances:    make(map[int64]models.Balance),
		withdrawals: make(map[int64]models.WithdrawalRequest),
	}
	var saveErr error
	return &memStore{mu: &sync.Mutex{}, root: &st, saveErr: &saveErr}
}

func (m *memStore) with(fn func(st *memState)) {
	if m.inTx {
		fn(m.state)
		return
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	fn(*m.root)
}

func (m *memStore) InTx(ctx context.Context, fn func(repository.Store) error) error {
	if m.inTx {
		return fn(m)
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memStore{mu: m.mu, root: m.root, state: (*m.root).clone(), inTx: true, saveErr: m.saveErr}
	if err := fn(tx); err != nil {
		return err
	}
	*m.root = tx.state
	return nil
}

func (m *memStore) setBalance(b models.Balance) {
	m.with(func(st *memState) {
		if b.ID == 0 {
			b.ID = b.ProfileID
		}
		st.balances[b.ProfileID] = b
	})
}

func (m *memStore) balance(profileID int64) models.Balance {
	var b models.Balance
	m.with(func(st *memState) { b = st.balances[profileID] })
	return b
}

func (m *memStore) entries() []models.Transaction {
	var out []models.Transaction
	m.with(func(st *memState) { out = append(out, st.transactions...) })
	return out
}

func (m *memStore) CreateBalance(_ context.Context, profileID int64) (models.Balance, error) {
	var b models.Balance
	m.with(func(st *memState) {
		existing, ok := st.balances[profileID]
		if !ok {
			existing = models.Balance{ID: profileID, ProfileID: profileID, UpdatedAt: time.Now()}
			st.balances[profileID] = existing
		}
		b = existing
	})
	return b, nil
}

func (m *memStore) GetBalance(_ context.Context, profileID int64) (models.Balance, error) {
	var (
		b  models.Balance
		ok bool
	)
	m.with(func(st *memState) { b, ok = st.balances[profileID] })
	if !ok {
		return models.Balance{}, repository.ErrNotFound
	}
	return b, nil
}

func (m *memStore) LockBalances(ctx context.Context, profileIDs ...int64) (map[int64]models.Balance, error) {
	out := make(map[int64]models.Balance, len(profileIDs))
	for _, id := range profileIDs {
		b, err := m.GetBalance(ctx, id)
		if err != nil {
			return nil, err
		}
		out[id] = b
	}
	return out, nil
}

func (m *memStore) SaveBalance(_ context.Context, b models.Balance) error {
	if err := *m.saveErr; err != nil {
		return err
	}
	if !b.IsValid() {
		return errors.Errorf("check constraint violated for profile %d", b.ProfileID)
	}
	var ok bool
	m.with(func(st *memState) {
		if _, ok = st.balances[b.ProfileID]; ok {
			b.UpdatedAt = time.Now()
			st.balances[b.ProfileID] = b
		}
	})
	if !ok {
		return repository.ErrNotFound
	}
	return nil
}

func (m *memStore) CreateTransaction(_ context.Context, t *models.Transaction) error {
	m.with(func(st *memState) {
		st.nextTx++
		t.ID = st.nextTx
		t.CreatedAt = time.Now()
		st.transactions = append(st.transactions, *t)
	})
	return nil
}

func (m *memStore) GetTransaction(_ context.Context, id int64) (models.Transaction, error) {
	var (
		t     models.Transaction
		found bool
	)
	m.with(func(st *memState) {
		for _, tr := range st.transactions {
			if tr.ID == id {
				t, found = tr, true
			}
		}
	})
	if !found {
		return models.Transaction{}, repository.ErrNotFound
	}
	return t, nil
}

func (m *memStore) GetTransactions(_ context.Context, filter models.TransactionFilter) ([]models.Transaction, error) {
	out := []models.Transaction{}
	m.with(func(st *memState) {
		for _, t := range st.transactions {
			if filter.ProfileID != nil && t.ProfileID != *filter.ProfileID &&
				(t.TargetProfileID == nil || *t.TargetProfileID != *filter.ProfileID) {
				continue
			}
			if filter.Type != "" && t.Type != filter.Type {
				continue
			}
			out = append(out, t)
		}
	})
	return out, nil
}

func (m *memStore) CreateWithdrawal(_ context.Context, w *models.WithdrawalRequest) error {
	m.with(func(st *memState) {
		st.nextW++
		w.ID = st.nextW
		if w.SubmittedAt.IsZero() {
			w.SubmittedAt = time.Now()
		}
		w.UpdatedAt = time.Now()
		st.withdrawals[w.ID] = *w
	})
	return nil
}

func (m *memStore) GetWithdrawal(_ context.Context, id int64) (models.WithdrawalRequest, error) {
	var (
		w  models.WithdrawalRequest
		ok bool
	)
	m.with(func(st *memState) { w, ok = st.withdrawals[id] })
	if !ok {
		return models.WithdrawalRequest{}, repository.ErrNotFound
	}
	return w, nil
}

func (m *memStore) UpdateWithdrawalDecision(_ context.Context, w *models.WithdrawalRequest, from models.WithdrawalStatus) error {
	var stale bool
	m.with(func(st *memState) {
		current, ok := st.withdrawals[w.ID]
		if !ok || current.Status != from {
			stale = true
			return
		}
		w.UpdatedAt = time.Now()
		st.withdrawals[w.ID] = *w
	})
	if stale {
		return repository.ErrStaleStatus
	}
	return nil
}

func (m *memStore) GetWithdrawals(_ context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error) {
	out := []models.WithdrawalRequest{}
	m.with(func(st *memState) {
		for _, w := range st.withdrawals {
			if filter.UserID != nil && w.UserID != *filter.UserID {
				continue
			}
			if len(filter.Statuses) > 0 && !containsStatus(filter.Statuses, w.Status) {
				continue
			}
			out = append(out, w)
		}
	})
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (m *memStore) CompletedWithdrawalDates(_ context.Context, userID int64, since time.Time) ([]time.Time, error) {
	var out []time.Time
	m.with(func(st *memState) {
		for _, w := range st.withdrawals {
			if w.UserID == userID && w.Status == models.WithdrawalCompleted && !w.SubmittedAt.Before(since) {
				out = append(out, w.SubmittedAt)
			}
		}
	})
	return out, nil
}

func containsStatus(list []models.WithdrawalStatus, s models.WithdrawalStatus) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func fiat(profileID int64, amount string) models.Balance {
	return models.Balance{ProfileID: profileID, Fiat: d(amount)}
}
