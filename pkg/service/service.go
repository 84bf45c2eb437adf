package service

import (
	"context"

	"github.com/sirupsen/logrus"
	"study_ledger_back/models"
	"study_ledger_back/pkg/lock"
	"study_ledger_back/pkg/notify"
	"study_ledger_back/pkg/repository"
)

type Ledger interface {
	Execute(ctx context.Context, req Request) (Outcome, error)
	Balance(ctx context.Context, profileID int64) (models.Balance, error)
	ProvisionBalance(ctx context.Context, profileID int64) (models.Balance, error)
	Transactions(ctx context.Context, filter models.TransactionFilter) ([]models.Transaction, error)
	TransferBonus(ctx context.Context, senderID int64, in models.BonusTransferInput) (Outcome, error)
}

type Withdrawals interface {
	Submit(ctx context.Context, in models.WithdrawalInput) (WithdrawalResult, error)
	Approve(ctx context.Context, id int64, comment string) (WithdrawalResult, error)
	Reject(ctx context.Context, id int64, comment string) (WithdrawalResult, error)
	Decide(ctx context.Context, id int64, in models.WithdrawalDecisionInput) (WithdrawalResult, error)
	Get(ctx context.Context, id int64) (models.WithdrawalRequest, error)
	ListByUser(ctx context.Context, userID int64, statuses []models.WithdrawalStatus) ([]models.WithdrawalRequest, error)
	List(ctx context.Context, filter models.WithdrawalFilter) ([]models.WithdrawalRequest, error)
}

type Service struct {
	Ledger
	Withdrawals
}

type Deps struct {
	Ceiling    CeilingResolver
	Locker     lock.Locker
	Alerter    notify.Alerter
	Withdrawal WithdrawalConfig
	Log        logrus.FieldLogger
}

func NewService(store repository.Store, deps Deps) *Service {
	ledger := NewLedgerService(store, deps.Ceiling, deps.Log.WithField("component", "ledger"))
	return &Service{
		Ledger: ledger,
		Withdrawals: NewWithdrawalService(store, ledger, deps.Locker, deps.Alerter, deps.Withdrawal,
			deps.Log.WithField("component", "withdrawal")),
	}
}
