package ledger

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
)

// PostOptions carries the optional attributes of a posted transaction.
type PostOptions struct {
	Type                         *domain.TransactionType
	SettlesClearingTransactionID *uuid.UUID
}

// Service owns accounts and the balanced double-entry journal.
type Service struct {
	db   *database.DB
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new ledger service
func NewService(db *database.DB, repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		db:   db,
		repo: repo,
		log:  log.With().Str("service", "ledger").Logger(),
	}
}

// CreateAccount persists a new account. The name must be non-blank; a zero
// id gets a fresh one assigned.
func (s *Service) CreateAccount(ctx context.Context, acct domain.Account) (domain.Account, error) {
	if strings.TrimSpace(acct.Name) == "" {
		return acct, fmt.Errorf("account name must not be blank")
	}
	if acct.ID == uuid.Nil {
		acct.ID = uuid.New()
	}
	if acct.CreatedAt.IsZero() {
		acct.CreatedAt = time.Now().UTC()
	}
	if err := s.repo.CreateAccount(ctx, acct); err != nil {
		return acct, err
	}
	return acct, nil
}

// PostTransaction verifies the balance invariant and writes the transaction
// atomically in its own database transaction.
func (s *Service) PostTransaction(ctx context.Context, entries []domain.JournalEntry, opts PostOptions) (uuid.UUID, error) {
	tx, err := s.db.BeginTx(ctx)
	if err != nil {
		return uuid.Nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	id, err := s.PostTransactionTx(ctx, tx, entries, opts)
	if err != nil {
		_ = tx.Rollback()
		return uuid.Nil, err
	}
	if err := tx.Commit(); err != nil {
		return uuid.Nil, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return id, nil
}

// PostTransactionTx is PostTransaction joined to a caller-provided database
// transaction. The caller owns commit and rollback.
func (s *Service) PostTransactionTx(ctx context.Context, tx *sql.Tx, entries []domain.JournalEntry, opts PostOptions) (uuid.UUID, error) {
	if len(entries) < 2 {
		return uuid.Nil, fmt.Errorf("transaction requires at least two entries, got %d", len(entries))
	}
	for _, e := range entries {
		if !e.Amount.IsPositive() {
			return uuid.Nil, fmt.Errorf("journal entry amount must be positive, got %s", e.Amount)
		}
	}

	// Balance invariant on the exact decimal grid, no rounding.
	debits, credits := decimal.Zero, decimal.Zero
	for _, e := range entries {
		switch e.Direction {
		case domain.Debit:
			debits = debits.Add(e.Amount)
		case domain.Credit:
			credits = credits.Add(e.Amount)
		default:
			return uuid.Nil, fmt.Errorf("unknown entry direction: %q", e.Direction)
		}
	}
	if !debits.Equal(credits) {
		return uuid.Nil, &domain.TransactionNotBalancedError{
			TotalDebits:  debits,
			TotalCredits: credits,
		}
	}

	txn := domain.Transaction{
		ID:                           uuid.New(),
		Entries:                      entries,
		Type:                         opts.Type,
		SettlesClearingTransactionID: opts.SettlesClearingTransactionID,
		CreatedAt:                    time.Now().UTC(),
	}
	if err := s.repo.InsertTransaction(ctx, tx, txn); err != nil {
		return uuid.Nil, err
	}

	s.log.Debug().
		Str("transaction_id", txn.ID.String()).
		Int("entries", len(entries)).
		Str("total", debits.String()).
		Msg("Transaction posted")

	return txn.ID, nil
}

// GetAccountBalance returns the account's signed balance (debits minus
// credits). A nil phase sums across all phases.
func (s *Service) GetAccountBalance(ctx context.Context, accountID uuid.UUID, phase *domain.Phase) (decimal.Decimal, error) {
	return s.repo.SumEntries(ctx, accountID, phase)
}

// GetOperatorBalances returns every account of an operator mapped to its
// balance across all phases.
func (s *Service) GetOperatorBalances(ctx context.Context, operatorID string) (map[uuid.UUID]decimal.Decimal, error) {
	accounts, err := s.repo.AccountsForOperator(ctx, operatorID)
	if err != nil {
		return nil, err
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(accounts))
	for _, acct := range accounts {
		balance, err := s.repo.SumEntries(ctx, acct.ID, nil)
		if err != nil {
			return nil, err
		}
		balances[acct.ID] = balance
	}
	return balances, nil
}

// GetAccount retrieves an account by id.
func (s *Service) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	return s.repo.GetAccount(ctx, id)
}

// GetAccountByName retrieves an operator's account by its exact name.
func (s *Service) GetAccountByName(ctx context.Context, operatorID, name string) (*domain.Account, error) {
	return s.repo.GetAccountByName(ctx, operatorID, name)
}

// FirstAccountForOperator returns the first account registered under an
// operator id; the matching engine uses user ids as operator ids here.
func (s *Service) FirstAccountForOperator(ctx context.Context, operatorID string) (*domain.Account, error) {
	return s.repo.FirstAccountForOperator(ctx, operatorID)
}

// GetTransaction loads a transaction with its entries.
func (s *Service) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	return s.repo.GetTransaction(ctx, id)
}
