package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
)

// ErrNotFound is returned when an account or transaction does not exist.
var ErrNotFound = errors.New("ledger: not found")

// Repository handles account and journal persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new ledger repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "ledger").Logger(),
	}
}

// CreateAccount persists a new account
func (r *Repository) CreateAccount(ctx context.Context, acct domain.Account) error {
	query := `
		INSERT INTO accounts (id, name, type, operator_id, created_at)
		VALUES (?, ?, ?, ?, ?)
	`
	_, err := r.db.Conn().ExecContext(ctx, query,
		acct.ID.String(),
		acct.Name,
		string(acct.Type),
		acct.OperatorID,
		acct.CreatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("failed to create account: %w", err)
	}

	r.log.Info().
		Str("account_id", acct.ID.String()).
		Str("name", acct.Name).
		Str("operator_id", acct.OperatorID).
		Msg("Account created")

	return nil
}

// GetAccount retrieves an account by id
func (r *Repository) GetAccount(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT id, name, type, operator_id, created_at FROM accounts WHERE id = ?`
	return r.scanAccount(r.db.Conn().QueryRowContext(ctx, query, id.String()))
}

// GetAccountByName retrieves an operator's account by exact name.
// Account names are case-sensitive.
func (r *Repository) GetAccountByName(ctx context.Context, operatorID, name string) (*domain.Account, error) {
	query := `
		SELECT id, name, type, operator_id, created_at FROM accounts
		WHERE operator_id = ? COLLATE NOCASE AND name = ?
		ORDER BY created_at ASC LIMIT 1
	`
	return r.scanAccount(r.db.Conn().QueryRowContext(ctx, query, operatorID, name))
}

// FirstAccountForOperator returns the oldest account registered under an
// operator id, or ErrNotFound.
func (r *Repository) FirstAccountForOperator(ctx context.Context, operatorID string) (*domain.Account, error) {
	query := `
		SELECT id, name, type, operator_id, created_at FROM accounts
		WHERE operator_id = ? COLLATE NOCASE
		ORDER BY created_at ASC, id ASC LIMIT 1
	`
	return r.scanAccount(r.db.Conn().QueryRowContext(ctx, query, operatorID))
}

// AccountsForOperator returns all accounts registered under an operator id.
func (r *Repository) AccountsForOperator(ctx context.Context, operatorID string) ([]domain.Account, error) {
	query := `
		SELECT id, name, type, operator_id, created_at FROM accounts
		WHERE operator_id = ? COLLATE NOCASE
		ORDER BY created_at ASC
	`
	rows, err := r.db.Conn().QueryContext(ctx, query, operatorID)
	if err != nil {
		return nil, fmt.Errorf("failed to query operator accounts: %w", err)
	}
	defer rows.Close()

	var accounts []domain.Account
	for rows.Next() {
		acct, err := scanAccountRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan account: %w", err)
		}
		accounts = append(accounts, acct)
	}
	return accounts, rows.Err()
}

// InsertTransaction writes a transaction and its journal entries inside the
// given database transaction.
func (r *Repository) InsertTransaction(ctx context.Context, tx *sql.Tx, txn domain.Transaction) error {
	var txType sql.NullString
	if txn.Type != nil {
		txType = sql.NullString{String: string(*txn.Type), Valid: true}
	}
	var settles sql.NullString
	if txn.SettlesClearingTransactionID != nil {
		settles = sql.NullString{String: txn.SettlesClearingTransactionID.String(), Valid: true}
	}

	_, err := tx.ExecContext(ctx, `
		INSERT INTO transactions (id, type, settles_clearing_transaction_id, created_at)
		VALUES (?, ?, ?, ?)
	`, txn.ID.String(), txType, settles, txn.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to insert transaction: %w", err)
	}

	for _, e := range txn.Entries {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO journal_entries (transaction_id, account_id, amount, direction, phase)
			VALUES (?, ?, ?, ?, ?)
		`, txn.ID.String(), e.AccountID.String(), e.Amount.String(), string(e.Direction), string(e.Phase))
		if err != nil {
			return fmt.Errorf("failed to insert journal entry: %w", err)
		}
	}

	return nil
}

// GetTransaction loads a transaction with all its journal entries.
func (r *Repository) GetTransaction(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	var txn domain.Transaction
	var txType, settles sql.NullString
	var createdAt string

	err := r.db.Conn().QueryRowContext(ctx, `
		SELECT id, type, settles_clearing_transaction_id, created_at
		FROM transactions WHERE id = ?
	`, id.String()).Scan(&txn.ID, &txType, &settles, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}

	if txType.Valid {
		t := domain.TransactionType(txType.String)
		txn.Type = &t
	}
	if settles.Valid {
		sid, err := uuid.Parse(settles.String)
		if err != nil {
			return nil, fmt.Errorf("failed to parse settles reference: %w", err)
		}
		txn.SettlesClearingTransactionID = &sid
	}
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		txn.CreatedAt = t
	}

	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT account_id, amount, direction, phase
		FROM journal_entries WHERE transaction_id = ?
		ORDER BY id ASC
	`, id.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query journal entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var accountID, amount, direction, phase string
		if err := rows.Scan(&accountID, &amount, &direction, &phase); err != nil {
			return nil, fmt.Errorf("failed to scan journal entry: %w", err)
		}
		aid, err := uuid.Parse(accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse account id: %w", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		txn.Entries = append(txn.Entries, domain.JournalEntry{
			AccountID: aid,
			Amount:    amt,
			Direction: domain.Direction(direction),
			Phase:     domain.Phase(phase),
		})
	}

	return &txn, rows.Err()
}

// SumEntries returns the signed balance (debits minus credits) of an account,
// optionally restricted to one phase. Summation happens on the decimal grid.
func (r *Repository) SumEntries(ctx context.Context, accountID uuid.UUID, phase *domain.Phase) (decimal.Decimal, error) {
	query := `SELECT amount, direction FROM journal_entries WHERE account_id = ?`
	args := []interface{}{accountID.String()}
	if phase != nil {
		query += ` AND phase = ?`
		args = append(args, string(*phase))
	}

	rows, err := r.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query entries: %w", err)
	}
	defer rows.Close()

	balance := decimal.Zero
	for rows.Next() {
		var amount, direction string
		if err := rows.Scan(&amount, &direction); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan entry: %w", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, fmt.Errorf("failed to parse amount: %w", err)
		}
		if domain.Direction(direction) == domain.Debit {
			balance = balance.Add(amt)
		} else {
			balance = balance.Sub(amt)
		}
	}
	return balance, rows.Err()
}

func (r *Repository) scanAccount(row *sql.Row) (*domain.Account, error) {
	var acct domain.Account
	var id, acctType, createdAt string

	err := row.Scan(&id, &acct.Name, &acctType, &acct.OperatorID, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan account: %w", err)
	}

	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("failed to parse account id: %w", err)
	}
	acct.ID = parsed
	acct.Type = domain.AccountType(acctType)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		acct.CreatedAt = t
	}
	return &acct, nil
}

func scanAccountRow(rows *sql.Rows) (domain.Account, error) {
	var acct domain.Account
	var id, acctType, createdAt string

	if err := rows.Scan(&id, &acct.Name, &acctType, &acct.OperatorID, &createdAt); err != nil {
		return acct, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return acct, err
	}
	acct.ID = parsed
	acct.Type = domain.AccountType(acctType)
	if t, err := time.Parse(time.RFC3339Nano, createdAt); err == nil {
		acct.CreatedAt = t
	}
	return acct, nil
}
