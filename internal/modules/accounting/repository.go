package accounting

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

// Repository handles outcome ledger persistence
type Repository struct {
	db  *database.DB
	log zerolog.Logger
}

// NewRepository creates a new accounting repository
func NewRepository(db *database.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "accounting").Logger(),
	}
}

// execer covers both *sql.Tx and *sql.DB.
type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// InsertEntries writes a batch of ledger entries in a single statement so
// the legs of one trade land in one persistence round-trip.
func (r *Repository) InsertEntries(ctx context.Context, tx *sql.Tx, entries []domain.LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}

	var ex execer = r.db.Conn()
	if tx != nil {
		ex = tx
	}

	var sb strings.Builder
	sb.WriteString(`INSERT INTO ledger_entries (account_id, asset_type, amount, direction, created_at) VALUES `)
	args := make([]interface{}, 0, len(entries)*5)
	for i, e := range entries {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("(?, ?, ?, ?, ?)")
		args = append(args,
			e.AccountID.String(),
			e.AssetType,
			e.Amount.String(),
			string(e.Direction),
			e.CreatedAt.UTC().Format(time.RFC3339Nano),
		)
	}

	if _, err := ex.ExecContext(ctx, sb.String(), args...); err != nil {
		return fmt.Errorf("failed to insert ledger entries: %w", err)
	}
	return nil
}

// NetHoldingsByAccount aggregates each account's net holding (debits minus
// credits) of one asset type.
func (r *Repository) NetHoldingsByAccount(ctx context.Context, assetType string) (map[uuid.UUID]decimal.Decimal, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT account_id, amount, direction FROM ledger_entries WHERE asset_type = ?
	`, assetType)
	if err != nil {
		return nil, fmt.Errorf("failed to query ledger entries: %w", err)
	}
	defer rows.Close()

	holdings := make(map[uuid.UUID]decimal.Decimal)
	for rows.Next() {
		var accountID, amount, direction string
		if err := rows.Scan(&accountID, &amount, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		aid, err := uuid.Parse(accountID)
		if err != nil {
			return nil, fmt.Errorf("failed to parse account id: %w", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		if domain.Direction(direction) == domain.Debit {
			holdings[aid] = holdings[aid].Add(amt)
		} else {
			holdings[aid] = holdings[aid].Sub(amt)
		}
	}
	return holdings, rows.Err()
}

// HoldingsForAccount returns one account's net holding per asset type.
func (r *Repository) HoldingsForAccount(ctx context.Context, accountID uuid.UUID) (map[string]decimal.Decimal, error) {
	rows, err := r.db.Conn().QueryContext(ctx, `
		SELECT asset_type, amount, direction FROM ledger_entries WHERE account_id = ?
	`, accountID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to query account holdings: %w", err)
	}
	defer rows.Close()

	holdings := make(map[string]decimal.Decimal)
	for rows.Next() {
		var assetType, amount, direction string
		if err := rows.Scan(&assetType, &amount, &direction); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		amt, err := decimal.NewFromString(amount)
		if err != nil {
			return nil, fmt.Errorf("failed to parse amount: %w", err)
		}
		if domain.Direction(direction) == domain.Debit {
			holdings[assetType] = holdings[assetType].Add(amt)
		} else {
			holdings[assetType] = holdings[assetType].Sub(amt)
		}
	}
	return holdings, rows.Err()
}
