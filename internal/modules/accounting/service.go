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

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
)

// Service books share legs into the outcome ledger.
type Service struct {
	repo *Repository
	log  zerolog.Logger
}

// NewService creates a new accounting service
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo: repo,
		log:  log.With().Str("service", "accounting").Logger(),
	}
}

// BookTrade records one match as exactly four ledger entries: the buyer pays
// cash and receives outcome shares, the seller receives cash and gives up
// outcome shares. The four entries are written in one batch; when tx is
// non-nil they join the caller's database transaction.
func (s *Service) BookTrade(
	ctx context.Context,
	tx *sql.Tx,
	buyerAccountID, sellerAccountID uuid.UUID,
	cashAmount decimal.Decimal,
	outcomeAssetType string,
	outcomeQuantity decimal.Decimal,
	timestamp time.Time,
) error {
	if !cashAmount.IsPositive() {
		return fmt.Errorf("cash amount must be positive, got %s", cashAmount)
	}
	if !outcomeQuantity.IsPositive() {
		return fmt.Errorf("outcome quantity must be positive, got %s", outcomeQuantity)
	}
	if strings.TrimSpace(outcomeAssetType) == "" {
		return fmt.Errorf("outcome asset type must not be blank")
	}
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	entries := []domain.LedgerEntry{
		{AccountID: buyerAccountID, AssetType: CashAssetType, Amount: cashAmount, Direction: domain.Credit, CreatedAt: timestamp},
		{AccountID: buyerAccountID, AssetType: outcomeAssetType, Amount: outcomeQuantity, Direction: domain.Debit, CreatedAt: timestamp},
		{AccountID: sellerAccountID, AssetType: CashAssetType, Amount: cashAmount, Direction: domain.Debit, CreatedAt: timestamp},
		{AccountID: sellerAccountID, AssetType: outcomeAssetType, Amount: outcomeQuantity, Direction: domain.Credit, CreatedAt: timestamp},
	}
	if err := s.repo.InsertEntries(ctx, tx, entries); err != nil {
		return err
	}

	s.log.Debug().
		Str("asset_type", outcomeAssetType).
		Str("cash", cashAmount.String()).
		Str("quantity", outcomeQuantity.String()).
		Msg("Trade booked")

	return nil
}

// InsertEntries exposes batched raw entry insertion for the market resolver.
func (s *Service) InsertEntries(ctx context.Context, tx *sql.Tx, entries []domain.LedgerEntry) error {
	return s.repo.InsertEntries(ctx, tx, entries)
}

// NetHoldingsByAccount aggregates net holdings of one asset type per account.
func (s *Service) NetHoldingsByAccount(ctx context.Context, assetType string) (map[uuid.UUID]decimal.Decimal, error) {
	return s.repo.NetHoldingsByAccount(ctx, assetType)
}

// HoldingsForAccount returns an account's net holding per asset type.
func (s *Service) HoldingsForAccount(ctx context.Context, accountID uuid.UUID) (map[string]decimal.Decimal, error) {
	return s.repo.HoldingsForAccount(ctx, accountID)
}
