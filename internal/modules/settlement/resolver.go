package settlement

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/accounting"
)

// ResolveResult reports an admin market resolution.
type ResolveResult struct {
	AccountsSettled  int             `json:"accountsSettled"`
	TotalUsdPaidOut  decimal.Decimal `json:"totalUsdPaidOut"`
	WinningAssetType string          `json:"winningAssetType"`
}

// MarketResolver is the admin settlement path: it pays out every positive
// net holder of the winning outcome asset and zeroes their asset position
// against a settlement account.
type MarketResolver struct {
	db         *database.DB
	accounting *accounting.Service
	log        zerolog.Logger
}

// NewMarketResolver creates a new market resolver
func NewMarketResolver(db *database.DB, accountingSvc *accounting.Service, log zerolog.Logger) *MarketResolver {
	return &MarketResolver{
		db:         db,
		accounting: accountingSvc,
		log:        log.With().Str("service", "market_resolver").Logger(),
	}
}

// ResolveMarket pays usdPerToken for each unit of winningAssetType held.
// Holders whose debit/credit history nets to zero or negative are excluded.
// All payout entries commit in one database transaction.
func (r *MarketResolver) ResolveMarket(ctx context.Context, outcomeID, winningAssetType string, settlementAccountID uuid.UUID, usdPerToken decimal.Decimal) (*ResolveResult, error) {
	if strings.TrimSpace(winningAssetType) == "" {
		return nil, fmt.Errorf("winning asset type must not be blank")
	}
	if !usdPerToken.IsPositive() {
		return nil, fmt.Errorf("usd per token must be positive, got %s", usdPerToken)
	}

	holdings, err := r.accounting.NetHoldingsByAccount(ctx, winningAssetType)
	if err != nil {
		return nil, err
	}

	// Deterministic payout order.
	holders := make([]uuid.UUID, 0, len(holdings))
	for accountID, net := range holdings {
		if net.IsPositive() {
			holders = append(holders, accountID)
		}
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].String() < holders[j].String()
	})

	tx, err := r.db.BeginTx(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()
	total := decimal.Zero
	for _, holder := range holders {
		holding := holdings[holder]
		payout := holding.Mul(usdPerToken)

		entries := []domain.LedgerEntry{
			{AccountID: holder, AssetType: winningAssetType, Amount: holding, Direction: domain.Credit, CreatedAt: now},
			{AccountID: holder, AssetType: accounting.CashAssetType, Amount: payout, Direction: domain.Debit, CreatedAt: now},
			{AccountID: settlementAccountID, AssetType: winningAssetType, Amount: holding, Direction: domain.Debit, CreatedAt: now},
			{AccountID: settlementAccountID, AssetType: accounting.CashAssetType, Amount: payout, Direction: domain.Credit, CreatedAt: now},
		}
		if err = r.accounting.InsertEntries(ctx, tx, entries); err != nil {
			return nil, err
		}
		total = total.Add(payout)
	}

	if err = tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit resolution: %w", err)
	}

	r.log.Info().
		Str("outcome_id", outcomeID).
		Str("asset_type", winningAssetType).
		Int("accounts_settled", len(holders)).
		Str("total_paid_out", total.String()).
		Msg("Market resolved")

	return &ResolveResult{
		AccountsSettled:  len(holders),
		TotalUsdPaidOut:  total,
		WinningAssetType: winningAssetType,
	}, nil
}
