package positions

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/logger"
)

func newTestPositions(t *testing.T) (*Service, *events.Store) {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := logger.New(logger.Config{Level: "error"})
	store := events.NewStore(db, log)
	return NewService(store, log), store
}

func appendTrade(t *testing.T, store *events.Store, buyer, seller, outcome, qty string) {
	t.Helper()
	payload := domain.TradeMatchedPayload{
		Price:        decimal.RequireFromString("0.50"),
		Quantity:     decimal.RequireFromString(qty),
		BuyerUserID:  buyer,
		SellerUserID: seller,
		OutcomeID:    outcome,
	}
	// One append per side, matching the engine's double-indexed writes.
	_, err := store.Append(context.Background(), nil, domain.EventTradeMatched, payload, &outcome, &buyer)
	require.NoError(t, err)
	_, err = store.Append(context.Background(), nil, domain.EventTradeMatched, payload, &outcome, &seller)
	require.NoError(t, err)
}

func TestGetNetPosition_BuysMinusSells(t *testing.T) {
	s, store := newTestPositions(t)

	appendTrade(t, store, "alice", "bob", "outcome-x", "10")
	appendTrade(t, store, "alice", "carol", "outcome-x", "5")
	appendTrade(t, store, "bob", "alice", "outcome-x", "3")

	got := s.GetNetPosition(context.Background(), "alice", "")
	require.Len(t, got, 1)
	require.Equal(t, "outcome-x", got[0].OutcomeID)
	require.True(t, got[0].NetQuantity.Equal(decimal.NewFromInt(12)), "10+5-3, got %s", got[0].NetQuantity)
}

func TestGetNetPosition_ZeroNetExcluded(t *testing.T) {
	s, store := newTestPositions(t)

	appendTrade(t, store, "alice", "bob", "outcome-x", "10")
	appendTrade(t, store, "bob", "alice", "outcome-x", "10")

	got := s.GetNetPosition(context.Background(), "alice", "")
	require.Empty(t, got)
}

func TestGetNetPosition_MarketFilterAndSorting(t *testing.T) {
	s, store := newTestPositions(t)

	appendTrade(t, store, "alice", "bob", "outcome-b", "2")
	appendTrade(t, store, "alice", "bob", "outcome-a", "1")

	all := s.GetNetPosition(context.Background(), "alice", "")
	require.Len(t, all, 2)
	require.Equal(t, "outcome-a", all[0].OutcomeID, "sorted by outcome id")
	require.Equal(t, "outcome-b", all[1].OutcomeID)

	only := s.GetNetPosition(context.Background(), "alice", "OUTCOME-B")
	require.Len(t, only, 1)
	require.Equal(t, "outcome-b", only[0].OutcomeID)
}

func TestGetNetPosition_SkipsUnparseablePayloads(t *testing.T) {
	s, store := newTestPositions(t)
	ctx := context.Background()

	user := "alice"
	_, err := store.Append(ctx, nil, domain.EventTradeMatched, json.RawMessage(`"not an object"`), nil, &user)
	require.NoError(t, err)
	appendTrade(t, store, "alice", "bob", "outcome-x", "4")

	got := s.GetNetPosition(ctx, "alice", "")
	require.Len(t, got, 1)
	require.True(t, got[0].NetQuantity.Equal(decimal.NewFromInt(4)))
}
