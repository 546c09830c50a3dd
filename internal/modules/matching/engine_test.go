package matching

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/accounting"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/social"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/logger"
)

type fixture struct {
	engine     *Engine
	books      *orderbook.Store
	ledger     *ledger.Service
	accounting *accounting.Service
	events     *events.Store
	social     *social.Service
	treasury   domain.Account
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := logger.New(logger.Config{Level: "error"})
	ledgerSvc := ledger.NewService(db, ledger.NewRepository(db, log), log)
	accountingSvc := accounting.NewService(accounting.NewRepository(db, log), log)
	eventStore := events.NewStore(db, log)
	socialSvc := social.NewService(social.NewRepository(db, log), log)
	books := orderbook.NewStore()

	treasury, err := ledgerSvc.CreateAccount(context.Background(), domain.Account{
		Name:       "Treasury",
		Type:       domain.AccountEquity,
		OperatorID: "treasury",
	})
	require.NoError(t, err)

	return &fixture{
		engine:     NewEngine(db, books, nil, ledgerSvc, accountingSvc, eventStore, socialSvc, log),
		books:      books,
		ledger:     ledgerSvc,
		accounting: accountingSvc,
		events:     eventStore,
		social:     socialSvc,
		treasury:   treasury,
	}
}

// fundUser creates the user's account and gives it a Clearing balance.
func (f *fixture) fundUser(t *testing.T, userID string, amount int64) domain.Account {
	t.Helper()
	ctx := context.Background()

	acct, err := f.ledger.CreateAccount(ctx, domain.Account{
		Name:       userID + " Wallet",
		Type:       domain.AccountAsset,
		OperatorID: userID,
	})
	require.NoError(t, err)

	if amount > 0 {
		_, err = f.ledger.PostTransaction(ctx, []domain.JournalEntry{
			{AccountID: acct.ID, Amount: decimal.NewFromInt(amount), Direction: domain.Debit, Phase: domain.PhaseClearing},
			{AccountID: f.treasury.ID, Amount: decimal.NewFromInt(amount), Direction: domain.Credit, Phase: domain.PhaseClearing},
		}, ledger.PostOptions{})
		require.NoError(t, err)
	}
	return acct
}

func (f *fixture) clearingBalance(t *testing.T, acct domain.Account) decimal.Decimal {
	t.Helper()
	clearing := domain.PhaseClearing
	balance, err := f.ledger.GetAccountBalance(context.Background(), acct.ID, &clearing)
	require.NoError(t, err)
	return balance
}

func order(userID, outcomeID string, side domain.Side, price string, qty int64) domain.Order {
	return domain.Order{
		UserID:    userID,
		OutcomeID: outcomeID,
		Side:      side,
		Price:     decimal.RequireFromString(price),
		Quantity:  decimal.NewFromInt(qty),
	}
}

func TestProcessOrder_BasicMatch(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.fundUser(t, "buyer-b", 100)
	seller := f.fundUser(t, "seller-s", 0)

	matches, err := f.engine.ProcessOrder(ctx, order("buyer-b", "outcome-x", domain.SideBid, "0.60", 10))
	require.NoError(t, err)
	require.Empty(t, matches)

	matches, err = f.engine.ProcessOrder(ctx, order("seller-s", "outcome-x", domain.SideAsk, "0.50", 10))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// Fill lands at the resting side's price.
	require.True(t, matches[0].Price.Equal(decimal.RequireFromString("0.50")))
	require.True(t, matches[0].Quantity.Equal(decimal.NewFromInt(10)))
	require.Equal(t, "buyer-b", matches[0].BuyerUserID)
	require.Equal(t, "seller-s", matches[0].SellerUserID)

	require.True(t, f.clearingBalance(t, buyer).Equal(decimal.NewFromInt(95)))
	require.True(t, f.clearingBalance(t, seller).Equal(decimal.NewFromInt(5)))

	holdings, err := f.accounting.HoldingsForAccount(ctx, buyer.ID)
	require.NoError(t, err)
	require.True(t, holdings["OUTCOME_X"].Equal(decimal.NewFromInt(10)))

	bids, asks := f.books.Get("outcome-x").Snapshot()
	require.Empty(t, bids)
	require.Empty(t, asks)
}

func TestProcessOrder_PricePriorityAcrossAsks(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.fundUser(t, "b", 100)
	f.fundUser(t, "s_low", 0)
	f.fundUser(t, "s_mid", 0)
	f.fundUser(t, "s_high", 0)

	for _, o := range []domain.Order{
		order("s_high", "outcome-x", domain.SideAsk, "0.70", 10),
		order("s_low", "outcome-x", domain.SideAsk, "0.50", 10),
		order("s_mid", "outcome-x", domain.SideAsk, "0.60", 10),
	} {
		_, err := f.engine.ProcessOrder(ctx, o)
		require.NoError(t, err)
	}

	matches, err := f.engine.ProcessOrder(ctx, order("b", "outcome-x", domain.SideBid, "0.75", 30))
	require.NoError(t, err)
	require.Len(t, matches, 3)

	require.Equal(t, "s_low", matches[0].SellerUserID)
	require.True(t, matches[0].Price.Equal(decimal.RequireFromString("0.50")))
	require.Equal(t, "s_mid", matches[1].SellerUserID)
	require.True(t, matches[1].Price.Equal(decimal.RequireFromString("0.60")))
	require.Equal(t, "s_high", matches[2].SellerUserID)
	require.True(t, matches[2].Price.Equal(decimal.RequireFromString("0.70")))

	// 100 - (5.00 + 6.00 + 7.00)
	require.True(t, f.clearingBalance(t, buyer).Equal(decimal.NewFromInt(82)))

	bids, asks := f.books.Get("outcome-x").Snapshot()
	require.Empty(t, bids)
	require.Empty(t, asks)
}

func TestProcessOrder_InsufficientFunds(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	buyer := f.fundUser(t, "b", 100)
	f.fundUser(t, "s", 0)

	_, err := f.engine.ProcessOrder(ctx, order("s", "outcome-x", domain.SideAsk, "0.75", 200))
	require.NoError(t, err)

	_, err = f.engine.ProcessOrder(ctx, order("b", "outcome-x", domain.SideBid, "0.75", 200))
	var insufficient *domain.InsufficientFundsError
	require.ErrorAs(t, err, &insufficient)
	require.True(t, insufficient.Required.Equal(decimal.NewFromInt(150)), "got %s", insufficient.Required)
	require.True(t, insufficient.Available.Equal(decimal.NewFromInt(100)), "got %s", insufficient.Available)

	// The failed fill must leave no trace in either ledger.
	require.True(t, f.clearingBalance(t, buyer).Equal(decimal.NewFromInt(100)))
	holdings, err := f.accounting.HoldingsForAccount(ctx, buyer.ID)
	require.NoError(t, err)
	require.Empty(t, holdings)
}

func TestProcessOrder_UnknownBuyerAccount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundUser(t, "s", 0)

	_, err := f.engine.ProcessOrder(ctx, order("s", "outcome-x", domain.SideAsk, "0.50", 10))
	require.NoError(t, err)

	_, err = f.engine.ProcessOrder(ctx, order("ghost", "outcome-x", domain.SideBid, "0.60", 10))
	var notFound *domain.AccountNotFoundError
	require.ErrorAs(t, err, &notFound)
	require.Equal(t, "buyer", notFound.Role)
	require.Equal(t, "ghost", notFound.UserID)
}

func TestProcessOrder_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.engine.ProcessOrder(ctx, order("u", "", domain.SideBid, "0.50", 10))
	require.Error(t, err)

	_, err = f.engine.ProcessOrder(ctx, order("u", "outcome-x", domain.SideBid, "1.50", 10))
	require.Error(t, err)

	_, err = f.engine.ProcessOrder(ctx, order("u", "outcome-x", domain.SideBid, "0.50", 0))
	require.Error(t, err)
}

func TestProcessOrder_RejectsUnregisteredOutcome(t *testing.T) {
	f := newFixture(t)
	registry := &staticRegistry{known: "outcome-known"}
	f.engine.registry = registry

	_, err := f.engine.ProcessOrder(context.Background(), order("u", "outcome-unknown", domain.SideBid, "0.50", 10))
	var invalid *domain.InvalidOutcomeError
	require.ErrorAs(t, err, &invalid)
	require.Equal(t, "outcome-unknown", invalid.OutcomeID)
}

type staticRegistry struct{ known string }

func (r *staticRegistry) IsRegistered(outcomeID string) bool { return outcomeID == r.known }

func TestProcessOrder_RecordsTradeMatchedPerSide(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundUser(t, "buyer-b", 100)
	f.fundUser(t, "seller-s", 0)

	_, err := f.engine.ProcessOrder(ctx, order("buyer-b", "outcome-x", domain.SideBid, "0.60", 10))
	require.NoError(t, err)
	_, err = f.engine.ProcessOrder(ctx, order("seller-s", "outcome-x", domain.SideAsk, "0.50", 10))
	require.NoError(t, err)

	buyerEvents, err := f.events.ByUser(ctx, "buyer-b")
	require.NoError(t, err)
	var buyerMatched int
	for _, ev := range buyerEvents {
		if ev.EventType == domain.EventTradeMatched {
			buyerMatched++
		}
	}
	require.Equal(t, 1, buyerMatched)

	sellerEvents, err := f.events.ByUser(ctx, "seller-s")
	require.NoError(t, err)
	var sellerMatched int
	for _, ev := range sellerEvents {
		if ev.EventType == domain.EventTradeMatched {
			sellerMatched++
		}
	}
	require.Equal(t, 1, sellerMatched)
}

func TestProcessOrder_MirrorsToFollowers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	leader := f.fundUser(t, "leader", 100)
	seller := f.fundUser(t, "s", 0)
	followers := []string{"f1", "f2", "f3", "f4", "f5"}
	followerAccts := make(map[string]domain.Account, len(followers))
	for _, id := range followers {
		followerAccts[id] = f.fundUser(t, id, 100)
		_, err := f.social.Follow(ctx, id, "leader")
		require.NoError(t, err)
	}

	_, err := f.engine.ProcessOrder(ctx, order("s", "outcome-x", domain.SideAsk, "0.50", 150))
	require.NoError(t, err)

	matches, err := f.engine.ProcessOrder(ctx, order("leader", "outcome-x", domain.SideBid, "0.50", 50))
	require.NoError(t, err)
	require.Len(t, matches, 1)

	// Leader fills 50 at 0.50; each follower mirrors a fifth of that.
	require.True(t, f.clearingBalance(t, leader).Equal(decimal.NewFromInt(75)))
	for _, id := range followers {
		require.True(t, f.clearingBalance(t, followerAccts[id]).Equal(decimal.NewFromInt(95)), "follower %s", id)
	}
	require.True(t, f.clearingBalance(t, seller).Equal(decimal.NewFromInt(50)))

	_, asks := f.books.Get("outcome-x").Snapshot()
	require.Len(t, asks, 1)
	require.True(t, asks[0].Quantity.Equal(decimal.NewFromInt(50)), "got %s", asks[0].Quantity)
}

func TestProcessOrder_MirrorsNeverReMirror(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.fundUser(t, "leader", 100)
	f.fundUser(t, "f1", 100)
	f.fundUser(t, "deep", 100)
	_, err := f.social.Follow(ctx, "f1", "leader")
	require.NoError(t, err)
	// deep follows f1; a mirror of leader's order must not cascade to deep.
	_, err = f.social.Follow(ctx, "deep", "f1")
	require.NoError(t, err)

	_, err = f.engine.ProcessOrder(ctx, order("leader", "outcome-x", domain.SideBid, "0.50", 10))
	require.NoError(t, err)

	bids, _ := f.books.Get("outcome-x").Snapshot()
	users := map[string]bool{}
	for _, b := range bids {
		users[b.UserID] = true
	}
	require.True(t, users["leader"])
	require.True(t, users["f1"])
	require.False(t, users["deep"])
}

func TestProcessOrder_MatchHookObservesFills(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.fundUser(t, "b", 100)
	f.fundUser(t, "s", 0)

	var observed []domain.MatchResult
	f.engine.SetMatchHook(func(outcomeID string, m domain.MatchResult) {
		require.Equal(t, "outcome-x", outcomeID)
		observed = append(observed, m)
	})

	_, err := f.engine.ProcessOrder(ctx, order("b", "outcome-x", domain.SideBid, "0.60", 10))
	require.NoError(t, err)
	_, err = f.engine.ProcessOrder(ctx, order("s", "outcome-x", domain.SideAsk, "0.50", 10))
	require.NoError(t, err)

	require.Len(t, observed, 1)
}
