package orderbook

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
)

func order(side domain.Side, price, qty, user string) *domain.Order {
	return &domain.Order{
		ID:       uuid.New(),
		UserID:   user,
		Side:     side,
		Price:    decimal.RequireFromString(price),
		Quantity: decimal.RequireFromString(qty),
	}
}

func TestMatchOrders_BasicCross(t *testing.T) {
	b := NewBook("outcome-x")

	b.AddOrder(order(domain.SideBid, "0.60", "10", "buyer"))
	matches := b.SubmitAndMatch(order(domain.SideAsk, "0.50", "10", "seller"))

	require.Len(t, matches, 1)
	require.True(t, matches[0].Price.Equal(decimal.RequireFromString("0.50")), "fill at resting ask price")
	require.True(t, matches[0].Quantity.Equal(decimal.NewFromInt(10)))
	require.Equal(t, "buyer", matches[0].BuyerUserID)
	require.Equal(t, "seller", matches[0].SellerUserID)

	bids, asks := b.Snapshot()
	require.Empty(t, bids)
	require.Empty(t, asks)
}

func TestMatchOrders_PricePriorityAcrossAsks(t *testing.T) {
	b := NewBook("outcome-x")

	b.AddOrder(order(domain.SideAsk, "0.70", "10", "s_high"))
	b.AddOrder(order(domain.SideAsk, "0.50", "10", "s_low"))
	b.AddOrder(order(domain.SideAsk, "0.60", "10", "s_mid"))

	matches := b.SubmitAndMatch(order(domain.SideBid, "0.75", "30", "b"))

	require.Len(t, matches, 3)
	require.True(t, matches[0].Price.Equal(decimal.RequireFromString("0.50")))
	require.Equal(t, "s_low", matches[0].SellerUserID)
	require.True(t, matches[1].Price.Equal(decimal.RequireFromString("0.60")))
	require.Equal(t, "s_mid", matches[1].SellerUserID)
	require.True(t, matches[2].Price.Equal(decimal.RequireFromString("0.70")))
	require.Equal(t, "s_high", matches[2].SellerUserID)

	bids, asks := b.Snapshot()
	require.Empty(t, bids)
	require.Empty(t, asks)
}

func TestMatchOrders_PartialFillLeavesResidual(t *testing.T) {
	b := NewBook("outcome-x")

	b.AddOrder(order(domain.SideAsk, "0.50", "150", "s"))
	matches := b.SubmitAndMatch(order(domain.SideBid, "0.50", "50", "b"))

	require.Len(t, matches, 1)
	require.True(t, matches[0].Quantity.Equal(decimal.NewFromInt(50)))

	bids, asks := b.Snapshot()
	require.Empty(t, bids)
	require.Len(t, asks, 1)
	require.True(t, asks[0].Quantity.Equal(decimal.NewFromInt(100)))
}

func TestMatchOrders_FIFOAtSamePrice(t *testing.T) {
	b := NewBook("outcome-x")

	b.AddOrder(order(domain.SideAsk, "0.50", "10", "first"))
	b.AddOrder(order(domain.SideAsk, "0.50", "10", "second"))

	matches := b.SubmitAndMatch(order(domain.SideBid, "0.50", "10", "b"))

	require.Len(t, matches, 1)
	require.Equal(t, "first", matches[0].SellerUserID)
}

func TestMatchOrders_NoCrossedBookRemains(t *testing.T) {
	b := NewBook("outcome-x")

	b.AddOrder(order(domain.SideBid, "0.40", "10", "b1"))
	b.AddOrder(order(domain.SideAsk, "0.60", "10", "s1"))
	matches := b.MatchOrders()
	require.Empty(t, matches, "spread open, nothing should match")

	bestBid, bestAsk, hasBid, hasAsk := b.BestBidAsk()
	require.True(t, hasBid)
	require.True(t, hasAsk)
	require.True(t, bestBid.LessThan(bestAsk), "book must not be crossed after matching")
}

func TestRemoveOrdersByOperator(t *testing.T) {
	b := NewBook("outcome-x")

	mm := order(domain.SideBid, "0.40", "10", "mm")
	mm.OperatorID = "MM-Provider"
	b.AddOrder(mm)
	mm2 := order(domain.SideAsk, "0.60", "10", "mm")
	mm2.OperatorID = "mm-provider"
	b.AddOrder(mm2)
	other := order(domain.SideAsk, "0.70", "10", "u")
	other.OperatorID = "someone-else"
	b.AddOrder(other)

	removed := b.RemoveOrdersByOperator("mm-provider")
	require.Equal(t, 2, removed)

	bids, asks := b.Snapshot()
	require.Empty(t, bids)
	require.Len(t, asks, 1)
	require.Equal(t, "someone-else", asks[0].OperatorID)
}

func TestStore_GetOrCreateIsCaseInsensitive(t *testing.T) {
	s := NewStore()
	a := s.GetOrCreate("Outcome-X")
	b := s.GetOrCreate("outcome-x")
	require.Same(t, a, b)
	require.Len(t, s.OutcomeIDs(), 1)
}

func TestMatchedQuantityNeverExceedsSubmitted(t *testing.T) {
	b := NewBook("outcome-x")

	submittedAsk := decimal.Zero
	for _, q := range []string{"5", "7", "3"} {
		submittedAsk = submittedAsk.Add(decimal.RequireFromString(q))
		b.AddOrder(order(domain.SideAsk, "0.50", q, "s"))
	}

	matches := b.SubmitAndMatch(order(domain.SideBid, "0.90", "100", "b"))

	total := decimal.Zero
	for _, m := range matches {
		total = total.Add(m.Quantity)
	}
	require.True(t, total.Equal(submittedAsk), "matched %s, submitted %s", total, submittedAsk)
}
