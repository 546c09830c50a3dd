package orderbook

import (
	"sort"
	"strings"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
)

// Book is the limit order book for a single outcome. Bids sort best-first by
// descending price, asks by ascending price; arrival order breaks ties.
// All mutation happens under the book's own lock, so submissions to the same
// outcome are linearised while other outcomes proceed in parallel.
type Book struct {
	outcomeID string

	mu   sync.Mutex
	bids []*domain.Order
	asks []*domain.Order
	seq  uint64
	arr  map[*domain.Order]uint64 // arrival order for FIFO ties
}

// NewBook creates an empty book for an outcome
func NewBook(outcomeID string) *Book {
	return &Book{
		outcomeID: outcomeID,
		arr:       make(map[*domain.Order]uint64),
	}
}

// OutcomeID returns the outcome this book trades
func (b *Book) OutcomeID() string {
	return b.outcomeID
}

// AddOrder inserts an order on its side and re-sorts so the best price sits
// at index 0.
func (b *Book) AddOrder(order *domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addOrder(order)
}

// MatchOrders runs the maker/taker loop and returns the fills produced.
func (b *Book) MatchOrders() []domain.MatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.matchOrders()
}

// SubmitAndMatch inserts an order and runs matching in one critical section.
func (b *Book) SubmitAndMatch(order *domain.Order) []domain.MatchResult {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.addOrder(order)
	return b.matchOrders()
}

func (b *Book) addOrder(order *domain.Order) {
	b.seq++
	b.arr[order] = b.seq

	if order.Side == domain.SideBid {
		b.bids = append(b.bids, order)
		sort.SliceStable(b.bids, func(i, j int) bool {
			if !b.bids[i].Price.Equal(b.bids[j].Price) {
				return b.bids[i].Price.GreaterThan(b.bids[j].Price)
			}
			return b.arr[b.bids[i]] < b.arr[b.bids[j]]
		})
	} else {
		b.asks = append(b.asks, order)
		sort.SliceStable(b.asks, func(i, j int) bool {
			if !b.asks[i].Price.Equal(b.asks[j].Price) {
				return b.asks[i].Price.LessThan(b.asks[j].Price)
			}
			return b.arr[b.asks[i]] < b.arr[b.asks[j]]
		})
	}
}

func (b *Book) matchOrders() []domain.MatchResult {
	var matches []domain.MatchResult

	for len(b.bids) > 0 && len(b.asks) > 0 {
		bid, ask := b.bids[0], b.asks[0]
		if bid.Price.LessThan(ask.Price) {
			break
		}

		// Fill at the resting ask's price.
		quantity := decimal.Min(bid.Quantity, ask.Quantity)
		matches = append(matches, domain.MatchResult{
			Price:        ask.Price,
			Quantity:     quantity,
			BuyerUserID:  bid.UserID,
			SellerUserID: ask.UserID,
		})

		bid.Quantity = bid.Quantity.Sub(quantity)
		ask.Quantity = ask.Quantity.Sub(quantity)

		if bid.Quantity.IsZero() {
			delete(b.arr, bid)
			b.bids = b.bids[1:]
		}
		if ask.Quantity.IsZero() {
			delete(b.arr, ask)
			b.asks = b.asks[1:]
		}
	}

	return matches
}

// RemoveOrdersByOperator deletes every order whose operator id matches the
// argument, case-insensitively, and returns the removed count.
func (b *Book) RemoveOrdersByOperator(operatorID string) int {
	b.mu.Lock()
	defer b.mu.Unlock()

	removed := 0
	filter := func(side []*domain.Order) []*domain.Order {
		kept := side[:0]
		for _, o := range side {
			if strings.EqualFold(o.OperatorID, operatorID) {
				delete(b.arr, o)
				removed++
				continue
			}
			kept = append(kept, o)
		}
		return kept
	}
	b.bids = filter(b.bids)
	b.asks = filter(b.asks)
	return removed
}

// Snapshot returns copies of both sides, best price first.
func (b *Book) Snapshot() (bids, asks []domain.Order) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bids = make([]domain.Order, len(b.bids))
	for i, o := range b.bids {
		bids[i] = *o
	}
	asks = make([]domain.Order, len(b.asks))
	for i, o := range b.asks {
		asks[i] = *o
	}
	return bids, asks
}

// BestBidAsk returns the current top of book; ok is false for an empty side.
func (b *Book) BestBidAsk() (bestBid, bestAsk decimal.Decimal, hasBid, hasAsk bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if len(b.bids) > 0 {
		bestBid, hasBid = b.bids[0].Price, true
	}
	if len(b.asks) > 0 {
		bestAsk, hasAsk = b.asks[0].Price, true
	}
	return
}
