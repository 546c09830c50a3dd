package marketmaker

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/matching"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
)

// Operator is the operator id the quote job trades under. The bulk-order
// endpoint accepts orders for this operator only.
const Operator = "mm-provider"

var (
	defaultMid   = decimal.RequireFromString("0.50")
	halfSpread   = decimal.RequireFromString("0.05")
	quoteSize    = decimal.NewFromInt(10)
	bankroll     = decimal.NewFromInt(10000)
	two          = decimal.NewFromInt(2)
	minimumPrice = decimal.RequireFromString("0.01")
	maximumPrice = decimal.RequireFromString("0.99")
)

// ActiveMarkets lists the markets the job quotes on.
type ActiveMarkets interface {
	GetActiveEvents() []domain.MarketEvent
}

// Job refreshes two-sided quotes on every active market. Each cycle cancels
// the previous cycle's resting quotes and posts a new bid/ask pair around the
// book mid through the matching engine, so market-maker fills settle exactly
// like anyone else's.
type Job struct {
	books          *orderbook.Store
	engine         *matching.Engine
	markets        ActiveMarkets
	ledger         *ledger.Service
	systemOperator string
	log            zerolog.Logger

	funded bool
}

// NewJob creates a new market-maker job. The system operator id owns the
// exchange float account the bankroll is drawn from.
func NewJob(books *orderbook.Store, engine *matching.Engine, markets ActiveMarkets, ledgerSvc *ledger.Service, systemOperator string, log zerolog.Logger) *Job {
	return &Job{
		books:          books,
		engine:         engine,
		markets:        markets,
		ledger:         ledgerSvc,
		systemOperator: systemOperator,
		log:            log.With().Str("job", "market_maker").Logger(),
	}
}

// Name implements scheduler.Job
func (j *Job) Name() string {
	return "market_maker_quotes"
}

// Run implements scheduler.Job
func (j *Job) Run() error {
	ctx := context.Background()

	if err := j.ensureFunded(ctx); err != nil {
		return err
	}

	active := j.markets.GetActiveEvents()
	for _, market := range active {
		if err := j.refreshQuotes(ctx, market.OutcomeID); err != nil {
			j.log.Warn().
				Err(err).
				Str("outcome_id", market.OutcomeID).
				Msg("Failed to refresh quotes")
		}
	}

	j.log.Debug().Int("markets", len(active)).Msg("Quote cycle finished")
	return nil
}

func (j *Job) refreshQuotes(ctx context.Context, outcomeID string) error {
	book := j.books.GetOrCreate(outcomeID)
	cancelled := book.RemoveOrdersByOperator(Operator)
	if cancelled > 0 {
		j.log.Debug().
			Int("cancelled", cancelled).
			Str("outcome_id", outcomeID).
			Msg("Stale quotes cancelled")
	}

	mid := j.bookMid(book)
	bidPrice := clampPrice(mid.Sub(halfSpread))
	askPrice := clampPrice(mid.Add(halfSpread))

	for _, side := range []struct {
		side  domain.Side
		price decimal.Decimal
	}{
		{domain.SideBid, bidPrice},
		{domain.SideAsk, askPrice},
	} {
		_, err := j.engine.ProcessOrder(ctx, domain.Order{
			UserID:     Operator,
			OperatorID: Operator,
			OutcomeID:  outcomeID,
			Side:       side.side,
			Price:      side.price,
			Quantity:   quoteSize,
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// bookMid derives the quote midpoint from the current top of book, falling
// back to 0.50 on a one-sided or empty book.
func (j *Job) bookMid(book *orderbook.Book) decimal.Decimal {
	bestBid, bestAsk, hasBid, hasAsk := book.BestBidAsk()
	switch {
	case hasBid && hasAsk:
		return bestBid.Add(bestAsk).Div(two)
	case hasBid:
		return bestBid
	case hasAsk:
		return bestAsk
	default:
		return defaultMid
	}
}

// ensureFunded creates and funds the market maker's account on the first
// cycle so its bids clear the balance check.
func (j *Job) ensureFunded(ctx context.Context) error {
	if j.funded {
		return nil
	}

	acct, err := j.ledger.FirstAccountForOperator(ctx, Operator)
	if errors.Is(err, ledger.ErrNotFound) {
		created, createErr := j.ledger.CreateAccount(ctx, domain.Account{
			Name:       "Market Maker Account",
			Type:       domain.AccountAsset,
			OperatorID: Operator,
		})
		if createErr != nil {
			return createErr
		}
		acct = &created

		float, floatErr := j.getOrCreateFloatAccount(ctx)
		if floatErr != nil {
			return floatErr
		}
		if _, postErr := j.ledger.PostTransaction(ctx, []domain.JournalEntry{
			{AccountID: acct.ID, Amount: bankroll, Direction: domain.Debit, Phase: domain.PhaseClearing},
			{AccountID: float.ID, Amount: bankroll, Direction: domain.Credit, Phase: domain.PhaseClearing},
		}, ledger.PostOptions{}); postErr != nil {
			return postErr
		}
		j.log.Info().Str("account_id", acct.ID.String()).Msg("Market maker account funded")
	} else if err != nil {
		return err
	}

	j.funded = true
	return nil
}

func (j *Job) getOrCreateFloatAccount(ctx context.Context) (*domain.Account, error) {
	acct, err := j.ledger.GetAccountByName(ctx, j.systemOperator, "Exchange Float")
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	created, err := j.ledger.CreateAccount(ctx, domain.Account{
		Name:       "Exchange Float",
		Type:       domain.AccountEquity,
		OperatorID: j.systemOperator,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create float account: %w", err)
	}
	return &created, nil
}

func clampPrice(p decimal.Decimal) decimal.Decimal {
	if p.LessThan(minimumPrice) {
		return minimumPrice
	}
	if p.GreaterThan(maximumPrice) {
		return maximumPrice
	}
	return p
}
