package matching

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/accounting"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/social"
)

var one = decimal.NewFromInt(1)

// OutcomeRegistry answers whether an outcome id is tradeable. A nil registry
// accepts every outcome.
type OutcomeRegistry interface {
	IsRegistered(outcomeID string) bool
}

// MatchHook observes settled fills, e.g. for websocket broadcast.
type MatchHook func(outcomeID string, match domain.MatchResult)

// Engine runs the secondary market: it validates incoming orders, crosses
// them in the book, settles each fill in one database transaction, and
// mirrors leader orders to their followers.
type Engine struct {
	db         *database.DB
	books      *orderbook.Store
	registry   OutcomeRegistry
	ledger     *ledger.Service
	accounting *accounting.Service
	events     *events.Store
	social     *social.Service
	log        zerolog.Logger
	onMatch    MatchHook
}

// NewEngine creates a new matching engine
func NewEngine(
	db *database.DB,
	books *orderbook.Store,
	registry OutcomeRegistry,
	ledgerSvc *ledger.Service,
	accountingSvc *accounting.Service,
	eventStore *events.Store,
	socialSvc *social.Service,
	log zerolog.Logger,
) *Engine {
	return &Engine{
		db:         db,
		books:      books,
		registry:   registry,
		ledger:     ledgerSvc,
		accounting: accountingSvc,
		events:     eventStore,
		social:     socialSvc,
		log:        log.With().Str("service", "matching").Logger(),
	}
}

// SetMatchHook installs an observer called after each settled fill.
func (e *Engine) SetMatchHook(hook MatchHook) {
	e.onMatch = hook
}

// ProcessOrder validates, records, and matches one order. Each fill settles
// in its own database transaction, so one failed fill never unwinds the ones
// already committed; the error for the failed fill is returned alongside the
// fills that did settle. Non-mirrored orders are then copied to the placing
// user's followers, each copy re-entering ProcessOrder flagged as mirrored.
func (e *Engine) ProcessOrder(ctx context.Context, order domain.Order) ([]domain.MatchResult, error) {
	if strings.TrimSpace(order.OutcomeID) == "" {
		return nil, fmt.Errorf("outcome id must not be blank")
	}
	if strings.TrimSpace(order.UserID) == "" {
		return nil, fmt.Errorf("user id must not be blank")
	}
	if !order.Price.IsPositive() || order.Price.GreaterThan(one) {
		return nil, fmt.Errorf("price must be within (0, 1], got %s", order.Price)
	}
	if !order.Quantity.IsPositive() {
		return nil, fmt.Errorf("quantity must be positive, got %s", order.Quantity)
	}
	if e.registry != nil && !e.registry.IsRegistered(order.OutcomeID) {
		return nil, &domain.InvalidOutcomeError{OutcomeID: order.OutcomeID}
	}

	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	if order.CreatedAt.IsZero() {
		order.CreatedAt = time.Now().UTC()
	}

	if err := e.recordOrder(ctx, order); err != nil {
		return nil, err
	}
	if _, err := e.events.Append(ctx, nil, domain.EventOrderPlaced, order, &order.OutcomeID, &order.UserID); err != nil {
		e.log.Warn().Err(err).Str("order_id", order.ID.String()).Msg("Failed to record OrderPlaced event")
	}

	book := e.books.GetOrCreate(order.OutcomeID)
	matches := book.SubmitAndMatch(&order)

	settled := make([]domain.MatchResult, 0, len(matches))
	for _, match := range matches {
		if err := e.settleMatch(ctx, order.OutcomeID, match); err != nil {
			e.log.Error().
				Err(err).
				Str("outcome_id", order.OutcomeID).
				Str("buyer", match.BuyerUserID).
				Str("seller", match.SellerUserID).
				Msg("Failed to settle fill")
			return settled, err
		}
		settled = append(settled, match)
		if e.onMatch != nil {
			e.onMatch(order.OutcomeID, match)
		}
	}

	e.mirror(ctx, order)

	return settled, nil
}

// recordOrder persists the order as received, before matching mutates its
// quantity. The row is the audit record; the book stays in memory.
func (e *Engine) recordOrder(ctx context.Context, order domain.Order) error {
	var contractSide *string
	if order.ContractSide != nil {
		cs := string(*order.ContractSide)
		contractSide = &cs
	}
	_, err := e.db.Conn().ExecContext(ctx, `
		INSERT INTO orders (id, user_id, outcome_id, operator_id, side, contract_side, price, quantity, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, order.ID.String(), order.UserID, order.OutcomeID, order.OperatorID,
		string(order.Side), contractSide, order.Price.String(), order.Quantity.String(),
		order.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("failed to record order: %w", err)
	}
	return nil
}

// settleMatch moves cash through the journal and shares through the outcome
// ledger atomically: both legs and the trade events commit together or not
// at all.
func (e *Engine) settleMatch(ctx context.Context, outcomeID string, match domain.MatchResult) error {
	buyer, err := e.ledger.FirstAccountForOperator(ctx, match.BuyerUserID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &domain.AccountNotFoundError{Role: "buyer", UserID: match.BuyerUserID}
		}
		return err
	}
	seller, err := e.ledger.FirstAccountForOperator(ctx, match.SellerUserID)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return &domain.AccountNotFoundError{Role: "seller", UserID: match.SellerUserID}
		}
		return err
	}

	cost := match.Price.Mul(match.Quantity)

	clearing := domain.PhaseClearing
	available, err := e.ledger.GetAccountBalance(ctx, buyer.ID, &clearing)
	if err != nil {
		return err
	}
	if available.LessThan(cost) {
		return &domain.InsufficientFundsError{Required: cost, Available: available}
	}

	tx, err := e.db.BeginTx(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	tradeType := domain.TransactionTrade
	if _, err = e.ledger.PostTransactionTx(ctx, tx, []domain.JournalEntry{
		{AccountID: buyer.ID, Amount: cost, Direction: domain.Credit, Phase: domain.PhaseClearing},
		{AccountID: seller.ID, Amount: cost, Direction: domain.Debit, Phase: domain.PhaseClearing},
	}, ledger.PostOptions{Type: &tradeType}); err != nil {
		return err
	}

	now := time.Now().UTC()
	assetType := accounting.ResolveAssetType(outcomeID)
	if err = e.accounting.BookTrade(ctx, tx, buyer.ID, seller.ID, cost, assetType, match.Quantity, now); err != nil {
		return err
	}

	// TradeMatched is appended twice, indexed once per side, so each user's
	// event stream replays to their own position.
	payload := domain.TradeMatchedPayload{
		Price:        match.Price,
		Quantity:     match.Quantity,
		BuyerUserID:  match.BuyerUserID,
		SellerUserID: match.SellerUserID,
		OutcomeID:    outcomeID,
	}
	if _, err = e.events.Append(ctx, tx, domain.EventTradeMatched, payload, &outcomeID, &match.BuyerUserID); err != nil {
		return err
	}
	if _, err = e.events.Append(ctx, tx, domain.EventTradeMatched, payload, &outcomeID, &match.SellerUserID); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit fill: %w", err)
	}

	e.log.Info().
		Str("outcome_id", outcomeID).
		Str("price", match.Price.String()).
		Str("quantity", match.Quantity.String()).
		Str("buyer", match.BuyerUserID).
		Str("seller", match.SellerUserID).
		Msg("Fill settled")

	return nil
}

// mirror fans a leader's order out to followers. A failed mirror is logged
// and skipped; the leader's order already stands.
func (e *Engine) mirror(ctx context.Context, order domain.Order) {
	if e.social == nil {
		return
	}
	for _, copyOrder := range e.social.MirrorOrder(order) {
		if _, err := e.ProcessOrder(ctx, copyOrder); err != nil {
			e.log.Warn().
				Err(err).
				Str("leader", order.UserID).
				Str("follower", copyOrder.UserID).
				Str("outcome_id", copyOrder.OutcomeID).
				Msg("Failed to mirror order")
		}
	}
}
