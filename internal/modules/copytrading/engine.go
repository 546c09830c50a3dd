package copytrading

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
)

// Engine converts celebrity trade signals into Clearing transactions:
// the celebrity's main operating account is debited and a per-outcome market
// holding account is credited. Every posted transaction id is recorded in
// the clearing index that auto-settlement later reverses.
type Engine struct {
	ledger           *ledger.Service
	systemOperatorID string
	log              zerolog.Logger

	// One lock per outcome covers holding-account creation and index
	// append, so concurrent signals for the same outcome serialise.
	locksMu sync.Mutex
	locks   map[string]*sync.Mutex

	indexMu sync.RWMutex
	index   map[string][]uuid.UUID // lower-cased outcome id -> ordered clearing tx ids
}

// NewEngine creates a new copy-trading engine
func NewEngine(ledgerSvc *ledger.Service, systemOperatorID string, log zerolog.Logger) *Engine {
	return &Engine{
		ledger:           ledgerSvc,
		systemOperatorID: systemOperatorID,
		log:              log.With().Str("service", "copytrading").Logger(),
		locks:            make(map[string]*sync.Mutex),
		index:            make(map[string][]uuid.UUID),
	}
}

// HandleSignal processes one celebrity trade signal. Errors are logged and
// swallowed so a bad signal cannot break the oracle's dispatch loop.
func (e *Engine) HandleSignal(ctx context.Context, sig domain.CelebrityTradeSignal) {
	if _, err := e.handle(ctx, sig); err != nil {
		e.log.Error().
			Err(err).
			Str("trade_id", sig.TradeID.String()).
			Str("outcome_id", sig.OutcomeID).
			Str("actor_id", sig.ActorID).
			Msg("Failed to process celebrity trade signal")
	}
}

// Process handles one signal and returns the posted clearing transaction id;
// the API layer uses it to echo the id back to the caller.
func (e *Engine) Process(ctx context.Context, sig domain.CelebrityTradeSignal) (uuid.UUID, error) {
	return e.handle(ctx, sig)
}

func (e *Engine) handle(ctx context.Context, sig domain.CelebrityTradeSignal) (uuid.UUID, error) {
	if !sig.Amount.IsPositive() {
		return uuid.Nil, fmt.Errorf("signal amount must be positive, got %s", sig.Amount)
	}

	celebrityName := fmt.Sprintf("%s Main Operating Account", sig.ActorID)
	celebrity, err := e.ledger.GetAccountByName(ctx, sig.OperatorID, celebrityName)
	if err != nil {
		if errors.Is(err, ledger.ErrNotFound) {
			return uuid.Nil, fmt.Errorf("celebrity account %q not found for operator %q", celebrityName, sig.OperatorID)
		}
		return uuid.Nil, err
	}

	holding, err := e.getOrCreateHoldingAccount(ctx, sig.OutcomeID, sig.OutcomeName)
	if err != nil {
		return uuid.Nil, err
	}

	txID, err := e.ledger.PostTransaction(ctx, []domain.JournalEntry{
		{AccountID: celebrity.ID, Amount: sig.Amount, Direction: domain.Debit, Phase: domain.PhaseClearing},
		{AccountID: holding.ID, Amount: sig.Amount, Direction: domain.Credit, Phase: domain.PhaseClearing},
	}, ledger.PostOptions{})
	if err != nil {
		return uuid.Nil, err
	}

	key := indexKey(sig.OutcomeID)
	lock := e.outcomeLock(key)
	lock.Lock()
	e.indexMu.Lock()
	e.index[key] = append(e.index[key], txID)
	e.indexMu.Unlock()
	lock.Unlock()

	e.log.Info().
		Str("clearing_tx_id", txID.String()).
		Str("outcome_id", sig.OutcomeID).
		Str("amount", sig.Amount.String()).
		Msg("Clearing transaction posted for celebrity trade")

	return txID, nil
}

// getOrCreateHoldingAccount returns the per-outcome market holding account,
// creating it (Liability, system operator) at most once per outcome even
// under concurrent signals.
func (e *Engine) getOrCreateHoldingAccount(ctx context.Context, outcomeID, outcomeName string) (*domain.Account, error) {
	name := fmt.Sprintf("Market Holding Account - %s", outcomeName)

	lock := e.outcomeLock(indexKey(outcomeID))
	lock.Lock()
	defer lock.Unlock()

	acct, err := e.ledger.GetAccountByName(ctx, e.systemOperatorID, name)
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}

	created, err := e.ledger.CreateAccount(ctx, domain.Account{
		Name:       name,
		Type:       domain.AccountLiability,
		OperatorID: e.systemOperatorID,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// GetClearingTransactionIDsForOutcome returns a snapshot copy of the ordered
// clearing transaction ids recorded for an outcome.
func (e *Engine) GetClearingTransactionIDsForOutcome(outcomeID string) []uuid.UUID {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	ids := e.index[indexKey(outcomeID)]
	snapshot := make([]uuid.UUID, len(ids))
	copy(snapshot, ids)
	return snapshot
}

// GetLastClearingTransactionIDForOutcome returns the most recent clearing
// transaction id for an outcome, if any.
func (e *Engine) GetLastClearingTransactionIDForOutcome(outcomeID string) (uuid.UUID, bool) {
	e.indexMu.RLock()
	defer e.indexMu.RUnlock()

	ids := e.index[indexKey(outcomeID)]
	if len(ids) == 0 {
		return uuid.Nil, false
	}
	return ids[len(ids)-1], true
}

func (e *Engine) outcomeLock(key string) *sync.Mutex {
	e.locksMu.Lock()
	defer e.locksMu.Unlock()
	if _, ok := e.locks[key]; !ok {
		e.locks[key] = &sync.Mutex{}
	}
	return e.locks[key]
}

func indexKey(outcomeID string) string {
	return strings.ToLower(strings.TrimSpace(outcomeID))
}
