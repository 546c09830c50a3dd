package settlement

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/copytrading"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
)

// Result reports the outcome of one settlement pass.
type Result struct {
	NewSettlementTransactionIDs          []uuid.UUID `json:"newSettlementTransactionIds"`
	AlreadySettledClearingTransactionIDs []uuid.UUID `json:"alreadySettledClearingTransactionIds"`
	SettlementTransactionIDs             []uuid.UUID `json:"settlementTransactionIds"`
	Message                              string      `json:"message"`
	ConfidenceScore                      *float64    `json:"confidenceScore,omitempty"`
	SourceVerificationList               []string    `json:"sourceVerificationList,omitempty"`
}

// AutoSettlement posts reversing Settlement transactions for every Clearing
// transaction recorded against an outcome, exactly once each. The
// settled-index check-and-insert is the sole idempotency guarantor.
type AutoSettlement struct {
	ledger      *ledger.Service
	copyTrading *copytrading.Engine
	log         zerolog.Logger

	// settled maps clearing tx id to the settlement tx that reversed it.
	// The mutex spans check, post, and record so the first writer wins and
	// a losing writer never posts a second reversal.
	mu      sync.Mutex
	settled map[uuid.UUID]uuid.UUID
}

// NewAutoSettlement creates a new auto-settlement service
func NewAutoSettlement(ledgerSvc *ledger.Service, copyTrading *copytrading.Engine, log zerolog.Logger) *AutoSettlement {
	return &AutoSettlement{
		ledger:      ledgerSvc,
		copyTrading: copyTrading,
		log:         log.With().Str("service", "settlement").Logger(),
		settled:     make(map[uuid.UUID]uuid.UUID),
	}
}

// SettleOutcome reverses every Clearing transaction for the outcome. Calling
// it again returns the already-recorded settlement ids and posts nothing.
func (s *AutoSettlement) SettleOutcome(ctx context.Context, outcomeID string, confidence *float64, sources []string) (*Result, error) {
	result := &Result{
		NewSettlementTransactionIDs:          []uuid.UUID{},
		AlreadySettledClearingTransactionIDs: []uuid.UUID{},
		SettlementTransactionIDs:             []uuid.UUID{},
		ConfidenceScore:                      confidence,
		SourceVerificationList:               sources,
	}

	clearingIDs := s.copyTrading.GetClearingTransactionIDsForOutcome(outcomeID)
	if len(clearingIDs) == 0 {
		result.Message = fmt.Sprintf("No clearing transactions found for outcome %q", outcomeID)
		return result, nil
	}

	for _, clearingID := range clearingIDs {
		settlementID, already, err := s.settleOne(ctx, clearingID)
		if err != nil {
			return nil, err
		}
		result.SettlementTransactionIDs = append(result.SettlementTransactionIDs, settlementID)
		if already {
			result.AlreadySettledClearingTransactionIDs = append(result.AlreadySettledClearingTransactionIDs, clearingID)
		} else {
			result.NewSettlementTransactionIDs = append(result.NewSettlementTransactionIDs, settlementID)
		}
	}

	result.Message = fmt.Sprintf("Settled outcome %q: %d new, %d already settled",
		outcomeID, len(result.NewSettlementTransactionIDs), len(result.AlreadySettledClearingTransactionIDs))

	s.log.Info().
		Str("outcome_id", outcomeID).
		Int("new", len(result.NewSettlementTransactionIDs)).
		Int("already_settled", len(result.AlreadySettledClearingTransactionIDs)).
		Msg("Outcome settled")

	return result, nil
}

func (s *AutoSettlement) settleOne(ctx context.Context, clearingID uuid.UUID) (settlementID uuid.UUID, already bool, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.settled[clearingID]; ok {
		return existing, true, nil
	}

	clearing, err := s.ledger.GetTransaction(ctx, clearingID)
	if err != nil {
		return uuid.Nil, false, fmt.Errorf("failed to load clearing transaction %s: %w", clearingID, err)
	}

	// Reverse: flip every entry's direction, move it to the Settlement
	// phase, keep amounts unchanged.
	entries := make([]domain.JournalEntry, 0, len(clearing.Entries))
	for _, e := range clearing.Entries {
		flipped := domain.Credit
		if e.Direction == domain.Credit {
			flipped = domain.Debit
		}
		entries = append(entries, domain.JournalEntry{
			AccountID: e.AccountID,
			Amount:    e.Amount,
			Direction: flipped,
			Phase:     domain.PhaseSettlement,
		})
	}

	settlementID, err = s.ledger.PostTransaction(ctx, entries, ledger.PostOptions{
		SettlesClearingTransactionID: &clearingID,
	})
	if err != nil {
		return uuid.Nil, false, err
	}

	s.settled[clearingID] = settlementID
	return settlementID, false, nil
}
