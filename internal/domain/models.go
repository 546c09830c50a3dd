package domain

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// AccountType classifies an account in the double-entry ledger
type AccountType string

const (
	AccountAsset     AccountType = "Asset"
	AccountLiability AccountType = "Liability"
	AccountEquity    AccountType = "Equity"
	AccountRevenue   AccountType = "Revenue"
	AccountExpense   AccountType = "Expense"
)

// Direction is the side of a journal or ledger entry
type Direction string

const (
	Debit  Direction = "Debit"
	Credit Direction = "Credit"
)

// Phase separates provisional accounting from final accounting
type Phase string

const (
	PhaseClearing   Phase = "Clearing"
	PhaseSettlement Phase = "Settlement"
)

// TransactionType tags a transaction's origin; absent means untyped
type TransactionType string

const (
	TransactionTrade TransactionType = "Trade"
)

// Account is a ledger account. Immutable after creation.
type Account struct {
	ID         uuid.UUID   `json:"id"`
	Name       string      `json:"name"`
	Type       AccountType `json:"type"`
	OperatorID string      `json:"operator_id"`
	CreatedAt  time.Time   `json:"created_at"`
}

// JournalEntry is one leg of a balanced transaction. Amount is always
// positive; the direction carries the sign.
type JournalEntry struct {
	AccountID uuid.UUID       `json:"account_id"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
	Phase     Phase           `json:"phase"`
}

// Transaction is a balanced group of at least two journal entries.
// SettlesClearingTransactionID back-references the Clearing transaction a
// Settlement transaction reverses.
type Transaction struct {
	ID                           uuid.UUID        `json:"id"`
	Entries                      []JournalEntry   `json:"entries"`
	Type                         *TransactionType `json:"type,omitempty"`
	SettlesClearingTransactionID *uuid.UUID       `json:"settles_clearing_transaction_id,omitempty"`
	CreatedAt                    time.Time        `json:"created_at"`
}

// LedgerEntry is a share leg in an outcome asset (e.g. DRAKE_ALBUM).
type LedgerEntry struct {
	ID        int64           `json:"id"`
	AccountID uuid.UUID       `json:"account_id"`
	AssetType string          `json:"asset_type"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
	CreatedAt time.Time       `json:"created_at"`
}

// Side is the order side
type Side string

const (
	SideBid Side = "Bid"
	SideAsk Side = "Ask"
)

// ParseSide accepts the wire spellings "Buy", "Sell", "0", "1"
// (case-insensitive) plus the canonical "Bid"/"Ask".
func ParseSide(raw string) (Side, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "buy", "bid", "0":
		return SideBid, nil
	case "sell", "ask", "1":
		return SideAsk, nil
	}
	return "", fmt.Errorf("invalid side: %q", raw)
}

// ContractSide is the leg of a binary market
type ContractSide string

const (
	ContractYes ContractSide = "Yes"
	ContractNo  ContractSide = "No"
)

// Order is a resting or incoming limit order. Quantity only decreases,
// through matching; an order at zero quantity leaves the book.
type Order struct {
	ID           uuid.UUID       `json:"id"`
	UserID       string          `json:"user_id"`
	OutcomeID    string          `json:"outcome_id"`
	OperatorID   string          `json:"operator_id,omitempty"`
	Side         Side            `json:"side"`
	ContractSide *ContractSide   `json:"contract_side,omitempty"`
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	Mirrored     bool            `json:"mirrored,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// MatchResult describes one fill produced by the matching loop
type MatchResult struct {
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	BuyerUserID  string          `json:"buyerUserId"`
	SellerUserID string          `json:"sellerUserId"`
}

// MarketEventType classifies a market event
type MarketEventType string

const (
	MarketBase      MarketEventType = "Base"
	MarketFlash     MarketEventType = "Flash"
	MarketCelebrity MarketEventType = "Celebrity"
	MarketSports    MarketEventType = "Sports"
)

// MarketEvent is a tradeable market created by an oracle
type MarketEvent struct {
	ID              uuid.UUID       `json:"id"`
	Title           string          `json:"title"`
	Type            MarketEventType `json:"type"`
	OutcomeID       string          `json:"outcome_id"`
	ActorID         string          `json:"actor_id"`
	OracleID        string          `json:"oracle_id"`
	DurationMinutes int             `json:"duration_minutes"`
	CreatedAt       time.Time       `json:"created_at"`
	ExpiresAt       time.Time       `json:"expires_at"`
}

// IsActive reports whether the market is still open for trading
func (m MarketEvent) IsActive(now time.Time) bool {
	return now.Before(m.ExpiresAt)
}

// Domain event types appended to the event stream
const (
	EventOrderPlaced  = "OrderPlaced"
	EventTradeMatched = "TradeMatched"
	EventMarketOpened = "MarketOpened"
)

// DomainEvent is one record in the append-only event stream
type DomainEvent struct {
	ID         int64           `json:"id"`
	EventType  string          `json:"event_type"`
	Payload    json.RawMessage `json:"payload"`
	OccurredAt time.Time       `json:"occurred_at"`
	MarketID   *string         `json:"market_id,omitempty"`
	UserID     *string         `json:"user_id,omitempty"`
}

// TradeMatchedPayload is the JSON body of a TradeMatched event
type TradeMatchedPayload struct {
	Price        decimal.Decimal `json:"price"`
	Quantity     decimal.Decimal `json:"quantity"`
	BuyerUserID  string          `json:"buyerUserId"`
	SellerUserID string          `json:"sellerUserId"`
	OutcomeID    string          `json:"outcomeId"`
}

// CelebrityTradeSignal is dispatched by the oracle when a celebrity trade
// is simulated; the copy-trading engine turns it into a Clearing transaction.
type CelebrityTradeSignal struct {
	TradeID     uuid.UUID       `json:"tradeId"`
	OperatorID  string          `json:"operatorId"`
	Amount      decimal.Decimal `json:"amount"`
	OutcomeID   string          `json:"outcomeId"`
	OutcomeName string          `json:"outcomeName"`
	ActorID     string          `json:"actorId,omitempty"`
}
