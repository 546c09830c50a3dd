package oracle

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/settlement"
)

// Flash markets cap at 15 minutes, Base markets run at least an hour.
const (
	flashMaxDuration = 15
	baseMinDuration  = 60
	defaultDuration  = 60
)

// Settler settles an outcome; implemented by settlement.AutoSettlement.
type Settler interface {
	SettleOutcome(ctx context.Context, outcomeID string, confidence *float64, sources []string) (*settlement.Result, error)
}

// SignalHandler receives dispatched celebrity trade signals
type SignalHandler func(ctx context.Context, sig domain.CelebrityTradeSignal)

// BaseService owns the market lifecycle: creating markets, registering their
// outcomes, and declaring outcomes reached. The settlement service is
// resolved lazily at call time, which breaks the construction cycle
// oracle -> settlement -> copy-trading -> oracle.
type BaseService struct {
	id         string
	registry   *Registry
	books      *orderbook.Store
	events     *events.Store
	settlement func() Settler
	log        zerolog.Logger

	mu      sync.RWMutex
	markets map[uuid.UUID]domain.MarketEvent
}

// NewBaseService creates a new oracle service
func NewBaseService(id string, registry *Registry, books *orderbook.Store, eventStore *events.Store, log zerolog.Logger) *BaseService {
	return &BaseService{
		id:       id,
		registry: registry,
		books:    books,
		events:   eventStore,
		log:      log.With().Str("service", "oracle").Str("oracle_id", id).Logger(),
		markets:  make(map[uuid.UUID]domain.MarketEvent),
	}
}

// SetSettlementProvider installs the late-bound settlement lookup.
func (s *BaseService) SetSettlementProvider(provider func() Settler) {
	s.settlement = provider
}

// CreateMarketEvent opens a new market: derives its outcome id, registers
// the outcome, creates an empty book, and announces MarketOpened.
func (s *BaseService) CreateMarketEvent(ctx context.Context, actorID, title string, eventType domain.MarketEventType, durationMinutes int) (domain.MarketEvent, error) {
	if strings.TrimSpace(title) == "" {
		return domain.MarketEvent{}, fmt.Errorf("market title must not be blank")
	}

	id := uuid.New()
	outcomeID := "outcome-" + strings.ReplaceAll(id.String(), "-", "")
	duration := normaliseDuration(eventType, durationMinutes)
	now := time.Now().UTC()

	event := domain.MarketEvent{
		ID:              id,
		Title:           title,
		Type:            eventType,
		OutcomeID:       outcomeID,
		ActorID:         actorID,
		OracleID:        s.id,
		DurationMinutes: duration,
		CreatedAt:       now,
		ExpiresAt:       now.Add(time.Duration(duration) * time.Minute),
	}

	s.mu.Lock()
	s.markets[id] = event
	s.mu.Unlock()

	s.registry.Register(outcomeID)
	s.books.GetOrCreate(outcomeID)

	if _, err := s.events.Append(ctx, nil, domain.EventMarketOpened, event, &event.OutcomeID, nil); err != nil {
		s.log.Warn().Err(err).Str("outcome_id", outcomeID).Msg("Failed to record MarketOpened event")
	}

	s.log.Info().
		Str("outcome_id", outcomeID).
		Str("title", title).
		Str("type", string(eventType)).
		Int("duration_minutes", duration).
		Msg("Market opened")

	return event, nil
}

// GetActiveEvents returns markets whose expiry is still in the future,
// newest first.
func (s *BaseService) GetActiveEvents() []domain.MarketEvent {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []domain.MarketEvent
	for _, m := range s.markets {
		if m.IsActive(now) {
			active = append(active, m)
		}
	}
	sort.Slice(active, func(i, j int) bool {
		return active[i].CreatedAt.After(active[j].CreatedAt)
	})
	return active
}

// GetExpiredUnresolved returns markets past expiry, used by the expiry sweep.
func (s *BaseService) GetExpiredUnresolved() []domain.MarketEvent {
	now := time.Now().UTC()

	s.mu.RLock()
	defer s.mu.RUnlock()

	var expired []domain.MarketEvent
	for _, m := range s.markets {
		if !m.IsActive(now) {
			expired = append(expired, m)
		}
	}
	return expired
}

// NotifyOutcomeReached hands the outcome to the settlement service resolved
// at call time.
func (s *BaseService) NotifyOutcomeReached(ctx context.Context, outcomeID string, confidence *float64, sources []string) (*settlement.Result, error) {
	if s.settlement == nil {
		return nil, fmt.Errorf("no settlement provider configured")
	}
	settler := s.settlement()
	if settler == nil {
		return nil, fmt.Errorf("settlement provider returned nothing")
	}
	return settler.SettleOutcome(ctx, outcomeID, confidence, sources)
}

func normaliseDuration(eventType domain.MarketEventType, minutes int) int {
	if minutes <= 0 {
		minutes = defaultDuration
	}
	switch eventType {
	case domain.MarketFlash:
		if minutes > flashMaxDuration {
			return flashMaxDuration
		}
	case domain.MarketBase:
		if minutes < baseMinDuration {
			return baseMinDuration
		}
	}
	return minutes
}

// CelebrityService extends the base oracle with simulated celebrity trades
// dispatched synchronously to subscribers.
type CelebrityService struct {
	*BaseService

	handlersMu sync.RWMutex
	handlers   []SignalHandler
}

// NewCelebrityService creates a new celebrity oracle
func NewCelebrityService(base *BaseService) *CelebrityService {
	return &CelebrityService{BaseService: base}
}

// Subscribe registers a handler for TradeProposed signals.
func (s *CelebrityService) Subscribe(handler SignalHandler) {
	s.handlersMu.Lock()
	defer s.handlersMu.Unlock()
	s.handlers = append(s.handlers, handler)
}

// SimulateTrade validates the request, builds a trade signal, and dispatches
// it synchronously to every subscriber.
func (s *CelebrityService) SimulateTrade(ctx context.Context, operatorID string, amount decimal.Decimal, outcomeID, outcomeName, actorID string) (domain.CelebrityTradeSignal, error) {
	if !amount.IsPositive() {
		return domain.CelebrityTradeSignal{}, fmt.Errorf("trade amount must be positive, got %s", amount)
	}
	if strings.TrimSpace(outcomeID) == "" {
		return domain.CelebrityTradeSignal{}, fmt.Errorf("outcome id must not be blank")
	}

	sig := domain.CelebrityTradeSignal{
		TradeID:     uuid.New(),
		OperatorID:  strings.TrimSpace(operatorID),
		Amount:      amount,
		OutcomeID:   strings.TrimSpace(outcomeID),
		OutcomeName: strings.TrimSpace(outcomeName),
		ActorID:     strings.TrimSpace(actorID),
	}

	s.handlersMu.RLock()
	handlers := make([]SignalHandler, len(s.handlers))
	copy(handlers, s.handlers)
	s.handlersMu.RUnlock()

	for _, handler := range handlers {
		handler(ctx, sig)
	}

	s.log.Info().
		Str("trade_id", sig.TradeID.String()).
		Str("outcome_id", sig.OutcomeID).
		Str("amount", amount.String()).
		Msg("Celebrity trade dispatched")

	return sig, nil
}
