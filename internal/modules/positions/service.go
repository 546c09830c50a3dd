package positions

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
)

// Position is a user's net holding in one outcome
type Position struct {
	OutcomeID   string          `json:"outcomeId"`
	NetQuantity decimal.Decimal `json:"netQuantity"`
}

// Service projects net positions from the TradeMatched event stream.
type Service struct {
	events *events.Store
	log    zerolog.Logger
}

// NewService creates a new position service
func NewService(events *events.Store, log zerolog.Logger) *Service {
	return &Service{
		events: events,
		log:    log.With().Str("service", "positions").Logger(),
	}
}

// GetNetPosition replays the user's TradeMatched events and aggregates per
// outcome: plus quantity as buyer, minus quantity as seller. Only non-zero
// outcomes are returned, sorted by outcome id. Unparseable payloads are
// skipped; a failed event read yields an empty list.
func (s *Service) GetNetPosition(ctx context.Context, userID string, marketID string) []Position {
	evts, err := s.events.ByUser(ctx, userID)
	if err != nil {
		s.log.Error().Err(err).Str("user_id", userID).Msg("Failed to read user events")
		return []Position{}
	}

	net := make(map[string]decimal.Decimal)
	for _, ev := range evts {
		if ev.EventType != domain.EventTradeMatched {
			continue
		}
		var payload domain.TradeMatchedPayload
		if err := json.Unmarshal(ev.Payload, &payload); err != nil {
			s.log.Warn().Err(err).Int64("event_id", ev.ID).Msg("Skipping unparseable TradeMatched payload")
			continue
		}
		if marketID != "" && !strings.EqualFold(payload.OutcomeID, marketID) {
			continue
		}
		if payload.BuyerUserID == userID {
			net[payload.OutcomeID] = net[payload.OutcomeID].Add(payload.Quantity)
		}
		if payload.SellerUserID == userID {
			net[payload.OutcomeID] = net[payload.OutcomeID].Sub(payload.Quantity)
		}
	}

	positions := make([]Position, 0, len(net))
	for outcomeID, qty := range net {
		if qty.IsZero() {
			continue
		}
		positions = append(positions, Position{OutcomeID: outcomeID, NetQuantity: qty})
	}
	sort.Slice(positions, func(i, j int) bool {
		return positions[i].OutcomeID < positions[j].OutcomeID
	})
	return positions
}
