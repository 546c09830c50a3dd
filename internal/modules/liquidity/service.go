package liquidity

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/formulas"
)

// ErrMarketRestricted marks a market whose provider quotes are not exposed.
var ErrMarketRestricted = errors.New("market is restricted")

// Quote is one provider's two-sided indicative quote for a market.
type Quote struct {
	Provider  string          `json:"provider"`
	MarketID  string          `json:"marketId"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Size      decimal.Decimal `json:"size"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// AggregatedQuote is the size-weighted combination of all enabled providers'
// quotes. Indicative only; settlement never reads these numbers.
type AggregatedQuote struct {
	MarketID  string          `json:"marketId"`
	Bid       decimal.Decimal `json:"bid"`
	Ask       decimal.Decimal `json:"ask"`
	Mid       decimal.Decimal `json:"mid"`
	Providers int             `json:"providers"`
	TotalSize decimal.Decimal `json:"totalSize"`
}

// Settings is the process-wide liquidity configuration, replaced atomically
// on update.
type Settings struct {
	EnabledProviders  []string `json:"enabledProviders"`
	RestrictedMarkets []string `json:"restrictedMarkets,omitempty"`
}

// Service aggregates provider quotes. Quote storage is guarded by a lock;
// settings swap through an atomic pointer so readers never block on a PATCH.
type Service struct {
	log      zerolog.Logger
	settings atomic.Pointer[Settings]

	mu     sync.RWMutex
	quotes map[string]map[string]Quote // market id -> provider -> latest quote
}

// NewService creates a new liquidity service. An empty enabled-provider list
// means every provider counts.
func NewService(initial Settings, log zerolog.Logger) *Service {
	s := &Service{
		log:    log.With().Str("service", "liquidity").Logger(),
		quotes: make(map[string]map[string]Quote),
	}
	s.settings.Store(&initial)
	return s
}

// SubmitQuote stores a provider's latest quote, replacing its previous one.
func (s *Service) SubmitQuote(q Quote) error {
	if strings.TrimSpace(q.Provider) == "" || strings.TrimSpace(q.MarketID) == "" {
		return fmt.Errorf("provider and market id must not be blank")
	}
	if q.Bid.IsNegative() || q.Ask.IsNegative() || !q.Size.IsPositive() {
		return fmt.Errorf("quote must carry non-negative prices and positive size")
	}
	if q.UpdatedAt.IsZero() {
		q.UpdatedAt = time.Now().UTC()
	}

	key := marketKey(q.MarketID)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.quotes[key] == nil {
		s.quotes[key] = make(map[string]Quote)
	}
	s.quotes[key][strings.TrimSpace(q.Provider)] = q
	return nil
}

// Aggregate combines the enabled providers' quotes for one market into a
// size-weighted bid, ask, and mid.
func (s *Service) Aggregate(marketID string) (*AggregatedQuote, error) {
	settings := s.settings.Load()
	for _, restricted := range settings.RestrictedMarkets {
		if strings.EqualFold(restricted, strings.TrimSpace(marketID)) {
			return nil, ErrMarketRestricted
		}
	}

	s.mu.RLock()
	byProvider := s.quotes[marketKey(marketID)]
	quotes := make([]Quote, 0, len(byProvider))
	for _, q := range byProvider {
		if providerEnabled(settings, q.Provider) {
			quotes = append(quotes, q)
		}
	}
	s.mu.RUnlock()

	if len(quotes) == 0 {
		return &AggregatedQuote{MarketID: marketID, TotalSize: decimal.Zero}, nil
	}
	sort.Slice(quotes, func(i, j int) bool { return quotes[i].Provider < quotes[j].Provider })

	bids := make([]float64, len(quotes))
	asks := make([]float64, len(quotes))
	weights := make([]float64, len(quotes))
	total := decimal.Zero
	for i, q := range quotes {
		bids[i] = q.Bid.InexactFloat64()
		asks[i] = q.Ask.InexactFloat64()
		weights[i] = q.Size.InexactFloat64()
		total = total.Add(q.Size)
	}

	bid := decimal.NewFromFloat(formulas.WeightedMean(bids, weights)).Round(4)
	ask := decimal.NewFromFloat(formulas.WeightedMean(asks, weights)).Round(4)
	mid := bid.Add(ask).Div(decimal.NewFromInt(2)).Round(4)

	return &AggregatedQuote{
		MarketID:  marketID,
		Bid:       bid,
		Ask:       ask,
		Mid:       mid,
		Providers: len(quotes),
		TotalSize: total,
	}, nil
}

// Settings returns the current settings snapshot.
func (s *Service) Settings() Settings {
	return *s.settings.Load()
}

// UpdateSettings replaces the enabled-provider set. Restricted markets carry
// over unless the patch names its own list.
func (s *Service) UpdateSettings(patch Settings) Settings {
	current := s.settings.Load()
	next := Settings{
		EnabledProviders:  patch.EnabledProviders,
		RestrictedMarkets: current.RestrictedMarkets,
	}
	if patch.RestrictedMarkets != nil {
		next.RestrictedMarkets = patch.RestrictedMarkets
	}
	s.settings.Store(&next)

	s.log.Info().
		Strs("enabled_providers", next.EnabledProviders).
		Msg("Liquidity settings updated")

	return next
}

func providerEnabled(settings *Settings, provider string) bool {
	if len(settings.EnabledProviders) == 0 {
		return true
	}
	for _, enabled := range settings.EnabledProviders {
		if strings.EqualFold(enabled, provider) {
			return true
		}
	}
	return false
}

func marketKey(marketID string) string {
	return strings.ToLower(strings.TrimSpace(marketID))
}
