package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"runtime"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shopspring/decimal"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/liquidity"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/marketmaker"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/ids"
)

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":  "healthy",
		"version": "1.0.0",
		"service": "exchange-core",
	})
}

// handleSystemStatus handles system status requests
func (s *Server) handleSystemStatus(w http.ResponseWriter, r *http.Request) {
	cpuPct, ramPct := s.getSystemStats()

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":      "running",
		"cpu_percent": cpuPct,
		"ram_percent": ramPct,
		"goroutines":  runtime.NumGoroutine(),
		"markets":     len(s.books.OutcomeIDs()),
	})
}

// getSystemStats calculates CPU and RAM usage percentages. The 100ms CPU
// sampling window keeps the status endpoint responsive.
func (s *Server) getSystemStats() (float64, float64) {
	cpuPercent, err := cpu.Percent(100*time.Millisecond, false)
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get CPU percentage")
		cpuPercent = []float64{0}
	}

	memStat, err := mem.VirtualMemory()
	if err != nil {
		s.log.Warn().Err(err).Msg("Failed to get memory statistics")
		return 0, 0
	}

	cpuAvg := 0.0
	if len(cpuPercent) > 0 {
		cpuAvg = cpuPercent[0]
	}
	return cpuAvg, memStat.UsedPercent
}

func (s *Server) handleWalletCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorID string `json:"operatorId"`
		Name       string `json:"name"`
		ID         string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OperatorID) == "" || strings.TrimSpace(req.Name) == "" {
		http.Error(w, "operatorId and name are required", http.StatusBadRequest)
		return
	}

	acct := domain.Account{
		Name:       req.Name,
		Type:       domain.AccountAsset,
		OperatorID: strings.TrimSpace(req.OperatorID),
	}
	// Callers may pin the account id; free-form strings map deterministically.
	if strings.TrimSpace(req.ID) != "" {
		acct.ID = ids.ForOperator(req.ID)
	}

	created, err := s.ledger.CreateAccount(r.Context(), acct)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":         created.ID,
		"name":       created.Name,
		"operatorId": created.OperatorID,
	})
}

func (s *Server) handleWalletBalance(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}

	clearing := domain.PhaseClearing
	balance, err := s.ledger.GetAccountBalance(r.Context(), accountID, &clearing)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"balance":   balance,
		"phase":     string(domain.PhaseClearing),
	})
}

// handleWalletDeposit credits an account with cleared funds against the
// exchange float, so test and demo flows can fund wallets over the API.
func (s *Server) handleWalletDeposit(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}

	var req struct {
		Amount decimal.Decimal `json:"amount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if !req.Amount.IsPositive() {
		http.Error(w, "amount must be positive", http.StatusBadRequest)
		return
	}

	acct, err := s.ledger.GetAccount(r.Context(), accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	float, err := s.getOrCreateFloatAccount(r)
	if err != nil {
		s.respondError(w, err)
		return
	}

	txID, err := s.ledger.PostTransaction(r.Context(), []domain.JournalEntry{
		{AccountID: acct.ID, Amount: req.Amount, Direction: domain.Debit, Phase: domain.PhaseClearing},
		{AccountID: float.ID, Amount: req.Amount, Direction: domain.Credit, Phase: domain.PhaseClearing},
	}, ledger.PostOptions{})
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId":     acct.ID,
		"amount":        req.Amount,
		"transactionId": txID,
	})
}

func (s *Server) getOrCreateFloatAccount(r *http.Request) (*domain.Account, error) {
	acct, err := s.ledger.GetAccountByName(r.Context(), s.cfg.SystemOperatorID, "Exchange Float")
	if err == nil {
		return acct, nil
	}
	if !errors.Is(err, ledger.ErrNotFound) {
		return nil, err
	}
	created, err := s.ledger.CreateAccount(r.Context(), domain.Account{
		Name:       "Exchange Float",
		Type:       domain.AccountEquity,
		OperatorID: s.cfg.SystemOperatorID,
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

type orderRequest struct {
	MarketID   string `json:"marketId"`
	Price      string `json:"price"`
	Quantity   string `json:"quantity"`
	Side       string `json:"side"`
	OperatorID string `json:"operatorId"`
	UserID     string `json:"userId"`
}

func orderRequestFromQuery(r *http.Request) orderRequest {
	q := r.URL.Query()
	return orderRequest{
		MarketID:   q.Get("marketId"),
		Price:      q.Get("price"),
		Quantity:   q.Get("quantity"),
		Side:       q.Get("side"),
		OperatorID: q.Get("operatorId"),
		UserID:     q.Get("userId"),
	}
}

func (req orderRequest) toOrder() (domain.Order, error) {
	side, err := domain.ParseSide(req.Side)
	if err != nil {
		return domain.Order{}, err
	}
	price, err := decimal.NewFromString(strings.TrimSpace(req.Price))
	if err != nil {
		return domain.Order{}, errors.New("invalid price")
	}
	quantity, err := decimal.NewFromString(strings.TrimSpace(req.Quantity))
	if err != nil {
		return domain.Order{}, errors.New("invalid quantity")
	}
	return domain.Order{
		UserID:     strings.TrimSpace(req.UserID),
		OutcomeID:  strings.TrimSpace(req.MarketID),
		OperatorID: strings.TrimSpace(req.OperatorID),
		Side:       side,
		Price:      price,
		Quantity:   quantity,
	}, nil
}

func (s *Server) handleSecondaryOrder(w http.ResponseWriter, r *http.Request) {
	order, err := orderRequestFromQuery(r).toOrder()
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	order.ID = uuid.New()

	matches, err := s.matching.ProcessOrder(r.Context(), order)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"orderId": order.ID,
		"matches": matches,
	})
}

func (s *Server) handleSecondaryOrderBulk(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Orders []orderRequest `json:"orders"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if len(req.Orders) == 0 {
		http.Error(w, "orders must not be empty", http.StatusBadRequest)
		return
	}
	for _, o := range req.Orders {
		if !strings.EqualFold(strings.TrimSpace(o.OperatorID), marketmaker.Operator) {
			http.Error(w, "bulk orders are restricted to the market-maker operator", http.StatusForbidden)
			return
		}
	}

	results := make([]map[string]interface{}, 0, len(req.Orders))
	for _, raw := range req.Orders {
		order, err := raw.toOrder()
		if err != nil {
			results = append(results, map[string]interface{}{"error": err.Error()})
			continue
		}
		order.ID = uuid.New()

		matches, err := s.matching.ProcessOrder(r.Context(), order)
		if err != nil {
			results = append(results, map[string]interface{}{"orderId": order.ID, "error": err.Error()})
			continue
		}
		results = append(results, map[string]interface{}{"orderId": order.ID, "matches": matches})
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{"results": results})
}

func (s *Server) handleSecondaryBook(w http.ResponseWriter, r *http.Request) {
	s.writeBookSnapshot(w, "marketId", chi.URLParam(r, "marketId"))
}

func (s *Server) handleMarketOrderbook(w http.ResponseWriter, r *http.Request) {
	s.writeBookSnapshot(w, "outcomeId", chi.URLParam(r, "outcomeId"))
}

func (s *Server) writeBookSnapshot(w http.ResponseWriter, idKey, marketID string) {
	type bookOrder struct {
		OrderID    uuid.UUID       `json:"orderId"`
		UserID     string          `json:"userId"`
		OperatorID string          `json:"operatorId,omitempty"`
		Price      decimal.Decimal `json:"price"`
		Quantity   decimal.Decimal `json:"quantity"`
	}

	convert := func(orders []domain.Order) []bookOrder {
		out := make([]bookOrder, len(orders))
		for i, o := range orders {
			out[i] = bookOrder{
				OrderID:    o.ID,
				UserID:     o.UserID,
				OperatorID: o.OperatorID,
				Price:      o.Price,
				Quantity:   o.Quantity,
			}
		}
		return out
	}

	var bids, asks []domain.Order
	if book := s.books.Get(marketID); book != nil {
		bids, asks = book.Snapshot()
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		idKey:  marketID,
		"bids": convert(bids),
		"asks": convert(asks),
	})
}

func (s *Server) handleCancelOrders(w http.ResponseWriter, r *http.Request) {
	marketID := chi.URLParam(r, "marketId")
	operatorID := chi.URLParam(r, "operatorId")

	book := s.books.Get(marketID)
	if book == nil {
		http.Error(w, "market not found", http.StatusNotFound)
		return
	}

	cancelled := book.RemoveOrdersByOperator(operatorID)
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"marketId":       marketID,
		"operatorId":     operatorID,
		"cancelledCount": cancelled,
	})
}

func (s *Server) handleMarketCreate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ActorID         string `json:"actorId"`
		Title           string `json:"title"`
		Type            string `json:"type"`
		DurationMinutes int    `json:"durationMinutes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	eventType := domain.MarketEventType(req.Type)
	if req.Type == "" {
		eventType = domain.MarketBase
	}

	event, err := s.oracle.CreateMarketEvent(r.Context(), req.ActorID, req.Title, eventType, req.DurationMinutes)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusCreated, event)
}

func (s *Server) handleMarketsActive(w http.ResponseWriter, r *http.Request) {
	active := s.oracle.GetActiveEvents()
	if active == nil {
		active = []domain.MarketEvent{}
	}
	s.writeJSON(w, http.StatusOK, active)
}

func (s *Server) handleCelebritySimulate(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OperatorID  string          `json:"operatorId"`
		Amount      decimal.Decimal `json:"amount"`
		OutcomeID   string          `json:"outcomeId"`
		OutcomeName string          `json:"outcomeName"`
		ActorID     string          `json:"actorId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	before := len(s.copyTrading.GetClearingTransactionIDsForOutcome(req.OutcomeID))

	sig, err := s.oracle.SimulateTrade(r.Context(), req.OperatorID, req.Amount, req.OutcomeID, req.OutcomeName, req.ActorID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	response := map[string]interface{}{
		"tradeId":     sig.TradeID,
		"operatorId":  sig.OperatorID,
		"amount":      sig.Amount,
		"outcomeId":   sig.OutcomeID,
		"outcomeName": sig.OutcomeName,
		"phase":       string(domain.PhaseClearing),
	}
	if sig.ActorID != "" {
		response["actorId"] = sig.ActorID
	}
	// Dispatch is synchronous; the id is echoed only when this dispatch
	// grew the clearing index, so a failed signal never borrows an earlier
	// trade's transaction.
	if ids := s.copyTrading.GetClearingTransactionIDsForOutcome(sig.OutcomeID); len(ids) > before {
		response["clearingTransactionId"] = ids[len(ids)-1]
	}

	s.writeJSON(w, http.StatusOK, response)
}

func (s *Server) handleOutcomeReached(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OutcomeID              string   `json:"outcomeId"`
		ConfidenceScore        *float64 `json:"confidenceScore"`
		SourceVerificationList []string `json:"sourceVerificationList"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.OutcomeID) == "" {
		http.Error(w, "outcomeId is required", http.StatusBadRequest)
		return
	}

	result, err := s.oracle.NotifyOutcomeReached(r.Context(), req.OutcomeID, req.ConfidenceScore, req.SourceVerificationList)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleResolveMarket(w http.ResponseWriter, r *http.Request) {
	var req struct {
		OutcomeID           string           `json:"outcomeId"`
		WinningAssetType    string           `json:"winningAssetType"`
		SettlementAccountID string           `json:"settlementAccountId"`
		UsdPerToken         *decimal.Decimal `json:"usdPerToken"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	settlementAccountID, err := uuid.Parse(req.SettlementAccountID)
	if err != nil {
		http.Error(w, "invalid settlement account id", http.StatusBadRequest)
		return
	}

	usdPerToken := decimal.NewFromInt(1)
	if req.UsdPerToken != nil {
		usdPerToken = *req.UsdPerToken
	}

	result, err := s.resolver.ResolveMarket(r.Context(), req.OutcomeID, req.WinningAssetType, settlementAccountID, usdPerToken)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handlePortfolioHoldings(w http.ResponseWriter, r *http.Request) {
	accountID, err := uuid.Parse(chi.URLParam(r, "accountId"))
	if err != nil {
		http.Error(w, "invalid account id", http.StatusBadRequest)
		return
	}

	holdings, err := s.accounting.HoldingsForAccount(r.Context(), accountID)
	if err != nil {
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"accountId": accountID,
		"holdings":  holdings,
	})
}

func (s *Server) handlePortfolioPosition(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("userId")
	if strings.TrimSpace(userID) == "" {
		http.Error(w, "userId is required", http.StatusBadRequest)
		return
	}
	marketID := r.URL.Query().Get("marketId")

	positions := s.positions.GetNetPosition(r.Context(), userID, marketID)

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"userId":    userID,
		"positions": positions,
	})
}

func (s *Server) handleAuditMarket(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ByMarket(r.Context(), chi.URLParam(r, "marketId"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if events == nil {
		events = []domain.DomainEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleAuditUser(w http.ResponseWriter, r *http.Request) {
	events, err := s.events.ByUser(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		s.respondError(w, err)
		return
	}
	if events == nil {
		events = []domain.DomainEvent{}
	}
	s.writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleFollow(w http.ResponseWriter, r *http.Request) {
	var req struct {
		FollowerID string `json:"followerId"`
		LeaderID   string `json:"leaderId"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	already, err := s.social.Follow(r.Context(), req.FollowerID, req.LeaderID)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"followerId":       strings.TrimSpace(req.FollowerID),
		"leaderId":         strings.TrimSpace(req.LeaderID),
		"alreadyFollowing": already,
	})
}

func (s *Server) handleLiquidityQuotes(w http.ResponseWriter, r *http.Request) {
	marketID := r.URL.Query().Get("marketId")
	if strings.TrimSpace(marketID) == "" {
		http.Error(w, "marketId is required", http.StatusBadRequest)
		return
	}

	agg, err := s.liquidity.Aggregate(marketID)
	if err != nil {
		if errors.Is(err, liquidity.ErrMarketRestricted) {
			http.Error(w, err.Error(), http.StatusForbidden)
			return
		}
		s.respondError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, agg)
}

func (s *Server) handleLiquiditySettings(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.liquidity.Settings())
}

func (s *Server) handleLiquiditySettingsPatch(w http.ResponseWriter, r *http.Request) {
	var patch liquidity.Settings
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	s.writeJSON(w, http.StatusOK, s.liquidity.UpdateSettings(patch))
}

// respondError maps domain rejections to their HTTP codes; anything
// unrecognised is an infrastructure failure.
func (s *Server) respondError(w http.ResponseWriter, err error) {
	var (
		invalidOutcome *domain.InvalidOutcomeError
		insufficient   *domain.InsufficientFundsError
		notBalanced    *domain.TransactionNotBalancedError
		accountMissing *domain.AccountNotFoundError
	)
	switch {
	case errors.As(err, &invalidOutcome):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.As(err, &insufficient):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &notBalanced):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.As(err, &accountMissing):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ledger.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	default:
		s.log.Error().Err(err).Msg("Request failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
	}
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.Error().Err(err).Msg("Failed to encode JSON response")
	}
}
