package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/config"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/copytrading"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/events"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/ledger"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/oracle"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/modules/orderbook"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/logger"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := logger.New(logger.Config{Level: "error"})
	ledgerSvc := ledger.NewService(db, ledger.NewRepository(db, log), log)
	eventStore := events.NewStore(db, log)
	books := orderbook.NewStore()
	registry := oracle.NewRegistry()

	copyTrading := copytrading.NewEngine(ledgerSvc, "system", log)
	base := oracle.NewBaseService("oracle-test", registry, books, eventStore, log)
	celebrity := oracle.NewCelebrityService(base)
	celebrity.Subscribe(copyTrading.HandleSignal)

	return New(Config{
		Port:   8080,
		Log:    log,
		DB:     db,
		Config: &config.Config{Port: 8080, SystemOperatorID: "system"},

		Ledger:      ledgerSvc,
		Books:       books,
		Events:      eventStore,
		CopyTrading: copyTrading,
		Oracle:      celebrity,
	})
}

func postJSON(t *testing.T, s *Server, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func TestSystemStatus_ReportsHostStats(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/system/status", nil)
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	require.Equal(t, http.StatusOK, w.Code)

	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Equal(t, "running", body["status"])
	require.Contains(t, body, "cpu_percent")
	require.Contains(t, body, "ram_percent")
	require.Contains(t, body, "markets")
}

func TestCelebritySimulate_ClearingIDOnlyForThisSignal(t *testing.T) {
	s := newTestServer(t)

	_, err := s.ledger.CreateAccount(context.Background(), domain.Account{
		Name:       "cel-1 Main Operating Account",
		Type:       domain.AccountAsset,
		OperatorID: "op-1",
	})
	require.NoError(t, err)

	w := postJSON(t, s, "/api/celebrity/simulate", map[string]interface{}{
		"operatorId":  "op-1",
		"actorId":     "cel-1",
		"amount":      "250",
		"outcomeId":   "outcome-btc-100k",
		"outcomeName": "Bitcoin Hits 100k",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var first map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &first))
	require.Contains(t, first, "clearingTransactionId")

	// Unknown actor on the same outcome: the engine logs and swallows the
	// failure, so the response must not echo the earlier trade's id.
	w = postJSON(t, s, "/api/celebrity/simulate", map[string]interface{}{
		"operatorId":  "op-1",
		"actorId":     "ghost",
		"amount":      "100",
		"outcomeId":   "outcome-btc-100k",
		"outcomeName": "Bitcoin Hits 100k",
	})
	require.Equal(t, http.StatusOK, w.Code)

	var second map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &second))
	require.NotContains(t, second, "clearingTransactionId")
}
