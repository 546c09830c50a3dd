package events

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/logger"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	return NewStore(db, logger.New(logger.Config{Level: "error"}))
}

func TestAppendAndReadBack_OrderedByID(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	market := "outcome-x"
	user := "alice"

	first, err := s.Append(ctx, nil, domain.EventOrderPlaced, map[string]string{"n": "1"}, &market, &user)
	require.NoError(t, err)
	second, err := s.Append(ctx, nil, domain.EventTradeMatched, map[string]string{"n": "2"}, &market, &user)
	require.NoError(t, err)
	require.Greater(t, second, first, "event ids must be monotone")

	byMarket, err := s.ByMarket(ctx, market)
	require.NoError(t, err)
	require.Len(t, byMarket, 2)
	require.Equal(t, domain.EventOrderPlaced, byMarket[0].EventType)
	require.Equal(t, domain.EventTradeMatched, byMarket[1].EventType)

	byUser, err := s.ByUser(ctx, user)
	require.NoError(t, err)
	require.Len(t, byUser, 2)
}

func TestByUser_OnlyReturnsIndexedUser(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	alice, bob := "alice", "bob"
	_, err := s.Append(ctx, nil, domain.EventTradeMatched, map[string]string{}, nil, &alice)
	require.NoError(t, err)
	_, err = s.Append(ctx, nil, domain.EventTradeMatched, map[string]string{}, nil, &bob)
	require.NoError(t, err)

	got, err := s.ByUser(ctx, alice)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, alice, *got[0].UserID)
}

func TestAppend_RollsBackWithCallerTransaction(t *testing.T) {
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	s := NewStore(db, logger.New(logger.Config{Level: "error"}))
	ctx := context.Background()

	tx, err := db.BeginTx(ctx)
	require.NoError(t, err)
	user := "alice"
	_, err = s.Append(ctx, tx, domain.EventTradeMatched, map[string]string{}, nil, &user)
	require.NoError(t, err)
	require.NoError(t, tx.Rollback())

	got, err := s.ByUser(ctx, user)
	require.NoError(t, err)
	require.Empty(t, got, "event inside a rolled-back transaction must not persist")
}
