package social

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/pkg/logger"
)

func newTestSocial(t *testing.T) *Service {
	t.Helper()
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())

	log := logger.New(logger.Config{Level: "error"})
	return NewService(NewRepository(db, log), log)
}

func TestFollow_SelfFollowRejected(t *testing.T) {
	s := newTestSocial(t)
	_, err := s.Follow(context.Background(), "alice", "alice")
	require.Error(t, err)
}

func TestFollow_TwiceReportsAlreadyFollowing(t *testing.T) {
	s := newTestSocial(t)
	ctx := context.Background()

	already, err := s.Follow(ctx, "alice", "leader")
	require.NoError(t, err)
	require.False(t, already)

	already, err = s.Follow(ctx, "alice", "leader")
	require.NoError(t, err)
	require.True(t, already)

	require.Equal(t, []string{"alice"}, s.GetFollowers("leader"))
}

func TestUnfollow(t *testing.T) {
	s := newTestSocial(t)
	ctx := context.Background()

	_, err := s.Follow(ctx, "alice", "leader")
	require.NoError(t, err)
	_, err = s.Follow(ctx, "bob", "leader")
	require.NoError(t, err)

	require.NoError(t, s.Unfollow(ctx, "alice", "leader"))
	require.Equal(t, []string{"bob"}, s.GetFollowers("leader"))
}

func TestLoad_WarmsFromRepository(t *testing.T) {
	db, err := database.NewInMemory()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	require.NoError(t, db.Migrate())
	log := logger.New(logger.Config{Level: "error"})
	repo := NewRepository(db, log)

	first := NewService(repo, log)
	_, err = first.Follow(context.Background(), "alice", "leader")
	require.NoError(t, err)

	second := NewService(repo, log)
	require.NoError(t, second.Load(context.Background()))
	require.Equal(t, []string{"alice"}, second.GetFollowers("leader"))
}

func TestMirrorOrder_OnePerFollower(t *testing.T) {
	s := newTestSocial(t)
	ctx := context.Background()

	for _, f := range []string{"f1", "f2", "f3"} {
		_, err := s.Follow(ctx, f, "leader")
		require.NoError(t, err)
	}

	original := domain.Order{
		ID:        uuid.New(),
		UserID:    "leader",
		OutcomeID: "outcome-x",
		Side:      domain.SideBid,
		Price:     decimal.RequireFromString("0.50"),
		Quantity:  decimal.NewFromInt(50),
	}

	mirrors := s.MirrorOrder(original)
	require.Len(t, mirrors, 3)

	// Quantity splits evenly so the cohort replicates the leader's position.
	perFollower := decimal.NewFromInt(50).Div(decimal.NewFromInt(3))
	seen := map[string]bool{}
	for _, m := range mirrors {
		require.NotEqual(t, original.ID, m.ID, "mirrors get fresh ids")
		require.True(t, m.Mirrored)
		require.Equal(t, original.OutcomeID, m.OutcomeID)
		require.Equal(t, original.Side, m.Side)
		require.True(t, m.Price.Equal(original.Price))
		require.True(t, m.Quantity.Equal(perFollower), "got %s", m.Quantity)
		seen[m.UserID] = true
	}
	require.Len(t, seen, 3)
}

func TestMirrorOrder_SplitsQuantityEvenly(t *testing.T) {
	s := newTestSocial(t)
	ctx := context.Background()

	for _, f := range []string{"f1", "f2", "f3", "f4", "f5"} {
		_, err := s.Follow(ctx, f, "leader")
		require.NoError(t, err)
	}

	mirrors := s.MirrorOrder(domain.Order{
		ID:        uuid.New(),
		UserID:    "leader",
		OutcomeID: "outcome-x",
		Side:      domain.SideBid,
		Price:     decimal.RequireFromString("0.50"),
		Quantity:  decimal.NewFromInt(50),
	})
	require.Len(t, mirrors, 5)
	for _, m := range mirrors {
		require.True(t, m.Quantity.Equal(decimal.NewFromInt(10)), "got %s", m.Quantity)
	}
}

func TestMirrorOrder_MirrorsNeverReMirror(t *testing.T) {
	s := newTestSocial(t)
	_, err := s.Follow(context.Background(), "f1", "leader")
	require.NoError(t, err)

	mirrored := domain.Order{
		ID:       uuid.New(),
		UserID:   "leader",
		Mirrored: true,
		Price:    decimal.RequireFromString("0.50"),
		Quantity: decimal.NewFromInt(1),
	}
	require.Empty(t, s.MirrorOrder(mirrored))
}
