package social

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
)

// Service maintains the leader/follower graph and mirrors orders one hop.
// Reads take snapshots under a read lock; mutation holds the write lock.
type Service struct {
	repo *Repository
	log  zerolog.Logger

	mu        sync.RWMutex
	followers map[string][]string // leader -> followers, insertion ordered
}

// NewService creates a new social service. When repo is non-nil the graph is
// persisted; the in-memory adjacency is authoritative for reads either way.
func NewService(repo *Repository, log zerolog.Logger) *Service {
	return &Service{
		repo:      repo,
		log:       log.With().Str("service", "social").Logger(),
		followers: make(map[string][]string),
	}
}

// Load warms the adjacency from the persisted graph.
func (s *Service) Load(ctx context.Context) error {
	if s.repo == nil {
		return nil
	}
	pairs, err := s.repo.All(ctx)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range pairs {
		s.followers[p[1]] = append(s.followers[p[1]], p[0])
	}
	s.log.Info().Int("relations", len(pairs)).Msg("Follow graph loaded")
	return nil
}

// Follow records that follower mirrors leader. Self-follows are rejected;
// following twice reports alreadyFollowing without error.
func (s *Service) Follow(ctx context.Context, followerID, leaderID string) (alreadyFollowing bool, err error) {
	followerID = strings.TrimSpace(followerID)
	leaderID = strings.TrimSpace(leaderID)
	if followerID == "" || leaderID == "" {
		return false, fmt.Errorf("follower and leader ids must not be blank")
	}
	if followerID == leaderID {
		return false, fmt.Errorf("cannot follow yourself")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, f := range s.followers[leaderID] {
		if f == followerID {
			return true, nil
		}
	}

	if s.repo != nil {
		if err := s.repo.Insert(ctx, followerID, leaderID); err != nil {
			return false, err
		}
	}
	s.followers[leaderID] = append(s.followers[leaderID], followerID)

	s.log.Info().
		Str("follower_id", followerID).
		Str("leader_id", leaderID).
		Msg("Follow recorded")

	return false, nil
}

// Unfollow removes a follow relation; unknown pairs are a no-op.
func (s *Service) Unfollow(ctx context.Context, followerID, leaderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.repo != nil {
		if err := s.repo.Delete(ctx, followerID, leaderID); err != nil {
			return err
		}
	}

	kept := s.followers[leaderID][:0]
	for _, f := range s.followers[leaderID] {
		if f != followerID {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		delete(s.followers, leaderID)
	} else {
		s.followers[leaderID] = kept
	}
	return nil
}

// GetFollowers returns a sorted snapshot of a leader's followers.
func (s *Service) GetFollowers(leaderID string) []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make([]string, len(s.followers[leaderID]))
	copy(snapshot, s.followers[leaderID])
	sort.Strings(snapshot)
	return snapshot
}

// MirrorOrder produces one new order per follower of the order's user, with
// the same outcome, side, and price, a fresh id, and the mirror flag set so
// mirrors never re-mirror. The leader's quantity splits evenly across
// followers, so the follower cohort collectively replicates the leader's
// position rather than multiplying it. Exactly one hop.
func (s *Service) MirrorOrder(order domain.Order) []domain.Order {
	if order.Mirrored {
		return nil
	}

	followers := s.GetFollowers(order.UserID)
	if len(followers) == 0 {
		return nil
	}

	share := order.Quantity.Div(decimal.NewFromInt(int64(len(followers))))
	if !share.IsPositive() {
		return nil
	}

	mirrors := make([]domain.Order, 0, len(followers))
	for _, follower := range followers {
		mirror := order
		mirror.ID = uuid.New()
		mirror.UserID = follower
		mirror.Quantity = share
		mirror.Mirrored = true
		mirror.CreatedAt = time.Now().UTC()
		mirrors = append(mirrors, mirror)
	}
	return mirrors
}
