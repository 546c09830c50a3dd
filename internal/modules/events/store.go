package events

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/database"
	"github.com/davidstockholm-ops/ProjectExchange-sub000/internal/domain"
)

// Store is the append-only domain event log. Event ids are monotone
// (AUTOINCREMENT), so per-market and per-user reads come back in append
// order without joins.
type Store struct {
	db  *database.DB
	log zerolog.Logger
}

// NewStore creates a new event store
func NewStore(db *database.DB, log zerolog.Logger) *Store {
	return &Store{
		db:  db,
		log: log.With().Str("service", "events").Logger(),
	}
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// Append serialises the payload and writes one event. When tx is non-nil the
// append joins the caller's database transaction and rolls back with it.
func (s *Store) Append(ctx context.Context, tx *sql.Tx, eventType string, payload interface{}, marketID, userID *string) (int64, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal event payload: %w", err)
	}

	var ex execer = s.db.Conn()
	if tx != nil {
		ex = tx
	}

	res, err := ex.ExecContext(ctx, `
		INSERT INTO domain_events (event_type, payload, occurred_at, market_id, user_id)
		VALUES (?, ?, ?, ?, ?)
	`, eventType, string(body), time.Now().UTC().Format(time.RFC3339Nano), nullable(marketID), nullable(userID))
	if err != nil {
		return 0, fmt.Errorf("failed to append event: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read event id: %w", err)
	}

	s.log.Debug().
		Int64("event_id", id).
		Str("event_type", eventType).
		Msg("Event appended")

	return id, nil
}

// ByMarket returns all events for a market, oldest first.
func (s *Store) ByMarket(ctx context.Context, marketID string) ([]domain.DomainEvent, error) {
	return s.query(ctx, `
		SELECT id, event_type, payload, occurred_at, market_id, user_id
		FROM domain_events WHERE market_id = ? ORDER BY id ASC
	`, marketID)
}

// ByUser returns all events indexed to a user, oldest first.
func (s *Store) ByUser(ctx context.Context, userID string) ([]domain.DomainEvent, error) {
	return s.query(ctx, `
		SELECT id, event_type, payload, occurred_at, market_id, user_id
		FROM domain_events WHERE user_id = ? ORDER BY id ASC
	`, userID)
}

func (s *Store) query(ctx context.Context, query string, args ...interface{}) ([]domain.DomainEvent, error) {
	rows, err := s.db.Conn().QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []domain.DomainEvent
	for rows.Next() {
		var ev domain.DomainEvent
		var payload, occurredAt string
		var marketID, userID sql.NullString
		if err := rows.Scan(&ev.ID, &ev.EventType, &payload, &occurredAt, &marketID, &userID); err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		ev.Payload = json.RawMessage(payload)
		if t, err := time.Parse(time.RFC3339Nano, occurredAt); err == nil {
			ev.OccurredAt = t
		}
		if marketID.Valid {
			ev.MarketID = &marketID.String
		}
		if userID.Valid {
			ev.UserID = &userID.String
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func nullable(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}
