package orderbook

import (
	"strings"
	"sync"
)

// Store maps outcome ids to their books. GetOrCreate is race-free; outcome
// ids compare case-insensitively.
type Store struct {
	mu    sync.RWMutex
	books map[string]*Book
}

// NewStore creates an empty book store
func NewStore() *Store {
	return &Store{books: make(map[string]*Book)}
}

// GetOrCreate returns the book for an outcome, creating it when absent.
func (s *Store) GetOrCreate(outcomeID string) *Book {
	key := strings.ToLower(strings.TrimSpace(outcomeID))

	s.mu.RLock()
	book, ok := s.books[key]
	s.mu.RUnlock()
	if ok {
		return book
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if book, ok := s.books[key]; ok {
		return book
	}
	book = NewBook(strings.TrimSpace(outcomeID))
	s.books[key] = book
	return book
}

// Get returns the book for an outcome, or nil.
func (s *Store) Get(outcomeID string) *Book {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.books[strings.ToLower(strings.TrimSpace(outcomeID))]
}

// OutcomeIDs lists all outcomes that currently have a book.
func (s *Store) OutcomeIDs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]string, 0, len(s.books))
	for _, b := range s.books {
		ids = append(ids, b.OutcomeID())
	}
	return ids
}
