package archive

import (
	"context"
	"sync"
	"time"
)

// InMemoryStore is a simple in-process archive for local/dev use.
type InMemoryStore struct {
	mu       sync.RWMutex
	sessions []SessionRecord
	feedback map[string]FeedbackRecord
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{feedback: make(map[string]FeedbackRecord)}
}

func (s *InMemoryStore) SaveSession(_ context.Context, record SessionRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.EndedAt.IsZero() {
		record.EndedAt = time.Now().UTC()
	}
	s.sessions = append(s.sessions, record)
	return nil
}

func (s *InMemoryStore) SaveFeedback(_ context.Context, record FeedbackRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	s.feedback[record.SessionID] = record
	return nil
}

func (s *InMemoryStore) RecentSessions(_ context.Context, limit int) ([]SessionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if len(s.sessions) == 0 {
		return nil, nil
	}
	if limit <= 0 || limit > len(s.sessions) {
		limit = len(s.sessions)
	}
	out := make([]SessionRecord, 0, limit)
	for i := len(s.sessions) - 1; i >= len(s.sessions)-limit; i-- {
		out = append(out, s.sessions[i])
	}
	return out, nil
}

func (s *InMemoryStore) FeedbackFor(_ context.Context, sessionID string) (FeedbackRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	record, ok := s.feedback[sessionID]
	return record, ok, nil
}

func (s *InMemoryStore) Close() error { return nil }
