package gateway

import (
	"context"
	"sync"

	"github.com/ngabriel/parley/internal/session"
)

// MockBackend is a scripted backend for tests and offline development.
type MockBackend struct {
	mu sync.Mutex

	OpenReply    Reply
	OpenErr      error
	TurnReply    Reply
	TurnErr      error
	FeedbackResp Feedback
	FeedbackErr  error

	openCalls     int
	turnCalls     int
	feedbackCalls int
	lastAudio     []byte
}

func (m *MockBackend) OpenSession(_ context.Context, _ string, _ session.Selection) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.openCalls++
	return m.OpenReply, m.OpenErr
}

func (m *MockBackend) SendAudioTurn(_ context.Context, _ string, _ session.Selection, encodedAudio []byte) (Reply, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.turnCalls++
	m.lastAudio = append([]byte(nil), encodedAudio...)
	return m.TurnReply, m.TurnErr
}

func (m *MockBackend) RequestFeedback(_ context.Context, _ string, _ []session.Turn) (Feedback, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.feedbackCalls++
	return m.FeedbackResp, m.FeedbackErr
}

func (m *MockBackend) Calls() (open, turn, feedback int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.openCalls, m.turnCalls, m.feedbackCalls
}

func (m *MockBackend) LastAudio() []byte {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]byte(nil), m.lastAudio...)
}

var _ Backend = (*MockBackend)(nil)
