// Package gateway is the typed client for the roleplay backend. It owns the
// wire contract: request shapes, response normalization across the backend's
// legacy and current field names, and the mapping of transport failures onto
// the client error taxonomy.
package gateway

import (
	"context"

	"github.com/ngabriel/parley/internal/session"
)

// Reply is a normalized conversational response from the backend. Audio is
// the decoded payload, empty when the backend returned text only.
type Reply struct {
	Text  string
	Audio []byte
}

// Feedback is the normalized end-of-session evaluation.
type Feedback struct {
	Summary     string             `json:"summary"`
	Scores      map[string]float64 `json:"scores"`
	Suggestions string             `json:"suggestions"`
}

// Backend is the conversation service consumed by the turn controller.
type Backend interface {
	// OpenSession registers the session and returns the bot's opening line.
	OpenSession(ctx context.Context, sessionID string, sel session.Selection) (Reply, error)
	// SendAudioTurn submits one captured user utterance and returns the
	// bot's reply, usually with synthesized speech attached.
	SendAudioTurn(ctx context.Context, sessionID string, sel session.Selection, encodedAudio []byte) (Reply, error)
	// RequestFeedback scores the finished conversation.
	RequestFeedback(ctx context.Context, sessionID string, history []session.Turn) (Feedback, error)
}
