// Package archive persists finished roleplay sessions and their feedback so
// practice history survives restarts. Transcripts are PII-redacted before
// they are written.
package archive

import (
	"context"
	"time"

	"github.com/ngabriel/parley/internal/session"
)

// SessionRecord is one archived roleplay conversation.
type SessionRecord struct {
	SessionID   string         `json:"session_id"`
	Book        string         `json:"book"`
	Chapter     string         `json:"chapter"`
	Profile     string         `json:"profile"`
	Transcript  []session.Turn `json:"transcript"`
	PIIRedacted bool           `json:"pii_redacted"`
	StartedAt   time.Time      `json:"started_at"`
	EndedAt     time.Time      `json:"ended_at"`
}

// FeedbackRecord is the stored evaluation for one archived session.
type FeedbackRecord struct {
	SessionID   string             `json:"session_id"`
	Summary     string             `json:"summary"`
	Scores      map[string]float64 `json:"scores"`
	Suggestions string             `json:"suggestions"`
	CreatedAt   time.Time          `json:"created_at"`
}

// Store persists and retrieves archived sessions.
type Store interface {
	SaveSession(ctx context.Context, record SessionRecord) error
	SaveFeedback(ctx context.Context, record FeedbackRecord) error
	RecentSessions(ctx context.Context, limit int) ([]SessionRecord, error)
	FeedbackFor(ctx context.Context, sessionID string) (FeedbackRecord, bool, error)
	Close() error
}

// RecordFromSession builds the archivable record for a finished session,
// redacting the transcript.
func RecordFromSession(sess session.Session) SessionRecord {
	transcript := make([]session.Turn, len(sess.History))
	redacted := false
	for i, turn := range sess.History {
		turn.Text, _ = redactText(turn.Text)
		if turn.Text != sess.History[i].Text {
			redacted = true
		}
		turn.AudioRef = ""
		transcript[i] = turn
	}
	return SessionRecord{
		SessionID:   sess.ID,
		Book:        sess.Selection.Book,
		Chapter:     sess.Selection.Chapter,
		Profile:     sess.Selection.Profile,
		Transcript:  transcript,
		PIIRedacted: redacted,
		StartedAt:   sess.StartedAt,
		EndedAt:     sess.LastActivityAt,
	}
}
