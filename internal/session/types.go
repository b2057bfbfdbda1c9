package session

import "time"

type Status string

const (
	StatusIdle    Status = "idle"
	StatusOpening Status = "opening"
	StatusActive  Status = "active"
	StatusEnding  Status = "ending"
	StatusEnded   Status = "ended"
)

type Speaker string

const (
	SpeakerUser Speaker = "user"
	SpeakerBot  Speaker = "bot"
)

// PlaceholderUserText stands in for user turns; transcription happens
// server-side, so the client never sees its own transcript.
const PlaceholderUserText = "[Audio Message]"

// Selection is the book/chapter/profile context chosen before a session.
// Immutable for the session's lifetime once set.
type Selection struct {
	Book    string `json:"book"`
	Chapter string `json:"chapter"`
	Profile string `json:"profile"`
}

// Turn is one utterance in the conversation. Immutable once appended.
type Turn struct {
	ID        string    `json:"id"`
	Speaker   Speaker   `json:"speaker"`
	Text      string    `json:"text"`
	AudioRef  string    `json:"audio_ref,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one roleplay conversation.
type Session struct {
	ID             string    `json:"session_id"`
	Selection      Selection `json:"selection"`
	Status         Status    `json:"status"`
	History        []Turn    `json:"history"`
	StartedAt      time.Time `json:"started_at"`
	LastActivityAt time.Time `json:"last_activity_at"`
}
