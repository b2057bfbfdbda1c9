// Package agent is the client for the realtime voice-agent stream: a
// bidirectional websocket carrying user audio up and agent speech, transcripts
// and mode changes down.
package agent

import (
	"encoding/json"
	"errors"
	"fmt"
)

// EventType identifies websocket payload variants.
type EventType string

const (
	TypeClientAudioChunk EventType = "client_audio_chunk"
	TypeClientControl    EventType = "client_control"
	TypeAgentResponse    EventType = "agent_response"
	TypeUserTranscript   EventType = "user_transcript"
	TypeModeChange       EventType = "mode_change"
	TypeErrorEvent       EventType = "error_event"
)

var ErrUnsupportedType = errors.New("unsupported message type")

type Envelope struct {
	Type EventType `json:"type"`
}

type ClientAudioChunk struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	Seq         int       `json:"seq"`
	PCM16Base64 string    `json:"pcm16_base64"`
	SampleRate  int       `json:"sample_rate"`
	TSMs        int64     `json:"ts_ms"`
}

type ClientControl struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Action    string    `json:"action"`
}

type AgentResponse struct {
	Type        EventType `json:"type"`
	SessionID   string    `json:"session_id"`
	Text        string    `json:"text"`
	AudioBase64 string    `json:"audio_base64,omitempty"`
}

type UserTranscript struct {
	Type      EventType `json:"type"`
	SessionID string    `json:"session_id"`
	Text      string    `json:"text"`
	Final     bool      `json:"final"`
}

type ModeChange struct {
	Type EventType `json:"type"`
	Mode Mode      `json:"mode"`
}

type ErrorEvent struct {
	Type      EventType `json:"type"`
	Code      string    `json:"code"`
	Retryable bool      `json:"retryable"`
	Detail    string    `json:"detail"`
}

// ParseServerMessage decodes and validates one downstream frame.
func ParseServerMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeAgentResponse:
		var msg AgentResponse
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" {
			return nil, errors.New("invalid agent_response")
		}
		return msg, nil
	case TypeUserTranscript:
		var msg UserTranscript
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || msg.Text == "" {
			return nil, errors.New("invalid user_transcript")
		}
		return msg, nil
	case TypeModeChange:
		var msg ModeChange
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Mode != ModeSpeaking && msg.Mode != ModeListening {
			return nil, fmt.Errorf("invalid mode_change mode %q", msg.Mode)
		}
		return msg, nil
	case TypeErrorEvent:
		var msg ErrorEvent
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.Code == "" {
			return nil, errors.New("invalid error_event")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
