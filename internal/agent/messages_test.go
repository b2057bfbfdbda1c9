package agent

import (
	"errors"
	"testing"
)

func TestParseServerMessage(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		wantErr bool
	}{
		{"agent response", `{"type":"agent_response","session_id":"s1","text":"hi"}`, false},
		{"agent response missing session", `{"type":"agent_response","text":"hi"}`, true},
		{"user transcript", `{"type":"user_transcript","session_id":"s1","text":"hello","final":true}`, false},
		{"user transcript empty text", `{"type":"user_transcript","session_id":"s1","text":""}`, true},
		{"mode change speaking", `{"type":"mode_change","mode":"speaking"}`, false},
		{"mode change bogus", `{"type":"mode_change","mode":"shouting"}`, true},
		{"error event", `{"type":"error_event","code":"rate_limited","retryable":true}`, false},
		{"error event no code", `{"type":"error_event","detail":"x"}`, true},
		{"garbage", `not json`, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseServerMessage([]byte(tt.raw))
			if (err != nil) != tt.wantErr {
				t.Fatalf("ParseServerMessage() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestParseServerMessageUnsupportedType(t *testing.T) {
	_, err := ParseServerMessage([]byte(`{"type":"client_audio_chunk"}`))
	if !errors.Is(err, ErrUnsupportedType) {
		t.Fatalf("error = %v, want ErrUnsupportedType", err)
	}
}
