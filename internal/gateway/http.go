package gateway

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ngabriel/parley/internal/fault"
	"github.com/ngabriel/parley/internal/reliability"
	"github.com/ngabriel/parley/internal/session"
)

// HTTPClient talks to the roleplay backend over its REST surface.
type HTTPClient struct {
	baseURL string
	client  *http.Client
}

func NewHTTPClient(baseURL string, timeout time.Duration) *HTTPClient {
	return &HTTPClient{
		baseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		client: &http.Client{
			Timeout: timeout,
		},
	}
}

type openRequest struct {
	Book      string `json:"book"`
	Chapter   string `json:"chapter"`
	Profile   string `json:"profile"`
	SessionID string `json:"session_id"`
}

type respondAudioRequest struct {
	AudioB64  string `json:"audio_b64"`
	SessionID string `json:"session_id"`
	Book      string `json:"book"`
	Chapter   string `json:"chapter"`
	Profile   string `json:"profile"`
}

type feedbackTurn struct {
	Role string `json:"role"`
	Text string `json:"text"`
}

type feedbackRequest struct {
	History   []feedbackTurn `json:"history"`
	SessionID string         `json:"session_id"`
}

// replyEnvelope accepts both the current and legacy response field names.
// Older backend revisions send response_text where newer ones send text.
type replyEnvelope struct {
	Text         string `json:"text"`
	ResponseText string `json:"response_text"`
	AudioB64     string `json:"audio_b64"`
}

// feedbackEnvelope accepts both the structured scores map and the legacy
// single-score shape with a suggestions list.
type feedbackEnvelope struct {
	Summary     string             `json:"summary"`
	Scores      map[string]float64 `json:"scores"`
	Score       *float64           `json:"score"`
	Suggestions json.RawMessage    `json:"suggestions"`
}

func (c *HTTPClient) OpenSession(ctx context.Context, sessionID string, sel session.Selection) (Reply, error) {
	req := openRequest{
		Book:      sel.Book,
		Chapter:   sel.Chapter,
		Profile:   sel.Profile,
		SessionID: sessionID,
	}
	var env replyEnvelope
	if err := c.post(ctx, "/roleplay/open", req, &env); err != nil {
		return Reply{}, err
	}
	return normalizeReply(env)
}

func (c *HTTPClient) SendAudioTurn(ctx context.Context, sessionID string, sel session.Selection, encodedAudio []byte) (Reply, error) {
	req := respondAudioRequest{
		AudioB64:  base64.StdEncoding.EncodeToString(encodedAudio),
		SessionID: sessionID,
		Book:      sel.Book,
		Chapter:   sel.Chapter,
		Profile:   sel.Profile,
	}
	var env replyEnvelope
	if err := c.post(ctx, "/roleplay/respond-audio", req, &env); err != nil {
		return Reply{}, err
	}
	return normalizeReply(env)
}

func (c *HTTPClient) RequestFeedback(ctx context.Context, sessionID string, history []session.Turn) (Feedback, error) {
	req := feedbackRequest{
		History:   make([]feedbackTurn, 0, len(history)),
		SessionID: sessionID,
	}
	for _, turn := range history {
		role := "user"
		if turn.Speaker == session.SpeakerBot {
			role = "assistant"
		}
		req.History = append(req.History, feedbackTurn{Role: role, Text: turn.Text})
	}

	var env feedbackEnvelope
	if err := c.post(ctx, "/roleplay/feedback", req, &env); err != nil {
		return Feedback{}, err
	}
	return normalizeFeedback(env), nil
}

func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return fault.Wrap(fault.KindServerError, err, "marshal request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return fault.Wrap(fault.KindServerError, err, "create request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	res, err := c.client.Do(httpReq)
	if err != nil {
		return fault.Wrap(fault.KindNetworkUnavailable, err, "send %s", path).WithRetryable(true)
	}
	defer res.Body.Close()

	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(res.Body, 4<<10))
		err := fault.New(fault.KindServerError, "%s status %d: %s", path, res.StatusCode, strings.TrimSpace(string(body)))
		return err.WithRetryable(reliability.IsRetryableHTTPStatus(res.StatusCode))
	}

	body, err := io.ReadAll(res.Body)
	if err != nil {
		return fault.Wrap(fault.KindNetworkUnavailable, err, "read %s response", path).WithRetryable(true)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fault.Wrap(fault.KindServerError, err, "decode %s response", path)
	}
	return nil
}

// normalizeReply resolves the text/response_text divergence and decodes the
// audio payload, so callers only ever see the canonical shape.
func normalizeReply(env replyEnvelope) (Reply, error) {
	text := strings.TrimSpace(env.Text)
	if text == "" {
		text = strings.TrimSpace(env.ResponseText)
	}

	reply := Reply{Text: text}
	if env.AudioB64 != "" {
		audio, err := base64.StdEncoding.DecodeString(env.AudioB64)
		if err != nil {
			return Reply{}, fault.Wrap(fault.KindServerError, err, "decode reply audio")
		}
		reply.Audio = audio
	}
	return reply, nil
}

func normalizeFeedback(env feedbackEnvelope) Feedback {
	fb := Feedback{
		Summary: strings.TrimSpace(env.Summary),
		Scores:  env.Scores,
	}
	if fb.Scores == nil && env.Score != nil {
		fb.Scores = map[string]float64{"overall": *env.Score}
	}
	if fb.Scores == nil {
		fb.Scores = map[string]float64{}
	}

	// Suggestions arrive either as a single string or a list of strings.
	if len(env.Suggestions) > 0 {
		var single string
		if err := json.Unmarshal(env.Suggestions, &single); err == nil {
			fb.Suggestions = strings.TrimSpace(single)
		} else {
			var many []string
			if err := json.Unmarshal(env.Suggestions, &many); err == nil {
				fb.Suggestions = strings.TrimSpace(strings.Join(many, "\n"))
			}
		}
	}
	return fb
}

var _ Backend = (*HTTPClient)(nil)
