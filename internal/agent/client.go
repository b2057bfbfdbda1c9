package agent

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/ngabriel/parley/internal/reliability"
)

const (
	agentWriteTimeout    = 2 * time.Second
	reconnectBase        = 500 * time.Millisecond
	reconnectCap         = 8 * time.Second
	maxReconnectAttempts = 5
)

type Status string

const (
	StatusConnecting   Status = "connecting"
	StatusConnected    Status = "connected"
	StatusDisconnected Status = "disconnected"
)

type Mode string

const (
	ModeSpeaking  Mode = "speaking"
	ModeListening Mode = "listening"
)

// Handlers receives the downstream event callbacks. Nil fields are skipped.
// Callbacks run on the read-loop goroutine and must not block.
type Handlers struct {
	OnStatus         func(Status)
	OnMode           func(Mode)
	OnAgentResponse  func(AgentResponse)
	OnUserTranscript func(UserTranscript)
	OnError          func(ErrorEvent)
}

// Client maintains one websocket to the voice agent, reconnecting on
// retryable closures with capped backoff.
type Client struct {
	wsURL    string
	handlers Handlers
	dialer   websocket.Dialer

	backoffBase time.Duration
	backoffCap  time.Duration
	maxAttempts int

	mu     sync.Mutex
	conn   *websocket.Conn
	seq    int
	closed bool
	done   chan struct{}
}

func NewClient(wsURL string, handlers Handlers) (*Client, error) {
	wsURL, err := normalizeAgentURL(wsURL)
	if err != nil {
		return nil, err
	}
	return &Client{
		wsURL:    wsURL,
		handlers: handlers,
		dialer: websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 4 * time.Second,
		},
		backoffBase: reconnectBase,
		backoffCap:  reconnectCap,
		maxAttempts: maxReconnectAttempts,
		done:        make(chan struct{}),
	}, nil
}

func normalizeAgentURL(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", errors.New("agent websocket url is required")
	}
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse agent url: %w", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "ws", "wss":
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported agent url scheme %q", u.Scheme)
	}
	return u.String(), nil
}

// Connect dials the agent and starts the read loop. It returns once the
// initial handshake succeeds or fails.
func (c *Client) Connect(ctx context.Context) error {
	c.emitStatus(StatusConnecting)
	conn, err := c.dial(ctx)
	if err != nil {
		c.emitStatus(StatusDisconnected)
		return err
	}

	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
	c.emitStatus(StatusConnected)

	go c.readLoop(ctx, conn)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	conn, resp, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("agent dial failed (%s): %w", resp.Status, err)
		}
		return nil, fmt.Errorf("agent dial failed: %w", err)
	}
	return conn, nil
}

// SendAudioChunk streams one captured PCM segment upstream.
func (c *Client) SendAudioChunk(sessionID string, pcm []byte, sampleRate int) error {
	c.mu.Lock()
	c.seq++
	msg := ClientAudioChunk{
		Type:        TypeClientAudioChunk,
		SessionID:   sessionID,
		Seq:         c.seq,
		PCM16Base64: base64.StdEncoding.EncodeToString(pcm),
		SampleRate:  sampleRate,
		TSMs:        time.Now().UnixMilli(),
	}
	conn := c.conn
	c.mu.Unlock()

	return c.writeJSON(conn, msg)
}

// SendControl issues a control action such as "commit" or "cancel".
func (c *Client) SendControl(sessionID, action string) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	return c.writeJSON(conn, ClientControl{
		Type:      TypeClientControl,
		SessionID: sessionID,
		Action:    action,
	})
}

func (c *Client) writeJSON(conn *websocket.Conn, payload any) error {
	if conn == nil {
		return errors.New("agent stream not connected")
	}
	_ = conn.SetWriteDeadline(time.Now().Add(agentWriteTimeout))
	defer conn.SetWriteDeadline(time.Time{})
	return conn.WriteJSON(payload)
}

func (c *Client) readLoop(ctx context.Context, conn *websocket.Conn) {
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			_ = conn.Close()
			if c.isClosed() || ctx.Err() != nil {
				c.emitStatus(StatusDisconnected)
				return
			}
			if !reliability.IsRetryableAgentClose(closeCodeName(err)) {
				log.Printf("agent stream closed: %v", err)
				c.emitStatus(StatusDisconnected)
				return
			}

			next, ok := c.reconnect(ctx)
			if !ok {
				c.emitStatus(StatusDisconnected)
				return
			}
			conn = next
			continue
		}

		c.dispatch(raw)
	}
}

// reconnect dials until a connection is live or the attempt budget runs out.
// Each failed dial consumes an attempt and re-enters the backoff wait, so the
// caller never resumes reading without a live connection.
func (c *Client) reconnect(ctx context.Context) (*websocket.Conn, bool) {
	c.emitStatus(StatusConnecting)
	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		wait := reliability.ExponentialBackoff(attempt, c.backoffBase, c.backoffCap)
		select {
		case <-ctx.Done():
			return nil, false
		case <-c.done:
			return nil, false
		case <-time.After(wait):
		}

		conn, err := c.dial(ctx)
		if err != nil {
			log.Printf("agent reconnect attempt %d: %v", attempt, err)
			continue
		}
		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.emitStatus(StatusConnected)
		return conn, true
	}
	log.Printf("agent stream gave up after %d reconnect attempts", c.maxAttempts)
	return nil, false
}

func (c *Client) dispatch(raw []byte) {
	msg, err := ParseServerMessage(raw)
	if err != nil {
		if !errors.Is(err, ErrUnsupportedType) {
			log.Printf("agent frame rejected: %v", err)
		}
		return
	}

	switch m := msg.(type) {
	case AgentResponse:
		if c.handlers.OnAgentResponse != nil {
			c.handlers.OnAgentResponse(m)
		}
	case UserTranscript:
		if c.handlers.OnUserTranscript != nil {
			c.handlers.OnUserTranscript(m)
		}
	case ModeChange:
		if c.handlers.OnMode != nil {
			c.handlers.OnMode(m.Mode)
		}
	case ErrorEvent:
		if c.handlers.OnError != nil {
			c.handlers.OnError(m)
		}
	}
}

func (c *Client) emitStatus(status Status) {
	if c.handlers.OnStatus != nil {
		c.handlers.OnStatus(status)
	}
}

func (c *Client) isClosed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	close(c.done)
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// closeCodeName maps websocket close codes onto the retry classifier's
// vocabulary. Non-close errors count as abnormal closures.
func closeCodeName(err error) string {
	var closeErr *websocket.CloseError
	if !errors.As(err, &closeErr) {
		return "abnormal_closure"
	}
	switch closeErr.Code {
	case websocket.CloseGoingAway:
		return "going_away"
	case websocket.CloseServiceRestart:
		return "service_restart"
	case websocket.CloseTryAgainLater:
		return "try_again_later"
	case websocket.CloseAbnormalClosure:
		return "abnormal_closure"
	case websocket.CloseNormalClosure:
		return "normal_closure"
	default:
		return fmt.Sprintf("close_%d", closeErr.Code)
	}
}
