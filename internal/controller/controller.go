// Package controller owns the roleplay session state machine. It sequences
// capture, backend calls and playback so that exactly one backend call is in
// flight at a time and the session always lands in a well-defined state.
package controller

import (
	"context"
	"log"
	"sync"
	"time"

	"github.com/ngabriel/parley/internal/archive"
	"github.com/ngabriel/parley/internal/capture"
	"github.com/ngabriel/parley/internal/fault"
	"github.com/ngabriel/parley/internal/gateway"
	"github.com/ngabriel/parley/internal/observability"
	"github.com/ngabriel/parley/internal/playback"
	"github.com/ngabriel/parley/internal/session"
)

type State string

const (
	StateIdle          State = "idle"
	StateOpening       State = "opening"
	StateAwaitingInput State = "awaiting_input"
	StateCapturing     State = "capturing"
	StateSending       State = "sending"
	StatePlaying       State = "playing"
	StateEnding        State = "ending"
	StateEnded         State = "ended"
)

// Controller drives one roleplay session end-to-end. All mutating methods
// are safe for concurrent use; stale async completions are discarded via a
// generation counter bumped on End and Reset.
type Controller struct {
	store    *session.Store
	capture  *capture.Service
	playback *playback.Service
	backend  gateway.Backend
	archive  archive.Store
	metrics  *observability.Metrics

	mu       sync.Mutex
	state    State
	handle   *capture.Handle
	inFlight bool
	gen      int64

	turnStartedAt time.Time
	sendStartedAt time.Time
}

func New(
	store *session.Store,
	capSvc *capture.Service,
	play *playback.Service,
	backend gateway.Backend,
	arch archive.Store,
	metrics *observability.Metrics,
) *Controller {
	c := &Controller{
		store:    store,
		capture:  capSvc,
		playback: play,
		backend:  backend,
		archive:  arch,
		metrics:  metrics,
		state:    StateIdle,
	}
	play.SetFinishedHook(c.onPlaybackFinished)
	return c
}

func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start opens a new session, or retries the opening call for a session whose
// first attempt failed. A retry reuses the session id already generated.
func (c *Controller) Start(ctx context.Context, sel session.Selection) error {
	c.mu.Lock()
	switch c.state {
	case StateIdle:
		if _, err := c.store.StartSession(sel); err != nil {
			c.mu.Unlock()
			return err
		}
		c.state = StateOpening
	case StateOpening:
		// Retry path; session id and selection are already set.
	default:
		c.mu.Unlock()
		return fault.New(fault.KindInvalidState, "cannot start a session while %s", c.state)
	}
	if c.inFlight {
		c.mu.Unlock()
		return fault.New(fault.KindInvalidState, "a backend call is already in flight")
	}
	c.inFlight = true
	gen := c.gen
	sess := c.store.Snapshot()
	c.mu.Unlock()

	c.countEvent("open_requested")
	openStarted := time.Now()
	reply, err := c.backend.OpenSession(ctx, sess.ID, sess.Selection)
	c.observeBackend("open", openStarted, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if gen != c.gen {
		// Session ended while the call was in flight; drop the result.
		return nil
	}
	if err != nil {
		// Stay in Opening so the user can retry with the same session id.
		c.countEvent("open_failed")
		return err
	}

	if _, err := c.store.AppendTurn(session.Turn{Speaker: session.SpeakerBot, Text: reply.Text}); err != nil {
		return err
	}
	if err := c.store.MarkActive(); err != nil {
		return err
	}
	c.countEvent("opened")
	if c.metrics != nil {
		c.metrics.ActiveSessions.Inc()
		c.metrics.Turns.WithLabelValues(string(session.SpeakerBot)).Inc()
	}

	return c.startReplyPlaybackLocked(reply)
}

// StartRecording begins capturing the user's utterance. Recording is blocked
// while a reply is still playing; the two never overlap.
func (c *Controller) StartRecording(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateAwaitingInput {
		return fault.New(fault.KindInvalidState, "cannot record while %s", c.state)
	}
	if c.playback.IsPlaying() {
		return fault.New(fault.KindInvalidState, "cannot record while the reply is playing")
	}

	handle, err := c.capture.Start(ctx)
	if err != nil {
		return err
	}
	c.handle = handle
	c.state = StateCapturing
	c.turnStartedAt = time.Now()
	if c.metrics != nil {
		c.metrics.RecordingLive.Set(1)
	}
	return nil
}

// StopRecording ends the capture and submits the turn. The user turn is
// appended optimistically with placeholder text and rolled back if the
// backend rejects the submission.
func (c *Controller) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateCapturing || c.handle == nil {
		c.mu.Unlock()
		return fault.New(fault.KindNoActiveRecording, "no recording in progress")
	}
	handle := c.handle
	c.handle = nil
	stopAt := time.Now()

	encoded, err := c.capture.Stop(ctx, handle)
	if c.metrics != nil {
		c.metrics.RecordingLive.Set(0)
	}
	if err != nil {
		c.state = StateAwaitingInput
		c.mu.Unlock()
		return err
	}

	userTurn, err := c.store.AppendTurn(session.Turn{Speaker: session.SpeakerUser, Text: session.PlaceholderUserText})
	if err != nil {
		c.state = StateAwaitingInput
		c.mu.Unlock()
		return err
	}
	c.state = StateSending
	c.inFlight = true
	gen := c.gen
	c.sendStartedAt = time.Now()
	sess := c.store.Snapshot()
	c.mu.Unlock()

	c.observeStage("stop_to_send", stopAt)
	reply, err := c.backend.SendAudioTurn(ctx, sess.ID, sess.Selection, encoded)
	c.observeBackend("respond-audio", c.sendStartedAt, err)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.inFlight = false
	if gen != c.gen {
		return nil
	}
	if err != nil {
		// History keeps confirmed exchanges only; undo the optimistic append.
		if rbErr := c.store.RollbackTurn(userTurn.ID); rbErr != nil {
			log.Printf("rollback user turn %s: %v", userTurn.ID, rbErr)
		}
		c.state = StateAwaitingInput
		c.countEvent("turn_failed")
		return err
	}

	if c.metrics != nil {
		c.metrics.Turns.WithLabelValues(string(session.SpeakerUser)).Inc()
		c.metrics.Turns.WithLabelValues(string(session.SpeakerBot)).Inc()
		c.metrics.ObserveTurnStage("send_to_reply", time.Since(c.sendStartedAt))
	}
	c.countEvent("turn_completed")

	if _, err := c.store.AppendTurn(session.Turn{Speaker: session.SpeakerBot, Text: reply.Text}); err != nil {
		return err
	}
	return c.startReplyPlaybackLocked(reply)
}

// startReplyPlaybackLocked plays the reply audio when present, else returns
// the machine to awaiting input. Caller holds c.mu.
func (c *Controller) startReplyPlaybackLocked(reply gateway.Reply) error {
	if len(reply.Audio) == 0 {
		c.state = StateAwaitingInput
		c.finishTurnLocked()
		return nil
	}

	replyAt := time.Now()
	if _, err := c.playback.Play(reply.Audio); err != nil {
		// The turn itself succeeded; only the audio is lost.
		c.state = StateAwaitingInput
		c.finishTurnLocked()
		return err
	}
	c.observeStage("reply_to_playback_start", replyAt)
	c.state = StatePlaying
	if c.metrics != nil {
		c.metrics.PlaybackLive.Set(1)
	}
	return nil
}

func (c *Controller) onPlaybackFinished(string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.metrics != nil {
		c.metrics.PlaybackLive.Set(0)
	}
	if c.state != StatePlaying {
		return
	}
	c.state = StateAwaitingInput
	c.finishTurnLocked()
}

func (c *Controller) finishTurnLocked() {
	if c.turnStartedAt.IsZero() {
		return
	}
	c.observeStage("turn_total", c.turnStartedAt)
	c.turnStartedAt = time.Time{}
}

// End terminates the session from any non-terminal state. Active capture is
// aborted, playback stopped, and any in-flight backend result discarded.
// Calling End on an already ended session is a no-op.
func (c *Controller) End(ctx context.Context) error {
	c.mu.Lock()
	switch c.state {
	case StateEnded:
		c.mu.Unlock()
		return nil
	case StateIdle:
		c.mu.Unlock()
		return fault.New(fault.KindInvalidState, "no session to end")
	}
	c.gen++
	handle := c.handle
	c.handle = nil
	c.state = StateEnding
	if err := c.store.MarkEnding(); err != nil {
		log.Printf("mark session ending: %v", err)
	}
	c.mu.Unlock()

	if handle != nil {
		c.capture.Abort(ctx, handle)
	}
	c.playback.Stop()

	c.mu.Lock()
	if err := c.store.MarkEnded(); err != nil {
		log.Printf("mark session ended: %v", err)
	}
	c.state = StateEnded
	c.turnStartedAt = time.Time{}
	sess := c.store.Snapshot()
	c.mu.Unlock()

	c.countEvent("ended")
	if c.metrics != nil {
		c.metrics.ActiveSessions.Dec()
		c.metrics.RecordingLive.Set(0)
		c.metrics.PlaybackLive.Set(0)
	}

	if c.archive != nil {
		if err := c.archive.SaveSession(ctx, archive.RecordFromSession(sess)); err != nil {
			log.Printf("archive session %s: %v", sess.ID, err)
		}
	}
	return nil
}

// Feedback requests the scored evaluation for an ended session.
func (c *Controller) Feedback(ctx context.Context) (gateway.Feedback, error) {
	c.mu.Lock()
	if c.state != StateEnded {
		c.mu.Unlock()
		return gateway.Feedback{}, fault.New(fault.KindInvalidState, "feedback is only available after the session ends")
	}
	if c.inFlight {
		c.mu.Unlock()
		return gateway.Feedback{}, fault.New(fault.KindInvalidState, "a backend call is already in flight")
	}
	c.inFlight = true
	sess := c.store.Snapshot()
	c.mu.Unlock()

	started := time.Now()
	fb, err := c.backend.RequestFeedback(ctx, sess.ID, sess.History)
	c.observeBackend("feedback", started, err)

	c.mu.Lock()
	c.inFlight = false
	c.mu.Unlock()

	if err != nil {
		return gateway.Feedback{}, err
	}

	if c.archive != nil {
		record := archive.FeedbackRecord{
			SessionID:   sess.ID,
			Summary:     fb.Summary,
			Scores:      fb.Scores,
			Suggestions: fb.Suggestions,
		}
		if archErr := c.archive.SaveFeedback(ctx, record); archErr != nil {
			log.Printf("archive feedback %s: %v", sess.ID, archErr)
		}
	}
	return fb, nil
}

// Reset returns to Idle so a fresh session can start. It force-releases any
// live capture or playback first; always succeeds.
func (c *Controller) Reset(ctx context.Context) {
	c.mu.Lock()
	c.gen++
	handle := c.handle
	c.handle = nil
	c.mu.Unlock()

	if handle != nil {
		c.capture.Abort(ctx, handle)
	}
	c.playback.Stop()

	c.mu.Lock()
	wasActive := c.state != StateIdle && c.state != StateEnded
	c.store.Reset()
	c.state = StateIdle
	c.turnStartedAt = time.Time{}
	c.mu.Unlock()

	c.countEvent("reset")
	if c.metrics != nil && wasActive {
		c.metrics.ActiveSessions.Dec()
	}
}

func (c *Controller) countEvent(event string) {
	if c.metrics != nil {
		c.metrics.SessionEvents.WithLabelValues(event).Inc()
	}
}

func (c *Controller) observeBackend(endpoint string, started time.Time, err error) {
	if c.metrics == nil {
		return
	}
	c.metrics.ObserveBackendLatency(endpoint, time.Since(started))
	if err != nil {
		kind, ok := fault.KindOf(err)
		if !ok {
			kind = "unknown"
		}
		c.metrics.BackendErrors.WithLabelValues(endpoint, string(kind)).Inc()
	}
}

func (c *Controller) observeStage(stage string, since time.Time) {
	if c.metrics != nil {
		c.metrics.ObserveTurnStage(stage, time.Since(since))
	}
}
