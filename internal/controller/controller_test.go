package controller

import (
	"context"
	"testing"
	"time"

	"github.com/ngabriel/parley/internal/archive"
	"github.com/ngabriel/parley/internal/audio"
	"github.com/ngabriel/parley/internal/capture"
	"github.com/ngabriel/parley/internal/fault"
	"github.com/ngabriel/parley/internal/gateway"
	"github.com/ngabriel/parley/internal/playback"
	"github.com/ngabriel/parley/internal/session"
)

var testSelection = session.Selection{Book: "b1", Chapter: "c1", Profile: "manager"}

type fixture struct {
	controller *Controller
	store      *session.Store
	device     *capture.MockDevice
	player     *playback.MockPlayer
	archive    *archive.InMemoryStore
}

func newFixture(t *testing.T, backend gateway.Backend) *fixture {
	t.Helper()
	store := session.NewStore()
	device := capture.NewMockDevice()
	capSvc := capture.NewService(device)
	if !capSvc.RequestPermission(context.Background()) {
		t.Fatal("mock device should grant permission")
	}
	player := playback.NewMockPlayer()
	playSvc := playback.NewService(player, t.TempDir())
	arch := archive.NewInMemoryStore()
	return &fixture{
		controller: New(store, capSvc, playSvc, backend, arch, nil),
		store:      store,
		device:     device,
		player:     player,
		archive:    arch,
	}
}

func replyAudio(t *testing.T) []byte {
	t.Helper()
	payload, err := audio.EncodeWAVPCM16LE(make([]byte, 3200), 16000)
	if err != nil {
		t.Fatalf("EncodeWAVPCM16LE() error = %v", err)
	}
	return payload
}

func waitState(t *testing.T, c *Controller, want State) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.State() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("state = %q, want %q", c.State(), want)
}

func TestStartWithoutAudioGoesStraightToAwaitingInput(t *testing.T) {
	backend := &gateway.MockBackend{OpenReply: gateway.Reply{Text: "Hello"}}
	f := newFixture(t, backend)

	if err := f.controller.Start(context.Background(), testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	sess := f.store.Snapshot()
	if sess.Status != session.StatusActive {
		t.Fatalf("status = %q, want active", sess.Status)
	}
	if len(sess.History) != 1 || sess.History[0].Speaker != session.SpeakerBot || sess.History[0].Text != "Hello" {
		t.Fatalf("history = %+v, want single bot greeting", sess.History)
	}
	if f.controller.State() != StateAwaitingInput {
		t.Fatalf("state = %q, want awaiting_input", f.controller.State())
	}
	if plays, _ := f.player.Counts(); plays != 0 {
		t.Fatalf("plays = %d, want no playback without audio", plays)
	}
}

func TestStartFailureAllowsRetryWithSameSessionID(t *testing.T) {
	backend := &gateway.MockBackend{OpenErr: fault.New(fault.KindServerError, "boom")}
	f := newFixture(t, backend)

	if err := f.controller.Start(context.Background(), testSelection); !fault.IsKind(err, fault.KindServerError) {
		t.Fatalf("Start() error = %v, want server_error", err)
	}
	firstID := f.store.Snapshot().ID
	if f.controller.State() != StateOpening {
		t.Fatalf("state = %q, want opening after failure", f.controller.State())
	}

	backend.OpenErr = nil
	backend.OpenReply = gateway.Reply{Text: "Hi"}
	if err := f.controller.Start(context.Background(), testSelection); err != nil {
		t.Fatalf("Start() retry error = %v", err)
	}
	if got := f.store.Snapshot().ID; got != firstID {
		t.Fatalf("retry session id = %q, want %q reused", got, firstID)
	}
	if open, _, _ := backend.Calls(); open != 2 {
		t.Fatalf("open calls = %d, want 2", open)
	}
}

func TestStartRejectedWhileActive(t *testing.T) {
	backend := &gateway.MockBackend{OpenReply: gateway.Reply{Text: "Hello"}}
	f := newFixture(t, backend)

	if err := f.controller.Start(context.Background(), testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.Start(context.Background(), testSelection); !fault.IsKind(err, fault.KindInvalidState) {
		t.Fatalf("second Start() error = %v, want invalid_state", err)
	}
}

func TestAudioTurnAppendsBothTurnsAndPlaysReply(t *testing.T) {
	backend := &gateway.MockBackend{
		OpenReply: gateway.Reply{Text: "Hello"},
		TurnReply: gateway.Reply{Text: "Reply", Audio: replyAudio(t)},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := f.controller.StopRecording(ctx); err != nil {
		t.Fatalf("StopRecording() error = %v", err)
	}

	sess := f.store.Snapshot()
	if len(sess.History) != 3 {
		t.Fatalf("history length = %d, want 3", len(sess.History))
	}
	if sess.History[1].Speaker != session.SpeakerUser || sess.History[1].Text != session.PlaceholderUserText {
		t.Fatalf("history[1] = %+v, want user placeholder", sess.History[1])
	}
	if sess.History[2].Speaker != session.SpeakerBot || sess.History[2].Text != "Reply" {
		t.Fatalf("history[2] = %+v, want bot reply", sess.History[2])
	}
	if plays, _ := f.player.Counts(); plays != 1 {
		t.Fatalf("plays = %d, want exactly one", plays)
	}
	if f.controller.State() != StatePlaying {
		t.Fatalf("state = %q, want playing", f.controller.State())
	}

	if len(backend.LastAudio()) == 0 {
		t.Fatal("backend never received the captured audio")
	}

	f.player.FinishCurrent()
	waitState(t, f.controller, StateAwaitingInput)
}

func TestSendFailureRollsBackPlaceholderTurn(t *testing.T) {
	backend := &gateway.MockBackend{
		OpenReply: gateway.Reply{Text: "Hello"},
		TurnErr:   fault.New(fault.KindServerError, "stt unavailable"),
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := f.controller.StopRecording(ctx); !fault.IsKind(err, fault.KindServerError) {
		t.Fatalf("StopRecording() error = %v, want server_error", err)
	}

	sess := f.store.Snapshot()
	if sess.Status != session.StatusActive {
		t.Fatalf("status = %q, want still active", sess.Status)
	}
	if len(sess.History) != 1 {
		t.Fatalf("history = %+v, want placeholder rolled back", sess.History)
	}
	if f.controller.State() != StateAwaitingInput {
		t.Fatalf("state = %q, want awaiting_input", f.controller.State())
	}

	// The microphone must be free for the next attempt.
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() after failure error = %v", err)
	}
}

func TestStopWithoutRecordingFails(t *testing.T) {
	backend := &gateway.MockBackend{OpenReply: gateway.Reply{Text: "Hello"}}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	before := len(f.store.Snapshot().History)
	if err := f.controller.StopRecording(ctx); !fault.IsKind(err, fault.KindNoActiveRecording) {
		t.Fatalf("StopRecording() error = %v, want no_active_recording", err)
	}
	if after := len(f.store.Snapshot().History); after != before {
		t.Fatalf("history length changed %d -> %d", before, after)
	}
}

// blockingBackend holds SendAudioTurn until released so tests can overlap
// actions with an in-flight call.
type blockingBackend struct {
	gateway.MockBackend
	entered chan struct{}
	release chan struct{}
}

func (b *blockingBackend) SendAudioTurn(ctx context.Context, sessionID string, sel session.Selection, audio []byte) (gateway.Reply, error) {
	close(b.entered)
	<-b.release
	return b.MockBackend.SendAudioTurn(ctx, sessionID, sel, audio)
}

func TestRapidDoubleStopSendsOneTurn(t *testing.T) {
	backend := &blockingBackend{
		MockBackend: gateway.MockBackend{
			OpenReply: gateway.Reply{Text: "Hello"},
			TurnReply: gateway.Reply{Text: "Reply"},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}

	firstDone := make(chan error, 1)
	go func() { firstDone <- f.controller.StopRecording(ctx) }()
	<-backend.entered

	// Second press while the first submission is still in flight.
	if err := f.controller.StopRecording(ctx); !fault.IsKind(err, fault.KindNoActiveRecording) {
		t.Fatalf("second StopRecording() error = %v, want no_active_recording", err)
	}

	close(backend.release)
	if err := <-firstDone; err != nil {
		t.Fatalf("first StopRecording() error = %v", err)
	}
	if _, turns, _ := backend.Calls(); turns != 1 {
		t.Fatalf("sendAudioTurn calls = %d, want exactly 1", turns)
	}
}

func TestEndDiscardsInFlightReply(t *testing.T) {
	backend := &blockingBackend{
		MockBackend: gateway.MockBackend{
			OpenReply: gateway.Reply{Text: "Hello"},
			TurnReply: gateway.Reply{Text: "Late reply", Audio: replyAudio(t)},
		},
		entered: make(chan struct{}),
		release: make(chan struct{}),
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}

	done := make(chan error, 1)
	go func() { done <- f.controller.StopRecording(ctx) }()
	<-backend.entered

	if err := f.controller.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	close(backend.release)
	if err := <-done; err != nil {
		t.Fatalf("in-flight StopRecording() error = %v", err)
	}

	sess := f.store.Snapshot()
	if sess.Status != session.StatusEnded {
		t.Fatalf("status = %q, want ended", sess.Status)
	}
	for _, turn := range sess.History {
		if turn.Text == "Late reply" {
			t.Fatal("stale reply applied to an ended session")
		}
	}
	if plays, _ := f.player.Counts(); plays != 0 {
		t.Fatalf("plays = %d, want stale audio dropped", plays)
	}
}

func TestEndReleasesCaptureAndPlayback(t *testing.T) {
	backend := &gateway.MockBackend{
		OpenReply: gateway.Reply{Text: "Hello", Audio: replyAudio(t)},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if f.controller.State() != StatePlaying {
		t.Fatalf("state = %q, want playing after greeting audio", f.controller.State())
	}

	if err := f.controller.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if f.controller.State() != StateEnded {
		t.Fatalf("state = %q, want ended", f.controller.State())
	}
	if _, stops := f.player.Counts(); stops != 1 {
		t.Fatalf("player stops = %d, want playback released", stops)
	}

	records, err := f.archive.RecentSessions(ctx, 10)
	if err != nil || len(records) != 1 {
		t.Fatalf("archived sessions = %v, err = %v, want one record", records, err)
	}

	// A second End is a no-op.
	if err := f.controller.End(ctx); err != nil {
		t.Fatalf("repeat End() error = %v", err)
	}
}

func TestEndAbortsActiveRecording(t *testing.T) {
	backend := &gateway.MockBackend{OpenReply: gateway.Reply{Text: "Hello"}}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() error = %v", err)
	}
	if err := f.controller.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	if starts, stops := f.device.Counts(); starts != 1 || stops != 1 {
		t.Fatalf("device starts/stops = %d/%d, want hardware released", starts, stops)
	}
}

func TestRecordingBlockedWhilePlaying(t *testing.T) {
	backend := &gateway.MockBackend{
		OpenReply: gateway.Reply{Text: "Hello", Audio: replyAudio(t)},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if err := f.controller.StartRecording(ctx); !fault.IsKind(err, fault.KindInvalidState) {
		t.Fatalf("StartRecording() while playing error = %v, want invalid_state", err)
	}

	f.player.FinishCurrent()
	waitState(t, f.controller, StateAwaitingInput)
	if err := f.controller.StartRecording(ctx); err != nil {
		t.Fatalf("StartRecording() after playback error = %v", err)
	}
}

func TestFeedbackOnlyAfterEnd(t *testing.T) {
	backend := &gateway.MockBackend{
		OpenReply:    gateway.Reply{Text: "Hello"},
		FeedbackResp: gateway.Feedback{Summary: "Solid", Scores: map[string]float64{"overall": 8}},
	}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := f.controller.Feedback(ctx); !fault.IsKind(err, fault.KindInvalidState) {
		t.Fatalf("Feedback() before end error = %v, want invalid_state", err)
	}

	sessID := f.store.Snapshot().ID
	if err := f.controller.End(ctx); err != nil {
		t.Fatalf("End() error = %v", err)
	}
	fb, err := f.controller.Feedback(ctx)
	if err != nil {
		t.Fatalf("Feedback() error = %v", err)
	}
	if fb.Summary != "Solid" {
		t.Fatalf("summary = %q", fb.Summary)
	}

	stored, ok, err := f.archive.FeedbackFor(ctx, sessID)
	if err != nil || !ok {
		t.Fatalf("FeedbackFor() = %v, %v, %v, want archived", stored, ok, err)
	}
}

func TestResetReturnsToIdle(t *testing.T) {
	backend := &gateway.MockBackend{OpenReply: gateway.Reply{Text: "Hello"}}
	f := newFixture(t, backend)
	ctx := context.Background()

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	firstID := f.store.Snapshot().ID

	f.controller.Reset(ctx)
	if f.controller.State() != StateIdle {
		t.Fatalf("state = %q, want idle", f.controller.State())
	}
	if sess := f.store.Snapshot(); sess.Status != session.StatusIdle || len(sess.History) != 0 {
		t.Fatalf("session after reset = %+v, want cleared", sess)
	}

	if err := f.controller.Start(ctx, testSelection); err != nil {
		t.Fatalf("Start() after reset error = %v", err)
	}
	if got := f.store.Snapshot().ID; got == firstID {
		t.Fatal("new session reused the old session id")
	}
}
