package orch

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"syscall"
	"testing"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/core/coretest"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/dkeye/VideoCall/internal/protocol"
	"github.com/pion/webrtc/v4"
)

type env struct {
	o       *Orchestrator
	ctx     context.Context
	devices *coretest.FakeDevices
	peers   *coretest.FakePeerFactory
	dialer  *coretest.FakeDialer
	notes   *coretest.RecordingNotifier
	prefs   *coretest.MapSettings
}

func newEnv(t *testing.T) *env {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	e := &env{
		ctx:     ctx,
		devices: &coretest.FakeDevices{},
		peers:   coretest.NewFakePeerFactory(),
		dialer:  &coretest.FakeDialer{},
		notes:   &coretest.RecordingNotifier{},
		prefs:   &coretest.MapSettings{},
	}
	e.o = New(Deps{
		Devices:  e.devices,
		Peers:    e.peers,
		Dialer:   e.dialer,
		Notifier: e.notes,
		Settings: e.prefs,
	})
	go e.o.Run(ctx)
	return e
}

// flush waits until every task posted so far has run.
func (e *env) flush(t *testing.T) {
	t.Helper()
	if err := e.o.loop.Do(e.ctx, func() error { return nil }); err != nil {
		t.Fatalf("flush: %v", err)
	}
}

func (e *env) deliver(t *testing.T, m protocol.Message) {
	t.Helper()
	e.dialer.Deliver(m)
	e.flush(t)
}

type wire struct {
	Type   string             `json:"type"`
	Target string             `json:"target"`
	State  *domain.MediaFlags `json:"state"`
}

func (e *env) sent(t *testing.T, kind protocol.Kind) []wire {
	t.Helper()
	var out []wire
	for _, f := range e.dialer.Conn.Frames() {
		var w wire
		if err := json.Unmarshal(f, &w); err != nil {
			t.Fatalf("bad frame %s: %v", f, err)
		}
		if w.Type == string(kind) {
			out = append(out, w)
		}
	}
	return out
}

func (e *env) join(t *testing.T, room string) {
	t.Helper()
	if err := e.o.ConnectToRoom(e.ctx, room); err != nil {
		t.Fatalf("connect: %v", err)
	}
}

func (e *env) media(t *testing.T) {
	t.Helper()
	if err := e.o.InitializeLocalMedia(e.ctx, false); err != nil {
		t.Fatalf("media: %v", err)
	}
}

func answerFrom(pid domain.ParticipantID) protocol.Answer {
	return protocol.Answer{Sender: pid, SDP: webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: coretest.SDP}}
}

func TestFirstJoinerScenario(t *testing.T) {
	e := newEnv(t)
	e.media(t)
	e.join(t, "r1")

	if len(e.dialer.Conn.Frames()) != 0 {
		t.Fatal("expected no outbound messages before anyone joins")
	}
	if e.dialer.Rooms[0] != "r1" {
		t.Fatalf("expected room r1, got %v", e.dialer.Rooms)
	}

	e.deliver(t, protocol.UserJoined{Participant: "p2"})
	offers := e.sent(t, protocol.KindOffer)
	if len(offers) != 1 || offers[0].Target != "p2" {
		t.Fatalf("expected one offer to p2, got %+v", offers)
	}
	if len(e.sent(t, protocol.KindAnswer)) != 0 {
		t.Fatal("expected no answer from the existing participant")
	}

	e.deliver(t, answerFrom("p2"))
	fp := e.peers.Last("p2")
	if fp.Remote == nil || fp.Remote.Type != webrtc.SDPTypeAnswer {
		t.Fatal("expected answer applied as remote description")
	}
	if e.o.IsConnected() {
		t.Fatal("expected not connected before ICE completes")
	}

	fp.EmitState(domain.StateConnecting)
	fp.EmitState(domain.StateConnected)
	e.flush(t)
	if !e.o.IsConnected() {
		t.Fatal("expected connected")
	}
	if e.o.ConnectionStates()["p2"] != domain.StateConnected {
		t.Fatalf("unexpected states %v", e.o.ConnectionStates())
	}
	if e.notes.Count(domain.KeyCallConnected) != 1 {
		t.Fatal("expected call connected notification")
	}
}

func TestEndCallReleasesEverything(t *testing.T) {
	e := newEnv(t)
	e.media(t)
	e.join(t, "r1")
	for _, pid := range []domain.ParticipantID{"a", "b", "c"} {
		e.deliver(t, protocol.UserJoined{Participant: pid})
		e.peers.Last(pid).EmitState(domain.StateConnected)
	}
	e.flush(t)
	if len(e.o.ConnectionStates()) != 3 {
		t.Fatalf("expected 3 participants, got %d", len(e.o.ConnectionStates()))
	}
	sources := e.devices.LastSources()

	if err := e.o.EndCall(e.ctx); err != nil {
		t.Fatalf("end call: %v", err)
	}
	if n := len(e.o.ConnectionStates()); n != 0 {
		t.Fatalf("expected no participants, got %d", n)
	}
	if e.o.HasLocalStream() {
		t.Fatal("expected no local stream")
	}
	for _, s := range sources {
		if !s.IsClosed() {
			t.Fatalf("expected source %s released", s.ID())
		}
	}
	if e.dialer.Conn.IsOpen() || e.dialer.Conn.Closes() != 1 {
		t.Fatal("expected signaling channel closed once")
	}
	for _, pid := range []domain.ParticipantID{"a", "b", "c"} {
		if !e.peers.Last(pid).IsClosed() {
			t.Fatalf("expected %s closed", pid)
		}
	}
	if e.o.IsConnected() {
		t.Fatal("expected aggregate disconnected")
	}

	// The normal close reported by the adapter afterwards is not an error.
	e.dialer.Handler.OnClosed(1000, true)
	e.flush(t)
	if e.notes.Count(domain.KeyWSConnectionLost) != 0 {
		t.Fatal("expected no connection lost notification")
	}
}

func TestToggleRoundTripAppliesToAllPeers(t *testing.T) {
	e := newEnv(t)
	e.media(t)
	e.join(t, "r1")
	e.deliver(t, protocol.UserJoined{Participant: "a"})
	e.deliver(t, protocol.UserJoined{Participant: "b"})

	a, b := e.peers.Last("a").TrackList(), e.peers.Last("b").TrackList()
	if len(a) != 2 || a[0] != b[0] || a[1] != b[1] {
		t.Fatal("expected both peers to share the local tracks")
	}

	on, err := e.o.ToggleVideo(e.ctx)
	if err != nil || on {
		t.Fatalf("expected video off, got %v %v", on, err)
	}
	if e.o.IsVideoEnabled() || !e.o.IsAudioEnabled() {
		t.Fatal("expected only video disabled")
	}
	states := e.sent(t, protocol.KindMediaState)
	if len(states) != 1 || states[0].State.Video || !states[0].State.Audio {
		t.Fatalf("expected media_state video=false audio=true, got %+v", states)
	}
	if e.notes.Count(domain.KeyCameraOff) != 1 {
		t.Fatal("expected camera off notification")
	}

	on, _ = e.o.ToggleVideo(e.ctx)
	if !on || !e.o.IsVideoEnabled() {
		t.Fatal("expected video restored")
	}

	off := false
	e.o.Toggle(e.ctx, domain.KindAudio, &off)
	e.o.Toggle(e.ctx, domain.KindAudio, &off)
	if e.o.IsAudioEnabled() {
		t.Fatal("expected explicit off to hold")
	}
	if e.notes.Count(domain.KeyMicOff) != 2 {
		t.Fatalf("expected 2 mic off notifications, got %d", e.notes.Count(domain.KeyMicOff))
	}
}

func TestToggleWithoutStreamIsNoop(t *testing.T) {
	e := newEnv(t)
	e.join(t, "r1")
	if _, err := e.o.ToggleAudio(e.ctx); !errors.Is(err, domain.ErrNoLocalStream) {
		t.Fatalf("expected ErrNoLocalStream, got %v", err)
	}
	if len(e.dialer.Conn.Frames()) != 0 {
		t.Fatal("expected nothing sent")
	}
}

func TestMediaFailureLeavesDegradedCall(t *testing.T) {
	e := newEnv(t)
	e.devices.Err = &os.PathError{Op: "open", Path: "/dev/video0", Err: syscall.EACCES}

	err := e.o.InitializeLocalMedia(e.ctx, false)
	var me *domain.MediaError
	if !errors.As(err, &me) || me.Kind != domain.MediaPermissionDenied {
		t.Fatalf("expected permission denied, got %v", err)
	}
	all := e.notes.All()
	if len(all) != 1 || all[0].Key != domain.KeyMediaAccessDenied || all[0].Duration != domain.DurationMediaError {
		t.Fatalf("unexpected notifications %+v", all)
	}
	if e.o.HasLocalStream() || e.o.Snapshot().Loading != "" {
		t.Fatal("expected no stream and loading cleared")
	}

	e.join(t, "r1")
	e.deliver(t, protocol.UserJoined{Participant: "p"})
	if len(e.sent(t, protocol.KindOffer)) != 1 {
		t.Fatal("expected call to proceed without local media")
	}
	if got := e.peers.Last("p").RecvOnly; len(got) != 2 {
		t.Fatalf("expected receive-only transceivers, got %v", got)
	}
}

func TestInitializeLocalMediaIdempotentAndForce(t *testing.T) {
	e := newEnv(t)
	e.media(t)
	first := e.devices.LastSources()
	e.media(t)
	if e.devices.Calls != 1 {
		t.Fatalf("expected cached stream, got %d acquisitions", e.devices.Calls)
	}

	if err := e.o.InitializeLocalMedia(e.ctx, true); err != nil {
		t.Fatalf("force: %v", err)
	}
	if e.devices.Calls != 2 {
		t.Fatalf("expected reacquisition, got %d", e.devices.Calls)
	}
	for _, s := range first {
		if !s.IsClosed() {
			t.Fatal("expected previous sources stopped")
		}
	}
	if !e.o.HasLocalStream() || !e.o.IsVideoEnabled() || !e.o.IsAudioEnabled() {
		t.Fatal("expected fresh enabled stream")
	}
}

func TestEndCallDuringAcquisitionReleasesCapture(t *testing.T) {
	e := newEnv(t)
	e.devices.Gate = make(chan struct{})
	e.devices.Entered = make(chan struct{}, 1)

	errc := make(chan error, 1)
	go func() { errc <- e.o.InitializeLocalMedia(e.ctx, false) }()
	<-e.devices.Entered

	if err := e.o.EndCall(e.ctx); err != nil {
		t.Fatalf("end call: %v", err)
	}
	close(e.devices.Gate)
	if err := <-errc; !errors.Is(err, errMediaSuperseded) {
		t.Fatalf("expected superseded request, got %v", err)
	}
	e.flush(t)

	if e.o.HasLocalStream() {
		t.Fatal("expected no local stream after the call ended")
	}
	if e.o.Snapshot().Loading != "" {
		t.Fatalf("expected loading cleared, got %q", e.o.Snapshot().Loading)
	}
	sources := e.devices.LastSources()
	if len(sources) == 0 {
		t.Fatal("expected capture to have been acquired")
	}
	for _, s := range sources {
		if !s.IsClosed() {
			t.Fatalf("expected late source %s released", s.ID())
		}
	}
}

func TestForcedRequestSupersedesPendingOne(t *testing.T) {
	e := newEnv(t)
	e.devices.Gate = make(chan struct{})
	e.devices.Entered = make(chan struct{}, 2)

	first := make(chan error, 1)
	go func() { first <- e.o.InitializeLocalMedia(e.ctx, false) }()
	<-e.devices.Entered
	second := make(chan error, 1)
	go func() { second <- e.o.InitializeLocalMedia(e.ctx, true) }()
	<-e.devices.Entered

	close(e.devices.Gate)
	if err := <-first; !errors.Is(err, errMediaSuperseded) {
		t.Fatalf("expected first request superseded, got %v", err)
	}
	if err := <-second; err != nil {
		t.Fatalf("expected forced request to succeed, got %v", err)
	}
	if !e.o.HasLocalStream() {
		t.Fatal("expected stream from the forced request")
	}
}

func TestCancelledMediaRequestClearsLoading(t *testing.T) {
	e := newEnv(t)
	e.media(t)
	old := e.devices.LastSources()

	// Hold the loop so the request gives up before its first step runs.
	hold := make(chan struct{})
	e.o.loop.Post(func() { <-hold })

	ctx, cancel := context.WithCancel(e.ctx)
	errc := make(chan error, 1)
	go func() { errc <- e.o.InitializeLocalMedia(ctx, true) }()
	cancel()
	if err := <-errc; !errors.Is(err, context.Canceled) {
		t.Fatalf("expected canceled, got %v", err)
	}
	close(hold)
	e.flush(t)

	if got := e.o.Snapshot().Loading; got != "" {
		t.Fatalf("expected loading cleared, got %q", got)
	}
	if e.devices.Calls != 1 {
		t.Fatalf("expected no new acquisition, got %d", e.devices.Calls)
	}
	for _, s := range old {
		if !s.IsClosed() {
			t.Fatal("expected forced request to have stopped the old stream")
		}
	}
	if e.o.HasLocalStream() {
		t.Fatal("expected no local stream reported after the stopped one")
	}
}

func TestMediaAfterJoinRenegotiates(t *testing.T) {
	e := newEnv(t)
	e.join(t, "r1")
	e.deliver(t, protocol.UserJoined{Participant: "p"})
	e.media(t)

	if n := len(e.peers.Last("p").TrackList()); n != 2 {
		t.Fatalf("expected tracks added to existing peer, got %d", n)
	}
	if n := len(e.sent(t, protocol.KindOffer)); n != 2 {
		t.Fatalf("expected renegotiation offer, got %d offers", n)
	}
}

func TestPreferencesShapeConstraints(t *testing.T) {
	e := newEnv(t)
	if err := e.o.SetVideoQuality(e.ctx, "4k"); err == nil {
		t.Fatal("expected unknown quality rejected")
	}
	if err := e.o.SetVideoQuality(e.ctx, "1080p"); err != nil {
		t.Fatal(err)
	}
	e.o.SelectVideoDevice(e.ctx, "cam-2")
	e.o.SelectAudioDevice(e.ctx, "mic-9")
	e.o.SetShouldMirror(e.ctx, true)
	e.media(t)

	req := e.devices.LastReq
	if req.Video.Width != 1920 || req.Video.Height != 1080 || req.Video.DeviceID != "cam-2" || req.Audio.DeviceID != "mic-9" {
		t.Fatalf("unexpected constraints %+v", req)
	}
	if !req.Audio.EchoCancellation || !req.Audio.NoiseSuppression || req.Video.FrameRateIdeal != 30 {
		t.Fatalf("expected fixed processing flags, got %+v", req)
	}
	m := e.o.Snapshot().Media
	if !m.Mirror || m.Quality != domain.Quality1080p {
		t.Fatalf("unexpected local state %+v", m)
	}
	if e.prefs.GetString(domain.SettingVideoDevice) != "cam-2" {
		t.Fatal("expected device persisted")
	}
}

func TestConnectTimeout(t *testing.T) {
	e := newEnv(t)
	e.o.ConnectTimeout = 30 * time.Millisecond
	e.dialer.Block = true

	err := e.o.ConnectToRoom(e.ctx, "r1")
	if !errors.Is(err, domain.ErrSignalingTimeout) {
		t.Fatalf("expected timeout, got %v", err)
	}
	var se *domain.SignalingError
	if !errors.As(err, &se) || se.Room != "r1" {
		t.Fatalf("expected signaling error for r1, got %v", err)
	}
	if e.o.Snapshot().Room != "" {
		t.Fatal("expected room cleared")
	}
	if e.notes.Count(domain.KeyWSConnectionLost) != 1 {
		t.Fatal("expected failure surfaced")
	}
}

func TestInvalidRoomRejected(t *testing.T) {
	e := newEnv(t)
	if err := e.o.ConnectToRoom(e.ctx, "../admin"); !errors.Is(err, domain.ErrRoomIDInvalid) {
		t.Fatalf("expected invalid room, got %v", err)
	}
	if len(e.dialer.Rooms) != 0 {
		t.Fatal("expected no dial")
	}
}

func TestConnectionLostKeepsParticipants(t *testing.T) {
	e := newEnv(t)
	e.join(t, "r1")
	e.deliver(t, protocol.UserJoined{Participant: "p"})

	e.dialer.Conn.Drop()
	e.dialer.Handler.OnClosed(1006, false)
	e.flush(t)

	if e.notes.Count(domain.KeyWSConnectionLost) != 1 {
		t.Fatal("expected connection lost notification")
	}
	if e.o.Snapshot().SignalOpen {
		t.Fatal("expected signal marked closed")
	}
	if len(e.o.ConnectionStates()) != 1 {
		t.Fatal("expected participants kept until teardown")
	}

	// Outbound traffic is dropped silently.
	before := len(e.dialer.Conn.Frames())
	e.peers.Last("p").EmitCandidate(webrtc.ICECandidateInit{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host"})
	e.flush(t)
	if len(e.dialer.Conn.Frames()) != before {
		t.Fatal("expected send on closed channel to be dropped")
	}
}

func TestReconnectLeavesPreviousRoom(t *testing.T) {
	e := newEnv(t)
	e.join(t, "r1")
	e.deliver(t, protocol.UserJoined{Participant: "p"})
	first := e.dialer.Conn
	old := e.dialer.Handler

	e.join(t, "r2")
	if first.IsOpen() {
		t.Fatal("expected previous channel closed")
	}
	if !e.peers.Last("p").IsClosed() || len(e.o.ConnectionStates()) != 0 {
		t.Fatal("expected previous participants closed")
	}

	// Late traffic from the previous room is ignored.
	old.OnSignal(protocol.UserJoined{Participant: "ghost"})
	e.flush(t)
	if e.peers.Created("ghost") != 0 {
		t.Fatal("expected stale session ignored")
	}
	if e.o.Snapshot().Room != "r2" {
		t.Fatalf("expected room r2, got %q", e.o.Snapshot().Room)
	}
}

// earlyDialer delivers a message before Open returns.
type earlyDialer struct {
	coretest.FakeDialer
	early protocol.Message
}

func (d *earlyDialer) Open(ctx context.Context, room domain.RoomID, h core.SignalHandler) (core.SignalConnection, error) {
	conn, err := d.FakeDialer.Open(ctx, room, h)
	h.OnSignal(d.early)
	return conn, err
}

func TestEarlyMessagesReplayedAfterAttach(t *testing.T) {
	e := newEnv(t)
	d := &earlyDialer{early: protocol.UserJoined{Participant: "p2"}}
	e.o.Dialer = d

	if err := e.o.ConnectToRoom(e.ctx, "r1"); err != nil {
		t.Fatal(err)
	}
	e.flush(t)
	if n := len(d.Conn.Frames()); n != 1 {
		t.Fatalf("expected offer sent after attach, got %d frames", n)
	}
}

func TestSubscribeSeesChanges(t *testing.T) {
	e := newEnv(t)
	ch, cancel := e.o.Subscribe()
	defer cancel()
	e.media(t)

	deadline := time.After(time.Second)
	for {
		select {
		case snap := <-ch:
			if snap.HasLocalStream && snap.Media.VideoEnabled {
				return
			}
		case <-deadline:
			t.Fatal("expected snapshot with local stream")
		}
	}
}

var _ core.Signaler = (*Orchestrator)(nil)
