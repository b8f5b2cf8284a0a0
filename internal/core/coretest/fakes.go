// Package coretest provides in-memory fakes of the core interfaces for tests.
package coretest

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/dkeye/VideoCall/internal/core"
	"github.com/dkeye/VideoCall/internal/domain"
	"github.com/dkeye/VideoCall/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
)

// SDP is a minimal description accepted by the protocol validator.
const SDP = "v=0\r\no=- 1 1 IN IP4 127.0.0.1\r\ns=-\r\nt=0 0\r\n"

var ErrInjected = errors.New("injected failure")

// FakePeer records every negotiation call made on it.
type FakePeer struct {
	mu sync.Mutex

	PID           domain.ParticipantID
	Offers        int
	RestartOffers int
	Answers       int
	Local         *webrtc.SessionDescription
	Remote        *webrtc.SessionDescription
	Candidates    []webrtc.ICECandidateInit
	Tracks        []webrtc.TrackLocal
	RecvOnly      []domain.MediaKind
	Replaced      int
	Rollbacks     int
	Closed        bool

	FailCreateOffer error
	FailSetRemote   error

	localOffer bool
	onICE      func(webrtc.ICECandidateInit)
	onTrack    func(core.RemoteTrack)
	onState    func(domain.ConnectionState)
}

func (f *FakePeer) CreateOffer(iceRestart bool) (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailCreateOffer != nil {
		return webrtc.SessionDescription{}, f.FailCreateOffer
	}
	f.Offers++
	if iceRestart {
		f.RestartOffers++
	}
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: SDP}, nil
}

func (f *FakePeer) CreateAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Answers++
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: SDP}, nil
}

func (f *FakePeer) SetLocalDescription(sd webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Local = &sd
	f.localOffer = sd.Type == webrtc.SDPTypeOffer
	return nil
}

func (f *FakePeer) SetRemoteDescription(sd webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.FailSetRemote != nil {
		return f.FailSetRemote
	}
	f.Remote = &sd
	if sd.Type == webrtc.SDPTypeAnswer {
		f.localOffer = false
	}
	return nil
}

func (f *FakePeer) HasLocalOffer() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.localOffer
}

func (f *FakePeer) Rollback() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Rollbacks++
	f.localOffer = false
	return nil
}

func (f *FakePeer) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Candidates = append(f.Candidates, c)
	return nil
}

func (f *FakePeer) AddTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Tracks = append(f.Tracks, t)
	return nil
}

func (f *FakePeer) ReplaceTrack(t webrtc.TrackLocal) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, cur := range f.Tracks {
		if cur.Kind() == t.Kind() {
			f.Tracks[i] = t
			f.Replaced++
			return true, nil
		}
	}
	return false, nil
}

func (f *FakePeer) AddRecvOnly(kind domain.MediaKind) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.RecvOnly = append(f.RecvOnly, kind)
	return nil
}

func (f *FakePeer) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onICE = fn
}

func (f *FakePeer) OnTrack(fn func(core.RemoteTrack)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = fn
}

func (f *FakePeer) OnStateChange(fn func(domain.ConnectionState)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onState = fn
}

func (f *FakePeer) Close() error {
	f.mu.Lock()
	f.Closed = true
	cb := f.onState
	f.mu.Unlock()
	// pion reports closed synchronously from Close.
	if cb != nil {
		cb(domain.StateClosed)
	}
	return nil
}

// EmitState simulates a connection state change reported by the transport.
func (f *FakePeer) EmitState(s domain.ConnectionState) {
	f.mu.Lock()
	cb := f.onState
	f.mu.Unlock()
	if cb != nil {
		cb(s)
	}
}

// EmitCandidate simulates a locally gathered ICE candidate.
func (f *FakePeer) EmitCandidate(c webrtc.ICECandidateInit) {
	f.mu.Lock()
	cb := f.onICE
	f.mu.Unlock()
	if cb != nil {
		cb(c)
	}
}

// EmitTrack simulates remote track arrival.
func (f *FakePeer) EmitTrack(t core.RemoteTrack) {
	f.mu.Lock()
	cb := f.onTrack
	f.mu.Unlock()
	if cb != nil {
		cb(t)
	}
}

func (f *FakePeer) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Closed
}

func (f *FakePeer) Counts() (offers, restarts, answers int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Offers, f.RestartOffers, f.Answers
}

func (f *FakePeer) TrackList() []webrtc.TrackLocal {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.TrackLocal(nil), f.Tracks...)
}

func (f *FakePeer) CandidateList() []webrtc.ICECandidateInit {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]webrtc.ICECandidateInit(nil), f.Candidates...)
}

// FakePeerFactory hands out FakePeers and remembers them per participant.
type FakePeerFactory struct {
	mu  sync.Mutex
	Err error
	// OnCreate, when set, configures each new peer before it is returned.
	OnCreate func(*FakePeer)
	peers    map[domain.ParticipantID][]*FakePeer
}

func NewFakePeerFactory() *FakePeerFactory {
	return &FakePeerFactory{peers: make(map[domain.ParticipantID][]*FakePeer)}
}

func (f *FakePeerFactory) NewPeer(pid domain.ParticipantID) (core.PeerConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	p := &FakePeer{PID: pid}
	if f.OnCreate != nil {
		f.OnCreate(p)
	}
	f.peers[pid] = append(f.peers[pid], p)
	return p, nil
}

// Last returns the most recent peer created for pid.
func (f *FakePeerFactory) Last(pid domain.ParticipantID) *FakePeer {
	f.mu.Lock()
	defer f.mu.Unlock()
	ps := f.peers[pid]
	if len(ps) == 0 {
		return nil
	}
	return ps[len(ps)-1]
}

// Created returns how many peers were created for pid.
func (f *FakePeerFactory) Created(pid domain.ParticipantID) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.peers[pid])
}

// FakeSignaler records outbound messages.
type FakeSignaler struct {
	mu   sync.Mutex
	sent []protocol.Message
}

func (s *FakeSignaler) Send(m protocol.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, m)
}

func (s *FakeSignaler) Sent() []protocol.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]protocol.Message(nil), s.sent...)
}

// OfKind filters the sent messages by kind.
func (s *FakeSignaler) OfKind(k protocol.Kind) []protocol.Message {
	var out []protocol.Message
	for _, m := range s.Sent() {
		if m.Kind() == k {
			out = append(out, m)
		}
	}
	return out
}

func (s *FakeSignaler) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = nil
}

// FakeConn is an in-memory SignalConnection.
type FakeConn struct {
	mu     sync.Mutex
	open   bool
	frames []core.Frame
	closes int
}

func NewFakeConn() *FakeConn { return &FakeConn{open: true} }

func (c *FakeConn) TrySend(f core.Frame) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.open {
		return domain.ErrChannelClosed
	}
	c.frames = append(c.frames, f)
	return nil
}

func (c *FakeConn) IsOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.open
}

func (c *FakeConn) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
	c.closes++
}

// Drop simulates the relay going away without a close from our side.
func (c *FakeConn) Drop() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.open = false
}

func (c *FakeConn) Frames() []core.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]core.Frame(nil), c.frames...)
}

func (c *FakeConn) Closes() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closes
}

// FakeDialer opens FakeConns and keeps the handler so tests can inject frames.
type FakeDialer struct {
	mu      sync.Mutex
	Err     error
	Block   bool
	Conn    *FakeConn
	Handler core.SignalHandler
	Rooms   []domain.RoomID
}

func (d *FakeDialer) Open(ctx context.Context, room domain.RoomID, h core.SignalHandler) (core.SignalConnection, error) {
	d.mu.Lock()
	block, err := d.Block, d.Err
	d.mu.Unlock()
	if block {
		<-ctx.Done()
		return nil, domain.ErrSignalingTimeout
	}
	if err != nil {
		return nil, err
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Conn = NewFakeConn()
	d.Handler = h
	d.Rooms = append(d.Rooms, room)
	return d.Conn, nil
}

// Deliver pushes an inbound message to the current handler.
func (d *FakeDialer) Deliver(m protocol.Message) {
	d.mu.Lock()
	h := d.Handler
	d.mu.Unlock()
	h.OnSignal(m)
}

// FakeSource emits queued RTP packets until closed.
type FakeSource struct {
	SourceID  string
	MediaKind domain.MediaKind
	packets   chan *rtp.Packet
	closeOnce sync.Once
	closed    chan struct{}
}

func NewFakeSource(id string, kind domain.MediaKind) *FakeSource {
	return &FakeSource{
		SourceID:  id,
		MediaKind: kind,
		packets:   make(chan *rtp.Packet, 64),
		closed:    make(chan struct{}),
	}
}

func (s *FakeSource) ID() string             { return s.SourceID }
func (s *FakeSource) Kind() domain.MediaKind { return s.MediaKind }

func (s *FakeSource) Codec() webrtc.RTPCodecCapability {
	if s.MediaKind == domain.KindVideo {
		return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
	}
	return webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
}

func (s *FakeSource) ReadRTP() (*rtp.Packet, error) {
	select {
	case p := <-s.packets:
		return p, nil
	case <-s.closed:
		return nil, io.EOF
	}
}

// Push queues one packet for ReadRTP.
func (s *FakeSource) Push(p *rtp.Packet) { s.packets <- p }

func (s *FakeSource) Close() error {
	s.closeOnce.Do(func() { close(s.closed) })
	return nil
}

func (s *FakeSource) IsClosed() bool {
	select {
	case <-s.closed:
		return true
	default:
		return false
	}
}

// FakeDevices returns a fresh video+audio source pair per call.
type FakeDevices struct {
	mu      sync.Mutex
	Err     error
	Calls   int
	Last    []*FakeSource
	LastReq domain.Constraints
	// Gate, when set, holds each call until it is closed. Entered is sent
	// to once a call is waiting at the gate.
	Gate    chan struct{}
	Entered chan struct{}
}

func (d *FakeDevices) GetUserMedia(ctx context.Context, c domain.Constraints) ([]core.CaptureSource, error) {
	if d.Gate != nil {
		if d.Entered != nil {
			d.Entered <- struct{}{}
		}
		select {
		case <-d.Gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.Calls++
	d.LastReq = c
	if d.Err != nil {
		return nil, d.Err
	}
	v := NewFakeSource("cam", domain.KindVideo)
	a := NewFakeSource("mic", domain.KindAudio)
	d.Last = []*FakeSource{v, a}
	return []core.CaptureSource{v, a}, nil
}

func (d *FakeDevices) LastSources() []*FakeSource {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*FakeSource(nil), d.Last...)
}

// Notification is one recorded Notify call.
type Notification struct {
	Key      string
	Severity domain.Severity
	Duration time.Duration
}

// RecordingNotifier stores every notification.
type RecordingNotifier struct {
	mu  sync.Mutex
	all []Notification
}

func (n *RecordingNotifier) Notify(key string, sev domain.Severity, d time.Duration) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.all = append(n.all, Notification{Key: key, Severity: sev, Duration: d})
}

func (n *RecordingNotifier) Count(key string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	c := 0
	for _, x := range n.all {
		if x.Key == key {
			c++
		}
	}
	return c
}

func (n *RecordingNotifier) All() []Notification {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]Notification(nil), n.all...)
}

// MapSettings is an in-memory Settings store.
type MapSettings struct {
	mu sync.Mutex
	M  map[string]any
}

func (s *MapSettings) GetString(key string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.M[key].(string)
	return v
}

func (s *MapSettings) GetBool(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	v, _ := s.M[key].(bool)
	return v
}

func (s *MapSettings) Set(key string, value any) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.M == nil {
		s.M = make(map[string]any)
	}
	s.M[key] = value
}
