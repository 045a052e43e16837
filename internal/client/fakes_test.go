package client

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/pion/rtp"
	"github.com/pion/webrtc/v4"
	"github.com/stretchr/testify/require"
)

var errNoOffer = errors.New("answer without remote offer")

type fakeMedia struct {
	mu         sync.Mutex
	peer       domain.ConnID
	tracks     []webrtc.TrackLocal
	onICE      func(webrtc.ICECandidateInit)
	onTrack    func(context.Context, core.RTPSource)
	local      *webrtc.SessionDescription
	remote     *webrtc.SessionDescription
	candidates []webrtc.ICECandidateInit
	closed     bool
	offerErr   error
}

func (f *fakeMedia) AddLocalTrack(t webrtc.TrackLocal) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tracks = append(f.tracks, t)
	return nil
}

func (f *fakeMedia) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onICE = fn
}

func (f *fakeMedia) OnTrack(fn func(context.Context, core.RTPSource)) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onTrack = fn
}

func (f *fakeMedia) CreateAndSetOffer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offerErr != nil {
		return webrtc.SessionDescription{}, f.offerErr
	}
	d := webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "offer for " + string(f.peer)}
	f.local = &d
	return d, nil
}

func (f *fakeMedia) CreateAndSetAnswer() (webrtc.SessionDescription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.remote == nil || f.remote.Type != webrtc.SDPTypeOffer {
		return webrtc.SessionDescription{}, errNoOffer
	}
	d := webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "answer to " + f.remote.SDP}
	f.local = &d
	return d, nil
}

func (f *fakeMedia) ApplyRemoteDescription(d webrtc.SessionDescription) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.remote = &d
	return nil
}

func (f *fakeMedia) AddICECandidate(c webrtc.ICECandidateInit) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.candidates = append(f.candidates, c)
	return nil
}

func (f *fakeMedia) LocalDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.local
}

func (f *fakeMedia) RemoteDescription() *webrtc.SessionDescription {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.remote
}

func (f *fakeMedia) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeMedia) IsClosed() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closed
}

func (f *fakeMedia) emitCandidate(c webrtc.ICECandidateInit) {
	f.mu.Lock()
	fn := f.onICE
	f.mu.Unlock()
	fn(c)
}

func (f *fakeMedia) emitTrack(src core.RTPSource) {
	f.mu.Lock()
	fn := f.onTrack
	f.mu.Unlock()
	fn(context.Background(), src)
}

type fakeFactory struct {
	mu       sync.Mutex
	conns    map[domain.ConnID]*fakeMedia
	calls    int
	offerErr error
}

func newFakeFactory() *fakeFactory {
	return &fakeFactory{conns: make(map[domain.ConnID]*fakeMedia)}
}

func (f *fakeFactory) New(peer domain.ConnID) (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	m := &fakeMedia{peer: peer, offerErr: f.offerErr}
	f.conns[peer] = m
	return m, nil
}

func (f *fakeFactory) get(peer domain.ConnID) *fakeMedia {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conns[peer]
}

// fakeRTP yields n packets, then io.EOF.
type fakeRTP struct {
	mu sync.Mutex
	n  int
}

func (f *fakeRTP) ID() string { return "audio" }

func (f *fakeRTP) ReadRTP() (*rtp.Packet, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return nil, io.EOF
	}
	f.n--
	return &rtp.Packet{Header: rtp.Header{SequenceNumber: uint16(f.n)}}, nil
}

type recordingSlot struct {
	mu      sync.Mutex
	packets int
	closed  bool
}

func (s *recordingSlot) WriteRTP(*rtp.Packet) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
	return nil
}

func (s *recordingSlot) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

func (s *recordingSlot) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.packets
}

func (s *recordingSlot) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeAudio struct {
	err   error
	block bool
}

func (f fakeAudio) Open(ctx context.Context) (webrtc.TrackLocal, error) {
	if f.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if f.err != nil {
		return nil, f.err
	}
	return webrtc.NewTrackLocalStaticSample(
		webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
		"audio", "local")
}

func participant(t *testing.T, name string) domain.Participant {
	t.Helper()
	p, err := domain.NewParticipant(name)
	require.NoError(t, err)
	return p
}

func envelope(t *testing.T, typ protocol.MessageType, payload any) protocol.Envelope {
	t.Helper()
	frame, err := protocol.Encode(typ, payload)
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}
