package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/pion/webrtc/v4"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

// ErrUnknownPeer is returned for signaling that names a connection no session
// was created for. The relay only forwards between introduced peers, so this
// means the client and relay disagree about membership.
var ErrUnknownPeer = errors.New("signal from unknown peer")

// ConnectionFactory creates the media connection for one remote peer.
type ConnectionFactory interface {
	New(peer domain.ConnID) (core.MediaConnection, error)
}

// Mesh keeps one peer session per remote participant.
type Mesh struct {
	signaler Signaler
	factory  ConnectionFactory
	view     *View
	tracks   []webrtc.TrackLocal

	mu       sync.Mutex
	sessions map[domain.ParticipantID]*peerSession
	byConn   map[domain.ConnID]*peerSession

	logger zerolog.Logger
}

func NewMesh(sig Signaler, factory ConnectionFactory, view *View, local *LocalMedia) *Mesh {
	m := &Mesh{
		signaler: sig,
		factory:  factory,
		view:     view,
		sessions: make(map[domain.ParticipantID]*peerSession),
		byConn:   make(map[domain.ConnID]*peerSession),
		logger:   log.With().Str("module", "client.mesh").Logger(),
	}
	if local != nil {
		m.tracks = local.Tracks
	}
	return m
}

// AddPeer opens a session for an introduced peer and, as initiator, sends
// the offer.
func (m *Mesh) AddPeer(p protocol.AddPeerPayload) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	logger := m.logger.With().Str("peer", string(p.PeerConnectionID)).Str("participant", string(p.RemoteUser.ID)).Logger()
	if _, exists := m.sessions[p.RemoteUser.ID]; exists {
		logger.Warn().Msg("session already exists, ignoring add-peer")
		return nil
	}

	mc, err := m.factory.New(p.PeerConnectionID)
	if err != nil {
		return fmt.Errorf("create connection to %s: %w", p.PeerConnectionID, err)
	}
	for _, track := range m.tracks {
		if err := mc.AddLocalTrack(track); err != nil {
			mc.Close()
			return fmt.Errorf("attach local track: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &peerSession{
		participant: p.RemoteUser,
		conn:        p.PeerConnectionID,
		media:       mc,
		initiator:   p.Initiator,
		state:       PeerConnecting,
		ctx:         ctx,
		cancel:      cancel,
	}

	mc.OnICECandidate(func(cand webrtc.ICECandidateInit) {
		raw, err := json.Marshal(cand)
		if err != nil {
			logger.Error().Err(err).Msg("encode candidate")
			return
		}
		if err := m.signaler.Send(protocol.TypeRelayCandidate, protocol.RelayCandidatePayload{To: s.conn, Candidate: raw}); err != nil {
			logger.Warn().Err(err).Msg("relay candidate")
		}
	})
	mc.OnTrack(func(_ context.Context, src core.RTPSource) {
		go m.playout(s.ctx, s, src)
	})

	m.sessions[s.participant.ID] = s
	m.byConn[s.conn] = s
	logger.Info().Bool("initiator", s.initiator).Msg("peer added")

	if !s.initiator {
		return nil
	}
	// A session that failed to offer is dropped so a later add-peer can retry.
	offer, err := mc.CreateAndSetOffer()
	if err != nil {
		m.teardown(s)
		return fmt.Errorf("create offer: %w", err)
	}
	if err := m.sendDescription(s, offer); err != nil {
		m.teardown(s)
		return err
	}
	s.state = PeerNegotiating
	return nil
}

// HandleDescription applies a relayed offer or answer. An offer is answered
// with a freshly generated answer.
func (m *Mesh) HandleDescription(origin domain.ConnID, raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byConn[origin]
	if !ok {
		return fmt.Errorf("%w: description from %s", ErrUnknownPeer, origin)
	}
	desc, err := protocol.ParseDescription(raw)
	if err != nil {
		return err
	}
	if err := s.media.ApplyRemoteDescription(desc); err != nil {
		return fmt.Errorf("apply %s from %s: %w", desc.Type, origin, err)
	}

	if desc.Type == webrtc.SDPTypeOffer {
		answer, err := s.media.CreateAndSetAnswer()
		if err != nil {
			return fmt.Errorf("create answer: %w", err)
		}
		if err := m.sendDescription(s, answer); err != nil {
			return err
		}
	}
	s.state = PeerEstablished
	m.logger.Debug().Str("peer", string(origin)).Str("sdp_type", desc.Type.String()).Msg("description applied")
	return nil
}

func (m *Mesh) HandleCandidate(origin domain.ConnID, raw json.RawMessage) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.byConn[origin]
	if !ok {
		return fmt.Errorf("%w: candidate from %s", ErrUnknownPeer, origin)
	}
	cand, err := protocol.ParseCandidate(raw)
	if err != nil {
		return err
	}
	return s.media.AddICECandidate(cand)
}

// RemovePeer tears down the session of the participant named by
// remoteUserId. Unknown participants are ignored.
func (m *Mesh) RemovePeer(p protocol.RemovePeerPayload) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[p.RemoteUserID]
	if !ok {
		m.logger.Debug().Str("participant", string(p.RemoteUserID)).Msg("remove-peer for unknown participant")
		return
	}
	m.teardown(s)
}

// Shutdown tears down every session.
func (m *Mesh) Shutdown() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range lo.Values(m.sessions) {
		m.teardown(s)
	}
}

func (m *Mesh) Sessions() []PeerInfo {
	m.mu.Lock()
	defer m.mu.Unlock()
	infos := lo.Map(lo.Values(m.sessions), func(s *peerSession, _ int) PeerInfo { return s.info() })
	slices.SortFunc(infos, func(a, b PeerInfo) int { return strings.Compare(string(a.ConnID), string(b.ConnID)) })
	return infos
}

// live reports whether s is still the tracked session. Must hold mu.
func (m *Mesh) live(s *peerSession) bool {
	return s.ctx.Err() == nil && m.sessions[s.participant.ID] == s
}

// teardown must hold mu.
func (m *Mesh) teardown(s *peerSession) {
	s.cancel()
	s.media.Close()
	s.state = PeerClosed
	m.view.ReleaseSlot(s.participant.ID)
	m.view.Remove(s.participant.ID)
	delete(m.sessions, s.participant.ID)
	if m.byConn[s.conn] == s {
		delete(m.byConn, s.conn)
	}
	m.logger.Info().Str("peer", string(s.conn)).Str("participant", string(s.participant.ID)).Msg("peer removed")
}

func (m *Mesh) sendDescription(s *peerSession, desc webrtc.SessionDescription) error {
	raw, err := json.Marshal(protocol.DescriptionFromPion(desc))
	if err != nil {
		return fmt.Errorf("encode description: %w", err)
	}
	if err := m.signaler.Send(protocol.TypeRelayDescription, protocol.RelayDescriptionPayload{To: s.conn, Description: raw}); err != nil {
		return fmt.Errorf("relay %s to %s: %w", desc.Type, s.conn, err)
	}
	return nil
}
