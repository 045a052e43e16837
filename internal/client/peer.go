package client

import (
	"context"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
)

type PeerState int

const (
	PeerConnecting PeerState = iota
	PeerNegotiating
	PeerEstablished
	PeerClosed
)

func (s PeerState) String() string {
	switch s {
	case PeerConnecting:
		return "connecting"
	case PeerNegotiating:
		return "negotiating"
	case PeerEstablished:
		return "established"
	case PeerClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// PeerInfo is a read-only view of one peer session.
type PeerInfo struct {
	Participant domain.Participant
	ConnID      domain.ConnID
	State       PeerState
	Initiator   bool
}

type peerSession struct {
	participant domain.Participant
	conn        domain.ConnID
	media       core.MediaConnection
	initiator   bool
	state       PeerState

	ctx    context.Context
	cancel context.CancelFunc
}

func (s *peerSession) info() PeerInfo {
	return PeerInfo{
		Participant: s.participant,
		ConnID:      s.conn,
		State:       s.state,
		Initiator:   s.initiator,
	}
}
