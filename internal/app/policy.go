package app

import (
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
)

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	DropMessage
	KickMember
)

func (a BackpressureAction) String() string {
	switch a {
	case DropMessage:
		return "drop"
	case KickMember:
		return "kick"
	default:
		return "none"
	}
}

// Policy decides what happens to a connection whose send queue is full.
type Policy interface {
	OnBackPressure(cid domain.ConnID, t protocol.MessageType) BackpressureAction
}

// SimplePolicy kicks members that miss an add-peer or remove-peer.
// Candidates and descriptions are best-effort.
type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(_ domain.ConnID, t protocol.MessageType) BackpressureAction {
	switch t {
	case protocol.TypeAddPeer, protocol.TypeRemovePeer:
		return KickMember
	case protocol.TypeCandidate, protocol.TypeDescription:
		return DropMessage
	default:
		return NoAction
	}
}
