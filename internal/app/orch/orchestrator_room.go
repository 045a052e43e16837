package orch

import (
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
)

// Join introduces cid to every current member of room and every member to
// cid. The newcomer is always the initiator.
func (o *Orchestrator) Join(cid domain.ConnID, room domain.RoomID, p domain.Participant) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.settle()

	if _, ok := o.Registry.Signal(cid); !ok {
		return ErrNotConnected
	}
	if o.Rooms.IsMember(room, cid) {
		o.logger.Warn().Str("conn", string(cid)).Str("room", string(room)).Msg("join: already a member")
		return ErrAlreadyJoined
	}
	if prev, ok := o.Registry.Participant(cid); ok && prev != p {
		o.logger.Warn().Str("conn", string(cid)).Str("room", string(room)).
			Str("participant", string(prev.ID)).Str("requested", string(p.ID)).Msg("join: participant mismatch")
		return ErrParticipantMismatch
	}

	o.Registry.SetParticipant(cid, p)

	// Snapshot before adding cid so it is never introduced to itself.
	for _, member := range o.Rooms.Members(room) {
		remote, ok := o.Registry.Participant(member)
		if !ok {
			continue
		}
		o.notify(member, protocol.TypeAddPeer, protocol.AddPeerPayload{
			PeerConnectionID: cid,
			Initiator:        false,
			RemoteUser:       p,
		})
		o.notify(cid, protocol.TypeAddPeer, protocol.AddPeerPayload{
			PeerConnectionID: member,
			Initiator:        true,
			RemoteUser:       remote,
		})
	}
	o.Rooms.Add(room, cid)

	o.logger.Info().Str("conn", string(cid)).Str("room", string(room)).Str("participant", string(p.ID)).Msg("joined")
	return nil
}

// Leave removes cid from every room it belongs to, un-introducing it from
// each remaining member, then forgets its participant.
func (o *Orchestrator) Leave(cid domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.settle()
	o.leave(cid)
}

// Disconnect is Leave triggered by transport loss; it also drops the
// transport. Safe to call after Leave or more than once.
func (o *Orchestrator) Disconnect(cid domain.ConnID) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.settle()

	o.leave(cid)
	if sc, ok := o.Registry.UnbindSignal(cid); ok {
		sc.Close()
		o.logger.Info().Str("conn", string(cid)).Msg("disconnected")
	}
}

func (o *Orchestrator) leave(cid domain.ConnID) {
	self, known := o.Registry.Participant(cid)
	for _, room := range o.Rooms.RoomsOf(cid) {
		for _, member := range o.Rooms.Members(room) {
			if member == cid {
				continue
			}
			remote, _ := o.Registry.Participant(member)
			o.notify(member, protocol.TypeRemovePeer, protocol.RemovePeerPayload{
				PeerConnectionID: cid,
				RemoteUserID:     self.ID,
			})
			o.notify(cid, protocol.TypeRemovePeer, protocol.RemovePeerPayload{
				PeerConnectionID: member,
				RemoteUserID:     remote.ID,
			})
		}
		o.Rooms.Remove(room, cid)
		o.logger.Info().Str("conn", string(cid)).Str("room", string(room)).Msg("left room")
	}
	if known {
		o.Registry.RemoveParticipant(cid)
	}
}
