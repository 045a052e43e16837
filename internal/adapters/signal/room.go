package signal

import (
	"errors"

	"github.com/dkeye/VoiceMesh/internal/app/orch"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleJoin(cid domain.ConnID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.JoinPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad join payload")
		ctl.replyError(cid, conn, protocol.CodeBadPayload, err.Error())
		return
	}

	log.Info().Str("module", "signal").Str("conn", string(cid)).Str("room", string(p.RoomID)).Str("participant", string(p.Participant.ID)).Msg("join")
	err := ctl.Orch.Join(cid, p.RoomID, p.Participant)
	switch {
	case err == nil:
	case errors.Is(err, orch.ErrAlreadyJoined):
		ctl.replyError(cid, conn, protocol.CodeAlreadyJoined, string(p.RoomID))
	case errors.Is(err, orch.ErrParticipantMismatch):
		ctl.replyError(cid, conn, protocol.CodeParticipantMismatch, string(p.Participant.ID))
	case errors.Is(err, orch.ErrNotConnected):
		ctl.replyError(cid, conn, protocol.CodeNotConnected, err.Error())
	default:
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("join failed")
	}
}

// handleLeave leaves every room; the connection itself stays open.
func (ctl *SignalWSController) handleLeave(cid domain.ConnID) {
	log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("leave")
	ctl.Orch.Leave(cid)
}
