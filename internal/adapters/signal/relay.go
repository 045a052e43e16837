package signal

import (
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) handleRelayCandidate(cid domain.ConnID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.RelayCandidatePayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad candidate payload")
		ctl.replyError(cid, conn, protocol.CodeBadPayload, err.Error())
		return
	}
	ctl.Orch.RelayCandidate(cid, p.To, p.Candidate)
}

func (ctl *SignalWSController) handleRelayDescription(cid domain.ConnID, conn *WsSignalConn, env protocol.Envelope) {
	var p protocol.RelayDescriptionPayload
	if err := protocol.DecodePayload(env, &p); err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad description payload")
		ctl.replyError(cid, conn, protocol.CodeBadPayload, err.Error())
		return
	}
	ctl.Orch.RelayDescription(cid, p.To, p.Description)
}
