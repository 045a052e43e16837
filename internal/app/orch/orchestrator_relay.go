package orch

import (
	"encoding/json"

	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
)

// RelayCandidate forwards candidate verbatim to the target, tagged with the
// sender. Targets that are not joined and live are dropped silently.
// There is no check that sender and target share a room.
func (o *Orchestrator) RelayCandidate(from, to domain.ConnID, candidate json.RawMessage) {
	o.relay(from, to, protocol.TypeCandidate, protocol.CandidatePayload{
		Origin:    from,
		Candidate: candidate,
	})
}

// RelayDescription forwards an offer or answer verbatim to the target.
func (o *Orchestrator) RelayDescription(from, to domain.ConnID, description json.RawMessage) {
	o.relay(from, to, protocol.TypeDescription, protocol.DescriptionPayload{
		Origin:      from,
		Description: description,
	})
}

func (o *Orchestrator) relay(from, to domain.ConnID, t protocol.MessageType, payload any) {
	o.mu.Lock()
	defer o.mu.Unlock()
	defer o.settle()

	if !o.notify(to, t, payload) {
		o.dropped.Add(1)
		o.logger.Debug().Str("from", string(from)).Str("to", string(to)).Str("type", string(t)).Msg("relay target gone, dropped")
		return
	}
	o.relayed.Add(1)
}
