package client

import (
	"context"
	"errors"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/rs/zerolog"
)

// playout lists the sender in the view, waits for its slot and copies RTP
// from the remote track into it until the session ends.
func (m *Mesh) playout(ctx context.Context, s *peerSession, src core.RTPSource) {
	logger := m.logger.With().Str("participant", string(s.participant.ID)).Str("track", src.ID()).Logger()

	// Listing happens under the mesh lock so a concurrent teardown either
	// sees the participant and removes it, or this track is ignored.
	m.mu.Lock()
	if !m.live(s) {
		m.mu.Unlock()
		logger.Debug().Msg("track for closed session ignored")
		return
	}
	m.view.Add(s.participant)
	m.mu.Unlock()

	slot, err := m.view.AwaitSlot(ctx, s.participant.ID)
	if err != nil {
		if !errors.Is(err, context.Canceled) {
			logger.Warn().Err(err).Msg("no slot for remote audio")
		}
		return
	}
	logger.Info().Msg("playout started")
	pump(ctx, src, slot, &logger)
}

func pump(ctx context.Context, src core.RTPSource, slot core.Slot, logger *zerolog.Logger) {
	for {
		select {
		case <-ctx.Done():
			logger.Info().Msg("playout ctx done")
			return
		default:
		}
		pkt, err := src.ReadRTP()
		if err != nil {
			logger.Debug().Err(err).Msg("remote track ended")
			return
		}
		if err := slot.WriteRTP(pkt); err != nil {
			logger.Error().Err(err).Msg("slot write failed, stopping")
			return
		}
	}
}
