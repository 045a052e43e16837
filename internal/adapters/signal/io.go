package signal

import (
	"context"
	"time"

	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

func (ctl *SignalWSController) writePump(ctx context.Context, cid domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.cfg.PingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case <-ctx.Done():
			log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump ctx done")
			_ = c.conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""), time.Now().Add(ctl.cfg.WriteWait))
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(cid)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(ctl.cfg.WriteWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("writePump ping")
				return
			}
		}
	}
}

// readPump owns the connection lifetime: when it returns the relay sees a
// disconnect.
func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, cid domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump closing")
		ctl.Orch.Disconnect(cid)
		ctl.limiter.Forget(cid)
		cancel()
		c.Close()
	}()

	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
	})

	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(cid)).Msg("readPump ctx done")
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
					log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("readPump read error")
				}
				return
			}
			_ = c.conn.SetReadDeadline(time.Now().Add(ctl.cfg.PongWait))
			ctl.handleSignal(cid, c, data)
		}
	}
}

func (ctl *SignalWSController) handleSignal(cid domain.ConnID, c *WsSignalConn, data []byte) {
	if !ctl.limiter.Allow(cid) {
		log.Warn().Str("module", "signal").Str("conn", string(cid)).Msg("rate limited")
		ctl.replyError(cid, c, protocol.CodeRateLimited, "too many messages")
		return
	}

	env, err := protocol.Decode(data)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("bad json")
		ctl.replyError(cid, c, protocol.CodeBadPayload, err.Error())
		return
	}

	switch env.Type {
	case protocol.TypeJoin:
		ctl.handleJoin(cid, c, env)
	case protocol.TypeLeave:
		ctl.handleLeave(cid)
	case protocol.TypeRelayCandidate:
		ctl.handleRelayCandidate(cid, c, env)
	case protocol.TypeRelayDescription:
		ctl.handleRelayDescription(cid, c, env)
	case protocol.TypePing:
		ctl.handlePing(cid, c)
	default:
		log.Warn().Str("module", "signal").Str("conn", string(cid)).Str("type", string(env.Type)).Msg("unknown signal")
		ctl.replyError(cid, c, protocol.CodeUnknownType, string(env.Type))
	}
}

func (ctl *SignalWSController) reply(cid domain.ConnID, c *WsSignalConn, t protocol.MessageType, payload any) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Str("conn", string(cid)).Msg("reply encode")
		return
	}
	if err := c.TrySend(frame); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("conn", string(cid)).Str("type", string(t)).Msg("reply dropped")
	}
}

func (ctl *SignalWSController) replyError(cid domain.ConnID, c *WsSignalConn, code, msg string) {
	ctl.reply(cid, c, protocol.TypeError, protocol.ErrorPayload{Code: code, Message: msg})
}
