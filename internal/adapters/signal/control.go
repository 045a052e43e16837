package signal

import (
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
)

func (ctl *SignalWSController) handlePing(cid domain.ConnID, conn *WsSignalConn) {
	ctl.reply(cid, conn, protocol.TypePong, nil)
}
