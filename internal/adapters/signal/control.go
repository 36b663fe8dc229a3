package signal

import "github.com/dkeye/Callhub/internal/core"

// handlePing answers application-level pings without involving the dispatcher.
func (ctl *SignalWSController) handlePing(
	conn *WsSignalConn,
) {
	ctl.sendJSON(conn, core.Pong{})
}
