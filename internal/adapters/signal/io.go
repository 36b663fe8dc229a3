package signal

import (
	"context"
	"time"

	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const writeWait = 5 * time.Second

func (ctl *SignalWSController) writePump(ctx context.Context, id domain.ConnID, c *WsSignalConn) {
	ticker := time.NewTicker(ctl.opts.PingPeriod)
	defer func() {
		ticker.Stop()
		// Unblocks readPump when the connection is kicked.
		c.Close()
	}()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("module", "signal").Str("conn", string(id)).Msg("writePump ctx done")
			return
		case data, ok := <-c.send:
			if !ok {
				log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("writePump channel closed")
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump write error")
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("writePump ping failed")
				return
			}
		}
	}
}

func (ctl *SignalWSController) readPump(ctx context.Context, cancel context.CancelFunc, id domain.ConnID, c *WsSignalConn) {
	defer func() {
		log.Info().Str("module", "signal").Str("conn", string(id)).Msg("readPump closing")
		cancel()
		c.Close()
		ctl.Orch.Conns.Unbind(id)
		if ctl.Limiter != nil {
			ctl.Limiter.Forget(id)
		}
		// The connection context is gone; the disconnect must still reach the loop.
		if err := ctl.Orch.Submit(context.Background(), id, core.Disconnect{}); err != nil {
			log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("disconnect not delivered")
		}
	}()

	if ctl.opts.ReadLimit > 0 {
		c.conn.SetReadLimit(ctl.opts.ReadLimit)
	}
	_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("readPump read error")
			}
			return
		}
		_ = c.conn.SetReadDeadline(time.Now().Add(ctl.opts.PongWait))
		if err := ctl.handleSignal(ctx, id, c, data); err != nil {
			return
		}
	}
}

// handleSignal decodes one frame and hands it to the dispatcher. Malformed
// frames are dropped; only a dead dispatcher ends the connection.
func (ctl *SignalWSController) handleSignal(ctx context.Context, id domain.ConnID, c *WsSignalConn, data []byte) error {
	if ctl.Limiter != nil && !ctl.Limiter.Allow(id) {
		ctl.Orch.Metrics.Dropped("rate_limited")
		log.Debug().Str("module", "signal").Str("conn", string(id)).Msg("rate limited")
		return nil
	}

	ev, err := core.DecodeInbound(data)
	if err != nil {
		ctl.Orch.Metrics.Dropped("invalid")
		log.Debug().Err(err).Str("module", "signal").Str("conn", string(id)).Msg("bad signal")
		return nil
	}

	if _, ok := ev.(core.Ping); ok {
		ctl.handlePing(c)
		return nil
	}
	return ctl.Orch.Submit(ctx, id, ev)
}

func (ctl *SignalWSController) sendJSON(c *WsSignalConn, v core.Outbound) {
	b, err := core.EncodeOutbound(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	_ = c.TrySend(b)
}
