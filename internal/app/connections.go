package app

import (
	"context"
	"sync"

	"github.com/dkeye/Callhub/internal/core"
	"github.com/dkeye/Callhub/internal/domain"
	"github.com/rs/zerolog/log"
)

type connEntry struct {
	Signal core.SignalConnection
	Cancel context.CancelFunc
}

// Connections maps live transport connections to their send side. Written
// by transport goroutines, read by the dispatcher.
type Connections struct {
	mu    sync.RWMutex
	conns map[domain.ConnID]*connEntry
}

func NewConnections() *Connections {
	return &Connections{
		conns: make(map[domain.ConnID]*connEntry),
	}
}

func (r *Connections) Bind(id domain.ConnID, sc core.SignalConnection, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.conns[id] = &connEntry{Signal: sc, Cancel: cancel}
	log.Info().Str("module", "app.connections").Str("conn", string(id)).Msg("bound connection")
}

func (r *Connections) Get(id domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.conns[id]; ok {
		return e.Signal, true
	}
	return nil, false
}

func (r *Connections) Unbind(id domain.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.conns, id)
	log.Info().Str("module", "app.connections").Str("conn", string(id)).Msg("unbind connection")
}

func (r *Connections) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.conns)
}

// Cancel stops the connection's pumps; the transport then reports a
// regular disconnect.
func (r *Connections) Cancel(id domain.ConnID) bool {
	r.mu.RLock()
	e, ok := r.conns[id]
	r.mu.RUnlock()
	if !ok {
		return false
	}
	if e.Cancel != nil {
		e.Cancel()
	}
	log.Info().Str("module", "app.connections").Str("conn", string(id)).Msg("canceled connection")
	return true
}
