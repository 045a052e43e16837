package app

import (
	"sync"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/rs/zerolog/log"
)

// Registry is the connection table of the relay.
// signals holds every live transport; participants holds the identity a
// connection announced on join and is cleared on leave/disconnect.
type Registry struct {
	mu           sync.RWMutex
	signals      map[domain.ConnID]core.SignalConnection
	participants map[domain.ConnID]domain.Participant
}

func NewRegistry() *Registry {
	return &Registry{
		signals:      make(map[domain.ConnID]core.SignalConnection),
		participants: make(map[domain.ConnID]domain.Participant),
	}
}

func (r *Registry) BindSignal(cid domain.ConnID, sc core.SignalConnection) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signals[cid] = sc
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("bound signal")
}

func (r *Registry) UnbindSignal(cid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	sc, ok := r.signals[cid]
	if ok {
		delete(r.signals, cid)
		log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("unbind signal")
	}
	return sc, ok
}

func (r *Registry) Signal(cid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sc, ok := r.signals[cid]
	return sc, ok
}

func (r *Registry) SetParticipant(cid domain.ConnID, p domain.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.participants[cid] = p
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Str("participant", string(p.ID)).Msg("set participant")
}

func (r *Registry) Participant(cid domain.ConnID) (domain.Participant, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.participants[cid]
	return p, ok
}

// RemoveParticipant reports whether an entry existed.
func (r *Registry) RemoveParticipant(cid domain.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.participants[cid]; !ok {
		return false
	}
	delete(r.participants, cid)
	log.Info().Str("module", "app.registry").Str("conn", string(cid)).Msg("removed participant")
	return true
}

// Reachable is true for joined connections whose transport is still live.
func (r *Registry) Reachable(cid domain.ConnID) (core.SignalConnection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if _, ok := r.participants[cid]; !ok {
		return nil, false
	}
	sc, ok := r.signals[cid]
	return sc, ok
}

func (r *Registry) ConnCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.signals)
}
