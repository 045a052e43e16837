// Package orch is the signaling relay: it owns the connection registry and
// the room membership index and serialises every inbound event.
package orch

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrAlreadyJoined = errors.New("already a member of room")
	ErrNotConnected  = errors.New("connection not registered")

	// ErrParticipantMismatch is returned when a joined connection names a
	// different participant; a connection has one identity across rooms.
	ErrParticipantMismatch = errors.New("connection already joined as another participant")
)

type Stats struct {
	Connections  int    `json:"connections"`
	Rooms        int    `json:"rooms"`
	Relayed      uint64 `json:"relayed"`
	Dropped      uint64 `json:"dropped"`
	Backpressure uint64 `json:"backpressure"`
	Kicked       uint64 `json:"kicked"`
}

type stuckSend struct {
	cid domain.ConnID
	typ protocol.MessageType
}

// Orchestrator handles one event at a time: mu is held for the whole event,
// fan-out included, so no other event can observe a half-applied membership
// change.
type Orchestrator struct {
	Registry *app.Registry
	Rooms    *app.RoomManager
	Policy   app.Policy

	mu    sync.Mutex
	stuck []stuckSend

	relayed      atomic.Uint64
	dropped      atomic.Uint64
	backpressure atomic.Uint64
	kicked       atomic.Uint64

	logger zerolog.Logger
}

func New(reg *app.Registry, rooms *app.RoomManager, policy app.Policy) *Orchestrator {
	return &Orchestrator{
		Registry: reg,
		Rooms:    rooms,
		Policy:   policy,
		logger:   log.With().Str("module", "app.orch").Logger(),
	}
}

// Connect records a freshly accepted transport.
func (o *Orchestrator) Connect(cid domain.ConnID, sc core.SignalConnection) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.Registry.BindSignal(cid, sc)
}

func (o *Orchestrator) RoomList() []domain.RoomInfo {
	return o.Rooms.List()
}

func (o *Orchestrator) Stats() Stats {
	return Stats{
		Connections:  o.Registry.ConnCount(),
		Rooms:        len(o.Rooms.List()),
		Relayed:      o.relayed.Load(),
		Dropped:      o.dropped.Load(),
		Backpressure: o.backpressure.Load(),
		Kicked:       o.kicked.Load(),
	}
}

// notify sends to a joined member. Must hold mu.
func (o *Orchestrator) notify(cid domain.ConnID, t protocol.MessageType, payload any) bool {
	sc, ok := o.Registry.Reachable(cid)
	if !ok {
		return false
	}
	o.send(cid, sc, t, payload)
	return true
}

func (o *Orchestrator) send(cid domain.ConnID, sc core.SignalConnection, t protocol.MessageType, payload any) {
	frame, err := protocol.Encode(t, payload)
	if err != nil {
		o.logger.Error().Err(err).Str("conn", string(cid)).Str("type", string(t)).Msg("encode")
		return
	}
	if err := sc.TrySend(frame); err != nil {
		o.backpressure.Add(1)
		o.stuck = append(o.stuck, stuckSend{cid: cid, typ: t})
		o.logger.Warn().Err(err).Str("conn", string(cid)).Str("type", string(t)).Msg("send failed")
	}
}

// settle applies the backpressure policy to sends that failed during the
// current event. Must hold mu.
func (o *Orchestrator) settle() {
	if len(o.stuck) == 0 {
		return
	}
	stuck := o.stuck
	o.stuck = nil
	if o.Policy == nil {
		return
	}
	kicked := make(map[domain.ConnID]struct{})
	for _, s := range stuck {
		if _, done := kicked[s.cid]; done {
			continue
		}
		action := o.Policy.OnBackPressure(s.cid, s.typ)
		o.logger.Debug().Str("conn", string(s.cid)).Str("type", string(s.typ)).Stringer("action", action).Msg("backpressure")
		if action != app.KickMember {
			continue
		}
		kicked[s.cid] = struct{}{}
		// Closing the transport ends its read loop, which reports Disconnect.
		if sc, ok := o.Registry.Signal(s.cid); ok {
			o.kicked.Add(1)
			sc.Close()
			o.logger.Warn().Str("conn", string(s.cid)).Msg("kicked slow member")
		}
	}
}
