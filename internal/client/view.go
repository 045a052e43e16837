package client

import (
	"context"
	"errors"
	"io"
	"slices"
	"sync"

	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

var ErrSlotReleased = errors.New("slot released before it was provided")

// View is the client's picture of the room: who is in it, in join order, and
// where each remote participant's audio goes.
type View struct {
	mu      sync.Mutex
	members []domain.Participant
	slots   map[domain.ParticipantID]core.Slot
	waiters map[domain.ParticipantID][]chan core.Slot
	subs    []func([]domain.Participant)
}

func NewView() *View {
	return &View{
		slots:   make(map[domain.ParticipantID]core.Slot),
		waiters: make(map[domain.ParticipantID][]chan core.Slot),
	}
}

// Add appends p; false when p is already listed.
func (v *View) Add(p domain.Participant) bool {
	v.mu.Lock()
	if lo.ContainsBy(v.members, func(m domain.Participant) bool { return m.ID == p.ID }) {
		v.mu.Unlock()
		return false
	}
	v.members = append(v.members, p)
	snapshot, subs := v.snapshotLocked()
	v.mu.Unlock()

	notify(subs, snapshot)
	return true
}

func (v *View) Remove(id domain.ParticipantID) {
	v.mu.Lock()
	before := len(v.members)
	v.members = slices.DeleteFunc(v.members, func(m domain.Participant) bool { return m.ID == id })
	if len(v.members) == before {
		v.mu.Unlock()
		return
	}
	snapshot, subs := v.snapshotLocked()
	v.mu.Unlock()

	notify(subs, snapshot)
}

func (v *View) Members() []domain.Participant {
	v.mu.Lock()
	defer v.mu.Unlock()
	return slices.Clone(v.members)
}

// OnChange registers fn to receive the member list after every change.
func (v *View) OnChange(fn func([]domain.Participant)) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.subs = append(v.subs, fn)
}

func (v *View) HasSlot(id domain.ParticipantID) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	_, ok := v.slots[id]
	return ok
}

// ProvideSlot registers where id's audio is rendered and wakes its waiters.
func (v *View) ProvideSlot(id domain.ParticipantID, slot core.Slot) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.slots[id] = slot
	for _, ch := range v.waiters[id] {
		ch <- slot
	}
	delete(v.waiters, id)
}

// AwaitSlot blocks until id's slot is provided, released, or ctx is done.
func (v *View) AwaitSlot(ctx context.Context, id domain.ParticipantID) (core.Slot, error) {
	v.mu.Lock()
	if slot, ok := v.slots[id]; ok {
		v.mu.Unlock()
		return slot, nil
	}
	ch := make(chan core.Slot, 1)
	v.waiters[id] = append(v.waiters[id], ch)
	v.mu.Unlock()

	select {
	case slot, ok := <-ch:
		if !ok {
			return nil, ErrSlotReleased
		}
		return slot, nil
	case <-ctx.Done():
		v.mu.Lock()
		v.waiters[id] = slices.DeleteFunc(v.waiters[id], func(c chan core.Slot) bool { return c == ch })
		if len(v.waiters[id]) == 0 {
			delete(v.waiters, id)
		}
		v.mu.Unlock()
		return nil, ctx.Err()
	}
}

// ReleaseSlot forgets id's slot, closing it when it is an io.Closer, and
// fails pending waiters with ErrSlotReleased.
func (v *View) ReleaseSlot(id domain.ParticipantID) {
	v.mu.Lock()
	slot, ok := v.slots[id]
	delete(v.slots, id)
	for _, ch := range v.waiters[id] {
		close(ch)
	}
	delete(v.waiters, id)
	v.mu.Unlock()

	if !ok {
		return
	}
	if c, isCloser := slot.(io.Closer); isCloser {
		if err := c.Close(); err != nil {
			log.Warn().Err(err).Str("module", "client.view").Str("participant", string(id)).Msg("slot close")
		}
	}
}

func (v *View) snapshotLocked() ([]domain.Participant, []func([]domain.Participant)) {
	return slices.Clone(v.members), slices.Clone(v.subs)
}

func notify(subs []func([]domain.Participant), members []domain.Participant) {
	for _, fn := range subs {
		fn(members)
	}
}
