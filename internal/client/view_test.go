package client

import (
	"context"
	"testing"
	"time"

	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestView_MembersKeepInsertionOrder(t *testing.T) {
	req := require.New(t)
	v := NewView()
	var changes [][]domain.Participant
	v.OnChange(func(ps []domain.Participant) { changes = append(changes, ps) })

	me, bob, carol := participant(t, "me"), participant(t, "bob"), participant(t, "carol")
	req.True(v.Add(me))
	req.True(v.Add(bob))
	req.True(v.Add(carol))
	req.False(v.Add(bob))
	req.Equal([]domain.Participant{me, bob, carol}, v.Members())

	v.Remove(bob.ID)
	v.Remove(bob.ID)
	req.Equal([]domain.Participant{me, carol}, v.Members())
	req.Len(changes, 4)
	req.Equal([]domain.Participant{me, carol}, changes[3])
}

func TestView_AwaitSlotResolvesWhenProvided(t *testing.T) {
	req := require.New(t)
	v := NewView()
	slot := &recordingSlot{}

	got := make(chan error, 1)
	go func() {
		s, err := v.AwaitSlot(context.Background(), "bob")
		if err == nil && s != slot {
			err = context.DeadlineExceeded
		}
		got <- err
	}()

	time.Sleep(10 * time.Millisecond)
	v.ProvideSlot("bob", slot)
	select {
	case err := <-got:
		req.NoError(err)
	case <-time.After(time.Second):
		t.Fatal("waiter not woken")
	}

	s, err := v.AwaitSlot(context.Background(), "bob")
	req.NoError(err)
	req.Same(slot, s)
}

func TestView_AwaitSlotFailsOnRelease(t *testing.T) {
	v := NewView()
	got := make(chan error, 1)
	go func() {
		_, err := v.AwaitSlot(context.Background(), "bob")
		got <- err
	}()

	require.Eventually(t, func() bool {
		v.mu.Lock()
		defer v.mu.Unlock()
		return len(v.waiters["bob"]) == 1
	}, time.Second, time.Millisecond)
	v.ReleaseSlot("bob")
	require.ErrorIs(t, <-got, ErrSlotReleased)
}

func TestView_AwaitSlotHonoursContext(t *testing.T) {
	v := NewView()
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := v.AwaitSlot(ctx, "bob")
	require.ErrorIs(t, err, context.DeadlineExceeded)

	v.mu.Lock()
	defer v.mu.Unlock()
	require.Empty(t, v.waiters)
}

func TestView_ReleaseSlotClosesCloser(t *testing.T) {
	v := NewView()
	slot := &recordingSlot{}
	v.ProvideSlot("bob", slot)
	require.True(t, v.HasSlot("bob"))

	v.ReleaseSlot("bob")
	require.True(t, slot.isClosed())
	require.False(t, v.HasSlot("bob"))
}
