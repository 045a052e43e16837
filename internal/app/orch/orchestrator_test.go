package orch

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/dkeye/VoiceMesh/internal/app"
	"github.com/dkeye/VoiceMesh/internal/core"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/dkeye/VoiceMesh/internal/protocol"
	"github.com/stretchr/testify/require"
)

var (
	errFull   = errors.New("full")
	errClosed = errors.New("closed")
)

type fakeSignal struct {
	mu     sync.Mutex
	frames []core.Frame
	full   bool
	closed bool
}

func (f *fakeSignal) TrySend(fr core.Frame) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return errClosed
	}
	if f.full {
		return errFull
	}
	f.frames = append(f.frames, fr)
	return nil
}

func (f *fakeSignal) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
}

func (f *fakeSignal) reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.frames = nil
}

func (f *fakeSignal) envelopes(t *testing.T) []protocol.Envelope {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]protocol.Envelope, 0, len(f.frames))
	for _, fr := range f.frames {
		env, err := protocol.Decode(fr)
		require.NoError(t, err)
		out = append(out, env)
	}
	return out
}

func (f *fakeSignal) addPeers(t *testing.T) []protocol.AddPeerPayload {
	t.Helper()
	var out []protocol.AddPeerPayload
	for _, env := range f.envelopes(t) {
		if env.Type != protocol.TypeAddPeer {
			continue
		}
		var p protocol.AddPeerPayload
		require.NoError(t, protocol.DecodePayload(env, &p))
		out = append(out, p)
	}
	return out
}

func (f *fakeSignal) removePeers(t *testing.T) []protocol.RemovePeerPayload {
	t.Helper()
	var out []protocol.RemovePeerPayload
	for _, env := range f.envelopes(t) {
		if env.Type != protocol.TypeRemovePeer {
			continue
		}
		var p protocol.RemovePeerPayload
		require.NoError(t, protocol.DecodePayload(env, &p))
		out = append(out, p)
	}
	return out
}

type harness struct {
	o     *Orchestrator
	conns map[domain.ConnID]*fakeSignal
}

func newHarness() *harness {
	return &harness{
		o:     New(app.NewRegistry(), app.NewRoomManager(), app.SimplePolicy{}),
		conns: make(map[domain.ConnID]*fakeSignal),
	}
}

func (h *harness) connect(cid domain.ConnID) *fakeSignal {
	sc := &fakeSignal{}
	h.conns[cid] = sc
	h.o.Connect(cid, sc)
	return sc
}

func (h *harness) join(t *testing.T, cid domain.ConnID, room domain.RoomID) *fakeSignal {
	t.Helper()
	sc, ok := h.conns[cid]
	if !ok {
		sc = h.connect(cid)
	}
	require.NoError(t, h.o.Join(cid, room, participantFor(cid)))
	return sc
}

func (h *harness) resetAll() {
	for _, sc := range h.conns {
		sc.reset()
	}
}

func participantFor(cid domain.ConnID) domain.Participant {
	return domain.Participant{ID: domain.ParticipantID("user-" + cid), DisplayName: string(cid)}
}

func TestJoin_NewcomerIsInitiatorForEveryExistingMember(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	// Given B and C are in the room
	b := h.join(t, "B", "r1")
	c := h.join(t, "C", "r1")
	h.resetAll()

	// When A joins
	a := h.join(t, "A", "r1")

	// Then A is introduced to B and C as initiator
	aAdds := a.addPeers(t)
	req.Len(aAdds, 2)
	req.Equal(domain.ConnID("B"), aAdds[0].PeerConnectionID)
	req.Equal(domain.ConnID("C"), aAdds[1].PeerConnectionID)
	for _, add := range aAdds {
		req.True(add.Initiator)
		req.Equal(participantFor(add.PeerConnectionID), add.RemoteUser)
	}

	// And B and C each learn about A as responder
	for _, sc := range []*fakeSignal{b, c} {
		adds := sc.addPeers(t)
		req.Len(adds, 1)
		req.Equal(domain.ConnID("A"), adds[0].PeerConnectionID)
		req.False(adds[0].Initiator)
		req.Equal(participantFor("A"), adds[0].RemoteUser)
	}
	req.Equal([]domain.ConnID{"A", "B", "C"}, h.o.Rooms.Members("r1"))
}

func TestJoin_EveryPairIntroducedExactlyOnceWithOneInitiator(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	ids := []domain.ConnID{"c1", "c2", "c3", "c4", "c5", "c6"}
	for _, id := range ids {
		h.join(t, id, "mesh")
	}

	type pair struct{ a, b domain.ConnID }
	seen := make(map[pair]int)
	initiators := make(map[pair]int)
	for _, self := range ids {
		for _, add := range h.conns[self].addPeers(t) {
			req.NotEqual(self, add.PeerConnectionID, "introduced to itself")
			a, b := self, add.PeerConnectionID
			if b < a {
				a, b = b, a
			}
			seen[pair{a, b}]++
			if add.Initiator {
				initiators[pair{a, b}]++
			}
		}
	}

	req.Len(seen, len(ids)*(len(ids)-1)/2)
	for p, n := range seen {
		req.Equal(2, n, "pair %v must be introduced once on each side", p)
		req.Equal(1, initiators[p], "pair %v must have exactly one initiator", p)
	}
}

func TestJoin_RejectsDuplicateMembership(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	h.join(t, "A", "r1")
	b := h.join(t, "B", "r1")
	h.resetAll()

	err := h.o.Join("B", "r1", participantFor("B"))
	req.ErrorIs(err, ErrAlreadyJoined)
	req.Empty(b.envelopes(t))
	req.Empty(h.conns["A"].envelopes(t))
	req.Len(h.o.Rooms.Members("r1"), 2)
}

func TestJoin_SecondRoomKeepsIdentity(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	a := h.join(t, "A", "r1")
	h.join(t, "B", "r1")
	h.connect("C")
	req.NoError(h.o.Join("C", "r2", participantFor("C")))
	h.resetAll()

	// Given A is in r1 as user-A, when A joins r2 claiming another identity
	impostor := domain.Participant{ID: "someone-else", DisplayName: "mallory"}
	err := h.o.Join("A", "r2", impostor)

	// Then the join is refused and nothing changes
	req.ErrorIs(err, ErrParticipantMismatch)
	req.Empty(a.envelopes(t))
	req.Empty(h.conns["C"].envelopes(t))
	req.Equal([]domain.ConnID{"C"}, h.o.Rooms.Members("r2"))
	got, ok := h.o.Registry.Participant("A")
	req.True(ok)
	req.Equal(participantFor("A"), got)

	// And the same identity may join the second room
	req.NoError(h.o.Join("A", "r2", participantFor("A")))
	req.Len(h.conns["C"].addPeers(t), 1)
}

func TestJoin_ConcurrentJoinsNeverTearFanOut(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	const n = 40
	ids := make([]domain.ConnID, 0, n)
	for i := 0; i < n; i++ {
		id := domain.ConnID(fmt.Sprintf("c%02d", i))
		ids = append(ids, id)
		h.connect(id)
	}

	var wg sync.WaitGroup
	errs := make(chan error, n)
	for _, id := range ids {
		wg.Add(1)
		go func(id domain.ConnID) {
			defer wg.Done()
			errs <- h.o.Join(id, "mesh", participantFor(id))
		}(id)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		req.NoError(err)
	}

	type pair struct{ a, b domain.ConnID }
	seen := make(map[pair]int)
	initiators := make(map[pair]int)
	for _, self := range ids {
		for _, add := range h.conns[self].addPeers(t) {
			req.NotEqual(self, add.PeerConnectionID)
			a, b := self, add.PeerConnectionID
			if b < a {
				a, b = b, a
			}
			seen[pair{a, b}]++
			if add.Initiator {
				initiators[pair{a, b}]++
			}
		}
	}

	req.Len(seen, n*(n-1)/2)
	for p, count := range seen {
		req.Equal(2, count, "pair %v must be introduced once on each side", p)
		req.Equal(1, initiators[p], "pair %v must have exactly one initiator", p)
	}
	req.Len(h.o.Rooms.Members("mesh"), n)
}

func TestJoin_UnknownConnection(t *testing.T) {
	h := newHarness()
	err := h.o.Join("ghost", "r1", participantFor("ghost"))
	require.ErrorIs(t, err, ErrNotConnected)
	require.Empty(t, h.o.RoomList())
}

func TestLeave_UnintroducesBothWays(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	a := h.join(t, "A", "r1")
	b := h.join(t, "B", "r1")
	c := h.join(t, "C", "r1")
	h.resetAll()

	// When A leaves
	h.o.Leave("A")

	// Then B and C each get one remove-peer naming A
	for _, sc := range []*fakeSignal{b, c} {
		removes := sc.removePeers(t)
		req.Len(removes, 1)
		req.Equal(protocol.RemovePeerPayload{PeerConnectionID: "A", RemoteUserID: "user-A"}, removes[0])
	}
	// And A gets one per remaining member
	req.Equal([]protocol.RemovePeerPayload{
		{PeerConnectionID: "B", RemoteUserID: "user-B"},
		{PeerConnectionID: "C", RemoteUserID: "user-C"},
	}, a.removePeers(t))

	req.Equal([]domain.ConnID{"B", "C"}, h.o.Rooms.Members("r1"))
	_, ok := h.o.Registry.Participant("A")
	req.False(ok)

	// And relay traffic addressed to A is dropped, not errored
	a.reset()
	h.o.RelayCandidate("B", "A", json.RawMessage(`{"candidate":"x"}`))
	h.o.RelayDescription("C", "A", json.RawMessage(`{"type":"offer","sdp":"v=0"}`))
	req.Empty(a.envelopes(t))
	req.Equal(uint64(2), h.o.Stats().Dropped)
}

func TestLeave_LastMemberRemovesRoom(t *testing.T) {
	h := newHarness()
	a := h.join(t, "A", "solo")
	h.o.Leave("A")
	require.Empty(t, a.removePeers(t))
	require.Empty(t, h.o.RoomList())
}

func TestLeave_EveryRoom(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	h.join(t, "A", "r1")
	h.join(t, "A", "r2")
	b := h.join(t, "B", "r1")
	c := h.join(t, "C", "r2")
	h.resetAll()

	h.o.Leave("A")

	req.Len(b.removePeers(t), 1)
	req.Len(c.removePeers(t), 1)
	req.Len(h.conns["A"].removePeers(t), 2)
	req.Empty(h.o.Rooms.RoomsOf("A"))
}

func TestDisconnect_AfterLeaveIsSilent(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	a := h.join(t, "A", "r1")
	b := h.join(t, "B", "r1")
	h.o.Leave("A")
	h.resetAll()

	h.o.Disconnect("A")
	h.o.Disconnect("A")

	req.Empty(a.envelopes(t))
	req.Empty(b.envelopes(t))
	req.True(a.closed)
	_, ok := h.o.Registry.Signal("A")
	req.False(ok)
}

func TestDisconnect_ActsAsLeave(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	h.join(t, "A", "r1")
	b := h.join(t, "B", "r1")
	h.resetAll()

	h.o.Disconnect("A")

	req.Equal([]protocol.RemovePeerPayload{{PeerConnectionID: "A", RemoteUserID: "user-A"}}, b.removePeers(t))
	req.Equal([]domain.ConnID{"B"}, h.o.Rooms.Members("r1"))
}

func TestRelay_ForwardsVerbatimWithOrigin(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	h.join(t, "A", "r1")
	b := h.join(t, "B", "r1")
	h.resetAll()

	raw := json.RawMessage(`{"candidate":"candidate:1 1 udp 2122260223 192.168.1.2 54321 typ host","sdpMid":"0","sdpMLineIndex":0}`)
	h.o.RelayCandidate("A", "B", raw)
	h.o.RelayDescription("A", "B", json.RawMessage(`{"type":"offer","sdp":"v=0\r\n"}`))

	envs := b.envelopes(t)
	req.Len(envs, 2)

	var cand protocol.CandidatePayload
	req.Equal(protocol.TypeCandidate, envs[0].Type)
	req.NoError(protocol.DecodePayload(envs[0], &cand))
	req.Equal(domain.ConnID("A"), cand.Origin)
	req.JSONEq(string(raw), string(cand.Candidate))

	var desc protocol.DescriptionPayload
	req.Equal(protocol.TypeDescription, envs[1].Type)
	req.NoError(protocol.DecodePayload(envs[1], &desc))
	req.Equal(domain.ConnID("A"), desc.Origin)
	req.Equal(uint64(2), h.o.Stats().Relayed)
}

func TestRelay_UnknownTargetLeavesOtherRoomsAlone(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	h.join(t, "A", "r1")
	h.join(t, "B", "r1")
	h.join(t, "C", "r2")
	before := h.o.RoomList()
	h.resetAll()

	h.o.RelayCandidate("A", "nobody", json.RawMessage(`{"candidate":"x"}`))

	req.Equal(before, h.o.RoomList())
	for id, sc := range h.conns {
		req.Empty(sc.envelopes(t), "conn %s", id)
	}
	req.Equal(uint64(1), h.o.Stats().Dropped)
}

func TestBackpressure_KicksMemberThatMissedIntroduction(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	b := h.join(t, "B", "r1")
	b.full = true

	h.join(t, "A", "r1")

	req.True(b.closed)
	req.Equal(uint64(1), h.o.Stats().Kicked)

	// The adapter's read loop reports the loss; the mesh is unwound.
	h.conns["A"].reset()
	h.o.Disconnect("B")
	req.Equal([]protocol.RemovePeerPayload{{PeerConnectionID: "B", RemoteUserID: "user-B"}}, h.conns["A"].removePeers(t))
}

func TestBackpressure_DropsRelayTraffic(t *testing.T) {
	req := require.New(t)
	h := newHarness()

	h.join(t, "A", "r1")
	b := h.join(t, "B", "r1")
	b.full = true

	h.o.RelayCandidate("A", "B", json.RawMessage(`{"candidate":"x"}`))

	req.False(b.closed)
	req.Equal(uint64(1), h.o.Stats().Backpressure)
	req.Zero(h.o.Stats().Kicked)
}

func TestStats_CountsRoomsAndConnections(t *testing.T) {
	h := newHarness()
	for i := 0; i < 3; i++ {
		h.join(t, domain.ConnID(fmt.Sprintf("c%d", i)), domain.RoomID(fmt.Sprintf("r%d", i%2)))
	}
	h.connect("idle")

	st := h.o.Stats()
	require.Equal(t, 4, st.Connections)
	require.Equal(t, 2, st.Rooms)
}
