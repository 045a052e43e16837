package app

import (
	"slices"
	"sync"

	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/samber/lo"
)

// RoomManager is the room membership index. A room exists only while its
// member set is non-empty.
type RoomManager struct {
	mu     sync.RWMutex
	rooms  map[domain.RoomID]map[domain.ConnID]struct{}
	byConn map[domain.ConnID]map[domain.RoomID]struct{}
}

func NewRoomManager() *RoomManager {
	return &RoomManager{
		rooms:  make(map[domain.RoomID]map[domain.ConnID]struct{}),
		byConn: make(map[domain.ConnID]map[domain.RoomID]struct{}),
	}
}

// Add returns false if cid was already a member of room.
func (m *RoomManager) Add(room domain.RoomID, cid domain.ConnID) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	members, ok := m.rooms[room]
	if !ok {
		members = make(map[domain.ConnID]struct{})
		m.rooms[room] = members
	}
	if _, ok := members[cid]; ok {
		return false
	}
	members[cid] = struct{}{}

	joined, ok := m.byConn[cid]
	if !ok {
		joined = make(map[domain.RoomID]struct{})
		m.byConn[cid] = joined
	}
	joined[room] = struct{}{}
	return true
}

func (m *RoomManager) Remove(room domain.RoomID, cid domain.ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if members, ok := m.rooms[room]; ok {
		delete(members, cid)
		if len(members) == 0 {
			delete(m.rooms, room)
		}
	}
	if joined, ok := m.byConn[cid]; ok {
		delete(joined, room)
		if len(joined) == 0 {
			delete(m.byConn, cid)
		}
	}
}

func (m *RoomManager) IsMember(room domain.RoomID, cid domain.ConnID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.rooms[room][cid]
	return ok
}

// Members returns a sorted snapshot of the room.
func (m *RoomManager) Members(room domain.RoomID) []domain.ConnID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Keys(m.rooms[room])
	slices.Sort(out)
	return out
}

// RoomsOf returns a sorted snapshot of the rooms cid belongs to.
func (m *RoomManager) RoomsOf(cid domain.ConnID) []domain.RoomID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := lo.Keys(m.byConn[cid])
	slices.Sort(out)
	return out
}

func (m *RoomManager) List() []domain.RoomInfo {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]domain.RoomInfo, 0, len(m.rooms))
	for id, members := range m.rooms {
		out = append(out, domain.RoomInfo{ID: id, MemberCount: len(members)})
	}
	slices.SortFunc(out, func(a, b domain.RoomInfo) int {
		if a.ID < b.ID {
			return -1
		}
		if a.ID > b.ID {
			return 1
		}
		return 0
	})
	return out
}
