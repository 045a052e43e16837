package main

import (
	"fmt"

	"github.com/dkeye/VoiceMesh/internal/client"
	"github.com/dkeye/VoiceMesh/internal/domain"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/samber/lo"
)

func renderMembers(self domain.ParticipantID, members []domain.Participant, sessions []client.PeerInfo) string {
	byID := lo.KeyBy(sessions, func(s client.PeerInfo) domain.ParticipantID { return s.Participant.ID })

	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetTitle("Room members")
	t.AppendHeader(table.Row{"#", "Name", "Connection", "State"})
	for i, m := range members {
		name, conn, state := m.DisplayName, "-", "-"
		if m.ID == self {
			name += " (you)"
			state = "local"
		} else if s, ok := byID[m.ID]; ok {
			conn = string(s.ConnID)
			state = s.State.String()
		}
		t.AppendRow(table.Row{i + 1, name, conn, state})
	}
	return t.Render()
}

func renderRooms(rooms []domain.RoomInfo) string {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Room", "Members"})
	for _, r := range rooms {
		t.AppendRow(table.Row{r.ID, r.MemberCount})
	}
	t.AppendFooter(table.Row{"Total", fmt.Sprint(len(rooms))})
	return t.Render()
}
