package ui

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	prettytable "github.com/jedib0t/go-pretty/v6/table"

	"github.com/BioHazard786/callrelay/internal/signaling"
)

const unbound = "(unbound)"

func memberName(m signaling.MemberView) string {
	if m.Identity == "" {
		return unbound
	}
	return m.Identity
}

func shortHandle(h string) string {
	if len(h) > 8 {
		return h[:8]
	}
	return h
}

// RosterView renders the live room roster with lipgloss/table.
func RosterView(snap signaling.Snapshot) string {
	if len(snap.Rooms) == 0 {
		return MutedStyle.Render("No active rooms")
	}

	var rows [][]string
	for _, r := range snap.Rooms {
		names := make([]string, len(r.Members))
		for i, m := range r.Members {
			names[i] = memberName(m)
		}
		rows = append(rows, []string{r.ID, fmt.Sprintf("%d", len(r.Members)), strings.Join(names, ", ")})
	}

	tbl := table.New().
		Border(lipgloss.NormalBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(Accent)).
		Headers("Room", "Members", "Who").
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			switch {
			case row == table.HeaderRow:
				return TableHeaderStyle
			case row%2 == 0:
				return TableRowStyle
			default:
				return TableRowAltStyle
			}
		})

	return tbl.Render()
}

// RenderRooms writes a one-shot rooms report with go-pretty, one row per
// member.
func RenderRooms(w io.Writer, snap signaling.Snapshot) {
	t := prettytable.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(prettytable.StyleRounded)
	t.AppendHeader(prettytable.Row{"Room", "Identity", "Handle"})

	for i, r := range snap.Rooms {
		if i > 0 {
			t.AppendSeparator()
		}
		for _, m := range r.Members {
			t.AppendRow(prettytable.Row{r.ID, memberName(m), shortHandle(string(m.Handle))})
		}
	}

	t.AppendFooter(prettytable.Row{
		fmt.Sprintf("%d rooms", len(snap.Rooms)),
		fmt.Sprintf("%d identities", snap.Identities),
		fmt.Sprintf("%d connections", snap.Connections),
	})
	t.SetColumnConfigs([]prettytable.ColumnConfig{{Number: 1, AutoMerge: true}})
	t.Render()
}

// JoinedView summarizes a join acknowledgment.
func JoinedView(roomID, self string, existing []*string) string {
	var peers []string
	for _, e := range existing {
		if e == nil {
			peers = append(peers, MutedStyle.Render(unbound))
			continue
		}
		peers = append(peers, PeerStyle.Render(*e))
	}
	who := MutedStyle.Render("nobody yet")
	if len(peers) > 0 {
		who = strings.Join(peers, ", ")
	}

	content := fmt.Sprintf("%s Joined %s as %s\n\n%s Already here: %s",
		IconRoom, BoldStyle.Foreground(Accent).Render(roomID), SelfStyle.Render(self),
		IconPeer, who,
	)
	return RoomBoxStyle.Render(content)
}
