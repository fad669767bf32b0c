// Package tui renders arbitration state for terminals: tables for one-shot
// commands and a live bubbletea view for `arbiter watch`.
package tui

import (
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/Iron-Ham/arbiter/internal/observer"
	"github.com/Iron-Ham/arbiter/internal/resource"
	"github.com/Iron-Ham/arbiter/internal/tui/styles"
)

// newTable returns a table with headers. Plain tables have no borders or
// colors, for pipes and scripts.
func newTable(styled bool, headers ...string) *table.Table {
	t := table.New().Headers(headers...)
	if !styled {
		return t.Border(lipgloss.HiddenBorder()).
			BorderTop(false).BorderBottom(false).
			BorderLeft(false).BorderRight(false).
			BorderHeader(false).BorderColumn(false).
			StyleFunc(func(_, _ int) lipgloss.Style {
				return lipgloss.NewStyle().PaddingRight(2)
			})
	}
	return t.Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(styles.BorderColor))
}

func accessCell(a resource.Access, styled bool) string {
	if !styled {
		return a.String()
	}
	return styles.Access(a)
}

// UsersTable renders the users of a resource. The row for self is marked
// with an asterisk; its preferred access is the only one known.
func UsersTable(users []*resource.User, self int, styled bool) string {
	if len(users) == 0 {
		return "no users\n"
	}
	t := newTable(styled, "PID", "PROCESS", "PROTOCOL", "PREFERRED", "ACTUAL", "PRESSURE", "INFO")
	for _, u := range users {
		pid := strconv.Itoa(u.PID)
		preferred := "-"
		if u.PID == self {
			pid += "*"
			preferred = accessCell(u.PreferredAccess, styled)
		}
		protocol := "no"
		if u.UsingProtocol {
			protocol = "yes"
		}
		t.Row(pid, u.Process.DisplayName(), protocol, preferred,
			accessCell(u.ActualAccess, styled), u.AccessPressure.String(), formatInfo(u.BroadcastInfo))
	}
	if styled {
		t.StyleFunc(func(row, _ int) lipgloss.Style {
			if row == table.HeaderRow {
				return styles.TableHeader
			}
			if row >= 0 && row < len(users) && users[row].PID == self {
				return styles.TableSelf
			}
			return styles.TableCell
		})
	}
	return t.String() + "\n"
}

// DevicesTable renders the devices a kernel observer tracks.
func DevicesTable(devices []observer.Device, styled bool) string {
	if len(devices) == 0 {
		return "no devices\n"
	}
	t := newTable(styled, "ID", "CLASS", "NAME", "NODES")
	for _, d := range devices {
		t.Row(d.ID, d.Class, orDash(d.Name), orDash(strings.Join(d.Nodes, " ")))
	}
	if styled {
		t.StyleFunc(headerStyle)
	}
	return t.String() + "\n"
}

// ObservationsTable renders the processes a kernel observer found using
// tracked devices.
func ObservationsTable(obs []observer.Observation, styled bool) string {
	if len(obs) == 0 {
		return "no clients\n"
	}
	t := newTable(styled, "PID", "PROCESS", "UID", "ACCESS", "DEVICES")
	for _, o := range obs {
		t.Row(strconv.Itoa(o.PID), o.Process.DisplayName(), strconv.Itoa(o.Process.UID),
			accessCell(o.Access, styled), strings.Join(o.Devices, " "))
	}
	if styled {
		t.StyleFunc(headerStyle)
	}
	return t.String() + "\n"
}

func headerStyle(row, _ int) lipgloss.Style {
	if row == table.HeaderRow {
		return styles.TableHeader
	}
	return styles.TableCell
}

// formatInfo renders broadcast info as sorted key=value pairs.
func formatInfo(info map[string]any) string {
	if len(info) == 0 {
		return "-"
	}
	var parts []string
	for _, k := range slices.Sorted(maps.Keys(info)) {
		parts = append(parts, fmt.Sprintf("%s=%v", k, info[k]))
	}
	return strings.Join(parts, " ")
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
