package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/Bataide/cip-enip-driver/internal/events"
)

var (
	timeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	tagStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("12")).Bold(true)
	upStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	downStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("9")).Bold(true)
	valueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	errStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// formatEvent renders one event as a console line.
func formatEvent(ev events.Event) string {
	switch ev.Kind {
	case events.KindTagData:
		td := ev.TagData
		msg := td.Message()
		value := msg.Raw
		if len(msg.Values) > 0 {
			parts := make([]string, len(msg.Values))
			for i, v := range msg.Values {
				parts[i] = fmt.Sprint(v)
			}
			value = strings.Join(parts, ", ")
		}
		return fmt.Sprintf("%s %s %s %s = %s (from %s)",
			timeStyle.Render(td.Timestamp.Format(time.TimeOnly)),
			tagStyle.Render("TAG"),
			td.Symbol,
			td.DataType,
			valueStyle.Render(value),
			td.Remote)
	case events.KindConnStatus:
		cs := ev.ConnStatus
		state := downStyle.Render("DOWN")
		if cs.Connected {
			state = upStyle.Render("UP")
		}
		return fmt.Sprintf("%s %s %s %s",
			timeStyle.Render(cs.Timestamp.Format(time.TimeOnly)),
			state,
			cs.Direction,
			cs.ConnID)
	default:
		return ev.String()
	}
}

// formatStatus renders the result of a write.
func formatStatus(symbol string, status uint8, err error) string {
	if err == nil && status == 0 {
		return okStyle.Render(fmt.Sprintf("OK %s (status 0x00)", symbol))
	}
	line := fmt.Sprintf("FAILED %s (status 0x%02X)", symbol, status)
	if err != nil {
		line += ": " + err.Error()
	}
	return errStyle.Render(line)
}
