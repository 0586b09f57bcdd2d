package client

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/nhdewitt/telemon/internal/protocol"
)

// Model is the interactive monitor. Server events reach it through
// tea.Program.Send.
type Model struct {
	frame Frame
}

func NewModel(server string, totals *protocol.StaticTotals, top int) Model {
	return Model{frame: Frame{
		Server: server,
		Status: "connecting...",
		Totals: totals,
		Top:    top,
	}}
}

func (m Model) Init() tea.Cmd {
	return nil
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.frame.Width = msg.Width

	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "q":
			return m, tea.Quit
		}

	case protocol.ConnectionAck:
		m.frame.Status = msg.Message
		m.frame.Err = ""

	case protocol.Snapshot:
		m.frame.Snapshot = &msg
		m.frame.Status = "updated " + msg.Timestamp.Local().Format(time.TimeOnly)
		m.frame.Err = ""

	case protocol.StaticTotals:
		m.frame.Totals = &msg

	case protocol.ErrorPayload:
		m.frame.Err = formatServerError(msg)

	case protocol.Heartbeat:
		if msg.LastSuccess == nil {
			m.frame.Status = "heartbeat, no successful sample yet"
		} else {
			m.frame.Status = "heartbeat, last sample " + msg.LastSuccess.Local().Format(time.TimeOnly)
		}

	case Disconnected:
		m.frame.Status = fmt.Sprintf("disconnected, retrying in %v", msg.Retry)
		if msg.Err != nil {
			m.frame.Err = msg.Err.Error()
		}
	}

	return m, nil
}

func (m Model) View() string {
	return m.frame.Render() + "\n\n" + StatusStyle.Render("q: quit")
}

func formatServerError(p protocol.ErrorPayload) string {
	if p.Stage == "" {
		return "server error: " + p.Message
	}
	return fmt.Sprintf("server error (%s): %s", p.Stage, p.Message)
}
