package tui

import (
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/heatsync/heatsync/internal/ble"
	"github.com/heatsync/heatsync/internal/ble/protocol"
)

// Controller receives control changes. *ble.Session implements it.
type Controller interface {
	SetPower(on bool)
	SetVestSetpoint(v uint8)
	SetPeltierSetpoint(v uint8)
}

var _ Controller = (*ble.Session)(nil)

// control is a focusable row of the control panel.
type control int

const (
	controlVest control = iota
	controlPeltier
	controlPower
	controlCount
)

const (
	sliderWidth = 24
	fastStep    = 5
)

// statusMsg carries a session status into the update loop.
type statusMsg ble.Status

// statusClosedMsg reports that the status stream has ended.
type statusClosedMsg struct{}

// Model is the Bubbletea model for the vest control screen. The sliders
// and the power switch belong to the model: session statuses only reset
// them when the vest disconnects.
type Model struct {
	ctrl     Controller
	statuses <-chan ble.Status
	suffix   string

	status  ble.Status
	vest    uint8
	peltier uint8
	power   bool
	focus   control
	width   int

	keys   KeyMap
	help   help.Model
	styles Styles
}

// NewModel creates the model. Statuses are rendered as they arrive on
// statuses; control changes go to ctrl. unitSuffix is appended to
// setpoint labels.
func NewModel(ctrl Controller, statuses <-chan ble.Status, unitSuffix string) Model {
	return Model{
		ctrl:     ctrl,
		statuses: statuses,
		suffix:   unitSuffix,
		status: ble.Status{
			Radio:        protocol.NotAvailable,
			VestTemp:     protocol.NotAvailable,
			PeltierTemp:  protocol.NotAvailable,
			Battery:      protocol.NotAvailable,
			HeartRate:    protocol.NotAvailable,
			Cooling:      protocol.NotAvailable,
		},
		keys:   DefaultKeyMap(),
		help:   help.New(),
		styles: DefaultStyles(),
	}
}

// waitForStatus blocks on the next status from the session.
func waitForStatus(ch <-chan ble.Status) tea.Cmd {
	return func() tea.Msg {
		st, ok := <-ch
		if !ok {
			return statusClosedMsg{}
		}
		return statusMsg(st)
	}
}

// Init starts listening for session status.
func (m Model) Init() tea.Cmd {
	return waitForStatus(m.statuses)
}

// Update handles messages and updates the model.
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
		return m, nil

	case statusMsg:
		m.status = ble.Status(msg)
		if m.status.State == ble.StateDisconnected {
			m.vest = m.status.VestSetpoint
			m.peltier = m.status.PeltierSetpoint
		}
		return m, waitForStatus(m.statuses)

	case statusClosedMsg:
		return m, tea.Quit

	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Quit):
			return m, tea.Quit
		case key.Matches(msg, m.keys.Help):
			m.help.ShowAll = !m.help.ShowAll
		case key.Matches(msg, m.keys.Up):
			m.focus = (m.focus + controlCount - 1) % controlCount
		case key.Matches(msg, m.keys.Down):
			m.focus = (m.focus + 1) % controlCount
		case key.Matches(msg, m.keys.Decrease):
			m.adjust(-1)
		case key.Matches(msg, m.keys.Increase):
			m.adjust(1)
		case key.Matches(msg, m.keys.StepDown):
			m.adjust(-fastStep)
		case key.Matches(msg, m.keys.StepUp):
			m.adjust(fastStep)
		case key.Matches(msg, m.keys.Power):
			m.togglePower()
		}
	}
	return m, nil
}

// adjust moves the focused slider by delta. On the power row, any
// movement sets the switch: right is on, left is off.
func (m *Model) adjust(delta int) {
	switch m.focus {
	case controlVest:
		v := protocol.ClampSetpoint(int(m.vest) + delta)
		if v == m.vest {
			return
		}
		m.vest = v
		m.ctrl.SetVestSetpoint(v)
	case controlPeltier:
		v := protocol.ClampSetpoint(int(m.peltier) + delta)
		if v == m.peltier {
			return
		}
		m.peltier = v
		m.ctrl.SetPeltierSetpoint(v)
	case controlPower:
		on := delta > 0
		if on == m.power {
			return
		}
		m.power = on
		m.ctrl.SetPower(on)
	}
}

func (m *Model) togglePower() {
	m.power = !m.power
	m.ctrl.SetPower(m.power)
}

// View renders the control screen.
func (m Model) View() string {
	var b strings.Builder

	b.WriteString(m.styles.Title.Render("HeatSync"))
	b.WriteString(" ")
	b.WriteString(m.styles.Subtitle.Render(m.connectionLine()))
	b.WriteString("\n")

	b.WriteString(m.styles.Section.Render("Readings"))
	b.WriteString("\n")
	b.WriteString(m.row("Bluetooth", m.radio()))
	b.WriteString(m.row("Vest temp", m.status.VestTemp))
	b.WriteString(m.row("Peltier temp", m.status.PeltierTemp))
	b.WriteString(m.row("Battery", m.status.Battery))
	b.WriteString(m.row("Heart rate", m.status.HeartRate))
	b.WriteString(m.row("Cooling", m.status.Cooling))

	b.WriteString(m.styles.Section.Render("Controls"))
	if !m.status.Ready() {
		b.WriteString(" ")
		b.WriteString(m.styles.Muted.Render("(not connected, changes are not sent)"))
	}
	b.WriteString("\n")
	b.WriteString(m.controlRow(controlVest, "Vest", m.slider(m.vest)+" "+protocol.SetpointLabel(m.vest, m.suffix)))
	b.WriteString(m.controlRow(controlPeltier, "Peltier", m.slider(m.peltier)+" "+protocol.SetpointLabel(m.peltier, m.suffix)))
	b.WriteString(m.controlRow(controlPower, "Power", m.powerLabel()))

	b.WriteString(m.styles.Help.Render(m.help.View(m.keys)))

	return m.styles.App.Render(b.String())
}

func (m Model) connectionLine() string {
	line := m.status.State.String()
	if m.status.Device != nil {
		name := m.status.Device.Name
		if name == "" {
			name = m.status.Device.ID
		}
		line += " · " + name
	}
	return line
}

func (m Model) radio() string {
	switch m.status.Radio {
	case protocol.RadioOn:
		return m.styles.StatusOnline.Render(m.status.Radio)
	case protocol.RadioOff:
		return m.styles.StatusOffline.Render(m.status.Radio)
	default:
		return m.status.Radio
	}
}

func (m Model) powerLabel() string {
	if m.power {
		return m.styles.StatusOnline.Render("ON")
	}
	return m.styles.Muted.Render("OFF")
}

func (m Model) row(label, value string) string {
	return m.styles.Label.Render(label+":") + " " + m.styles.Value.Render(value) + "\n"
}

func (m Model) controlRow(c control, label, value string) string {
	cursor := "  "
	labelStyle := m.styles.Label
	if c == m.focus {
		cursor = m.styles.Focused.Render("> ")
		labelStyle = m.styles.Focused
	}
	return cursor + labelStyle.Width(14).Render(label) + " " + value + "\n"
}

// slider draws a 0..255 value as a fixed-width bar.
func (m Model) slider(v uint8) string {
	filled := int(v) * sliderWidth / 255
	return m.styles.SliderFill.Render(strings.Repeat("█", filled)) +
		m.styles.SliderTrack.Render(strings.Repeat("░", sliderWidth-filled))
}

var _ tea.Model = Model{}
