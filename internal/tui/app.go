package tui

import (
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/heatsync/heatsync/internal/ble"
)

// Run starts the TUI and blocks until the user quits or the status stream
// closes.
func Run(ctrl Controller, statuses <-chan ble.Status, unitSuffix string) error {
	m := NewModel(ctrl, statuses, unitSuffix)
	p := tea.NewProgram(m, tea.WithAltScreen())

	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running TUI: %v\n", err)
		return err
	}

	return nil
}
