package ui

import (
	"fmt"
	"strings"

	"github.com/aeolun/lanchat/pkg/client"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
)

// Update handles messages and updates the model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.resize()
		return m, nil

	case SnapshotMsg:
		m.snapshot = msg.State
		m.cursor = clampCursor(m.cursor, m.snapshot.Len())
		m.refreshTalk()
		return m, m.listen()

	case SendFailedMsg:
		m.errorMessage = fmt.Sprintf("Message to %s not sent: %v", msg.User.DisplayName(), msg.Err)
		m.statusMessage = ""
		return m, m.listen()

	case DeliveredMsg:
		m.statusMessage = fmt.Sprintf("Delivered to %s", msg.From.DisplayName())
		m.errorMessage = ""
		return m, m.listen()
	}

	// Cursor blink and other input internals
	if m.focus == FocusCompose {
		var cmd tea.Cmd
		m.input, cmd = m.input.Update(msg)
		return m, cmd
	}
	return m, nil
}

// handleKeyPress handles keyboard input
func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if msg.String() == "ctrl+c" {
		return m, tea.Quit
	}

	if m.focus == FocusCompose {
		return m.handleComposeKeys(msg)
	}
	return m.handleUserListKeys(msg)
}

func (m Model) handleUserListKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil

	case key.Matches(msg, m.keys.Up):
		m.cursor = clampCursor(m.cursor-1, m.snapshot.Len())
		return m, nil

	case key.Matches(msg, m.keys.Down):
		m.cursor = clampCursor(m.cursor+1, m.snapshot.Len())
		return m, nil

	case key.Matches(msg, m.keys.Select):
		u, ok := m.userAtCursor()
		if !ok {
			return m, nil
		}
		m.post(client.UserSelectionRequested{User: u})
		return m.enterCompose()

	case key.Matches(msg, m.keys.Focus):
		if _, ok := m.selectedUser(); !ok {
			return m, nil
		}
		return m.enterCompose()

	case key.Matches(msg, m.keys.Cancel):
		if _, ok := m.selectedUser(); ok {
			m.post(client.SelectionClearRequested{})
		}
		return m, nil

	case key.Matches(msg, m.keys.Mute):
		m.muted = !m.muted
		if m.settings != nil {
			if err := m.settings.SetNotificationsMuted(m.muted); err != nil {
				m.errorMessage = fmt.Sprintf("Failed to save setting: %v", err)
				return m, nil
			}
		}
		if m.muted {
			m.statusMessage = "Notifications muted"
		} else {
			m.statusMessage = "Notifications on"
		}
		return m, nil
	}

	return m, nil
}

func (m Model) handleComposeKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Cancel), key.Matches(msg, m.keys.Focus):
		m.focus = FocusUsers
		m.input.Blur()
		return m, nil

	case key.Matches(msg, m.keys.Send):
		text := strings.TrimSpace(m.input.Value())
		if text == "" {
			return m, nil
		}
		u, ok := m.selectedUser()
		if !ok {
			m.errorMessage = "Select a user first"
			return m, nil
		}
		if limit := m.maxTextBytes(); len(text) > limit {
			m.errorMessage = fmt.Sprintf("Message too long: %s of %s", client.FormatBytes(uint64(len(text))), client.FormatBytes(uint64(limit)))
			return m, nil
		}
		m.post(client.SendRequested{User: u, Text: text})
		m.input.Reset()
		m.errorMessage = ""
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) enterCompose() (tea.Model, tea.Cmd) {
	m.focus = FocusCompose
	return m, m.input.Focus()
}

func (m *Model) post(ev any) {
	if err := m.bus.Post(ev); err != nil {
		m.errorMessage = err.Error()
	}
}

// resize lays out the panes for the current window size
func (m *Model) resize() {
	userWidth := m.width / 3
	talkWidth := m.width - userWidth - 4
	if talkWidth < 20 {
		talkWidth = 20
	}
	talkHeight := m.height - 9
	if talkHeight < 3 {
		talkHeight = 3
	}
	m.talk.Width = talkWidth
	m.talk.Height = talkHeight
	m.input.Width = m.width - 6
	m.help.Width = m.width
	m.refreshTalk()
}

func (m *Model) refreshTalk() {
	u, ok := m.selectedUser()
	if !ok {
		m.talk.SetContent(MutedTextStyle.Render("No conversation selected"))
		return
	}
	m.talk.SetContent(renderTalk(u, m.localUser))
	m.talk.GotoBottom()
}

// clampCursor keeps the cursor inside a list of n rows
func clampCursor(cursor, n int) int {
	if n == 0 || cursor < 0 {
		return 0
	}
	if cursor >= n {
		return n - 1
	}
	return cursor
}
