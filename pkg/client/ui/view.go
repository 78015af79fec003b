package ui

import (
	"fmt"
	"strings"

	"github.com/aeolun/lanchat/pkg/client"
	"github.com/aeolun/lanchat/pkg/state"
	"github.com/charmbracelet/lipgloss"
)

// View renders the model
func (m Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	header := m.renderHeader()

	userWidth := m.width / 3
	paneHeight := m.talk.Height
	selected, hasSelected := m.selectedUser()

	usersStyle := UserPaneStyle
	if m.focus == FocusUsers {
		usersStyle = UserPaneFocusedStyle
	}
	users := usersStyle.Width(userWidth).Height(paneHeight + 1).Render(
		PaneTitleStyle.Render("Users") + "\n" +
			renderUserList(m.snapshot.Users(), m.cursor, selected, hasSelected, m.focus == FocusUsers),
	)

	title := "Conversation"
	if hasSelected {
		title = client.FormatUserItem(selected)
		if !m.snapshot.Contains(selected) {
			title += " (offline)"
		}
	}
	talk := TalkPaneStyle.Width(m.talk.Width).Height(paneHeight + 1).Render(
		PaneTitleStyle.Render(title) + "\n" + m.talk.View(),
	)

	body := lipgloss.JoinHorizontal(lipgloss.Top, users, talk)

	inputStyle := InputBlurredStyle
	if m.focus == FocusCompose {
		inputStyle = InputFocusedStyle
	}
	input := inputStyle.Width(m.width - 4).Render(m.input.View())

	return lipgloss.JoinVertical(lipgloss.Left, header, body, input, m.renderFooter())
}

func (m Model) renderHeader() string {
	left := HeaderStyle.Render(strings.TrimSpace("LANChat " + m.version))

	status := fmt.Sprintf("%s  %d online", m.localUser, m.snapshot.Len())
	if m.muted {
		status += "  muted"
	}
	right := StatusStyle.Render(status)

	spacer := strings.Repeat(" ", max(0, m.width-lipgloss.Width(left)-lipgloss.Width(right)))
	return left + spacer + right
}

func (m Model) renderFooter() string {
	line := m.help.View(m.keys)
	switch {
	case m.errorMessage != "":
		line = RenderError(m.errorMessage) + "  " + line
	case m.statusMessage != "":
		line = RenderSuccess(m.statusMessage) + "  " + line
	}
	return FooterStyle.Render(line)
}

// renderUserList renders one row per user. The cursor row is marked when
// the list has focus; the selected user is highlighted.
func renderUserList(users []state.User, cursor int, selected state.User, hasSelected, focused bool) string {
	if len(users) == 0 {
		return MutedTextStyle.Render("Nobody here yet")
	}

	rows := make([]string, 0, len(users))
	for i, u := range users {
		marker := "  "
		if focused && i == cursor {
			marker = "▸ "
		}
		label := client.FormatUserItem(u)
		style := UnselectedItemStyle
		if hasSelected && u.Equal(selected) {
			style = SelectedItemStyle
		}
		rows = append(rows, marker+style.Render(label))
	}
	return strings.Join(rows, "\n")
}

// renderTalk renders the conversation with u, oldest first
func renderTalk(u state.User, localUser string) string {
	if u.TalkLen() == 0 {
		return MutedTextStyle.Render(fmt.Sprintf("No messages with %s yet", u.DisplayName()))
	}

	talk := u.TalkEntries()
	lines := make([]string, 0, len(talk))
	for _, entry := range talk {
		msg := entry.Message
		author := MessageAuthorStyle
		if msg.User == localUser {
			author = MessageOwnAuthorStyle
		}
		line := client.FormatTalkLine(msg, localUser)
		prefixEnd := strings.Index(line, " ")
		lines = append(lines, fmt.Sprintf("%s %s %s",
			MessageTimeStyle.Render(client.FormatTalkTime(entry.At)),
			author.Render(line[:prefixEnd]),
			MessageContentStyle.Render(line[prefixEnd+1:]),
		))
	}
	return strings.Join(lines, "\n")
}
