package console

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"drivel/pkg/channel"
	"drivel/pkg/config"
	"drivel/pkg/stanza"
)

const replyWait = 3 * time.Second

type role int

const (
	roleUser role = iota
	roleBot
	roleSystem
	roleError
)

type chatMessage struct {
	role    role
	kind    stanza.Kind
	author  string
	content string
}

type replyMsg struct {
	reply stanza.Reply
}

type deliveredMsg struct {
	ok bool
}

type replyTimeoutMsg struct {
	seq int
}

type model struct {
	ctx     context.Context
	deliver channel.Deliver
	self    stanza.Address
	user    string
	room    string

	theme     theme
	spinner   spinner.Model
	input     textinput.Model
	viewport  viewport.Model
	messages  []chatMessage
	width     int
	height    int
	isReady   bool
	inRoom    bool
	waiting   bool
	seq       int
	followLog bool
}

func newModel(ctx context.Context, deliver channel.Deliver, cfg config.ConsoleConfig, self stanza.Address) *model {
	spin := spinner.New()
	spin.Spinner = spinner.Points
	spin.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))

	in := textinput.New()
	in.Prompt = ""
	in.Placeholder = "Say something, e.g. ping or help echo"
	in.Focus()
	in.CharLimit = 0

	return &model{
		ctx:       ctx,
		deliver:   deliver,
		self:      self,
		user:      strings.TrimSpace(cfg.User),
		room:      strings.TrimSpace(cfg.Room),
		theme:     defaultTheme(),
		spinner:   spin,
		input:     in,
		viewport:  viewport.New(80, 12),
		width:     100,
		height:    28,
		followLog: true,
	}
}

func (m *model) Init() tea.Cmd {
	return textinput.Blink
}

func (m *model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd

	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		m.resizeComponents()
		m.refreshViewport(false)
		m.isReady = true
		return m, nil
	case tea.MouseMsg:
		m.handleViewportMouse(typed)
		return m, nil
	case tea.KeyMsg:
		switch typed.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit
		case "ctrl+g":
			m.inRoom = !m.inRoom
			return m, nil
		case "enter":
			return m, m.submit()
		}

		if m.handleViewportKey(typed) {
			return m, nil
		}
	case replyMsg:
		m.waiting = false
		m.appendReply(typed.reply)
		return m, nil
	case deliveredMsg:
		if !typed.ok {
			m.messages = append(m.messages, chatMessage{role: roleError, content: "bot is shutting down"})
			m.refreshViewport(false)
			return m, tea.Quit
		}
		return m, nil
	case replyTimeoutMsg:
		if typed.seq == m.seq {
			m.waiting = false
		}
		return m, nil
	case spinner.TickMsg:
		if !m.waiting {
			return m, nil
		}
		m.spinner, cmd = m.spinner.Update(typed)
		return m, cmd
	}

	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// submit turns the input line into an event and delivers it.
func (m *model) submit() tea.Cmd {
	body := strings.TrimSpace(m.input.Value())
	if body == "" {
		return nil
	}
	if isExitCommand(body) {
		return tea.Quit
	}

	event := m.event(body)
	m.input.SetValue("")
	m.messages = append(m.messages, chatMessage{role: roleUser, kind: event.Kind, author: m.user, content: body})
	m.waiting = true
	m.followLog = true
	m.seq++
	m.refreshViewport(true)

	return tea.Batch(m.spinner.Tick, deliverCmd(m.ctx, m.deliver, event), replyTimeoutCmd(m.seq))
}

// event builds the stanza for one line typed by the user.
func (m *model) event(body string) stanza.Event {
	from := stanza.NewAddress(m.user, domain, "terminal")
	kind := stanza.KindChat
	if m.inRoom {
		from = stanza.NewAddress(m.room, roomDomain, m.user)
		kind = stanza.KindGroupchat
	}

	event := stanza.NewMessage(kind, from, m.self, body)
	event.Channel = channelName
	event.ID = "console-" + strconv.Itoa(m.seq+1)
	return event
}

func (m *model) appendReply(reply stanza.Reply) {
	content := strings.TrimSpace(reply.Body)
	if content == "" {
		content = strings.TrimSpace(reply.Markup)
	}

	switch {
	case reply.Kind == stanza.KindSubscribed:
		m.messages = append(m.messages, chatMessage{role: roleSystem, content: "subscription approved by " + reply.From.String()})
	case content == "":
		return
	default:
		m.messages = append(m.messages, chatMessage{role: roleBot, kind: reply.Kind, author: m.self.Node(), content: content})
	}
	m.refreshViewport(false)
}

func (m *model) View() string {
	if !m.isReady {
		m.resizeComponents()
		m.refreshViewport(false)
	}

	header := m.theme.header.Width(m.width - 2).Render("drivel console")
	meta := m.theme.headerMeta.Render(fmt.Sprintf("bot:%s · you:%s · mode:%s · messages:%d", m.self, m.user, m.modeLabel(), len(m.messages)))
	line := m.theme.divider.Width(m.width - 2).Render(strings.Repeat("═", max(8, m.width-2)))

	status := m.theme.status.Render("Enter send  ·  Ctrl+G toggle room  ·  PgUp/PgDn scroll  ·  Ctrl+C/Esc quit")
	if m.waiting {
		status = m.theme.statusBusy.Render(fmt.Sprintf("%s waiting for %s...", m.spinner.View(), m.self.Node()))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		header,
		meta,
		line,
		m.theme.viewport.Width(m.width-2).Render(m.viewport.View()),
		status,
		m.theme.inputLabel.Render(m.user)+" "+m.theme.hint.Render("("+m.modeLabel()+", type /exit to quit)"),
		m.theme.input.Width(m.width-2).Render(m.input.View()),
	)
}

func (m *model) modeLabel() string {
	if m.inRoom {
		return "room " + m.room
	}

	return "direct"
}

func (m *model) resizeComponents() {
	w := max(50, m.width-6)
	h := max(8, m.height-10)

	m.viewport.Width = w
	m.viewport.Height = h
	m.input.Width = w - 2
}

func (m *model) refreshViewport(forceBottom bool) {
	previousOffset := m.viewport.YOffset
	sections := make([]string, 0, len(m.messages))
	for _, item := range m.messages {
		sections = append(sections, m.renderMessage(item))
	}

	m.viewport.SetContent(strings.Join(sections, "\n\n"))
	if m.followLog || forceBottom {
		m.viewport.GotoBottom()
		m.followLog = true
		return
	}

	maxOffset := max(0, m.viewport.TotalLineCount()-m.viewport.Height)
	m.viewport.SetYOffset(min(previousOffset, maxOffset))
}

func (m *model) renderMessage(item chatMessage) string {
	body := strings.TrimSpace(item.content)
	width := m.viewport.Width

	switch item.role {
	case roleUser:
		title := item.author
		if item.kind == stanza.KindGroupchat {
			title += " @ " + m.room
		}
		return lipgloss.JoinVertical(lipgloss.Left, m.theme.userTitle.Render(title), m.theme.userBox.Width(width).Render(body))
	case roleBot:
		title := item.author
		if item.kind == stanza.KindGroupchat {
			title += " @ " + m.room
		}
		return lipgloss.JoinVertical(lipgloss.Left, m.theme.botTitle.Render(title), m.theme.botBox.Width(width).Render(body))
	case roleSystem:
		return m.theme.hint.Render("· " + body)
	default:
		return lipgloss.JoinVertical(lipgloss.Left, m.theme.errorTitle.Render("error"), m.theme.errorBox.Width(width).Render(body))
	}
}

func (m *model) handleViewportKey(msg tea.KeyMsg) bool {
	switch msg.String() {
	case "pgup", "ctrl+b", "alt+up", "ctrl+up":
		m.viewport.PageUp()
		m.followLog = false
		return true
	case "pgdown", "ctrl+f", "alt+down", "ctrl+down":
		m.viewport.PageDown()
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	case "home":
		m.viewport.GotoTop()
		m.followLog = false
		return true
	case "end":
		m.viewport.GotoBottom()
		m.followLog = true
		return true
	default:
		return false
	}
}

func (m *model) handleViewportMouse(msg tea.MouseMsg) bool {
	if msg.Action != tea.MouseActionPress {
		return false
	}

	switch msg.Button {
	case tea.MouseButtonWheelUp:
		m.viewport.ScrollUp(3)
		m.followLog = false
		return true
	case tea.MouseButtonWheelDown:
		m.viewport.ScrollDown(3)
		if m.viewport.AtBottom() {
			m.followLog = true
		}
		return true
	default:
		return false
	}
}

func deliverCmd(ctx context.Context, deliver channel.Deliver, event stanza.Event) tea.Cmd {
	return func() tea.Msg {
		return deliveredMsg{ok: deliver(ctx, event)}
	}
}

func replyTimeoutCmd(seq int) tea.Cmd {
	return tea.Tick(replyWait, func(time.Time) tea.Msg {
		return replyTimeoutMsg{seq: seq}
	})
}

func isExitCommand(input string) bool {
	switch strings.ToLower(strings.TrimSpace(input)) {
	case "exit", "/exit", "quit", ":q":
		return true
	default:
		return false
	}
}
