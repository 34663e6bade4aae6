package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"

	"github.com/jwebster45206/quest-engine/pkg/content"
	"github.com/jwebster45206/quest-engine/pkg/quest"
	"github.com/jwebster45206/quest-engine/pkg/storage"
)

const (
	AgentName       = "Guide"
	PlaceHolderText = "Type your answer here..."
)

type speaker int

const (
	speakerGuide speaker = iota
	speakerUser
	speakerSystem
)

type transcriptEntry struct {
	from speaker
	text string
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	catalog *content.Catalog
	machine quest.Handler
	store   *storage.MemoryStore
	sender  *channelSender

	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	loading      bool

	transcript []transcriptEntry
	keyboard   []string
	buttonIdx  int
	messageSeq int

	session  *quest.Session
	progress *quest.UserProgress

	// Quit confirmation state
	showQuitModal bool

	// Progress bar state
	progressTick int
}

type turnDoneMsg struct {
	err error
}

type progressTickMsg struct{}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	guideStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	systemStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	buttonStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("205")).
			Padding(0, 1)

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)
)

var separatorStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("240")) // dark grey

func NewConsoleUI(catalog *content.Catalog, machine quest.Handler, store *storage.MemoryStore, sender *channelSender) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		catalog:      catalog,
		machine:      machine,
		store:        store,
		sender:       sender,
		textarea:     ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
		loading:      true,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForOutbound(), m.handleTurn("/start", 0), progressTick())
}

// waitForOutbound delivers the next item sent by the machine. It is re-armed
// after every delivery.
func (m ConsoleUI) waitForOutbound() tea.Cmd {
	out := m.sender.out
	return func() tea.Msg {
		return <-out
	}
}

func (m ConsoleUI) handleTurn(text string, seq int) tea.Cmd {
	machine := m.machine
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := machine.Handle(ctx, quest.Inbound{
			Channel:   quest.ChannelConsole,
			UserID:    consoleUserID,
			ChatID:    consoleUserID,
			MessageID: "console-" + strconv.Itoa(seq),
			Text:      text,
			User:      quest.Identity{ID: consoleUserID, FirstName: "Console"},
		})
		return turnDoneMsg{err: err}
	}
}

func (m *ConsoleUI) refreshState() {
	ctx := context.Background()
	if s, err := m.store.LoadSession(ctx, consoleUserID, consoleUserID); err == nil {
		m.session = s
	}
	if p, err := m.store.GetOrCreate(ctx, quest.Identity{ID: consoleUserID}); err == nil {
		m.progress = p
	}
}

func (m *ConsoleUI) layout() {
	chatWidth := int(float64(m.width)*0.70) - 4
	metaWidth := m.width - chatWidth - 6

	m.chatViewport.Width = chatWidth - 2
	m.chatViewport.Height = m.height - 7
	m.metaViewport.Width = metaWidth - 2
	m.metaViewport.Height = m.height - 4
	m.textarea.SetWidth(chatWidth - 4)
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()
		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyTab:
			if len(m.keyboard) > 0 {
				m.textarea.SetValue(m.keyboard[m.buttonIdx%len(m.keyboard)])
				m.buttonIdx++
			}
			return m, nil
		case tea.KeyEnter:
			if m.loading {
				return m, nil
			}

			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()

			if handled, cmd := m.handleLocalCommand(input); handled {
				return m, cmd
			}

			m.loading = true
			m.progressTick = 0
			m.err = nil
			m.messageSeq++
			m.transcript = append(m.transcript, transcriptEntry{from: speakerUser, text: input})
			m.writeChatContent()

			return m, tea.Batch(m.handleTurn(input, m.messageSeq), progressTick())
		}

	case outboundMsg:
		m.transcript = append(m.transcript, transcriptEntry{from: speakerGuide, text: renderItem(msg.Item)})
		switch {
		case msg.Options.RemoveKeyboard:
			m.keyboard = nil
		case len(msg.Options.Keyboard) > 0:
			m.keyboard = msg.Options.Keyboard
		}
		m.buttonIdx = 0
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, m.waitForOutbound()

	case turnDoneMsg:
		m.loading = false
		m.err = msg.err
		m.refreshState()
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())
		return m, nil

	case progressTickMsg:
		if m.loading {
			m.progressTick++
			m.writeChatContent()
			return m, progressTick()
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

// handleLocalCommand runs commands that never reach the quest.
func (m *ConsoleUI) handleLocalCommand(input string) (bool, tea.Cmd) {
	switch strings.ToLower(input) {
	case "/help":
		m.transcript = append(m.transcript, transcriptEntry{from: speakerSystem, text: helpText})
	case "/copy":
		if err := clipboard.WriteAll(m.plainTranscript()); err != nil {
			m.transcript = append(m.transcript, transcriptEntry{from: speakerSystem, text: "Could not copy transcript: " + err.Error()})
		} else {
			m.transcript = append(m.transcript, transcriptEntry{from: speakerSystem, text: "Transcript copied to clipboard."})
		}
	case "/quit":
		return true, tea.Quit
	default:
		return false, nil
	}
	m.writeChatContent()
	return true, nil
}

const helpText = `Commands:
• /start - Restart the quest
• /stats - Show participation statistics
• /setstate <tag> - Jump to a state, e.g. at:fountain
• /copy - Copy the transcript to the clipboard
• /quit - Leave
• Tab - Fill in the next reply button`

func (m ConsoleUI) plainTranscript() string {
	var b strings.Builder
	for _, e := range m.transcript {
		switch e.from {
		case speakerUser:
			b.WriteString("You: ")
		case speakerGuide:
			b.WriteString(AgentName + ": ")
		default:
			continue
		}
		b.WriteString(e.text)
		b.WriteString("\n\n")
	}
	return b.String()
}

// writeChatContent rebuilds the chat panel for the current viewport width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 20 {
		chatWidth = 20
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render(strings.ToUpper(m.catalog.Title)) + "\n\n")
	content.WriteString("Answer the questions below. Type /help for commands.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, e := range m.transcript {
		content.WriteString(formatEntry(e, chatWidth) + "\n\n")
	}

	if m.err != nil {
		content.WriteString(errorStyle.Render("Error: "+m.err.Error()) + "\n\n")
	}
	if m.loading {
		content.WriteString(m.renderProgressBar())
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func formatEntry(e transcriptEntry, width int) string {
	switch e.from {
	case speakerUser:
		return userStyle.Render("You: ") + wordwrap.String(e.text, width-5)
	case speakerSystem:
		return systemStyle.Render(wordwrap.String(e.text, width))
	default:
		prefix := AgentName + ": "
		return guideStyle.Render(prefix) + wordwrap.String(e.text, width-len(prefix))
	}
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("QUEST") + "\n\n")

	content.WriteString("State:\n")
	if m.session != nil {
		content.WriteString(m.session.State.String() + "\n\n")
		if n := m.waypointNumber(m.session.State); n > 0 {
			content.WriteString("Waypoint:\n")
			content.WriteString(fmt.Sprintf("%d of %d\n\n", n, len(m.catalog.Waypoints)))
		}
	} else {
		content.WriteString("not started\n\n")
	}

	if p := m.progress; p != nil {
		content.WriteString("Skips left:\n")
		content.WriteString(fmt.Sprintf("%d\n\n", p.SkipBudget))
		if p.StartedAt != nil {
			content.WriteString("Started:\n" + p.StartedAt.Local().Format(time.Kitchen) + "\n\n")
		}
		if p.FinishedAt != nil {
			content.WriteString("Finished:\n" + p.FinishedAt.Local().Format(time.Kitchen) + "\n\n")
		}
	}

	if len(m.keyboard) > 0 {
		content.WriteString("Buttons (Tab):\n")
		for _, b := range m.keyboard {
			content.WriteString(buttonStyle.Render(b) + "\n")
		}
		content.WriteString("\n")
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")

	return content.String()
}

func (m ConsoleUI) waypointNumber(s quest.State) int {
	if s.Kind != quest.KindAtWaypoint && s.Kind != quest.KindAsked {
		return 0
	}
	for i, w := range m.catalog.Waypoints {
		if w.ID == s.ID {
			return i + 1
		}
	}
	return 0
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.layout()

	case outboundMsg:
		// keep the transcript complete while the modal is open
		m.transcript = append(m.transcript, transcriptEntry{from: speakerGuide, text: renderItem(msg.Item)})
		return m, m.waitForOutbound()

	case turnDoneMsg:
		m.loading = false
		m.err = msg.err
		m.refreshState()

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.writeChatContent()
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Quit Quest?"))
	content.WriteString("\n\n")
	content.WriteString("Your progress lives in memory and will be lost.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(50).Render(content.String())

	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.70) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}

// renderProgressBar creates an animated progress bar for loading states
func (m ConsoleUI) renderProgressBar() string {
	usable := m.chatViewport.Width - 6
	if usable <= 0 {
		usable = 30 // fallback before sizing
	}

	if usable > 80 {
		usable = 80
	} else if usable < 10 {
		usable = 10
	}

	const totalFrames = 40
	frame := m.progressTick % totalFrames
	filled := (frame * usable) / totalFrames

	var bar strings.Builder
	for i := 0; i < usable; i++ {
		if i < filled {
			bar.WriteString("█")
		} else if i == filled && frame%4 < 2 {
			bar.WriteString("▓") // Blinking effect at the progress point
		} else {
			bar.WriteString("░")
		}
	}
	return separatorStyle.Render(bar.String())
}

// progressTick creates a command that sends a progress tick message
func progressTick() tea.Cmd {
	return tea.Tick(time.Millisecond*200, func(time.Time) tea.Msg {
		return progressTickMsg{}
	})
}
