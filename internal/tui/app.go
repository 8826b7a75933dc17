// Package tui is the terminal front end: connect Gmail, compose today's
// capsule entry, and work the outbox.
package tui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"capsulemail/internal/auth"
	"capsulemail/internal/model"
	"capsulemail/internal/outbox"
	"capsulemail/internal/profile"
	"capsulemail/internal/prompt"
)

type viewState int

const (
	viewLoading viewState = iota
	viewAuth              // waiting for auth code input
	viewCompose           // today's entry
	viewOutbox            // queued entries
	viewEntry             // single entry detail
	viewReplace           // picking a replacement photo path
)

type AppModel struct {
	// Core collaborators
	auth      *auth.Manager
	sender    outbox.Sender
	store     *outbox.Store
	retrier   *outbox.Retrier
	validator *outbox.Validator
	profiles  *profile.Store
	prompts   *prompt.Library
	usage     *prompt.SQLiteUsage
	Err       error
	status    string

	// Session state
	connectedEmail string
	child          *model.ChildProfile
	dayNumber      int
	currentPrompt  model.Prompt
	pendingCount   int

	// Auth flow
	authURL      string
	authVerifier string
	codeInput    textinput.Model

	// Compose
	textInput  textinput.Model
	photoInput textinput.Model

	// Photo replacement
	replaceInput   textinput.Model
	replaceEntryID string
	replaceOldURI  string

	// View state machine
	view         viewState
	outboxList   list.Model
	bodyViewport viewport.Model

	width, height int
}

func NewAppModel(
	authMgr *auth.Manager,
	sender outbox.Sender,
	store *outbox.Store,
	retrier *outbox.Retrier,
	validator *outbox.Validator,
	profiles *profile.Store,
	prompts *prompt.Library,
	usage *prompt.SQLiteUsage,
) AppModel {
	code := textinput.New()
	code.Placeholder = "Paste auth code here"
	code.Focus()

	entry := textinput.New()
	entry.Placeholder = "Write today's note..."
	entry.CharLimit = 2000
	entry.Width = 72

	photos := textinput.New()
	photos.Placeholder = "Photo paths, comma separated (optional)"
	photos.Width = 72

	replace := textinput.New()
	replace.Placeholder = "Path to the replacement photo"
	replace.Width = 72

	ol := list.New([]list.Item{}, list.NewDefaultDelegate(), 0, 0)
	ol.KeyMap.Quit.SetKeys("q")

	vp := viewport.New(0, 0)

	return AppModel{
		auth:         authMgr,
		sender:       sender,
		store:        store,
		retrier:      retrier,
		validator:    validator,
		profiles:     profiles,
		prompts:      prompts,
		usage:        usage,
		status:       "Loading...",
		view:         viewLoading,
		codeInput:    code,
		textInput:    entry,
		photoInput:   photos,
		replaceInput: replace,
		outboxList:   ol,
		bodyViewport: vp,
	}
}

func (m *AppModel) Init() tea.Cmd {
	return tea.Batch(m.loadHomeCmd(), textinput.Blink)
}

func (m *AppModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.outboxList.SetSize(msg.Width, msg.Height-4)
		m.bodyViewport.Width = msg.Width
		m.bodyViewport.Height = msg.Height - 6
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)

	case tea.FocusMsg:
		// Coming back to the terminal acts like an app foreground: give the
		// queue another chance.
		if m.view == viewCompose || m.view == viewOutbox {
			return m, m.autoRetryCmd()
		}
		return m, nil

	case homeLoadedMsg:
		if msg.err != nil {
			m.Err = msg.err
			return m, tea.Quit
		}
		m.connectedEmail = msg.email
		m.child = msg.child
		m.currentPrompt = msg.prompt
		m.pendingCount = msg.pending
		if msg.child != nil {
			if day, err := profile.DayNumber(msg.child.Birthday, time.Now()); err == nil {
				m.dayNumber = day
			}
		}
		if !msg.connected {
			return m, m.startAuthCmd()
		}
		m.view = viewCompose
		m.textInput.Focus()
		m.status = ""
		// Kick the queue as soon as we have a token, like an app foreground.
		return m, m.autoRetryCmd()

	case authStartedMsg:
		m.authURL = msg.url
		m.authVerifier = msg.verifier
		m.view = viewAuth
		m.status = ""
		return m, nil

	case authDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Authorization failed: %v", msg.err)
			return m, nil
		}
		m.status = "Connected as " + msg.email
		return m, m.loadHomeCmd()

	case sendDoneMsg:
		m.textInput.Reset()
		m.photoInput.Reset()
		switch {
		case msg.queued:
			m.pendingCount++
			m.status = "Send failed, queued to outbox: " + msg.errorMsg
		case msg.errorMsg != "":
			m.status = "Send failed: " + msg.errorMsg
		default:
			m.status = "Sent!"
		}
		return m, tea.Batch(m.nextPromptCmd(), clearStatusAfter(3*time.Second))

	case outboxLoadedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Failed to load outbox: %v", msg.err)
			return m, nil
		}
		m.outboxList.SetItems(entriesToItems(msg.entries))
		m.outboxList.Title = fmt.Sprintf("Outbox (%d)", len(msg.entries))
		m.view = viewOutbox
		return m, nil

	case entryRetriedMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Retry failed: %v", msg.err)
		} else {
			switch msg.result.Outcome {
			case outbox.OutcomeSent:
				m.pendingCount--
				m.status = "Sent!"
			default:
				m.status = msg.result.Error
			}
		}
		return m, tea.Batch(m.loadOutboxCmd(), clearStatusAfter(3*time.Second))

	case autoRetryDoneMsg:
		if msg.err != nil {
			m.status = fmt.Sprintf("Auto-retry error: %v", msg.err)
			return m, clearStatusAfter(3 * time.Second)
		}
		m.pendingCount -= msg.report.Succeeded
		if msg.report.Attempted > 0 {
			m.status = fmt.Sprintf("Retried %d queued: %d sent, %d failed",
				msg.report.Attempted, msg.report.Succeeded, msg.report.Failed)
		}
		if m.view == viewOutbox {
			return m, tea.Batch(m.loadOutboxCmd(), clearStatusAfter(3*time.Second))
		}
		return m, clearStatusAfter(3 * time.Second)

	case promptMsg:
		if msg.err == nil {
			m.currentPrompt = msg.prompt
		}
		return m, nil

	case statusMsg:
		if string(msg) == "" {
			m.status = ""
		}
		return m, nil
	}

	// Delegate to active sub-model
	var cmd tea.Cmd
	switch m.view {
	case viewAuth:
		m.codeInput, cmd = m.codeInput.Update(msg)
	case viewCompose:
		if m.photoInput.Focused() {
			m.photoInput, cmd = m.photoInput.Update(msg)
		} else {
			m.textInput, cmd = m.textInput.Update(msg)
		}
	case viewOutbox:
		m.outboxList, cmd = m.outboxList.Update(msg)
	case viewEntry:
		m.bodyViewport, cmd = m.bodyViewport.Update(msg)
	case viewReplace:
		m.replaceInput, cmd = m.replaceInput.Update(msg)
	}
	return m, cmd
}

func (m *AppModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	key := msg.String()

	if key == "ctrl+c" {
		return m, tea.Quit
	}

	switch m.view {
	case viewAuth:
		switch key {
		case "enter":
			code := strings.TrimSpace(m.codeInput.Value())
			m.codeInput.Reset()
			if code == "" {
				return m, nil
			}
			m.status = "Exchanging code..."
			return m, m.exchangeCmd(code)
		case "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		m.codeInput, cmd = m.codeInput.Update(msg)
		return m, cmd

	case viewCompose:
		switch key {
		case "enter":
			text := strings.TrimSpace(m.textInput.Value())
			if text == "" {
				return m, nil
			}
			if m.child == nil {
				m.status = "Add a child profile first (no recipient configured)"
				return m, clearStatusAfter(3 * time.Second)
			}
			m.status = "Sending..."
			return m, m.sendCmd(text, splitPhotoPaths(m.photoInput.Value()))
		case "tab":
			if m.textInput.Focused() {
				m.textInput.Blur()
				m.photoInput.Focus()
			} else {
				m.photoInput.Blur()
				m.textInput.Focus()
			}
			return m, nil
		case "ctrl+r":
			return m, m.nextPromptCmd()
		case "ctrl+o":
			return m, m.loadOutboxCmd()
		case "esc":
			return m, tea.Quit
		}
		var cmd tea.Cmd
		if m.photoInput.Focused() {
			m.photoInput, cmd = m.photoInput.Update(msg)
		} else {
			m.textInput, cmd = m.textInput.Update(msg)
		}
		return m, cmd

	case viewOutbox:
		if m.outboxList.FilterState() == list.Filtering {
			var cmd tea.Cmd
			m.outboxList, cmd = m.outboxList.Update(msg)
			return m, cmd
		}
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewCompose
			m.textInput.Focus()
			return m, nil
		case "enter":
			return m.retrySelectedEntry()
		case "a":
			m.status = "Retrying all queued entries..."
			return m, m.autoRetryCmd()
		case "d":
			return m.deleteSelectedEntry()
		case "p":
			return m.startPhotoReplacement()
		case "v":
			return m.viewSelectedEntry()
		}
		var cmd tea.Cmd
		m.outboxList, cmd = m.outboxList.Update(msg)
		return m, cmd

	case viewEntry:
		switch key {
		case "q":
			return m, tea.Quit
		case "esc":
			m.view = viewOutbox
			return m, nil
		}
		var cmd tea.Cmd
		m.bodyViewport, cmd = m.bodyViewport.Update(msg)
		return m, cmd

	case viewReplace:
		switch key {
		case "enter":
			path := strings.TrimSpace(m.replaceInput.Value())
			m.replaceInput.Reset()
			if path == "" {
				return m, nil
			}
			m.view = viewOutbox
			m.status = "Replacing photo..."
			return m, m.replacePhotoCmd(m.replaceEntryID, m.replaceOldURI, path)
		case "esc":
			m.replaceInput.Reset()
			m.view = viewOutbox
			return m, nil
		}
		var cmd tea.Cmd
		m.replaceInput, cmd = m.replaceInput.Update(msg)
		return m, cmd
	}

	return m, nil
}

func (m *AppModel) viewSelectedEntry() (tea.Model, tea.Cmd) {
	selected := m.outboxList.SelectedItem()
	if selected == nil {
		return m, nil
	}
	e := selected.(entryItem)

	var b strings.Builder
	b.WriteString("Subject: " + e.Subject + "\n")
	b.WriteString("To: " + e.ChildName + " <" + e.ChildEmail + ">\n")
	b.WriteString("Created: " + trimDate(e.CreatedAt) + "\n")
	b.WriteString("Status: " + string(e.Status))
	if e.ErrorMessage != "" {
		b.WriteString(" (" + e.ErrorMessage + ")")
	}
	b.WriteString("\n")
	for _, uri := range e.PhotoURIs {
		b.WriteString("Photo: " + uri + "\n")
	}
	b.WriteString("\n" + e.Body)

	m.bodyViewport.SetContent(b.String())
	m.bodyViewport.GotoTop()
	m.view = viewEntry
	return m, nil
}

// startPhotoReplacement targets the selected entry's first unreadable photo,
// or its first photo when all still resolve.
func (m *AppModel) startPhotoReplacement() (tea.Model, tea.Cmd) {
	selected := m.outboxList.SelectedItem()
	if selected == nil {
		return m, nil
	}
	e := selected.(entryItem)
	if len(e.PhotoURIs) == 0 {
		m.status = "Selected entry has no photos"
		return m, clearStatusAfter(3 * time.Second)
	}
	old := e.PhotoURIs[0]
	if invalid := m.validator.InvalidPhotoURIs(e.CapsuleEntry); len(invalid) > 0 {
		old = invalid[0]
	}
	m.replaceEntryID = e.ID
	m.replaceOldURI = old
	m.replaceInput.Focus()
	m.view = viewReplace
	return m, nil
}

func (m *AppModel) retrySelectedEntry() (tea.Model, tea.Cmd) {
	selected := m.outboxList.SelectedItem()
	if selected == nil {
		return m, nil
	}
	e := selected.(entryItem)
	m.status = "Retrying..."
	return m, m.retryEntryCmd(e.ID)
}

func (m *AppModel) deleteSelectedEntry() (tea.Model, tea.Cmd) {
	selected := m.outboxList.SelectedItem()
	if selected == nil {
		return m, nil
	}
	e := selected.(entryItem)
	idx := m.outboxList.Index()
	m.outboxList.RemoveItem(idx)
	// Entries mid-send were never part of the queued count.
	if e.Status == model.StatusPending || e.Status == model.StatusFailed {
		m.pendingCount--
	}
	return m, func() tea.Msg {
		if err := m.store.Remove(context.Background(), e.ID); err != nil {
			return statusMsg(fmt.Sprintf("Delete failed: %v", err))
		}
		return statusMsg("")
	}
}

// Commands

func (m *AppModel) loadHomeCmd() tea.Cmd {
	return func() tea.Msg {
		ctx := context.Background()

		connected := m.auth.IsConnected()
		email := m.auth.ConnectedEmail()

		child, err := m.profiles.DefaultChild(ctx)
		if err != nil {
			return homeLoadedMsg{err: err}
		}

		pending, err := m.store.PendingCount(ctx)
		if err != nil {
			return homeLoadedMsg{err: err}
		}

		var p model.Prompt
		if child != nil {
			if day, derr := profile.DayNumber(child.Birthday, time.Now()); derr == nil {
				if rp, perr := m.prompts.RandomForAge(ctx, day); perr == nil {
					p = rp
					m.usage.SetCurrent(ctx, rp.ID)
				}
			}
		}

		return homeLoadedMsg{
			connected: connected,
			email:     email,
			child:     child,
			prompt:    p,
			pending:   pending,
		}
	}
}

func (m *AppModel) startAuthCmd() tea.Cmd {
	return func() tea.Msg {
		req := m.auth.NewAuthorization()
		return authStartedMsg{url: req.URL, verifier: req.Verifier}
	}
}

func (m *AppModel) exchangeCmd(code string) tea.Cmd {
	verifier := m.authVerifier
	return func() tea.Msg {
		set, err := m.auth.ExchangeCode(context.Background(), code, verifier)
		if err != nil {
			return authDoneMsg{err: err}
		}
		return authDoneMsg{email: set.UserEmail}
	}
}

func splitPhotoPaths(s string) []string {
	var out []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (m *AppModel) sendCmd(text string, photos []string) tea.Cmd {
	child := *m.child
	promptID := m.currentPrompt.ID
	return func() tea.Msg {
		ctx := context.Background()

		entry, err := profile.NewEntry(child, text, photos, time.Now())
		if err != nil {
			return sendDoneMsg{queued: false, errorMsg: err.Error()}
		}

		res := m.sender.Send(ctx, model.EmailPayload{
			To:        entry.ChildEmail,
			Subject:   entry.Subject,
			Body:      entry.Body,
			PhotoURIs: entry.PhotoURIs,
		})
		if res.Success {
			if promptID != 0 {
				m.usage.ClearCurrent(ctx)
			}
			return sendDoneMsg{}
		}

		// Failed fresh sends land in the outbox already failed, ready for retry.
		entry.Status = model.StatusFailed
		entry.ErrorMessage = res.Error
		if err := m.store.Add(ctx, entry); err != nil {
			return sendDoneMsg{queued: true, errorMsg: res.Error + " (and queueing failed: " + err.Error() + ")"}
		}
		return sendDoneMsg{queued: true, errorMsg: res.Error}
	}
}

func (m *AppModel) loadOutboxCmd() tea.Cmd {
	return func() tea.Msg { return m.loadOutbox() }
}

func (m *AppModel) loadOutbox() tea.Msg {
	entries, err := m.store.List(context.Background())
	// Newest first for display; retries still drain oldest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	return outboxLoadedMsg{entries: entries, err: err}
}

func (m *AppModel) replacePhotoCmd(id, oldURI, newPath string) tea.Cmd {
	return func() tea.Msg {
		if err := m.store.ReplacePhotoURI(context.Background(), id, oldURI, newPath); err != nil {
			return statusMsg(fmt.Sprintf("Replace failed: %v", err))
		}
		return m.loadOutbox()
	}
}

func (m *AppModel) retryEntryCmd(id string) tea.Cmd {
	return func() tea.Msg {
		res, err := m.retrier.RetryEntry(context.Background(), id)
		return entryRetriedMsg{id: id, result: res, err: err}
	}
}

func (m *AppModel) autoRetryCmd() tea.Cmd {
	return func() tea.Msg {
		report, err := m.retrier.AutoRetryPending(context.Background())
		return autoRetryDoneMsg{report: report, err: err}
	}
}

func (m *AppModel) nextPromptCmd() tea.Cmd {
	if m.child == nil {
		return nil
	}
	child := *m.child
	current := m.currentPrompt.ID
	return func() tea.Msg {
		ctx := context.Background()
		day, err := profile.DayNumber(child.Birthday, time.Now())
		if err != nil {
			return promptMsg{err: err}
		}
		p, err := m.prompts.NextInBucket(ctx, current, day)
		if err != nil {
			return promptMsg{err: err}
		}
		m.usage.SetCurrent(ctx, p.ID)
		return promptMsg{prompt: p}
	}
}

func clearStatusAfter(d time.Duration) tea.Cmd {
	return tea.Tick(d, func(time.Time) tea.Msg {
		return statusMsg("")
	})
}

// View renders the appropriate view based on current state.
func (m *AppModel) View() string {
	if m.view == viewAuth {
		return "Open this URL in your browser to connect Gmail:\n\n" +
			m.authURL + "\n\n" +
			m.codeInput.View() + "\n\n" +
			footerStyle.Render("enter: submit code  esc: quit")
	}

	if m.Err != nil {
		return "Error: " + m.Err.Error() + "\n"
	}

	if m.view == viewLoading {
		if m.status != "" {
			return m.status + "\n"
		}
		return "Loading...\n"
	}

	var b strings.Builder

	switch m.view {
	case viewCompose:
		if m.child != nil {
			b.WriteString(fmt.Sprintf("Day %d — a note for %s\n", m.dayNumber, m.child.Name))
		} else {
			b.WriteString("No child profile configured.\n")
		}
		if m.currentPrompt.Text != "" {
			b.WriteString("\nPrompt: " + m.currentPrompt.Text + "\n")
		}
		b.WriteString("\n" + m.textInput.View() + "\n")
		b.WriteString(m.photoInput.View() + "\n")
		footer := fmt.Sprintf("enter: send  tab: photos  ctrl+r: new prompt  ctrl+o: outbox (%d queued)  esc: quit", m.pendingCount)
		if m.connectedEmail != "" {
			footer += "  [" + m.connectedEmail + "]"
		}
		b.WriteString("\n" + footerStyle.Render(footer))
	case viewOutbox:
		b.WriteString(m.outboxList.View())
		b.WriteString("\n")
		b.WriteString(outboxFooter())
	case viewEntry:
		b.WriteString(m.bodyViewport.View())
		b.WriteString("\n")
		b.WriteString(footerStyle.Render("esc: back  q: quit"))
	case viewReplace:
		b.WriteString("Replace photo\n\n")
		b.WriteString("Current: " + m.replaceOldURI + "\n\n")
		b.WriteString(m.replaceInput.View() + "\n")
		b.WriteString(footerStyle.Render("enter: replace  esc: cancel"))
	}

	if m.status != "" {
		b.WriteString("\n")
		b.WriteString(m.status)
	}

	return b.String()
}

// trimDate converts an RFC3339 timestamp to a short date string.
func trimDate(rfc3339 string) string {
	if rfc3339 == "" {
		return ""
	}
	if t, err := time.Parse(time.RFC3339, rfc3339); err == nil {
		return t.Format("Jan 2, 2006")
	}
	return rfc3339
}
