package tui

import (
	"fmt"

	"github.com/charmbracelet/bubbles/list"
	"github.com/charmbracelet/lipgloss"

	"capsulemail/internal/model"
)

// entryItem wraps CapsuleEntry to customize list display.
type entryItem struct {
	model.CapsuleEntry
}

func (e entryItem) FilterValue() string { return e.Subject + " " + e.ChildName }
func (e entryItem) Title() string {
	marker := " "
	switch e.Status {
	case model.StatusFailed:
		marker = "! "
	case model.StatusSending:
		marker = "> "
	}
	return fmt.Sprintf("%s%s", marker, e.Subject)
}
func (e entryItem) Description() string {
	desc := fmt.Sprintf("%s • %s", e.Status, trimDate(e.CreatedAt))
	if len(e.PhotoURIs) > 0 {
		desc += fmt.Sprintf(" • %d photo(s)", len(e.PhotoURIs))
	}
	if e.ErrorMessage != "" {
		desc += " • " + e.ErrorMessage
	}
	return desc
}

var footerStyle = lipgloss.NewStyle().
	Foreground(lipgloss.Color("241")).
	PaddingTop(1)

func outboxFooter() string {
	return footerStyle.Render("enter: retry  v: view  a: retry all  p: replace photo  d: delete  esc: back  q: quit")
}

func entriesToItems(entries []model.CapsuleEntry) []list.Item {
	items := make([]list.Item, len(entries))
	for i, e := range entries {
		items[i] = entryItem{e}
	}
	return items
}
