package tui

import (
	"capsulemail/internal/model"
	"capsulemail/internal/outbox"
)

// Async message types for Bubble Tea commands.

type homeLoadedMsg struct {
	connected bool
	email     string
	child     *model.ChildProfile
	prompt    model.Prompt
	pending   int
	err       error
}

type authStartedMsg struct {
	url      string
	verifier string
}

type authDoneMsg struct {
	email string
	err   error
}

type sendDoneMsg struct {
	queued   bool // entry landed in the outbox instead of sending
	errorMsg string
}

type outboxLoadedMsg struct {
	entries []model.CapsuleEntry
	err     error
}

type entryRetriedMsg struct {
	id     string
	result outbox.RetryResult
	err    error
}

type autoRetryDoneMsg struct {
	report model.RetryReport
	err    error
}

type promptMsg struct {
	prompt model.Prompt
	err    error
}

type statusMsg string
