package main

import (
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"capsulemail/internal/auth"
	"capsulemail/internal/compose"
	"capsulemail/internal/config"
	"capsulemail/internal/credstore"
	"capsulemail/internal/gmail"
	"capsulemail/internal/outbox"
	"capsulemail/internal/profile"
	"capsulemail/internal/prompt"
	"capsulemail/internal/tui"
)

func main() {
	// Optional; absence just means config comes from the environment.
	godotenv.Load()

	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	dataDir := cfg.DataDir
	if dataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Cannot determine home directory: %v\n", err)
			os.Exit(1)
		}
		dataDir = filepath.Join(home, ".config", "capsulemail")
	}

	outboxStore, err := outbox.NewStore(filepath.Join(dataDir, "outbox.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open outbox database: %v\n", err)
		os.Exit(1)
	}
	defer outboxStore.Close()

	profileStore, err := profile.NewStore(filepath.Join(dataDir, "profiles.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open profile database: %v\n", err)
		os.Exit(1)
	}
	defer profileStore.Close()

	usage, err := prompt.NewSQLiteUsage(filepath.Join(dataDir, "prompts.db"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot open prompt database: %v\n", err)
		os.Exit(1)
	}
	defer usage.Close()

	library, err := prompt.NewLibrary(usage)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Cannot load prompts: %v\n", err)
		os.Exit(1)
	}

	authMgr := auth.NewManager(cfg, credstore.New(dataDir))
	composer := compose.New(compose.OSFiles{}, cfg.MaxAttachments)
	sender := gmail.NewClient(authMgr, composer, cfg.GmailEndpoint)
	validator := outbox.NewValidator(outbox.OSChecker{})
	reachability := outbox.ProbeReachability{Address: "gmail.googleapis.com:443"}
	retrier := outbox.NewRetrier(outboxStore, sender, validator, reachability)

	appModel := tui.NewAppModel(authMgr, sender, outboxStore, retrier, validator, profileStore, library, usage)
	p := tea.NewProgram(&appModel, tea.WithAltScreen(), tea.WithReportFocus())
	finalModel, err := p.Run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Alas, there's been an error: %v\n", err)
		os.Exit(1)
	}
	if m, ok := finalModel.(*tui.AppModel); ok && m.Err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", m.Err)
		os.Exit(1)
	}
}
