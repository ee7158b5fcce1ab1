// File path: cmd/consultflow-intake/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"

	"github.com/consultflow/consultflow/internal/common"
	"github.com/consultflow/consultflow/internal/config"
	"github.com/consultflow/consultflow/internal/consultation"
	"github.com/consultflow/consultflow/internal/form"
	"github.com/consultflow/consultflow/internal/gateway"
	"github.com/consultflow/consultflow/internal/session"
	"github.com/consultflow/consultflow/internal/tui"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Debug("intake: .env file not loaded", "error", err)
	}

	server := flag.String("server", "127.0.0.1:8084", "consultation API address")
	token := flag.String("token", os.Getenv("CONSULTFLOW_SESSION_TOKEN"), "session token")
	resume := flag.String("consultation", "", "resume an existing consultation by id")
	configPath := flag.String("config", "", "path to a TOML config file")
	flag.Parse()

	if strings.TrimSpace(*token) == "" {
		fmt.Println("a session token is required (-token or CONSULTFLOW_SESSION_TOKEN)")
		os.Exit(1)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Println("config error:", err)
		os.Exit(1)
	}

	client, err := gateway.NewClient(*server, gateway.ClientOptions{
		Timeout:      cfg.RequestTimeout,
		CookieName:   cfg.CookieName,
		SessionToken: *token,
	})
	if err != nil {
		fmt.Println("client error:", err)
		os.Exit(1)
	}

	ctx := context.Background()
	opts := session.Options{AutoSave: form.AutoSaverConfig{
		Debounce:   cfg.AutoSaveDebounce,
		MaxRetries: cfg.AutoSaveMaxRetries,
	}}

	sess, agency, err := openSession(ctx, client, *resume, opts)
	if err != nil {
		logger.Error("intake: session start failed", "error", err)
		fmt.Println("session error:", err)
		os.Exit(1)
	}
	defer sess.Close()

	model := tui.NewModel(tui.Options{Session: sess, Agency: agency, Timeout: cfg.RequestTimeout})
	if _, err := tea.NewProgram(model, tea.WithAltScreen()).Run(); err != nil {
		fmt.Println("ui error:", err)
		os.Exit(1)
	}
}

func openSession(ctx context.Context, client *gateway.Client, resumeID string, opts session.Options) (*session.Session, consultation.Agency, error) {
	agency, err := client.FetchAgency(ctx)
	if err != nil {
		return nil, consultation.Agency{}, fmt.Errorf("fetch agency: %w", err)
	}
	if trimmed := strings.TrimSpace(resumeID); trimmed != "" {
		sess, err := session.Resume(ctx, client, trimmed, opts)
		if err != nil {
			return nil, consultation.Agency{}, err
		}
		return sess, agency, nil
	}
	sess := session.New(client, opts)
	if _, err := sess.Begin(ctx); err != nil {
		return nil, consultation.Agency{}, err
	}
	return sess, agency, nil
}
