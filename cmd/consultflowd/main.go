// File path: cmd/consultflowd/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/joho/godotenv"

	"github.com/consultflow/consultflow/internal/api"
	"github.com/consultflow/consultflow/internal/common"
	"github.com/consultflow/consultflow/internal/config"
	"github.com/consultflow/consultflow/internal/consultation"
)

func main() {
	logger := common.Logger()

	if err := godotenv.Load(); err != nil {
		logger.Warn("consultflowd: .env file not loaded", "error", err)
	} else {
		logger.Info("consultflowd: environment loaded from .env")
	}

	configPath := flag.String("config", "", "path to a TOML config file")
	addr := flag.String("addr", "", "listen address (overrides config)")
	dbPath := flag.String("db", "", "path to the SQLite database (overrides config)")
	seedAgency := flag.String("seed-agency", "", "create an agency with this name, print a session token, and exit")
	seedColor := flag.String("seed-brand-color", "", "brand color for -seed-agency")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.Error("consultflowd: config load failed", "error", err)
		fmt.Println("config error:", err)
		os.Exit(1)
	}
	if trimmed := strings.TrimSpace(*addr); trimmed != "" {
		cfg.Addr = trimmed
	}
	if trimmed := strings.TrimSpace(*dbPath); trimmed != "" {
		cfg.DatabasePath = trimmed
	}

	logger.Info("consultflowd: startup initiated", "addr", cfg.Addr, "db", cfg.DatabasePath)

	store, err := consultation.OpenWithOptions(consultation.StoreOptions{
		Path:         cfg.DatabasePath,
		MaxOpenConns: cfg.MaxOpenConns,
		MaxIdleConns: cfg.MaxIdleConns,
		BusyTimeout:  cfg.BusyTimeout,
	})
	if err != nil {
		logger.Error("consultflowd: store open failed", "error", err)
		fmt.Println("store error:", err)
		os.Exit(1)
	}
	defer store.Close()

	if name := strings.TrimSpace(*seedAgency); name != "" {
		seed(store, name, strings.TrimSpace(*seedColor))
		return
	}

	apiCfg := api.Config{CookieName: cfg.CookieName}
	server, err := api.NewServer(store, &apiCfg)
	if err != nil {
		logger.Error("consultflowd: server construction failed", "error", err)
		fmt.Println("server error:", err)
		os.Exit(1)
	}

	logger.Info("consultflowd: server listening", "addr", cfg.Addr, "health", "/healthz")
	fmt.Printf("Serving on %s\n", cfg.Addr)
	if err := http.ListenAndServe(cfg.Addr, server); err != nil {
		logger.Error("consultflowd: server stopped", "error", err)
		fmt.Println("server stopped:", err)
	}
}

// seed provisions a tenant and a session token so an intake client can talk
// to a fresh database.
func seed(store *consultation.Store, name, brandColor string) {
	ctx := context.Background()
	agency, err := store.CreateAgency(ctx, name, brandColor, "")
	if err != nil {
		fmt.Println("seed error:", err)
		os.Exit(1)
	}
	session, err := store.CreateSession(ctx, agency.ID)
	if err != nil {
		fmt.Println("seed error:", err)
		os.Exit(1)
	}
	fmt.Printf("agency %s (%s)\nsession token: %s\n", agency.Name, agency.ID, session.Token)
}
