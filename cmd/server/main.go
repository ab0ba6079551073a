package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"edgegrid/internal/app"
	"edgegrid/internal/auth"
	"edgegrid/internal/config"
)

func main() {
	configPath := flag.String("config", "", "path to a YAML config file (default $APP_CONFIG)")
	issue := flag.String("issue-token", "", "print a signed token for this operator and exit")
	role := flag.String("role", auth.RoleOperator, "role for -issue-token: operator or viewer")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(2)
	}

	if *issue != "" {
		tok, err := app.IssueToken(cfg, *issue, *role)
		if err != nil {
			fmt.Fprintln(os.Stderr, "issue token:", err)
			os.Exit(1)
		}
		fmt.Println(tok)
		return
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: parseLevel(cfg.LogLevel)}))
	logger.Info("starting edgegrid", "addr", cfg.HTTP.Addr, "store", cfg.Store, "db", cfg.DBPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		logger.Error("init failed", "err", err)
		os.Exit(1)
	}
	if err := a.Run(ctx); err != nil {
		logger.Error("shutdown with error", "err", err)
		os.Exit(1)
	}
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	}
	return slog.LevelInfo
}
