package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	goSession "github.com/MrEthical07/goSession"
)

var (
	envFiles  []string
	storeFlag string
	storePath string
	baseURL   string
	verbose   bool
	auditLog  bool

	client *goSession.Client
)

var rootCmd = &cobra.Command{
	Use:   "bankctl",
	Short: "bankctl drives a banking API session from the terminal",
	Long: `bankctl keeps a banking API session (access and refresh token) in a local
store, refreshes it when the API rejects the access token, and submits
transfers with idempotency keys that survive retries and restarts.

Configuration comes from BANK_* environment variables and .env files.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations["offline"] == "true" {
			return nil
		}
		c, err := buildClient(cmd)
		if err != nil {
			return err
		}
		client = c
		return nil
	},
	PersistentPostRunE: func(*cobra.Command, []string) error {
		if client == nil {
			return nil
		}
		return client.Close()
	},
}

// Execute runs the CLI and exits non-zero on failure.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(exitCode(err))
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringSliceVar(&envFiles, "env-file", nil, "dotenv files to load (default .env)")
	pf.StringVar(&storeFlag, "store", goSession.StoreBolt, "token store backend: memory, bolt or redis")
	pf.StringVar(&storePath, "store-path", "", "bolt database path (overrides BANK_STORE_PATH)")
	pf.StringVar(&baseURL, "base-url", "", "API base URL (overrides BANK_API_BASE_URL)")
	pf.BoolVarP(&verbose, "verbose", "v", false, "log requests and session events to stderr")
	pf.BoolVar(&auditLog, "audit", false, "log audit events to stderr")
}

func buildClient(cmd *cobra.Command) (*goSession.Client, error) {
	cfg, err := goSession.LoadConfig(envFiles...)
	if err != nil {
		return nil, err
	}
	if cmd.Flags().Changed("store") || os.Getenv(goSession.EnvPrefix+"STORE_BACKEND") == "" {
		cfg.Store.Backend = storeFlag
	}
	if storePath != "" {
		cfg.Store.Path = storePath
	}
	if baseURL != "" {
		cfg.API.BaseURL = baseURL
	}
	cfg.Audit.Enabled = cfg.Audit.Enabled || auditLog

	level := slog.LevelWarn
	switch {
	case verbose:
		level = slog.LevelDebug
	case cfg.Audit.Enabled:
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	b := goSession.New().
		WithConfig(cfg).
		WithLogger(logger).
		WithNavigator(goSession.NavigatorFunc(func(context.Context) {
			fmt.Fprintln(os.Stderr, "session ended; run `bankctl login` to sign in again")
		}))
	if cfg.Audit.Enabled {
		b.WithAuditSink(goSession.NewSlogSink(logger))
	}
	return b.Build()
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, goSession.ErrSessionTerminated), errors.Is(err, goSession.ErrNoSession):
		return 3
	case goSession.Ambiguous(err):
		return 4
	default:
		return 1
	}
}
