package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/spf13/cobra"

	"github.com/MrEthical07/goSession/internal/fakebank"
)

var (
	listenAddr string
	demoUsers  []string
	accessTTL  time.Duration
	rotate     bool
)

var fakeServerCmd = &cobra.Command{
	Use:         "fake-server",
	Short:       "Serve an in-memory bank API under /api for local testing",
	Annotations: map[string]string{"offline": "true"},
	RunE: func(cmd *cobra.Command, _ []string) error {
		bank, err := fakebank.New(fakebank.Options{AccessTTL: accessTTL, RotateRefresh: rotate})
		if err != nil {
			return err
		}
		for _, u := range demoUsers {
			bank.AddUser(u, "password", "USER")
			a := bank.AddAccount(u, 1, 1_000_000, "1234")
			fmt.Fprintf(cmd.OutOrStdout(), "user %s / password, account %s (pin 1234)\n", u, a.AccountNumber)
		}

		r := chi.NewRouter()
		r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
			_, _ = w.Write([]byte("OK"))
		})
		r.Mount("/api", bank.Handler())

		srv := &http.Server{Addr: listenAddr, Handler: r, ReadHeaderTimeout: 5 * time.Second}
		errCh := make(chan error, 1)
		go func() {
			fmt.Fprintf(cmd.OutOrStdout(), "listening on %s\n", listenAddr)
			errCh <- srv.ListenAndServe()
		}()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()
		select {
		case err := <-errCh:
			if !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		case <-ctx.Done():
		}

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	},
}

func init() {
	f := fakeServerCmd.Flags()
	f.StringVar(&listenAddr, "addr", ":8080", "listen address")
	f.StringSliceVar(&demoUsers, "user", []string{"demo@bank.test"}, "users to create, each with password \"password\"")
	f.DurationVar(&accessTTL, "access-ttl", 30*time.Minute, "access token lifetime")
	f.BoolVar(&rotate, "rotate-refresh", false, "issue a new refresh token on every refresh")
	rootCmd.AddCommand(fakeServerCmd)
}
