package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"homesvc.app/client/internal/infrastructure/logging"
	"homesvc.app/client/internal/mockapi"
)

func newDevCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:    "dev",
		Short:  "Development helpers",
		Hidden: true,
	}
	cmd.AddCommand(newMockServerCommand())
	return cmd
}

func newMockServerCommand() *cobra.Command {
	var (
		addr     string
		tokenTTL time.Duration
	)

	cmd := &cobra.Command{
		Use:         "mock-server",
		Short:       "Run a local fake of the account backend",
		Long:        "Serves the account endpoints with a demo account (demo / password) and JWT access tokens.",
		Annotations: map[string]string{annotationStandalone: "true"},
		Args:        cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := logging.New("info", "console", cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			backend := mockapi.NewServer(mockapi.Config{
				Accounts: []mockapi.Account{mockapi.DemoAccount()},
				TokenTTL: tokenTTL,
			})
			server := &http.Server{
				Addr:              addr,
				Handler:           backend,
				ReadHeaderTimeout: 5 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				errCh <- server.ListenAndServe()
			}()
			logger.Info().Str("addr", addr).Dur("token_ttl", tokenTTL).Msg("mock backend listening")

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return fmt.Errorf("mock server failed: %w", err)
			case <-cmd.Context().Done():
			}

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			logger.Info().Msg("shutting down mock backend")
			return server.Shutdown(ctx)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "Listen address")
	cmd.Flags().DurationVar(&tokenTTL, "token-ttl", 15*time.Minute, "Access token lifetime")

	return cmd
}
