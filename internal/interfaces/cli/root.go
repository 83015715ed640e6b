package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
	"homesvc.app/client/internal/infrastructure/config"
	"homesvc.app/client/internal/interfaces/di"
)

var (
	Version   = "dev"     // Overridden by ldflags
	BuildTime = "unknown" // Overridden by ldflags
)

// annotationStandalone marks commands that run without the session stack
const annotationStandalone = "standalone"

// CLIContainer holds what commands need. App is built before a command runs.
type CLIContainer struct {
	// EnvFiles are loaded before the environment is parsed; missing files are skipped
	EnvFiles []string
	Options  di.Options
	// ReadPassword overrides the terminal prompt, used by tests
	ReadPassword func(prompt string) (string, error)

	App *di.Container
}

// NewRootCommand RootCommand represents the base command when called without any subcommands
func NewRootCommand(container *CLIContainer) *cobra.Command {
	var rootCmd = &cobra.Command{
		Use:   "hs",
		Short: "Home services marketplace client",
		Long: `hs signs in to the home services marketplace and sends authenticated
requests on your behalf.

Sessions are stored locally and refreshed automatically when the backend
rejects an expired access token.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Annotations[annotationStandalone] == "true" {
				return nil
			}

			cfg, err := config.Load(container.EnvFiles...)
			if err != nil {
				return err
			}
			if err := applyConfigurationOverrides(cmd, cfg); err != nil {
				return fmt.Errorf("failed to apply configuration overrides: %w", err)
			}

			app, err := di.NewContainer(cmd.Context(), cfg, container.Options)
			if err != nil {
				return fmt.Errorf("failed to initialize application: %w", err)
			}
			container.App = app
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if container.App == nil {
				return nil
			}
			return container.App.Shutdown(cmd.Context())
		},
	}

	rootCmd.SetVersionTemplate(fmt.Sprintf("{{.Name}} version {{.Version}}\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
		BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH))

	rootCmd.PersistentFlags().Bool("debug", false, "Enable debug logging")
	rootCmd.PersistentFlags().String("api-url", "", "Backend base URL (overrides HS_API_URL)")
	rootCmd.PersistentFlags().String("storage", "", "Session storage backend: file, sqlite, redis or memory")
	rootCmd.PersistentFlags().String("log-level", "", "Log level (overrides HS_LOG_LEVEL)")

	rootCmd.AddCommand(newAuthCommand(container))
	rootCmd.AddCommand(newRequestCommand(container))
	rootCmd.AddCommand(newDevCommand())
	rootCmd.AddCommand(newVersionCommand())

	return rootCmd
}

// goVersion returns the Go version used to build the binary
func goVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok {
		return info.GoVersion
	}
	return "unknown"
}

// applyConfigurationOverrides applies explicitly set flags on top of the environment
func applyConfigurationOverrides(cmd *cobra.Command, cfg *config.Config) error {
	flags := cmd.Flags()

	if flags.Changed("api-url") {
		apiURL, _ := flags.GetString("api-url")
		if apiURL == "" {
			return fmt.Errorf("API URL cannot be empty")
		}
		cfg.APIURL = apiURL
	}
	if flags.Changed("storage") {
		cfg.Storage, _ = flags.GetString("storage")
	}
	if flags.Changed("log-level") {
		cfg.LogLevel, _ = flags.GetString("log-level")
	}
	if debugMode, _ := flags.GetBool("debug"); debugMode {
		cfg.LogLevel = "debug"
	}

	return nil
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:         "version",
		Short:       "Print version information",
		Annotations: map[string]string{annotationStandalone: "true"},
		Args:        cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "hs %s\nBuild time: %s\nGo version: %s\nPlatform: %s/%s\n",
				Version, BuildTime, goVersion(), runtime.GOOS, runtime.GOARCH)
		},
	}
}

// Execute adds all child commands to the root command and runs it
func Execute(ctx context.Context, container *CLIContainer) {
	rootCmd := NewRootCommand(container)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func out(cmd *cobra.Command) io.Writer {
	return cmd.OutOrStdout()
}
