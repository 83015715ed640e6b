package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"homesvc.app/client/internal/core/domain"
)

// newAuthCommand creates the auth subcommand
func newAuthCommand(container *CLIContainer) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auth",
		Short: "Sign in, sign out and inspect the session",
	}

	cmd.AddCommand(newAuthLoginCommand(container))
	cmd.AddCommand(newAuthExternalLoginCommand(container))
	cmd.AddCommand(newAuthLogoutCommand(container))
	cmd.AddCommand(newAuthStatusCommand(container))
	cmd.AddCommand(newAuthRefreshCommand(container))
	cmd.AddCommand(newAuthWatchCommand(container))
	cmd.AddCommand(newForgotPasswordCommand(container))
	cmd.AddCommand(newResetPasswordCommand(container))
	cmd.AddCommand(newResendOTPCommand(container))

	return cmd
}

// waitForSession blocks until the startup read has settled
func waitForSession(ctx context.Context, container *CLIContainer) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	if err := container.App.Session.WaitForInitialization(ctx); err != nil {
		return fmt.Errorf("session did not initialize: %w", err)
	}
	return nil
}

func newAuthLoginCommand(container *CLIContainer) *cobra.Command {
	var credentials domain.Credentials

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a user name or email and password",
		Example: `  hs auth login --email jane@example.com
  hs auth login --identifier jdoe --password-stdin < password.txt`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if credentials.Identifier == "" && credentials.Email == "" {
				return fmt.Errorf("--identifier or --email is required")
			}
			password, err := readPassword(cmd, container, "Password: ")
			if err != nil {
				return err
			}
			credentials.Password = password

			if err := waitForSession(cmd.Context(), container); err != nil {
				return err
			}
			user, err := container.App.Session.Login(cmd.Context(), credentials)
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Fprintf(out(cmd), "Signed in as %s\n", displayName(user))
			return nil
		},
	}

	cmd.Flags().StringVarP(&credentials.Identifier, "identifier", "u", "", "User name or phone number")
	cmd.Flags().StringVar(&credentials.Email, "email", "", "Account email")
	cmd.Flags().Bool("password-stdin", false, "Read the password from stdin")

	return cmd
}

func newAuthExternalLoginCommand(container *CLIContainer) *cobra.Command {
	var request domain.ExternalLoginRequest

	cmd := &cobra.Command{
		Use:     "external-login",
		Short:   "Sign in with a third-party identity token",
		Example: `  hs auth external-login --provider google --id-token "$GOOGLE_ID_TOKEN" --role customer`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if request.IDToken == "" || request.Provider == "" {
				return fmt.Errorf("--provider and --id-token are required")
			}
			if err := waitForSession(cmd.Context(), container); err != nil {
				return err
			}

			user, err := container.App.Session.ExternalLogin(cmd.Context(), request)
			if err != nil {
				return fmt.Errorf("external login failed: %w", err)
			}

			fmt.Fprintf(out(cmd), "Signed in with %s as %s\n", request.Provider, displayName(user))
			return nil
		},
	}

	cmd.Flags().StringVar(&request.Provider, "provider", "", "Identity provider, e.g. google or apple")
	cmd.Flags().StringVar(&request.IDToken, "id-token", "", "Identity token issued by the provider")
	cmd.Flags().StringVar(&request.Role, "role", "customer", "Account role when the account is created")

	return cmd
}

func newAuthLogoutCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and remove the stored session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := waitForSession(cmd.Context(), container); err != nil {
				return err
			}
			container.App.Session.Logout(cmd.Context())
			fmt.Fprintln(out(cmd), "Signed out")
			return nil
		},
	}
}

func newAuthStatusCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the current session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := waitForSession(cmd.Context(), container); err != nil {
				return err
			}

			w := out(cmd)
			session := container.App.Session
			if !session.IsAuthenticated() {
				fmt.Fprintln(w, "Not signed in")
				return nil
			}

			user := session.CurrentUser()
			fmt.Fprintf(w, "Signed in as %s\n", displayName(user))
			if user.Email != "" {
				fmt.Fprintf(w, "  Email:   %s\n", user.Email)
			}
			if user.Type != "" {
				fmt.Fprintf(w, "  Account: %s\n", user.Type)
			}

			access, _ := container.App.TokenStore.AccessToken(cmd.Context())
			if claims, err := domain.ParseAccessClaims(access); err == nil && claims.HasExpiry() {
				if claims.IsExpired() {
					fmt.Fprintln(w, "  Access token expired, it will be refreshed on the next request")
				} else {
					fmt.Fprintf(w, "  Access token expires in %s\n", claims.TimeUntilExpiry().Round(time.Second))
				}
			}
			return nil
		},
	}
}

func newAuthRefreshCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Rotate the access and refresh tokens now",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := waitForSession(cmd.Context(), container); err != nil {
				return err
			}

			pair, err := container.App.Session.RefreshToken(cmd.Context())
			if errors.Is(err, domain.ErrNoRefreshToken) {
				return fmt.Errorf("not signed in")
			}
			if err != nil {
				return fmt.Errorf("refresh failed, you have been signed out: %w", err)
			}

			fmt.Fprintln(out(cmd), "Token refreshed")
			if claims, err := domain.ParseAccessClaims(pair.AccessToken); err == nil && claims.HasExpiry() {
				fmt.Fprintf(out(cmd), "  Expires at %s\n", claims.ExpiresAt.Local().Format(time.RFC1123))
			}
			return nil
		},
	}
}

func newForgotPasswordCommand(container *CLIContainer) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "forgot-password",
		Short: "Email a one-time code for resetting the password",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.App.Session.ForgotPassword(cmd.Context(), domain.ForgotPasswordRequest{Email: email}); err != nil {
				return fmt.Errorf("forgot password failed: %w", err)
			}
			fmt.Fprintf(out(cmd), "A code has been sent to %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

func newResetPasswordCommand(container *CLIContainer) *cobra.Command {
	var request domain.ResetPasswordRequest

	cmd := &cobra.Command{
		Use:   "reset-password",
		Short: "Set a new password using the emailed code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := readPassword(cmd, container, "New password: ")
			if err != nil {
				return err
			}
			request.NewPassword = password
			request.ConfirmPassword = password

			if err := container.App.Session.ResetPassword(cmd.Context(), request); err != nil {
				return fmt.Errorf("reset password failed: %w", err)
			}
			fmt.Fprintln(out(cmd), "Password updated, sign in with `hs auth login`")
			return nil
		},
	}

	cmd.Flags().StringVar(&request.Email, "email", "", "Account email")
	cmd.Flags().StringVar(&request.OTP, "otp", "", "Code from the email")
	cmd.Flags().Bool("password-stdin", false, "Read the new password from stdin")
	_ = cmd.MarkFlagRequired("email")
	_ = cmd.MarkFlagRequired("otp")
	return cmd
}

func newResendOTPCommand(container *CLIContainer) *cobra.Command {
	var email string

	cmd := &cobra.Command{
		Use:   "resend-otp",
		Short: "Send a new one-time code",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := container.App.Session.ResendOTP(cmd.Context(), domain.ResendOTPRequest{Email: email}); err != nil {
				return fmt.Errorf("resend failed: %w", err)
			}
			fmt.Fprintf(out(cmd), "A new code has been sent to %s\n", email)
			return nil
		},
	}

	cmd.Flags().StringVar(&email, "email", "", "Account email")
	_ = cmd.MarkFlagRequired("email")
	return cmd
}

// readPassword prompts on the terminal, or reads one line from stdin with --password-stdin
func readPassword(cmd *cobra.Command, container *CLIContainer, prompt string) (string, error) {
	if fromStdin, _ := cmd.Flags().GetBool("password-stdin"); fromStdin {
		line, err := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
		if err != nil && line == "" {
			return "", fmt.Errorf("failed to read password from stdin: %w", err)
		}
		return strings.TrimRight(line, "\r\n"), nil
	}

	if container.ReadPassword != nil {
		return container.ReadPassword(prompt)
	}

	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return "", fmt.Errorf("no terminal to prompt for the password, use --password-stdin")
	}
	fmt.Fprint(cmd.ErrOrStderr(), prompt)
	password, err := term.ReadPassword(fd)
	fmt.Fprintln(cmd.ErrOrStderr())
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	return string(password), nil
}

func displayName(user *domain.User) string {
	if user == nil {
		return "unknown user"
	}
	return user.DisplayName()
}
