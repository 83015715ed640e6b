package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"
	"homesvc.app/client/internal/core/domain"
)

const maxWatchHistory = 50

// sessionController is what the watch view needs from the session
type sessionController interface {
	RefreshToken(ctx context.Context) (domain.TokenPair, error)
	Logout(ctx context.Context)
}

func newAuthWatchCommand(container *CLIContainer) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Live view of the session state",
		Long: `Watch the session as it changes. Every transition published by the
session manager is listed, newest first, together with the access token expiry.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			updates, unsubscribe := container.App.Session.Subscribe(ctx)
			defer unsubscribe()

			model := newWatchModel(ctx, container.App.Session, updates, func() string {
				access, _ := container.App.TokenStore.AccessToken(ctx)
				return access
			})

			program := tea.NewProgram(model, tea.WithAltScreen(), tea.WithContext(ctx))
			if _, err := program.Run(); err != nil {
				return fmt.Errorf("watch failed: %w", err)
			}
			return nil
		},
	}
}

// watchModel holds the state for the Bubble Tea session view
type watchModel struct {
	ctx         context.Context
	session     sessionController
	updates     <-chan domain.SessionSnapshot
	accessToken func() string

	current  domain.SessionSnapshot
	history  []domain.SessionSnapshot
	expiry   time.Time
	now      time.Time
	status   string
	closed   bool
	width    int
	quitting bool
}

func newWatchModel(ctx context.Context, session sessionController, updates <-chan domain.SessionSnapshot, accessToken func() string) watchModel {
	return watchModel{
		ctx:         ctx,
		session:     session,
		updates:     updates,
		accessToken: accessToken,
		now:         time.Now(),
	}
}

type snapshotMsg domain.SessionSnapshot

type sessionClosedMsg struct{}

type tickMsg time.Time

type statusMsg string

func waitForSnapshot(updates <-chan domain.SessionSnapshot) tea.Cmd {
	return func() tea.Msg {
		snapshot, ok := <-updates
		if !ok {
			return sessionClosedMsg{}
		}
		return snapshotMsg(snapshot)
	}
}

func tickCmd() tea.Cmd {
	return tea.Tick(time.Second, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}

// Init implements tea.Model
func (m watchModel) Init() tea.Cmd {
	return tea.Batch(waitForSnapshot(m.updates), tickCmd())
}

// Update implements tea.Model
func (m watchModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		return m, nil

	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			return m, tea.Quit
		case "r":
			m.status = "refreshing..."
			return m, m.refreshCmd()
		case "l":
			m.session.Logout(m.ctx)
			m.status = "signed out"
			return m, nil
		}

	case snapshotMsg:
		snapshot := domain.SessionSnapshot(msg)
		m.current = snapshot
		m.history = append([]domain.SessionSnapshot{snapshot}, m.history...)
		if len(m.history) > maxWatchHistory {
			m.history = m.history[:maxWatchHistory]
		}
		m.expiry = time.Time{}
		if claims, err := domain.ParseAccessClaims(m.accessToken()); err == nil {
			m.expiry = claims.ExpiresAt
		}
		return m, waitForSnapshot(m.updates)

	case sessionClosedMsg:
		m.closed = true
		return m, nil

	case tickMsg:
		m.now = time.Time(msg)
		return m, tickCmd()

	case statusMsg:
		m.status = string(msg)
		return m, nil
	}

	return m, nil
}

func (m watchModel) refreshCmd() tea.Cmd {
	return func() tea.Msg {
		if _, err := m.session.RefreshToken(m.ctx); err != nil {
			return statusMsg("refresh failed: " + err.Error())
		}
		return statusMsg("token refreshed")
	}
}

var (
	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	onlineStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("46"))
	offStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("196"))
)

// View implements tea.Model
func (m watchModel) View() string {
	if m.quitting {
		return ""
	}
	return lipgloss.JoinVertical(lipgloss.Left, m.renderHeader(), m.renderHistory(), m.renderFooter())
}

func (m watchModel) renderHeader() string {
	state := offStyle.Render(strings.ToUpper(string(m.current.State)))
	if m.current.LoggedIn {
		state = onlineStyle.Render("SIGNED IN")
	}

	user := "nobody"
	if m.current.User != nil {
		user = m.current.User.DisplayName()
	}

	line1 := lipgloss.JoinHorizontal(lipgloss.Left, titleStyle.Render("Session"), "  ", state, "  ", user)

	line2 := "Access token: none"
	switch {
	case !m.expiry.IsZero() && m.expiry.After(m.now):
		line2 = fmt.Sprintf("Access token expires in %s", m.expiry.Sub(m.now).Round(time.Second))
	case !m.expiry.IsZero():
		line2 = "Access token expired"
	case m.current.LoggedIn:
		line2 = "Access token: no expiry"
	}
	if m.closed {
		line2 += mutedStyle.Render("  (updates stopped)")
	}

	return lipgloss.JoinVertical(lipgloss.Left, line1, line2, "")
}

func (m watchModel) renderHistory() string {
	if len(m.history) == 0 {
		return mutedStyle.Render("  Waiting for the session...")
	}

	rows := []string{titleStyle.Render(fmt.Sprintf("%-8s │ %-13s │ %-15s │ %s", "TIME", "STATE", "REASON", "USER"))}
	for _, snapshot := range m.history {
		user := ""
		if snapshot.User != nil {
			user = snapshot.User.DisplayName()
		}
		reason := snapshot.Reason
		if reason == "" {
			reason = "-"
		}
		rows = append(rows, fmt.Sprintf("%-8s │ %-13s │ %-15s │ %s",
			snapshot.OccurredAt.Format("15:04:05"),
			snapshot.State,
			truncateString(reason, 15),
			truncateString(user, 30),
		))
	}
	return lipgloss.JoinVertical(lipgloss.Left, rows...)
}

func (m watchModel) renderFooter() string {
	controls := mutedStyle.Render("Controls: [r] Refresh token | [l] Sign out | [q] Quit")
	if m.status == "" {
		return lipgloss.JoinVertical(lipgloss.Left, "", controls)
	}
	return lipgloss.JoinVertical(lipgloss.Left, "", m.status, controls)
}

// truncateString truncates a string to the specified length
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen-3] + "..."
}
