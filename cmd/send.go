package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lshtram/openspace-sync/internal"
	"github.com/spf13/cobra"
)

var (
	sendDirectory string
	sendTimeout   time.Duration
)

var (
	sendReplyStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42"))

	sendErrStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)
)

// sendCmd represents the send command
var sendCmd = &cobra.Command{
	Use:   "send <session-id> <text>...",
	Short: "Send a prompt to a session and print the reply",
	Long: `Send pushes a user message into a session through the sync engine
and prints the assistant's reply once it completes.

With --directory the event channel is connected first, so the reply
streams to the terminal as it is generated instead of arriving all at
once.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		sessionID := args[0]
		text := strings.Join(args[1:], " ")

		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		client := internal.NewClient(cfg.ServerURL)
		state := openStateStore(cfg)
		if state != nil {
			defer func() { _ = state.Close() }()
		}

		orch := internal.NewOrchestrator(client, state, cfg.PageSize)
		defer orch.Dispose()

		streaming := sendDirectory != ""
		orch.SetNotifier(internal.Notifier{
			OnPartDelta: func(_, _, _, field, delta string) {
				if streaming && field == "text" {
					fmt.Print(delta)
				}
			},
			OnWarning: func(msg string) {
				fmt.Println(sendErrStyle.Render("⚠ " + msg))
			},
		})

		if streaming {
			orch.SelectProject("", sendDirectory)
		}

		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		defer cancel()

		if err := orch.SelectSession(ctx, sessionID); err != nil {
			return fmt.Errorf("failed to select session: %w", err)
		}

		if err := orch.SendMessage(ctx, text); err != nil {
			return fmt.Errorf("failed to send message: %w", err)
		}

		if streaming {
			// Deltas were already printed as they arrived.
			fmt.Println()
			return nil
		}

		messages := orch.Store().Snapshot()
		for i := len(messages) - 1; i >= 0; i-- {
			if messages[i].Role == internal.RoleAssistant {
				fmt.Println(sendReplyStyle.Render(messages[i].TextContent()))
				return nil
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(sendCmd)
	sendCmd.Flags().StringVar(&sendDirectory, "directory", "", "Workspace directory to stream the reply from")
	sendCmd.Flags().DurationVar(&sendTimeout, "timeout", 5*time.Minute, "How long to wait for the reply")
}
