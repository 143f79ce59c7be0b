package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/lipgloss"
	"github.com/lshtram/openspace-sync/internal"
	"github.com/spf13/cobra"
)

var (
	watchSession string
)

var (
	watchUserStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")).
			Bold(true)

	watchAssistantStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("42")).
				Bold(true)

	watchActivityStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("62")).
				Italic(true)

	watchWarnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")).
			Bold(true)

	watchDimStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))
)

// watchCmd represents the watch command
var watchCmd = &cobra.Command{
	Use:   "watch <directory>",
	Short: "Follow a workspace's live transcript",
	Long: `Watch connects the sync engine to a workspace directory's event
channel and prints the transcript as it streams.

The channel reconnects automatically with exponential backoff; after a
reconnect, partial text may replay. Use --session to also load that
session's recent history before following.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		directory := args[0]

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

		orch.SetNotifier(internal.Notifier{
			OnStreaming: func(s internal.StreamingState) {
				if s.Active {
					fmt.Println(watchActivityStyle.Render("… " + s.Category))
				}
			},
			OnReconnect: func() {
				fmt.Println(watchWarnStyle.Render("⚠ reconnected; partial text may replay"))
			},
			OnWarning: func(msg string) {
				fmt.Println(watchWarnStyle.Render("⚠ " + msg))
			},
			OnPartDelta: func(sessionID, messageID, partID, field, delta string) {
				if field == "text" {
					fmt.Print(delta)
				}
			},
			OnSession: func(n internal.SessionNotification) {
				if n.Info != nil {
					fmt.Println(watchDimStyle.Render(fmt.Sprintf("[%s] %s", n.Type, n.Info.ID)))
				}
			},
		})

		orch.SelectProject("", directory)

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if watchSession != "" {
			if err := orch.SelectSession(ctx, watchSession); err != nil {
				return fmt.Errorf("failed to load session: %w", err)
			}
			printTranscript(orch.Store().Snapshot())
		}

		fmt.Println(watchDimStyle.Render("watching " + directory + " (ctrl-c to stop)"))
		<-ctx.Done()
		return nil
	},
}

// printTranscript prints loaded history, oldest first
func printTranscript(messages []*internal.Message) {
	for _, m := range messages {
		label := watchAssistantStyle.Render("assistant")
		if m.Role == internal.RoleUser {
			label = watchUserStyle.Render("user")
		}
		fmt.Printf("%s %s\n", label, m.TextContent())
	}
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().StringVar(&watchSession, "session", "", "Load this session's history before following")
}
