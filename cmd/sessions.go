package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/lshtram/openspace-sync/internal"
	"github.com/spf13/cobra"
)

var (
	sessionsHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("62"))

	sessionsIDStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")).
			Italic(true)

	sessionsTitleStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	sessionsDateStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("243"))
)

// sessionsCmd represents the sessions command
var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List backend sessions",
	Long:  `List all sessions known to the backend, newest first.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		client := internal.NewClient(cfg.ServerURL)

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		sessions, err := client.ListSessions(ctx)
		if err != nil {
			return fmt.Errorf("failed to list sessions: %w", err)
		}

		if len(sessions) == 0 {
			fmt.Println("No sessions found.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, sessionsHeaderStyle.Render("ID")+"\t"+
			sessionsHeaderStyle.Render("TITLE")+"\t"+
			sessionsHeaderStyle.Render("UPDATED"))
		for _, s := range sessions {
			title := s.Title
			if title == "" {
				title = "(untitled)"
			}
			updated := ""
			if s.Time != nil {
				ts := s.Time.Start
				if s.Time.End != nil {
					ts = *s.Time.End
				}
				updated = time.UnixMilli(ts).Format("2006-01-02 15:04")
			}
			fmt.Fprintf(w, "%s\t%s\t%s\n",
				sessionsIDStyle.Render(s.ID),
				sessionsTitleStyle.Render(title),
				sessionsDateStyle.Render(updated))
		}
		return w.Flush()
	},
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
}
