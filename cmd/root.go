package cmd

import (
	"fmt"
	"os"

	"github.com/lshtram/openspace-sync/internal"
	"github.com/spf13/cobra"
)

var (
	verbose    bool
	serverURL  string
	configPath string
	version    string = "dev"
	commit     string = "unknown"
	date       string = "unknown"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "openspace-sync",
	Short: "Stream and follow coding-agent sessions from an opencode backend",
	Long: `A companion CLI for an opencode-style coding-agent backend.

openspace-sync keeps an ordered, deduplicated transcript in sync with the
backend's live event channel, reconnecting with backoff when the channel
drops and reconciling missed events through the request surface.

Quick Start:
  openspace-sync sessions                  # List backend sessions
  openspace-sync watch <directory>         # Follow a workspace's live transcript
  openspace-sync send <session-id> "hi"    # Send a prompt and print the reply

The backend address comes from --server, the config file, or defaults to
http://localhost:4096.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		internal.SetVerbose(verbose)
	},
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose logging")
	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "", "Backend base URL (overrides config)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file path")

	// Set version template to ensure --version flag works
	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)
}

// loadConfig resolves the effective configuration from the config file
// and command-line flags.
func loadConfig() (*internal.Config, error) {
	path := configPath
	if path == "" {
		var err error
		path, err = internal.DefaultConfigPath()
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path: %w", err)
		}
	}
	cfg, err := internal.LoadConfig(path)
	if err != nil {
		return nil, err
	}
	if serverURL != "" {
		cfg.ServerURL = serverURL
	}
	return cfg, nil
}

// openStateStore opens the persisted-state database. Persistence is
// best-effort: on failure a warning is logged and nil is returned.
func openStateStore(cfg *internal.Config) *internal.StateStore {
	path := cfg.StatePath
	if path == "" {
		var err error
		path, err = internal.DefaultStatePath()
		if err != nil {
			internal.LogWarn("state persistence disabled: %v", err)
			return nil
		}
	}
	state, err := internal.OpenStateStore(path)
	if err != nil {
		internal.LogWarn("state persistence disabled: %v", err)
		return nil
	}
	return state
}
