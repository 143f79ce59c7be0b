package cmd

import (
	"bytes"
	"testing"

	"github.com/spf13/cobra"
)

func TestRootCommand(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		wantErr bool
	}{
		{
			name:    "version flag",
			args:    []string{"--version"},
			wantErr: false,
		},
		{
			name:    "help flag",
			args:    []string{"--help"},
			wantErr: false,
		},
		{
			name:    "unknown command",
			args:    []string{"nonexistent-command"},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			var stdout, stderr bytes.Buffer
			rootCmd.SetOut(&stdout)
			rootCmd.SetErr(&stderr)

			err := rootCmd.Execute()
			if (err != nil) != tt.wantErr {
				t.Errorf("rootCmd.Execute() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubcommandsRegistered(t *testing.T) {
	want := []string{"watch", "send", "sessions", "projects"}
	registered := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		registered[cmd.Name()] = true
	}
	for _, name := range want {
		if !registered[name] {
			t.Errorf("command %q not registered on root", name)
		}
	}
}

func TestPersistentFlags(t *testing.T) {
	for _, name := range []string{"verbose", "server", "config"} {
		if rootCmd.PersistentFlags().Lookup(name) == nil {
			t.Errorf("persistent flag --%s not registered", name)
		}
	}
	if rootCmd.PersistentFlags().ShorthandLookup("v") == nil {
		t.Error("shorthand -v not registered")
	}
}

func TestWatchCommand_RequiresDirectory(t *testing.T) {
	rootCmd.SetArgs([]string{"watch"})
	rootCmd.SetOut(&bytes.Buffer{})
	rootCmd.SetErr(&bytes.Buffer{})

	if err := rootCmd.Execute(); err == nil {
		t.Error("watch without a directory should error")
	}
}

func TestSendCommand_RequiresSessionAndText(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no args", args: []string{"send"}},
		{name: "session only", args: []string{"send", "s1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rootCmd.SetArgs(tt.args)
			rootCmd.SetOut(&bytes.Buffer{})
			rootCmd.SetErr(&bytes.Buffer{})

			if err := rootCmd.Execute(); err == nil {
				t.Error("send with too few arguments should error")
			}
		})
	}
}

func TestSendCommand_Flags(t *testing.T) {
	var sendCommand *cobra.Command
	for _, cmd := range rootCmd.Commands() {
		if cmd.Name() == "send" {
			sendCommand = cmd
			break
		}
	}
	if sendCommand == nil {
		t.Fatal("send command not found")
	}
	if sendCommand.Flag("directory") == nil {
		t.Error("send should have --directory flag")
	}
	if sendCommand.Flag("timeout") == nil {
		t.Error("send should have --timeout flag")
	}
}
