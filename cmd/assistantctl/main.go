// Command assistantctl exercises the assistant's parts by hand and talks to
// a running daemon.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/teslashibe/go-assistant/internal/config"
	"github.com/teslashibe/go-assistant/internal/log"
)

// Version information (set at build time)
var version = "dev"

type globals struct {
	configDir string
	addr      string
	envFile   string
	logLevel  string
}

func main() {
	g := &globals{}

	rootCmd := &cobra.Command{
		Use:           "assistantctl",
		Short:         "Test harness for the voice assistant",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			log.Init(g.logLevel, "text")
			return config.LoadDotEnv(g.envFile)
		},
	}
	rootCmd.PersistentFlags().StringVarP(&g.configDir, "config-dir", "c", config.Dir(config.DefaultDir), "Directory holding config-*.txt")
	rootCmd.PersistentFlags().StringVarP(&g.addr, "addr", "a", config.ListenAddr(config.DefaultListen), "Daemon status server address")
	rootCmd.PersistentFlags().StringVarP(&g.envFile, "env", "e", ".env", "Env file path")
	rootCmd.PersistentFlags().StringVarP(&g.logLevel, "log", "l", "warn", "Log level")

	rootCmd.AddCommand(
		scanCmd(g),
		setupCmd(g),
		statusCmd(g),
		triggerCmd(g),
		eventsCmd(g),
		speakCmd(g),
		recordCmd(g),
		configCmd(g),
	)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		cancel()
		os.Exit(1)
	}
}

// loadSettings reads the config files with environment overrides applied.
func (g *globals) loadSettings() (*config.Store, config.Settings) {
	store := config.NewStore(g.configDir, log.L())
	if err := store.Load(); err != nil {
		log.Warn("some config files could not be read", "error", err)
	}
	store.ApplyEnv()
	return store, store.Settings()
}
