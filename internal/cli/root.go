package cli

import (
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath string
	playerName string
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	envConfig := os.Getenv("CONFIG_PATH")
	if envConfig == "" {
		envConfig = "config/config.yaml"
	}
	envName := os.Getenv("PLAYER_NAME")
	if envName == "" {
		envName, _ = os.Hostname()
	}

	cmd := &cobra.Command{
		Use:   "trivia",
		Short: "Peer-to-peer football trivia over the local network",
	}

	cmd.PersistentFlags().StringVar(&configPath, "config", envConfig, "path to YAML config")
	cmd.PersistentFlags().StringVar(&playerName, "name", envName, "display name shown to other players")
	cmd.AddCommand(newHostCmd())
	cmd.AddCommand(newJoinCmd())
	return cmd
}
