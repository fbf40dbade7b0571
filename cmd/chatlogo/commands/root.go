package commands

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/haivivi/chatlogo/cmd/chatlogo/internal/config"
	"github.com/haivivi/chatlogo/pkg/cli"
)

var (
	// Global flags
	configPath   string
	verbose      bool
	formatOutput string

	globalConfig *config.Config
	logger       *slog.Logger
	closeLog     = func() error { return nil }
)

var rootCmd = &cobra.Command{
	Use:   "chatlogo",
	Short: "Streaming chat server for logo and artifact design",
	Long: `chatlogo - a chat server that streams model output, runs document
tools and lets clients resume a reply after a disconnect.

Without --config, chatlogo uses in-memory storage and local blobs under
the user data directory.

Examples:
  chatlogo serve --config /etc/chatlogo/chatlogo.yaml
  chatlogo token --user alice
  chatlogo chats list --user alice -o json`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return initConfig()
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		return closeLog()
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (yaml or json)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVarP(&formatOutput, "output", "o", "yaml", "output format (yaml, json)")
}

func initConfig() error {
	if configPath != "" {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		globalConfig = cfg
	} else {
		dir, err := cli.DataDir("chatlogo")
		if err != nil {
			return fmt.Errorf("cannot determine data directory: %w", err)
		}
		globalConfig = config.Default(dir)
	}
	if verbose {
		globalConfig.Log.Level = "debug"
	}

	l, closeFn, err := globalConfig.Logger()
	if err != nil {
		return err
	}
	logger, closeLog = l, closeFn
	slog.SetDefault(logger)
	return nil
}

func output(cmd *cobra.Command, v any) error {
	f, err := cli.ParseFormat(formatOutput)
	if err != nil {
		return err
	}
	return cli.Output(v, cli.OutputOptions{Format: f, Writer: cmd.OutOrStdout()})
}
