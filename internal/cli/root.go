package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"myhelper/internal/config"
	"myhelper/internal/logger"
)

var (
	configPath string
	cfg        config.Config
)

var rootCmd = &cobra.Command{
	Use:   "myhelper",
	Short: "Mission orchestration engine",
	Long: `myhelper turns a task trigger into a mission: it plans the tool calls,
runs them through the tool gateway and stores a report with learnings.
Without a subcommand it opens the interactive console.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
		return logger.Init(cfg.LogFile, cfg.LogLevel, cfg.LogFormat)
	},
	RunE: runConsole,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", os.Getenv("MYHELPER_CONFIG"), "path to the YAML config file")
	rootCmd.AddCommand(serveCmd, recoverCmd, submitCmd, statusCmd, toolsCmd, plansCmd, consoleCmd)
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}
	return nil
}
