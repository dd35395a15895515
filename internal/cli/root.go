// Package cli wires the cobra command tree for the rikkaport tool.
package cli

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"rikkaport/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "rikkaport",
	Short: "Convert chat backups between Cherry Studio and RikkaHub",
	Long: `rikkaport converts full backup archives between Cherry Studio
(data.json + Data/Files) and RikkaHub (settings.json + rikka_hub.db + upload),
carrying conversations, assistants, provider configuration, and attachments
across the two schemas.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load()
		if err != nil {
			return err
		}
		loadedConfig = cfg
		setupLogging(cfg.LogLevel)
		return nil
	},
}

var loadedConfig *config.Config

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func setupLogging(level string) {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn", "warning":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl})
	slog.SetDefault(slog.New(handler))
}

func printJSON(v any) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return
	}
	fmt.Println(string(b))
}
