package cli

import (
	"github.com/spf13/cobra"

	"rikkaport/internal/web"
)

var serveListen string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the web UI and HTTP API",
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg := loadedConfig
		if serveListen != "" {
			cfg.ListenAddr = serveListen
		}
		return web.NewServer(cfg).Start()
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveListen, "listen", "", "listen address (default from config)")
	rootCmd.AddCommand(serveCmd)
}
