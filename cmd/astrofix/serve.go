package main

import (
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/config"
	"github.com/astrofix/astrofix/internal/home"
	"github.com/astrofix/astrofix/internal/server"
	"github.com/astrofix/astrofix/internal/server/endpoints"
)

var (
	serveHost string
	servePort string
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the astrofix server",
	Long: `Start the astrofix HTTP server.

This starts both the HTTP API server and the browser container.
When the server shuts down (via Ctrl+C or SIGTERM), the browser
container is also stopped.

The server provides:
  - /health   - Basic server health check
  - /ready    - Readiness check (browser and detector status)
  - /generate - Generate, correct and deploy a site
  - /correct  - Correct one page's layout
  - /site/... - Serve deployed pages

Examples:
  astrofix serve                    # Start on default port 8080
  astrofix serve --port 3000        # Start on custom port
  astrofix serve --host 0.0.0.0     # Bind to all interfaces`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		// Set up logger
		logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		}))

		// Get home directory
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}

		// Load config, preferring an explicit --config over the home dir
		configPath := cfgFile
		if configPath == "" && h.ConfigExists() {
			configPath = h.ConfigPath()
		}
		cfgMgr, err := config.NewManager(configPath)
		if err != nil {
			return err
		}
		cfgMgr.WatchConfig()

		// Create server
		srv, err := server.New(server.Config{
			Host:            serveHost,
			Port:            servePort,
			ConfigManager:   cfgMgr,
			Logger:          logger,
			SwaggerSpecPath: endpoints.GetSwaggerSpecPath(),
		})
		if err != nil {
			return err
		}

		// Start server (blocks until shutdown)
		return srv.Start(ctx)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveHost, "host", "127.0.0.1", "Host to bind to")
	serveCmd.Flags().StringVar(&servePort, "port", "8080", "Port to listen on")

	rootCmd.AddCommand(serveCmd)
}
