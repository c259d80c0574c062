package main

import (
	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/server/endpoints"
)

var serverURL string

var apiCmd = &cobra.Command{
	Use:   "api",
	Short: "Commands that call the running server",
	Long: `API commands call the running astrofix server via HTTP.

These commands require a running server (astrofix serve).
Use --server to specify a custom server URL.

Examples:
  astrofix api health                # Check server health
  astrofix api sites                 # List deployed sites
  astrofix api generate -d "..."     # Generate and deploy a site`,
}

// getServerURL returns the server URL at runtime (after flag parsing).
func getServerURL() string {
	return serverURL
}

func init() {
	// Add --server flag to api command (persistent so all subcommands inherit it)
	apiCmd.PersistentFlags().StringVar(
		&serverURL, "server", "http://localhost:8080", "Server URL",
	)

	// Health endpoints at top level of api
	apiCmd.AddCommand((&endpoints.HealthEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.ReadyEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.StatusEndpoint{}).Command(getServerURL))

	// Correction and generation
	apiCmd.AddCommand((&endpoints.CorrectEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.DetectEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.GenerateEndpoint{}).Command(getServerURL))

	// Sites: listing at top level, fetch/delete under "site"
	apiCmd.AddCommand((&endpoints.SitesEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SitePageEndpoint{}).Command(getServerURL))

	// OpenAPI spec
	apiCmd.AddCommand((&endpoints.SwaggerEndpoint{}).Command(getServerURL))
	apiCmd.AddCommand((&endpoints.SwaggerUIEndpoint{}).Command(getServerURL))

	rootCmd.AddCommand(apiCmd)
}
