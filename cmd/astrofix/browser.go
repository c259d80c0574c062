package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/browser"
)

var browserCmd = &cobra.Command{
	Use:   "browser",
	Short: "Manage the browser container",
	Long: `Manage the headless browser container lifecycle.

The browser renders pages to screenshots for layout analysis. It runs
in a Docker container and is normally managed by the server, but these
commands allow controlling it directly.

Examples:
  astrofix browser start   # Start the browser container
  astrofix browser stop    # Stop the container
  astrofix browser status  # Check container status
  astrofix browser logs    # View container logs`,
}

var browserStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the browser container",
	Long: `Start the browser container.

If the container doesn't exist, it will be created and started.
If it exists but is stopped, it will be started.
If it's already running, this is a no-op.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := browser.NewDockerManager(browser.DockerConfig{})
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Starting browser container...")
		if err := mgr.Start(ctx); err != nil {
			return fmt.Errorf("failed to start browser: %w", err)
		}

		fmt.Printf("Browser is running at %s\n", mgr.URL())
		return nil
	},
}

var browserStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the browser container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := browser.NewDockerManager(browser.DockerConfig{})
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Stopping browser container...")
		if err := mgr.Stop(ctx); err != nil {
			return fmt.Errorf("failed to stop browser: %w", err)
		}

		fmt.Println("Browser stopped")
		return nil
	},
}

var browserStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show browser container status",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := browser.NewDockerManager(browser.DockerConfig{})
		if err != nil {
			return err
		}
		defer mgr.Close()

		status, err := mgr.Status(ctx)
		if err != nil {
			return fmt.Errorf("failed to get status: %w", err)
		}

		switch status {
		case browser.StatusRunning:
			fmt.Printf("Status: %s\n", status)
			fmt.Printf("URL: %s\n", mgr.URL())

			// Try health check
			client := browser.NewClient(browser.ClientConfig{BaseURL: mgr.URL()})
			if err := client.HealthCheck(ctx); err != nil {
				fmt.Printf("Health: unhealthy (%v)\n", err)
			} else {
				fmt.Println("Health: healthy")
			}
		case browser.StatusStopped:
			fmt.Printf("Status: %s (use 'astrofix browser start' to start)\n", status)
		case browser.StatusNotFound:
			fmt.Printf("Status: %s (use 'astrofix browser start' to create)\n", status)
		default:
			fmt.Printf("Status: %s\n", status)
		}

		return nil
	},
}

var browserLogsTail string

var browserLogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Show browser container logs",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := browser.NewDockerManager(browser.DockerConfig{})
		if err != nil {
			return err
		}
		defer mgr.Close()

		logs, err := mgr.Logs(ctx, browserLogsTail)
		if err != nil {
			return fmt.Errorf("failed to get logs: %w", err)
		}

		fmt.Print(logs)
		return nil
	},
}

var browserRemoveCmd = &cobra.Command{
	Use:   "remove",
	Short: "Remove the browser container",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := browser.NewDockerManager(browser.DockerConfig{})
		if err != nil {
			return err
		}
		defer mgr.Close()

		fmt.Println("Removing browser container...")
		if err := mgr.Remove(ctx); err != nil {
			return fmt.Errorf("failed to remove container: %w", err)
		}

		fmt.Println("Browser container removed")
		return nil
	},
}

var browserWaitCmd = &cobra.Command{
	Use:   "wait",
	Short: "Wait for the browser to be ready",
	Long: `Wait for the browser to be ready to accept connections.

This is useful in scripts to ensure the browser is fully started
before running other commands.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		mgr, err := browser.NewDockerManager(browser.DockerConfig{})
		if err != nil {
			return err
		}
		defer mgr.Close()

		timeout, _ := cmd.Flags().GetDuration("timeout")
		fmt.Printf("Waiting for browser (timeout: %s)...\n", timeout)

		if err := mgr.WaitReady(ctx, timeout); err != nil {
			return fmt.Errorf("browser not ready: %w", err)
		}

		fmt.Println("Browser is ready")
		return nil
	},
}

func init() {
	browserCmd.AddCommand(browserStartCmd)
	browserCmd.AddCommand(browserStopCmd)
	browserCmd.AddCommand(browserStatusCmd)
	browserCmd.AddCommand(browserLogsCmd)
	browserCmd.AddCommand(browserRemoveCmd)
	browserCmd.AddCommand(browserWaitCmd)

	browserLogsCmd.Flags().StringVar(&browserLogsTail, "tail", "100", "Number of lines to show from the end")
	browserWaitCmd.Flags().Duration("timeout", 60*time.Second, "Timeout waiting for the browser")

	rootCmd.AddCommand(browserCmd)
}
