package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/astrofix/astrofix/internal/api"
	"github.com/astrofix/astrofix/internal/config"
	"github.com/astrofix/astrofix/internal/home"
	"github.com/astrofix/astrofix/version"
)

var (
	cfgFile      string
	homeDir      string
	outputFormat string
)

var rootCmd = &cobra.Command{
	Use:   "astrofix",
	Short: "Iterative layout correction for generated web pages",
	Long: `Astrofix generates web pages from text descriptions and fixes their
layout by rendering them in a headless browser, detecting overlapping
visual blocks, and asking an LLM to move the blocks apart until the
page converges.

The pipeline includes:
  - Multi-page site generation from a description
  - Screenshot rendering via a managed browser container
  - Visual block detection with overlap analysis
  - Iterative LLM-driven markup correction
  - Content-addressed site deployment`,
	Version: version.GitRelease,
}

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a default config file",
	Long: `Write a default config file to the astrofix home directory.

Does nothing if a config file already exists.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		h, err := home.New(homeDir)
		if err != nil {
			return err
		}
		if err := h.EnsureExists(); err != nil {
			return err
		}
		if h.ConfigExists() {
			fmt.Printf("Config already exists at %s\n", h.ConfigPath())
			return nil
		}
		if err := config.WriteDefault(h.ConfigPath()); err != nil {
			return err
		}
		fmt.Printf("Wrote default config to %s\n", h.ConfigPath())
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&cfgFile, "config", "", "config file (default: ./config.yaml or ~/.astrofix/config.yaml)",
	)
	rootCmd.PersistentFlags().StringVar(
		&homeDir, "home", "", "astrofix home directory (default: ~/.astrofix)",
	)
	rootCmd.PersistentFlags().StringVarP(
		&outputFormat, "output", "o", "yaml", "output format: yaml or json",
	)

	// Set output format before any command runs
	rootCmd.PersistentPreRun = func(cmd *cobra.Command, args []string) {
		api.SetOutputFormat(outputFormat)
	}

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(initCmd)
}
