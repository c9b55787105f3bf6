package cli

import (
	"errors"
	"fmt"

	"github.com/harun/backlog-agent/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the effective configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets masked",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig(cmd)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), cfg.String())
		return nil
	},
}

var configCheckCmd = &cobra.Command{
	Use:   "check",
	Short: "Validate the effective configuration",
	Long: `Validate the configuration assembled from the config file, .env and the
environment, and report which provider and project the agent will use.`,
	RunE: runConfigCheck,
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configCheckCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigCheck(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	problems := config.NewValidator().ValidateConfig(cfg)

	if profile, err := cfg.ProviderProfile(); err == nil {
		fmt.Fprintf(out, "Provider: %s (%s)\n", profile.Provider, profile.Model)
	}
	if cfg.DevOps.OrganizationURL != "" {
		fmt.Fprintf(out, "Project: %s/%s\n", cfg.DevOps.OrganizationURL, cfg.DevOps.Project)
	}

	if len(problems) == 0 {
		fmt.Fprintln(out, "Configuration OK")
		return nil
	}

	for _, problem := range problems {
		fmt.Fprintf(out, "  - %v\n", problem)
	}
	return errors.New("configuration has problems")
}
