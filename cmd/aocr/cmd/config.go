package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/MeKo-Tech/aocr/internal/config"
)

func newConfigCommand(a *app) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Show or create the configuration",
		Long: `Print the configuration resolved from the config file, AOCR_* environment
variables and defaults, as YAML. Secrets are masked unless --show-secrets
is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			showSecrets, _ := cmd.Flags().GetBool("show-secrets")
			cfg := *a.config
			if !showSecrets {
				cfg.OCR.Key = mask(cfg.OCR.Key)
				cfg.PDF.Password = mask(cfg.PDF.Password)
				cfg.PDF.OwnerPassword = mask(cfg.PDF.OwnerPassword)
			}

			out := cmd.OutOrStdout()
			if used := a.loader.GetConfigFileUsed(); used != "" {
				_, _ = fmt.Fprintf(out, "# loaded from %s\n", used)
			}
			enc := yaml.NewEncoder(out)
			enc.SetIndent(2)
			if err := enc.Encode(cfg); err != nil {
				return fmt.Errorf("failed to encode configuration: %w", err)
			}
			return enc.Close()
		},
	}
	configCmd.Flags().Bool("show-secrets", false, "print the service key and passwords in clear text")

	initCmd := &cobra.Command{
		Use:   "init [file]",
		Short: "Write a configuration file holding the defaults",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := config.ConfigFileName + ".yaml"
			if len(args) == 1 {
				path = args[0]
			}
			if err := config.GenerateDefaultConfigFile(path); err != nil {
				return fmt.Errorf("failed to write %s: %w", path, err)
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Configuration written to %s\n", path)
			return nil
		},
	}
	configCmd.AddCommand(initCmd)
	return configCmd
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}
	return "********"
}
