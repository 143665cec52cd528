package cmd

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Aman-CERP/kbank/configs"
	"github.com/Aman-CERP/kbank/internal/config"
	"github.com/Aman-CERP/kbank/internal/output"
)

func newConfigCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Manage configuration",
		Long: `Configuration precedence (lowest to highest):
  1. Built-in defaults
  2. User config (~/.config/kbank/config.yaml)
  3. Project config (.kbank.yaml in --config-dir)
  4. Environment variables (KBANK_*)`,
	}
	cmd.AddCommand(newConfigInitCmd(root), newConfigShowCmd(root), newConfigPathCmd())
	return cmd
}

func newConfigInitCmd(root *rootOptions) *cobra.Command {
	var (
		force     bool
		project   bool
		effective bool
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write an annotated configuration file with the defaults",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path := config.GetUserConfigPath()
			if project {
				path = filepath.Join(root.configDir, ".kbank.yaml")
			}
			out := output.New(cmd.OutOrStdout())

			if _, err := os.Stat(path); err == nil {
				if !force {
					return fmt.Errorf("%s already exists; use --force to overwrite", path)
				}
				backup, err := config.BackupFile(path)
				if err != nil {
					return err
				}
				if backup != "" {
					out.Statusf("", "previous file saved as %s", backup)
				}
			}

			if effective {
				cfg, err := root.loadConfig()
				if err != nil {
					return err
				}
				if err := cfg.WriteYAML(path); err != nil {
					return err
				}
				out.Successf("wrote %s", path)
				return nil
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return fmt.Errorf("failed to create config directory: %w", err)
			}
			if err := os.WriteFile(path, configs.ConfigTemplate, 0o644); err != nil {
				return fmt.Errorf("failed to write config file: %w", err)
			}
			out.Successf("wrote %s", path)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file (a backup is kept)")
	cmd.Flags().BoolVar(&effective, "effective", false, "Write the current effective configuration instead of the template")
	cmd.Flags().BoolVar(&project, "project", false, "Write .kbank.yaml in --config-dir instead of the user config")
	return cmd
}

func newConfigShowCmd(root *rootOptions) *cobra.Command {
	var jsonOutput bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := root.loadConfig()
			if err != nil {
				return err
			}
			if jsonOutput {
				return writeJSON(cmd.OutOrStdout(), cfg)
			}
			data, err := yaml.Marshal(cfg)
			if err != nil {
				return fmt.Errorf("failed to marshal config: %w", err)
			}
			_, err = cmd.OutOrStdout().Write(data)
			return err
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	return cmd
}

func newConfigPathCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "path",
		Short: "Print the user configuration path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintln(cmd.OutOrStdout(), config.GetUserConfigPath())
			return err
		},
	}
}
