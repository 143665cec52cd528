package cmd

import (
	"fmt"
	"regexp"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbank/internal/logging"
)

func newLogsCmd() *cobra.Command {
	var (
		lines   int
		level   string
		filter  string
		noColor bool
		file    string
	)

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent kbank log entries",
		Example: `  kbank logs -n 100
  kbank logs --level warn
  kbank logs --filter document_failed`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			path, err := logging.FindLogFile(file)
			if err != nil {
				return err
			}
			var pattern *regexp.Regexp
			if filter != "" {
				if pattern, err = regexp.Compile(filter); err != nil {
					return fmt.Errorf("invalid filter pattern: %w", err)
				}
			}

			v := logging.NewViewer(logging.ViewerConfig{Level: level, Pattern: pattern, NoColor: noColor}, cmd.OutOrStdout())
			entries, err := v.Tail(path, lines)
			if err != nil {
				return err
			}
			v.Print(entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&lines, "lines", "n", 50, "Number of lines to read from the end")
	cmd.Flags().StringVar(&level, "level", "", "Minimum level (debug|info|warn|error)")
	cmd.Flags().StringVar(&filter, "filter", "", "Only lines matching this regex")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	cmd.Flags().StringVar(&file, "file", "", "Log file (default ~/.kbank/logs/kbank.log)")
	return cmd
}
