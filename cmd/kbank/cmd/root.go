// Package cmd provides the CLI commands for kbank.
package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbank/internal/config"
	bankerrors "github.com/Aman-CERP/kbank/internal/errors"
	"github.com/Aman-CERP/kbank/internal/logging"
	"github.com/Aman-CERP/kbank/internal/profiling"
	"github.com/Aman-CERP/kbank/pkg/version"
)

// DefaultKnowledgeBase is used when --kb is not given.
const DefaultKnowledgeBase = "default"

// rootOptions holds the persistent flags and the per-run state they set up.
type rootOptions struct {
	kb        string
	configDir string
	dataDir   string
	debug     bool
	profile   profiling.Options

	logger         *slog.Logger
	loggingCleanup func()
	profiler       *profiling.Session
}

// NewRootCmd creates the root command for the kbank CLI.
func NewRootCmd() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:   "kbank",
		Short: "Local knowledge bank with lexical, chunk and graph retrieval",
		Long: `kbank stores documents in named knowledge bases and retrieves them by
keyword relevance, by chunk similarity, and through a concept graph built
from document metadata. It also finds near-duplicate documents.

Data lives in a single SQLite file under the data directory; the in-memory
indexes are rebuilt from it when a knowledge base is opened.`,
		Version:       version.Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.start()
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return opts.stop()
		},
	}
	cmd.SetVersionTemplate("kbank version {{.Version}}\n")

	pf := cmd.PersistentFlags()
	pf.StringVar(&opts.kb, "kb", DefaultKnowledgeBase, "Knowledge base name")
	pf.StringVar(&opts.configDir, "config-dir", ".", "Directory searched for .kbank.yaml")
	pf.StringVar(&opts.dataDir, "data-dir", "", "Data directory (overrides configuration)")
	pf.BoolVar(&opts.debug, "debug", false, "Debug logging to stderr and ~/.kbank/logs/")
	pf.StringVar(&opts.profile.CPU, "profile-cpu", "", "Write CPU profile to file")
	pf.StringVar(&opts.profile.Heap, "profile-mem", "", "Write heap profile to file")
	pf.StringVar(&opts.profile.Trace, "profile-trace", "", "Write execution trace to file")

	cmd.AddCommand(
		newIngestCmd(opts),
		newListCmd(opts),
		newShowCmd(opts),
		newDeleteCmd(opts),
		newSearchCmd(opts),
		newRelatedCmd(opts),
		newPathCmd(opts),
		newConceptsCmd(opts),
		newDuplicatesCmd(opts),
		newStatusCmd(opts),
		newCheckCmd(opts),
		newRebuildCmd(opts),
		newReembedCmd(opts),
		newWatchCmd(opts),
		newConfigCmd(opts),
		newLogsCmd(),
		newVersionCmd(),
	)
	return cmd
}

// start sets up logging and profiling for one command run.
func (o *rootOptions) start() error {
	logCfg := logging.DefaultConfig()
	if o.debug {
		logCfg = logging.DebugConfig()
	} else if cfg, err := config.Load(o.configDir); err == nil {
		logCfg.Level = cfg.Logging.Level
		logCfg.MaxSizeMB = cfg.Logging.MaxSizeMB
		logCfg.MaxFiles = cfg.Logging.MaxFiles
	}

	logger, cleanup, err := logging.Setup(logCfg)
	if err != nil {
		// A read-only home should not make the CLI unusable.
		logger, cleanup = slog.New(slog.DiscardHandler), func() {}
	}
	o.logger, o.loggingCleanup = logger, cleanup
	slog.SetDefault(logger)

	if o.profile.Enabled() {
		s, err := profiling.Start(o.profile)
		if err != nil {
			return err
		}
		o.profiler = s
	}
	return nil
}

func (o *rootOptions) stop() error {
	var err error
	if o.profiler != nil {
		err = o.profiler.Stop()
		o.profiler = nil
	}
	if o.loggingCleanup != nil {
		o.loggingCleanup()
		o.loggingCleanup = nil
	}
	return err
}

// Execute runs the root command and prints a failure for the terminal.
func Execute() error {
	cmd := NewRootCmd()
	err := cmd.Execute()
	if err != nil {
		fmt.Fprint(os.Stderr, bankerrors.FormatForCLI(err))
	}
	return err
}
