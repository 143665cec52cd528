package cmd

import (
	"context"
	"errors"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/kbank/internal/output"
	"github.com/Aman-CERP/kbank/internal/watcher"
)

func newWatchCmd(root *rootOptions) *cobra.Command {
	var noSync bool

	cmd := &cobra.Command{
		Use:   "watch <dir>",
		Short: "Keep the knowledge base in step with a directory",
		Long: `Sync a directory into the knowledge base, then watch it and re-ingest
files as they change until interrupted. Extensions and the debounce window
come from the watch section of the configuration.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			a, err := root.open(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = a.Close() }()

			out := output.New(cmd.OutOrStdout())
			opts := watcher.OptionsFrom(a.cfg.Watch)
			syncer, err := watcher.NewSyncer(a.bank, args[0], opts, root.logger)
			if err != nil {
				return err
			}
			if !noSync {
				res, err := syncer.Sync(ctx)
				if err != nil {
					return err
				}
				out.Successf("synced: %d ingested, %d unchanged, %d deleted", res.Ingested, res.Unchanged, res.Deleted)
			}

			w, err := watcher.New(opts, root.logger)
			if err != nil {
				return err
			}

			// The syncer must finish its batch before the store closes.
			done := make(chan struct{})
			go func() {
				defer close(done)
				syncer.Run(ctx, w)
			}()
			out.Statusf("", "watching %s (ctrl-c to stop)", args[0])

			err = w.Start(ctx, args[0])
			_ = w.Stop()
			<-done
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&noSync, "no-sync", false, "Skip the initial sync")
	return cmd
}
