package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/nvandessel/ab-test/internal/config"
	"github.com/spf13/cobra"
)

const watchDebounce = 250 * time.Millisecond

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Re-run the assignment sweep whenever the config file changes",
		Long: `Watch the experiments file and mount a fresh resolver after every change.

Newly added experiments are assigned; experiments that already have a stored
variant keep it. Stops on Ctrl-C.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			root, _ := cmd.Flags().GetString("root")
			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.Path(root)
			}

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			notifySignals(sigCh)
			defer signal.Stop(sigCh)
			go func() {
				select {
				case <-sigCh:
					cancel()
				case <-ctx.Done():
				}
			}()

			sweep := func() {
				if err := sweepOnce(cmd, jsonOut); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "sweep failed: %v\n", err)
				}
			}

			sweep()
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %s (Ctrl-C to stop)\n", path)
			return watchFile(ctx, path, sweep)
		},
	}
}

// sweepOnce loads config, mounts a resolver, marks it ready and prints the result.
func sweepOnce(cmd *cobra.Command, jsonOut bool) error {
	sess, err := openSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	if err := sess.resolver.MarkReady(cmd.Context()); err != nil {
		return err
	}
	all, err := sess.resolver.Assignments(cmd.Context())
	if err != nil {
		return err
	}
	return printAssignments(cmd.OutOrStdout(), sess.cfg.Experiments.Names(), all, jsonOut)
}

// watchFile calls onChange after writes to path settle, until ctx is done.
// The parent directory is watched so editors that replace the file by
// rename are still seen.
func watchFile(ctx context.Context, path string, onChange func()) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create %s: %w", dir, err)
	}
	if err := watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}

	target := filepath.Clean(path)
	timer := time.NewTimer(watchDebounce)
	timer.Stop()
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Rename) == 0 {
				continue
			}
			timer.Reset(watchDebounce)

		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			return fmt.Errorf("watch error: %w", err)

		case <-timer.C:
			onChange()
		}
	}
}
