package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/nvandessel/ab-test/internal/backup"
	"github.com/spf13/cobra"
)

const defaultKeepBackups = 10

func newBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "backup",
		Short: "Snapshot stored assignments to a file",
		Long: `Write every stored assignment to a checksummed, compressed snapshot.

Default location: <store dir>/backups/abtest-backup-YYYYMMDD-HHMMSS.snap
Only the newest --keep snapshots in that directory are kept.

Examples:
  abtest backup                          # snapshot to the default location
  abtest backup --output before.snap     # snapshot to a specific file
  abtest restore before.snap             # fill missing assignments from it`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			outputPath, _ := cmd.Flags().GetString("output")
			keep, _ := cmd.Flags().GetInt("keep")
			if keep < 1 {
				return fmt.Errorf("--keep must be at least 1, got %d", keep)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := cfg.OpenStore()
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer s.Close()

			rotate := outputPath == ""
			if rotate {
				outputPath = backup.GeneratePath(filepath.Join(cfg.Storage.Dir, "backups"))
			}

			snap, err := backup.Backup(cmd.Context(), s, outputPath)
			if err != nil {
				return fmt.Errorf("backup failed: %w", err)
			}

			if rotate {
				if _, err := backup.Rotate(filepath.Dir(outputPath), keep); err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "warning: failed to rotate backups: %v\n", err)
				}
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"path":    outputPath,
					"entries": len(snap.Entries),
				})
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Backup created: %d assignment(s)\n", len(snap.Entries))
			fmt.Fprintf(cmd.OutOrStdout(), "  Path: %s\n", outputPath)
			return nil
		},
	}

	cmd.Flags().String("output", "", "Output file path (default: auto-generated under the store dir)")
	cmd.Flags().Int("keep", defaultKeepBackups, "Number of auto-generated snapshots to keep")

	return cmd
}

func newRestoreCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restore <file>",
		Short: "Load stored assignments from a snapshot",
		Long: `Restore assignments from a snapshot written by "abtest backup".

Modes:
  merge    keep assignments that already exist and fill in the rest (default)
  replace  clear the store first, then load the snapshot`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			modeFlag, _ := cmd.Flags().GetString("mode")

			mode, err := backup.ParseRestoreMode(modeFlag)
			if err != nil {
				return err
			}
			if _, err := os.Stat(args[0]); err != nil {
				return fmt.Errorf("snapshot not found: %w", err)
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			s, err := cfg.OpenStore()
			if err != nil {
				return fmt.Errorf("failed to open store: %w", err)
			}
			defer s.Close()

			result, err := backup.Restore(cmd.Context(), s, args[0], mode)
			if err != nil {
				return fmt.Errorf("restore failed: %w", err)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(result)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Restored %d, skipped %d, cleared %d\n",
				result.Restored, result.Skipped, result.Cleared)
			return nil
		},
	}

	cmd.Flags().String("mode", string(backup.RestoreMerge), "Restore mode: merge or replace")

	return cmd
}
