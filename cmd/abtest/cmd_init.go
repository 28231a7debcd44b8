package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/nvandessel/ab-test/internal/config"
	"github.com/nvandessel/ab-test/internal/experiment"
	"github.com/nvandessel/ab-test/internal/store"
	"github.com/spf13/cobra"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create .abtest/ with a sample experiments.yaml",
		RunE: func(cmd *cobra.Command, args []string) error {
			root, _ := cmd.Flags().GetString("root")
			jsonOut, _ := cmd.Flags().GetBool("json")

			dir := store.LocalPath(root)
			if err := os.MkdirAll(dir, 0700); err != nil {
				return fmt.Errorf("failed to create %s: %w", store.DirName, err)
			}

			path, _ := cmd.Flags().GetString("config")
			if path == "" {
				path = config.Path(root)
			}
			created := false
			if _, err := os.Stat(path); os.IsNotExist(err) {
				cfg := config.Default()
				cfg.Experiments = experiment.Collection{
					"signup-cta": {A: "Sign up", B: "Join now"},
				}
				if err := config.Save(cfg, path); err != nil {
					return err
				}
				created = true
			}

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			storePath := store.Location(cfg.Storage.Backend, cfg.Storage.Dir)

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"status":  "initialized",
					"path":    dir,
					"config":  path,
					"store":   storePath,
					"created": created,
				})
			}

			if created {
				fmt.Fprintf(cmd.OutOrStdout(), "Initialized %s/ in %s\n", store.DirName, root)
				fmt.Fprintf(cmd.OutOrStdout(), "Edit %s to define experiments.\n", path)
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "Config already exists at %s\n", path)
			}
			if storePath != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Assignments are stored in %s\n", storePath)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "Assignments are kept in memory only.")
			}
			return nil
		},
	}
}
