package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newResetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "reset [experiment...]",
		Short: "Clear stored assignments",
		Long: `Remove stored assignments so the next sweep assigns them again.

Examples:
  abtest reset signup-cta     # clear one experiment
  abtest reset --all          # clear every stored key`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			all, _ := cmd.Flags().GetBool("all")

			if len(args) == 0 && !all {
				return fmt.Errorf("name at least one experiment or pass --all")
			}
			if len(args) > 0 && all {
				return fmt.Errorf("--all cannot be combined with experiment names")
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

			keys := args
			if all {
				keys, err = s.Keys(cmd.Context())
				if err != nil {
					return err
				}
			}

			cleared := make([]string, 0, len(keys))
			for _, key := range keys {
				if _, ok, err := s.Get(cmd.Context(), key); err != nil {
					return err
				} else if !ok {
					continue
				}
				if err := s.Delete(cmd.Context(), key); err != nil {
					return err
				}
				cleared = append(cleared, key)
			}

			if jsonOut {
				return json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"cleared": cleared,
				})
			}
			if len(cleared) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "Nothing to clear.")
				return nil
			}
			for _, key := range cleared {
				fmt.Fprintf(cmd.OutOrStdout(), "Cleared %s\n", key)
			}
			return nil
		},
	}

	cmd.Flags().Bool("all", false, "Clear every stored assignment")

	return cmd
}
