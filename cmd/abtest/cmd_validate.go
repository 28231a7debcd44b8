package main

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

// lintIssue is one advisory problem found in an experiment spec.
type lintIssue struct {
	Experiment string `json:"experiment"`
	Problem    string `json:"problem"`
}

func newValidateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check the config and lint experiment definitions",
		Long: `Validate storage and logging settings, then lint every experiment.

Lint findings are advisory: a malformed experiment still resolves, with
empty text for a missing variant. Use --strict to exit non-zero on findings.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			strict, _ := cmd.Flags().GetBool("strict")

			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			issues := make([]lintIssue, 0)
			for _, name := range cfg.Experiments.Names() {
				for _, problem := range cfg.Experiments[name].Lint() {
					issues = append(issues, lintIssue{Experiment: name, Problem: problem})
				}
			}

			if jsonOut {
				if err := json.NewEncoder(cmd.OutOrStdout()).Encode(map[string]any{
					"valid":       len(issues) == 0,
					"experiments": len(cfg.Experiments),
					"issues":      issues,
				}); err != nil {
					return err
				}
			} else {
				fmt.Fprintf(cmd.OutOrStdout(), "%d experiment(s) configured\n", len(cfg.Experiments))
				for _, issue := range issues {
					fmt.Fprintf(cmd.OutOrStdout(), "  %s: %s\n", issue.Experiment, issue.Problem)
				}
				if len(issues) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "No issues found.")
				}
			}

			if strict && len(issues) > 0 {
				return fmt.Errorf("%d issue(s) found", len(issues))
			}
			return nil
		},
	}

	cmd.Flags().Bool("strict", false, "Exit non-zero when any experiment has lint findings")

	return cmd
}
