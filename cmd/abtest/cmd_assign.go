package main

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/nvandessel/ab-test/internal/abtest"
	"github.com/nvandessel/ab-test/internal/experiment"
	"github.com/spf13/cobra"
)

func newAssignCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "assign",
		Short: "Assign every configured experiment that has no stored variant",
		Long: `Mark storage ready and run the one-time assignment sweep.

Experiments that already have a stored variant keep it. The command prints
the resulting assignment for every configured experiment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			if err := sess.resolver.MarkReady(cmd.Context()); err != nil {
				return fmt.Errorf("assignment sweep failed: %w", err)
			}

			all, err := sess.resolver.Assignments(cmd.Context())
			if err != nil {
				return err
			}
			return printAssignments(cmd.OutOrStdout(), sess.cfg.Experiments.Names(), all, jsonOut)
		},
	}
}

func newGetCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "get <experiment>",
		Short: "Print the stored variant of one experiment",
		Long: `Print the variant assigned to one experiment.

Storage is marked ready first, so an unassigned configured experiment is
assigned on the way. With --unready the resolver is left unready and the
neutral placeholder {"id":"","text":""} is printed instead.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")
			unready, _ := cmd.Flags().GetBool("unready")
			name := args[0]

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			if !unready {
				if err := sess.resolver.MarkReady(cmd.Context()); err != nil {
					return fmt.Errorf("assignment sweep failed: %w", err)
				}
			}

			v, err := sess.resolver.GetItem(cmd.Context(), name)
			if err != nil {
				return err
			}

			if jsonOut {
				// nil encodes as null for an unassigned name
				return json.NewEncoder(cmd.OutOrStdout()).Encode(v)
			}
			if v == nil {
				if _, ok := sess.carrier.Lookup(name); !ok {
					fmt.Fprintf(cmd.OutOrStdout(), "%s: not configured\n", name)
					return nil
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: unassigned\n", name)
				return nil
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s %q\n", name, v.ID, v.Text)
			return nil
		},
	}

	cmd.Flags().Bool("unready", false, "Resolve without confirming storage access (prints the placeholder)")

	return cmd
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List configured experiments and their stored variants",
		Long: `List configured experiments without assigning anything.

Experiments that have not been assigned yet are shown as unassigned.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			jsonOut, _ := cmd.Flags().GetBool("json")

			sess, err := openSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			names := sess.cfg.Experiments.Names()
			all := make(map[string]*experiment.Variant, len(names))
			for _, name := range names {
				v, err := abtest.Stored(cmd.Context(), sess.store, name)
				if err != nil {
					return err
				}
				all[name] = v
			}

			return printAssignments(cmd.OutOrStdout(), names, all, jsonOut)
		},
	}
}

// assignmentRow is one line of assign/list output.
type assignmentRow struct {
	Experiment string `json:"experiment"`
	ID         string `json:"id,omitempty"`
	Text       string `json:"text,omitempty"`
	Assigned   bool   `json:"assigned"`
}

func printAssignments(w io.Writer, names []string, all map[string]*experiment.Variant, jsonOut bool) error {
	rows := make([]assignmentRow, 0, len(names))
	for _, name := range names {
		row := assignmentRow{Experiment: name}
		if v := all[name]; v != nil {
			row.ID = v.ID
			row.Text = v.Text
			row.Assigned = true
		}
		rows = append(rows, row)
	}

	if jsonOut {
		return json.NewEncoder(w).Encode(rows)
	}

	if len(rows) == 0 {
		fmt.Fprintln(w, "No experiments configured.")
		return nil
	}
	for _, row := range rows {
		if !row.Assigned {
			fmt.Fprintf(w, "  %-24s unassigned\n", row.Experiment)
			continue
		}
		fmt.Fprintf(w, "  %-24s %-32s %q\n", row.Experiment, row.ID, row.Text)
	}
	return nil
}
