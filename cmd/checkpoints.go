package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/riq-labs/faculty-pipeline/internal/model"
)

var checkpointsCmd = &cobra.Command{
	Use:   "checkpoints",
	Short: "Inspect and manage pipeline checkpoints",
}

var checkpointsShowCmd = &cobra.Command{
	Use:   "show <institution>",
	Short: "Show the per-phase checkpoint state for an institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		insts, err := loadInstitutions()
		if err != nil {
			return eris.Wrap(err, "load institutions")
		}
		inst, ok := insts[args[0]]
		if !ok {
			return eris.Errorf("unknown institution %q", args[0])
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "PHASE\tSTATUS\tROSTER\tFOUND\tSAVED AT")
		for _, id := range model.Phases {
			snap, err := store.LoadPhase(ctx, inst.Name, id)
			if err != nil {
				return eris.Wrap(err, "load phase")
			}
			if snap == nil {
				fmt.Fprintf(tw, "%s\t-\t-\t-\t-\n", id)
				continue
			}
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n",
				id, snap.Result.Status, len(snap.Roster), snap.Result.Found,
				snap.SavedAt.Format("2006-01-02 15:04:05"))
		}
		return tw.Flush()
	},
}

var checkpointsClearCmd = &cobra.Command{
	Use:   "clear <institution>",
	Short: "Delete all checkpoints for an institution",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		insts, err := loadInstitutions()
		if err != nil {
			return eris.Wrap(err, "load institutions")
		}
		inst, ok := insts[args[0]]
		if !ok {
			return eris.Errorf("unknown institution %q", args[0])
		}

		if err := store.Clear(ctx, inst.Name); err != nil {
			return eris.Wrap(err, "clear checkpoints")
		}
		fmt.Printf("Checkpoints cleared for %s.\n", inst.Name)
		return nil
	},
}

var runsListLimit int

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List completed runs",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		store, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		runs, err := store.ListRuns(ctx, runsListLimit)
		if err != nil {
			return eris.Wrap(err, "list runs")
		}
		if len(runs) == 0 {
			fmt.Fprintln(os.Stderr, "No runs found.")
			return nil
		}

		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "RUN ID\tINSTITUTION\tFACULTY\tWEBSITES\tEMAILS\tSTARTED")
		for _, r := range runs {
			fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%d\t%s\n",
				r.RunID, r.Institution, r.TotalFaculty, r.WebsitesFound, r.EmailsFound,
				r.StartedAt.Format("2006-01-02 15:04"))
		}
		return tw.Flush()
	},
}

func init() {
	checkpointsCmd.AddCommand(checkpointsShowCmd)
	checkpointsCmd.AddCommand(checkpointsClearCmd)
	runsCmd.Flags().IntVar(&runsListLimit, "limit", 20, "maximum runs to list")
	rootCmd.AddCommand(checkpointsCmd)
	rootCmd.AddCommand(runsCmd)
}
