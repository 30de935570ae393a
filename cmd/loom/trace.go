package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/loom-sim/loom/pkg/trace"
)

var traceCmd = &cobra.Command{
	Use:   "trace",
	Short: "Inspect recorded simulation traces",
}

var traceRunsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List recorded runs",
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("db")
		rd, err := trace.NewReader(path)
		if err != nil {
			return err
		}
		defer rd.Close()

		runs, err := rd.ListRuns()
		if err != nil {
			return err
		}
		for _, r := range runs {
			fmt.Printf("%s  %s  %d records\n", r.ID, r.StartedAt.Format("2006-01-02 15:04:05"), r.Records)
		}
		return nil
	},
}

var traceShowCmd = &cobra.Command{
	Use:   "show <run-id>",
	Short: "Dump the records of one run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path, _ := cmd.Flags().GetString("db")
		rd, err := trace.NewReader(path)
		if err != nil {
			return err
		}
		defer rd.Close()

		records, err := rd.Records(args[0])
		if err != nil {
			return err
		}
		for _, rec := range records {
			fmt.Printf("%8d  tick %-10d %-11s %s\n", rec.Seq, rec.Tick, rec.Phase, rec.Label)
		}
		return nil
	},
}

func init() {
	traceCmd.PersistentFlags().String("db", "loom-trace.db", "Path to the trace database")
	traceCmd.AddCommand(traceRunsCmd)
	traceCmd.AddCommand(traceShowCmd)
}
