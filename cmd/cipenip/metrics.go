package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Bataide/cip-enip-driver/internal/metrics"
)

func newMetricsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Inspect metrics written by a previous run",
	}
	cmd.AddCommand(newMetricsSummaryCmd())
	return cmd
}

func newMetricsSummaryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "summary <metrics.csv>",
		Short: "Summarize a metrics CSV file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			records, first, last, err := metrics.ReadMetricsCSV(args[0])
			if err != nil {
				return err
			}
			collector := metrics.NewCollector(len(records))
			for _, m := range records {
				collector.Record(m)
			}
			out := cmd.OutOrStdout()
			if len(records) > 0 {
				fmt.Fprintf(out, "%d records from %s to %s (%s)\n\n",
					len(records), first.Format("2006-01-02 15:04:05"), last.Format("2006-01-02 15:04:05"), last.Sub(first).Round(time.Millisecond))
			}
			fmt.Fprint(out, metrics.FormatSummary(collector.Summary()))
			return nil
		},
	}
}
