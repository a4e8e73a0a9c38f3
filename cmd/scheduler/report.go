package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"driver-scheduler/internal/models"
)

func writeReport(w io.Writer, result *models.ScheduleResult) error {
	fmt.Fprintln(w, "Greedy Algorithm Results")
	fmt.Fprintf(w, "Run: %s (%s)\n\n", result.RunID, result.Status)

	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "DRIVER\tRIDES\tRIDE IDS")
	for _, a := range result.Assignments {
		fmt.Fprintf(tw, "%s\t%d\t%s\n", a.DriverID, len(a.RideIDs), strings.Join(a.RideIDs, ", "))
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	unassigned := "none"
	if len(result.UnassignedRideIDs) > 0 {
		unassigned = strings.Join(result.UnassignedRideIDs, ", ")
	}
	fmt.Fprintf(w, "\nUnassigned rides: %s\n", unassigned)
	fmt.Fprintf(w, "Total cost: %.2f\n", result.TotalCost)
	fmt.Fprintf(w, "Provider calls: %d\n", result.ProviderCalls)

	if len(result.Diagnostics) > 0 {
		fmt.Fprintln(w, "\nSkipped input:")
		for _, d := range result.Diagnostics {
			fmt.Fprintf(w, "  %s %s: %s\n", d.Kind, d.RecordID, d.Message)
		}
	}
	return nil
}
