package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"cardbox/internal/ipc"
)

func newStatusCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show daemon and ingest status",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.Status()
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				colored := terminalColors(out)
				snap := resp.Snapshot

				daemonLine := paint("not running", toneBad, colored)
				if resp.Running {
					daemonLine = paint(fmt.Sprintf("running (pid %d, started %s)", resp.PID, humanize.Time(resp.StartedAt)), toneGood, colored)
				}
				printField(out, "Daemon", daemonLine)

				targetLine := resp.TargetDir
				if !snap.TargetPresent {
					targetLine = paint(resp.TargetDir+" (not mounted or not writable)", toneBad, colored)
				}
				printField(out, "Target store", targetLine)

				if snap.ActiveSource != "" {
					printField(out, "Source", snap.ActiveSource)
				}
				activityTone := toneNeutral
				if snap.IsCopying {
					activityTone = toneBusy
				}
				printField(out, "Activity", paint(snap.StatusMessage, activityTone, colored))

				// File counters only make sense once a session has scanned
				// something.
				if snap.TotalFiles == 0 && !snap.IsCopying {
					return nil
				}

				fmt.Fprintln(out)
				tw := table.NewWriter()
				tw.SetStyle(table.StyleLight)
				tw.AppendHeader(table.Row{"Total", "Copied", "Skipped", "Errors", "Progress"})
				tw.AppendRow(table.Row{
					snap.TotalFiles,
					snap.CopiedFiles,
					snap.SkippedFiles,
					snap.ErrorFiles,
					fmt.Sprintf("%.1f%%", snap.ProgressPercent),
				})
				fmt.Fprintln(out, tw.Render())
				if snap.CurrentFile != "" {
					printField(out, "Current file", snap.CurrentFile)
				}
				return nil
			})
		},
	}
}
