package main

import (
	"fmt"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	"cardbox/internal/ipc"
)

func newHistoryCommand(ctx *commandContext) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recorded ingest sessions",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				resp, err := client.HistoryList(limit)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if len(resp.Entries) == 0 {
					fmt.Fprintln(out, "No ingest sessions recorded")
					return nil
				}
				colored := terminalColors(out)

				tw := table.NewWriter()
				tw.SetStyle(table.StyleLight)
				tw.AppendHeader(table.Row{"Finished", "Source", "Outcome", "Copied", "Skipped", "Errors", "Duration"})
				tw.SetColumnConfigs([]table.ColumnConfig{
					{Number: 4, Align: text.AlignRight},
					{Number: 5, Align: text.AlignRight},
					{Number: 6, Align: text.AlignRight},
					{Number: 7, Align: text.AlignRight},
				})
				for _, e := range resp.Entries {
					tw.AppendRow(table.Row{
						humanize.Time(e.FinishedAt),
						e.Source,
						paint(e.Outcome, outcomeTone(e.Outcome), colored),
						e.CopiedFiles,
						e.SkippedFiles,
						e.ErrorFiles,
						e.FinishedAt.Sub(e.StartedAt).Round(time.Second).String(),
					})
				}
				fmt.Fprintln(out, tw.Render())
				fmt.Fprintf(out, "%d sessions total, %s files copied, %d errors\n",
					resp.Sessions, humanize.Comma(int64(resp.CopiedFiles)), resp.ErrorFiles)
				return nil
			})
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum sessions to show (0 shows all)")
	return cmd
}
