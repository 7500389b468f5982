package main

import (
	"fmt"
	"os"
	"time"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"cardbox/internal/ipc"
)

const watchPollInterval = 500 * time.Millisecond

// newWatchCommand polls the daemon and renders a live progress bar while a
// session is copying. It exits when the session reaches a terminal state, or
// immediately when nothing is running and --wait is not set.
func newWatchCommand(ctx *commandContext) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "watch",
		Short: "Watch a running ingest session",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withClient(func(client *ipc.Client) error {
				stdout := cmd.OutOrStdout()

				resp, err := client.Status()
				if err != nil {
					return err
				}
				if !resp.Snapshot.IsCopying && !wait {
					fmt.Fprintln(stdout, resp.Snapshot.StatusMessage)
					return nil
				}

				for !resp.Snapshot.IsCopying {
					fmt.Fprintf(stdout, "\r%s", resp.Snapshot.StatusMessage)
					time.Sleep(watchPollInterval)
					if resp, err = client.Status(); err != nil {
						return err
					}
				}
				fmt.Fprintln(stdout)

				var bar *progressbar.ProgressBar
				total := -1
				for {
					snap := resp.Snapshot
					if snap.TotalFiles > 0 && snap.TotalFiles != total {
						total = snap.TotalFiles
						bar = progressbar.NewOptions(total,
							progressbar.OptionSetWriter(os.Stderr),
							progressbar.OptionThrottle(100*time.Millisecond),
							progressbar.OptionSetWidth(40),
							progressbar.OptionShowCount(),
							progressbar.OptionSetDescription(snap.ActiveSource),
						)
					}
					if bar != nil {
						visited := snap.CopiedFiles + snap.SkippedFiles + snap.ErrorFiles
						_ = bar.Set(visited)
						if snap.CurrentFile != "" {
							bar.Describe(snap.CurrentFile)
						}
					}
					if !snap.IsCopying {
						break
					}
					time.Sleep(watchPollInterval)
					if resp, err = client.Status(); err != nil {
						return err
					}
				}

				if bar != nil {
					_ = bar.Finish()
					fmt.Fprintln(os.Stderr)
				}
				fmt.Fprintln(stdout, resp.Snapshot.StatusMessage)
				return nil
			})
		},
	}

	cmd.Flags().BoolVarP(&wait, "wait", "w", false, "Wait for a session to start instead of exiting")
	return cmd
}
