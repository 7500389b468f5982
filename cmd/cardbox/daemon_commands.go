package main

import (
	"context"
	"fmt"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"cardbox/internal/daemon"
	"cardbox/internal/ipc"
	"cardbox/internal/logging"
)

func newDaemonCommand(ctx *commandContext) *cobra.Command {
	daemonCmd := &cobra.Command{
		Use:   "daemon",
		Short: "Manage the cardbox daemon process",
	}
	daemonCmd.AddCommand(newDaemonStartCommand(ctx))
	daemonCmd.AddCommand(newDaemonStopCommand(ctx))
	daemonCmd.AddCommand(newDaemonRunCommand(ctx))
	return daemonCmd
}

// newDaemonStartCommand launches cardboxd in the background and waits until
// its control socket answers.
func newDaemonStartCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Launch the cardbox daemon in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()

			if client, err := ipc.Dial(ctx.socketPath()); err == nil {
				client.Close()
				fmt.Fprintln(stdout, "Daemon already running")
				return nil
			}

			exe, err := exec.LookPath("cardboxd")
			if err != nil {
				return fmt.Errorf("find cardboxd executable: %w", err)
			}

			var launchArgs []string
			if ctx.configFlag != nil {
				if cfgPath := strings.TrimSpace(*ctx.configFlag); cfgPath != "" {
					launchArgs = append(launchArgs, "-config", cfgPath)
				}
			}

			proc := exec.Command(exe, launchArgs...)
			proc.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
			proc.Stdout = nil
			proc.Stderr = nil
			if err := proc.Start(); err != nil {
				return fmt.Errorf("launch cardboxd: %w", err)
			}
			// The daemon outlives this process.
			if err := proc.Process.Release(); err != nil {
				return fmt.Errorf("detach cardboxd: %w", err)
			}

			fmt.Fprintln(stdout, "Daemon launching...")
			if err := waitForSocket(ctx.socketPath(), 10*time.Second); err != nil {
				return err
			}
			fmt.Fprintln(stdout, "Daemon started")
			return nil
		},
	}
}

func waitForSocket(path string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for {
		client, err := ipc.Dial(path)
		if err == nil {
			client.Close()
			return nil
		}
		if time.Now().After(deadline) {
			return fmt.Errorf("daemon did not come up within %s: %w", timeout, err)
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func newDaemonStopCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "stop",
		Short: "Stop the cardbox daemon process",
		RunE: func(cmd *cobra.Command, args []string) error {
			stdout := cmd.OutOrStdout()
			client, err := ipc.Dial(ctx.socketPath())
			if err != nil {
				fmt.Fprintln(stdout, "Daemon is not running")
				return nil
			}
			defer client.Close()

			if _, err := client.Shutdown(); err != nil {
				return fmt.Errorf("request shutdown: %w", err)
			}
			fmt.Fprintln(stdout, "Shutdown requested; a session mid-copy finishes its current file first")
			return nil
		},
	}
}

// newDaemonRunCommand runs the daemon in the foreground, the systemd- and
// debugging-friendly mode.
func newDaemonRunCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the cardbox daemon in the foreground",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return err
			}

			runCtx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			logger, err := logging.NewFromConfig(cfg)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}

			d, err := daemon.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("create daemon: %w", err)
			}
			defer d.Close()

			server, err := ipc.NewServer(runCtx, cfg.SocketPath(), d, logger, cancel)
			if err != nil {
				return fmt.Errorf("start IPC server: %w", err)
			}
			defer server.Close()
			server.Serve()

			if err := d.Start(runCtx); err != nil {
				return fmt.Errorf("start daemon: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "cardboxd running (socket %s), press Ctrl-C to stop\n", cfg.SocketPath())
			<-runCtx.Done()
			return nil
		},
	}
}
