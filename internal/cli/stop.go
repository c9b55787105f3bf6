package cli

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/spf13/cobra"
)

var stopTimeout int

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the HTTP server",
	Long: `Stop a running 'backlog-agent serve' process.
Sends SIGTERM and waits for in-flight requests to finish, then SIGKILL after the timeout.`,
	RunE: runStop,
}

func init() {
	stopCmd.Flags().IntVar(&stopTimeout, "timeout", 30, "seconds to wait for the server to stop")
	rootCmd.AddCommand(stopCmd)
}

func runStop(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pid := newPIDFile(cfg.DataDir)

	if !pid.IsRunning() {
		_ = pid.Remove()
		return fmt.Errorf("server is not running")
	}

	id, err := pid.PID()
	if err != nil {
		return err
	}

	process, err := os.FindProcess(id)
	if err != nil {
		return fmt.Errorf("failed to find process: %w", err)
	}
	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to send SIGTERM: %w", err)
	}

	deadline := time.Now().Add(time.Duration(stopTimeout) * time.Second)
	for time.Now().Before(deadline) {
		if !processAlive(id) {
			_ = pid.Remove()
			fmt.Fprintln(out, "Server stopped successfully")
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintln(out, "Timeout reached, sending SIGKILL...")
	if err := process.Signal(syscall.SIGKILL); err != nil {
		return fmt.Errorf("failed to send SIGKILL: %w", err)
	}

	_ = pid.Remove()
	fmt.Fprintln(out, "Server killed")
	return nil
}
