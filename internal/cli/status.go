package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show HTTP server status",
	Long:  `Show whether a 'backlog-agent serve' process is running.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	pid := newPIDFile(cfg.DataDir)

	if !pid.IsRunning() {
		fmt.Fprintln(out, "Status: stopped")
		if _, err := pid.PID(); err == nil {
			// left behind by a process that did not exit cleanly
			_ = pid.Remove()
		} else if !os.IsNotExist(err) {
			fmt.Fprintf(out, "Warning: %v\n", err)
		}
		return nil
	}

	id, err := pid.PID()
	if err != nil {
		return err
	}

	fmt.Fprintln(out, "Status: running")
	fmt.Fprintf(out, "PID: %d\n", id)
	if since, err := pid.Since(); err == nil {
		fmt.Fprintf(out, "Uptime: %s\n", formatDuration(time.Since(since)))
	}
	fmt.Fprintf(out, "Address: %s:%d\n", cfg.Server.Host, cfg.Server.Port)

	return nil
}
