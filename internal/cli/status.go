package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/alexandria/internal/daemon"
	"github.com/harun/alexandria/pkg/store"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Show whether the Alexandria daemon is running and a summary of the memory store.`,
	RunE:  runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

type statusReport struct {
	Running bool          `json:"running"`
	PID     int           `json:"pid,omitempty"`
	Uptime  time.Duration `json:"uptime,omitempty"`
	Store   *store.Stats  `json:"store,omitempty"`
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	var report statusReport
	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if pid, err := daemon.ReadPID(pidFile); err == nil && daemon.ProcessAlive(pid) {
		report.Running = true
		report.PID = pid
		// the PID file is written once at startup
		if info, err := os.Stat(pidFile); err == nil {
			report.Uptime = time.Since(info.ModTime())
		}
	}

	if _, err := os.Stat(cfg.Storage.DatabasePath); err == nil {
		err := withService(cmd, func(svc *daemon.Service) error {
			stats, err := svc.Stats(cmd.Context())
			if err != nil {
				return err
			}
			report.Store = &stats
			return nil
		})
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if jsonOutput {
		return printJSON(out, report)
	}

	if !report.Running {
		fmt.Fprintln(out, "Status: stopped")
	} else {
		fmt.Fprintln(out, "Status: running")
		fmt.Fprintf(out, "PID: %d\n", report.PID)
		if report.Uptime > 0 {
			fmt.Fprintf(out, "Uptime: %s\n", formatDuration(report.Uptime))
		}
	}
	if report.Store != nil {
		fmt.Fprintf(out, "Memories: %d\n", report.Store.Count)
		if report.Store.Newest != nil {
			fmt.Fprintf(out, "Last capture: %s\n", report.Store.Newest.Local().Format(time.DateTime))
		}
	}

	return nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Second)
	h := d / time.Hour
	d -= h * time.Hour
	m := d / time.Minute
	d -= m * time.Minute
	s := d / time.Second

	if h > 0 {
		return fmt.Sprintf("%dh%dm%ds", h, m, s)
	}
	if m > 0 {
		return fmt.Sprintf("%dm%ds", m, s)
	}
	return fmt.Sprintf("%ds", s)
}
