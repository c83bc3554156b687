package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/alexandria/internal/daemon"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the Alexandria capture daemon",
	Long: `Start the Alexandria capture daemon in the foreground.
It captures on the configured interval until it receives SIGINT or SIGTERM.
Run it from a systemd user unit or your compositor's autostart.`,
	RunE: runStart,
}

func init() {
	rootCmd.AddCommand(startCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	pidFile := daemon.PIDFilePath(cfg.DataDir)
	if isRunning(pidFile) {
		return fmt.Errorf("daemon is already running (PID file: %s)", pidFile)
	}

	log, err := newLogger(cfg, true)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer log.Close()

	d, err := daemon.New(cfg, log, daemon.Options{})
	if err != nil {
		return err
	}

	if err := d.Start(); err != nil {
		_ = d.Service().Close()
		return err
	}

	d.Wait()
	return nil
}

func isRunning(pidFile string) bool {
	pid, err := daemon.ReadPID(pidFile)
	if err != nil {
		return false
	}
	return daemon.ProcessAlive(pid)
}
