package cli

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/harun/alexandria/internal/daemon"
)

var (
	cleanupDays int
	cleanupYes  bool
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete memories older than a number of days",
	Long: `Delete memories captured more than --days days ago, together with
their images and thumbnails. Without --yes the command only reports how
many memories would be deleted, or asks when run on a terminal.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().IntVar(&cleanupDays, "days", -1, "age in days (default: storage.retention_days)")
	cleanupCmd.Flags().BoolVarP(&cleanupYes, "yes", "y", false, "delete without asking")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(svc *daemon.Service) error {
		days := cleanupDays
		if !cmd.Flags().Changed("days") {
			days = svc.Config().Storage.RetentionDays
			if days == 0 {
				return fmt.Errorf("storage.retention_days is 0 (keep forever); pass --days explicitly")
			}
		}

		ctx := cmd.Context()
		out := cmd.OutOrStdout()

		preview, err := svc.Cleanup(ctx, days, false)
		if err != nil {
			return err
		}

		confirm := cleanupYes
		if !confirm && preview.Matched > 0 && !jsonOutput && term.IsTerminal(int(os.Stdin.Fd())) {
			confirm = askConfirm(cmd.InOrStdin(), out, fmt.Sprintf(
				"Delete %d memories captured before %s?", preview.Matched, preview.Cutoff.Local().Format(time.DateTime)))
		}

		if !confirm || preview.Matched == 0 {
			if jsonOutput {
				return printJSON(out, preview)
			}
			fmt.Fprintf(out, "%d memories older than %d days", preview.Matched, days)
			if preview.Matched > 0 {
				fmt.Fprint(out, " (run with --yes to delete)")
			}
			fmt.Fprintln(out)
			return nil
		}

		res, err := svc.Cleanup(ctx, days, true)
		if err != nil {
			return fmt.Errorf("cleanup stopped after %d deletions: %w", res.Deleted, err)
		}
		if jsonOutput {
			return printJSON(out, res)
		}
		fmt.Fprintf(out, "Deleted %d memories\n", res.Deleted)
		return nil
	})
}

func askConfirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprintf(out, "%s [y/N] ", prompt)
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return false
	}
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
