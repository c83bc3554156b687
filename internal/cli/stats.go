package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/harun/alexandria/internal/daemon"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show memory store statistics",
	Args:  cobra.NoArgs,
	RunE:  runStats,
}

func init() {
	rootCmd.AddCommand(statsCmd)
}

func runStats(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(svc *daemon.Service) error {
		stats, err := svc.Stats(cmd.Context())
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, stats)
		}

		fmt.Fprintf(out, "Memories:   %d\n", stats.Count)
		fmt.Fprintf(out, "With text:  %d\n", stats.WithText)
		fmt.Fprintf(out, "Sensitive:  %d\n", stats.Sensitive)
		fmt.Fprintf(out, "Image size: %s\n", formatBytes(stats.TotalBytes))
		if stats.Oldest != nil && stats.Newest != nil {
			fmt.Fprintf(out, "Oldest:     %s\n", stats.Oldest.Local().Format(time.DateTime))
			fmt.Fprintf(out, "Newest:     %s\n", stats.Newest.Local().Format(time.DateTime))
		}
		return nil
	})
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}
