package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/harun/alexandria/internal/daemon"
	"github.com/harun/alexandria/pkg/scheduler"
)

var captureCmd = &cobra.Command{
	Use:   "capture",
	Short: "Capture the screen once",
	Long: `Run a single capture tick now: resolve the active window, apply the
privacy rules, capture, recognise text and store the result.`,
	Args: cobra.NoArgs,
	RunE: runCapture,
}

func init() {
	rootCmd.AddCommand(captureCmd)
}

func runCapture(cmd *cobra.Command, args []string) error {
	return withService(cmd, func(svc *daemon.Service) error {
		res, err := svc.TriggerOneShotTick(cmd.Context())
		if err != nil {
			return fmt.Errorf("capture %s: %w", res.Outcome, err)
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			return printJSON(out, res)
		}

		switch res.Outcome {
		case scheduler.OutcomeStored:
			fmt.Fprintf(out, "Stored memory %s", res.MemoryID)
			if res.Sensitive {
				fmt.Fprint(out, " (sensitive, text withheld)")
			}
			if res.Degraded {
				fmt.Fprint(out, " (no text recognised)")
			}
			fmt.Fprintln(out)
		case scheduler.OutcomeDenied:
			fmt.Fprintf(out, "Skipped: active window excluded by %s\n", res.Rule)
		case scheduler.OutcomeSkipped:
			fmt.Fprintln(out, "Skipped: screen is locked")
		default:
			fmt.Fprintf(out, "Tick ended: %s\n", res.Outcome)
		}
		return nil
	})
}
