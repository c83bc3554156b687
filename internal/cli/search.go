package cli

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"
	"unicode/utf8"

	"github.com/spf13/cobra"

	"github.com/harun/alexandria/internal/daemon"
	"github.com/harun/alexandria/pkg/store"
)

var (
	searchApp   string
	searchFrom  string
	searchTo    string
	searchTags  []string
	searchLimit int
)

var searchCmd = &cobra.Command{
	Use:   "search [text...]",
	Short: "Search stored memories",
	Long: `Search memories by recognised text, application, time range and tags.
All given filters must match. Results are newest first.

Times accept a date (2024-05-01), a local date and time (2024-05-01 14:30),
RFC 3339, or an age such as 90m, 36h or 7d.`,
	RunE: runSearch,
}

func init() {
	searchCmd.Flags().StringVar(&searchApp, "app", "", "application id, case-insensitive")
	searchCmd.Flags().StringVar(&searchFrom, "from", "", "earliest capture time (inclusive)")
	searchCmd.Flags().StringVar(&searchTo, "to", "", "latest capture time (inclusive)")
	searchCmd.Flags().StringSliceVar(&searchTags, "tag", nil, "required tag, repeatable")
	searchCmd.Flags().IntVar(&searchLimit, "limit", store.DefaultSearchLimit, "maximum number of results")
	rootCmd.AddCommand(searchCmd)
}

func runSearch(cmd *cobra.Command, args []string) error {
	q, err := buildQuery(args, time.Now())
	if err != nil {
		return err
	}

	return withService(cmd, func(svc *daemon.Service) error {
		results, err := svc.Search(cmd.Context(), q, searchLimit)
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if jsonOutput {
			if results == nil {
				results = []store.Memory{}
			}
			return printJSON(out, results)
		}

		if len(results) == 0 {
			fmt.Fprintln(out, "No memories found")
			return nil
		}

		w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
		_, _ = fmt.Fprintln(w, "CAPTURED\tAPP\tTITLE\tTEXT\tID")
		for _, m := range results {
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				m.CapturedAt.Local().Format("2006-01-02 15:04"),
				deref(m.ApplicationID),
				truncate(deref(m.WindowTitle), 40),
				snippet(m),
				m.ID)
		}
		return w.Flush()
	})
}

func buildQuery(args []string, now time.Time) (store.Query, error) {
	q := store.Query{
		Text:  strings.Join(args, " "),
		AppID: searchApp,
		Tags:  searchTags,
	}
	if searchFrom != "" {
		from, err := parseTimeFlag(searchFrom, now, false)
		if err != nil {
			return q, fmt.Errorf("invalid --from: %w", err)
		}
		q.From = from
	}
	if searchTo != "" {
		to, err := parseTimeFlag(searchTo, now, true)
		if err != nil {
			return q, fmt.Errorf("invalid --to: %w", err)
		}
		q.To = to
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return q, fmt.Errorf("--to is before --from")
	}
	return q, nil
}

// parseTimeFlag reads an absolute time or an age relative to now. A bare
// date means the start of that day, or its last instant when endOfDay is
// set.
func parseTimeFlag(s string, now time.Time, endOfDay bool) (time.Time, error) {
	s = strings.TrimSpace(s)

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("2006-01-02 15:04", s, time.Local); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation(time.DateOnly, s, time.Local); err == nil {
		if endOfDay {
			return t.AddDate(0, 0, 1).Add(-time.Nanosecond), nil
		}
		return t, nil
	}

	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err == nil && n >= 0 {
			return now.AddDate(0, 0, -n), nil
		}
	}
	if d, err := time.ParseDuration(s); err == nil && d >= 0 {
		return now.Add(-d), nil
	}

	return time.Time{}, fmt.Errorf("unrecognised time %q", s)
}

func snippet(m store.Memory) string {
	if m.Sensitive {
		return "[sensitive]"
	}
	if m.ExtractedText == nil {
		return "-"
	}
	return truncate(strings.Join(strings.Fields(*m.ExtractedText), " "), 60)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n-1]) + "…"
}
