package main

import (
	"fmt"
	"os"
	"time"

	"github.com/alecgard/tally/internal/timesheet"
	"github.com/alecgard/tally/internal/ui"
	"github.com/spf13/cobra"
)

var (
	timeMonth    string
	timeFrom     string
	timeTo       string
	timeTeammate string
	timeBillable bool
	timeJSON     bool
)

var timeCmd = &cobra.Command{
	Use:   "time",
	Short: "Work with time entries",
}

var timeListCmd = &cobra.Command{
	Use:   "list",
	Short: "List time entries",
	RunE:  runTimeList,
}

var timeSummaryCmd = &cobra.Command{
	Use:   "summary",
	Short: "Summarize logged time per teammate with billable, cost, and margin",
	RunE:  runTimeSummary,
}

func init() {
	for _, cmd := range []*cobra.Command{timeListCmd, timeSummaryCmd} {
		cmd.Flags().StringVar(&timeMonth, "month", "", "calendar month, e.g. 2026-08 (default: current month)")
		cmd.Flags().StringVar(&timeFrom, "from", "", "start date, e.g. 2026-08-01 (overrides --month)")
		cmd.Flags().StringVar(&timeTo, "to", "", "end date, inclusive (overrides --month)")
		cmd.Flags().StringVar(&timeTeammate, "teammate", "", "restrict to one teammate (name or email fragment)")
		cmd.Flags().BoolVar(&timeBillable, "billable", false, "only billable entries")
		cmd.Flags().BoolVar(&timeJSON, "json", false, "output JSON")
	}
	timeCmd.AddCommand(timeListCmd, timeSummaryCmd)
	rootCmd.AddCommand(timeCmd)
}

// timeFilter builds the entry filter from the shared flags, resolving a
// teammate fragment to an identity id if given.
func timeFilter(a *app, cmd *cobra.Command) (timesheet.Filter, error) {
	from, to, err := parsePeriod(timeMonth, timeFrom, timeTo)
	if err != nil {
		return timesheet.Filter{}, err
	}
	filter := timesheet.Filter{From: from, To: to, BillableOnly: timeBillable}

	if timeTeammate != "" {
		m, ok, err := a.directory.FindByName(cmd.Context(), timeTeammate)
		if err != nil {
			return timesheet.Filter{}, err
		}
		if !ok {
			return timesheet.Filter{}, fmt.Errorf("no teammate matches %q", timeTeammate)
		}
		filter.IdentityID = m.IdentityID
	}
	return filter, nil
}

// parsePeriod turns the --month/--from/--to flags into a half-open range.
// No flags means the current month.
func parsePeriod(month, from, to string) (time.Time, time.Time, error) {
	if from != "" || to != "" {
		var start, end time.Time
		var err error
		if from != "" {
			start, err = time.Parse("2006-01-02", from)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("parsing --from: %w", err)
			}
		}
		if to != "" {
			end, err = time.Parse("2006-01-02", to)
			if err != nil {
				return time.Time{}, time.Time{}, fmt.Errorf("parsing --to: %w", err)
			}
			end = end.AddDate(0, 0, 1)
		}
		if !start.IsZero() && !end.IsZero() && end.Before(start) {
			return time.Time{}, time.Time{}, fmt.Errorf("--to is before --from")
		}
		return start, end, nil
	}

	ref := time.Now()
	if month != "" {
		var err error
		ref, err = time.Parse("2006-01", month)
		if err != nil {
			return time.Time{}, time.Time{}, fmt.Errorf("parsing --month (want YYYY-MM): %w", err)
		}
	}
	start := time.Date(ref.Year(), ref.Month(), 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, 0), nil
}

func runTimeList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	filter, err := timeFilter(a, cmd)
	if err != nil {
		return err
	}
	entries, err := a.times.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	if timeJSON {
		return ui.WriteJSON(os.Stdout, entries)
	}

	rows := make([][]string, 0, len(entries))
	for _, e := range entries {
		name := ui.FormatID(e.IdentityID)
		if m, ok, err := a.directory.FindByIdentity(cmd.Context(), e.IdentityID); err == nil && ok {
			name = m.DisplayName()
		}
		rows = append(rows, []string{
			e.StartedAt.Local().Format("2006-01-02"),
			name,
			ui.Hours(e.Duration),
			ui.YesNo(e.Billable),
			e.Note,
		})
	}
	a.warnDiagnostics()
	return ui.WriteTable(os.Stdout, []string{"DATE", "TEAMMATE", "HOURS", "BILLABLE", "NOTE"}, rows)
}

func runTimeSummary(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	filter, err := timeFilter(a, cmd)
	if err != nil {
		return err
	}
	entries, err := a.times.List(cmd.Context(), filter)
	if err != nil {
		return err
	}

	summaries, err := timesheet.Summarize(cmd.Context(), entries, a.resolver)
	if err != nil {
		return err
	}
	a.warnDiagnostics()

	if timeJSON {
		return ui.WriteJSON(os.Stdout, summaries)
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		name := ui.FormatID(s.IdentityID)
		if m, ok, err := a.directory.FindByIdentity(cmd.Context(), s.IdentityID); err == nil && ok {
			name = m.DisplayName()
		}
		rows = append(rows, []string{
			name,
			fmt.Sprintf("%d", s.Entries),
			ui.Hours(s.Seconds),
			ui.Money(s.BillableAmount),
			string(s.BillableSource),
			ui.Money(s.CostAmount),
			string(s.CostSource),
			ui.Money(s.Margin),
		})
	}
	return ui.WriteTable(os.Stdout,
		[]string{"TEAMMATE", "ENTRIES", "HOURS", "BILLABLE", "SRC", "COST", "SRC", "MARGIN"}, rows)
}
