package main

import (
	"fmt"
	"os"

	"github.com/alecgard/tally/internal/team"
	"github.com/alecgard/tally/internal/ui"
	"github.com/spf13/cobra"
)

var ratesJSON bool

var ratesCmd = &cobra.Command{
	Use:   "rates",
	Short: "Inspect resolved billable and cost rates",
}

var ratesShowCmd = &cobra.Command{
	Use:   "show [teammate]",
	Short: "Show resolved rates for the team, or for one teammate",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runRatesShow,
}

func init() {
	ratesShowCmd.Flags().BoolVar(&ratesJSON, "json", false, "output JSON")
	ratesCmd.AddCommand(ratesShowCmd)
	rootCmd.AddCommand(ratesCmd)
}

func runRatesShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	ctx := cmd.Context()

	var members []team.Member
	if len(args) == 1 {
		m, ok, err := a.directory.FindByName(ctx, args[0])
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no teammate matches %q", args[0])
		}
		members = []team.Member{m}
	} else {
		members, err = a.directory.ListMembers(ctx)
		if err != nil {
			return err
		}
	}

	type resolvedRow struct {
		IdentityID     int64  `json:"identity_id"`
		Name           string `json:"name"`
		Billable       string `json:"billable_rate"`
		BillableSource string `json:"billable_source"`
		Cost           string `json:"cost_rate"`
		CostSource     string `json:"cost_source"`
	}

	resolved := make([]resolvedRow, 0, len(members))
	for _, m := range members {
		rr, err := a.resolver.Resolve(ctx, m.IdentityID)
		if err != nil {
			return err
		}
		resolved = append(resolved, resolvedRow{
			IdentityID:     m.IdentityID,
			Name:           m.DisplayName(),
			Billable:       ui.Money(rr.Billable),
			BillableSource: string(rr.BillableSource),
			Cost:           ui.Money(rr.Cost),
			CostSource:     string(rr.CostSource),
		})
	}
	a.warnDiagnostics()

	if ratesJSON {
		return ui.WriteJSON(os.Stdout, resolved)
	}

	rows := make([][]string, 0, len(resolved))
	for _, r := range resolved {
		rows = append(rows, []string{
			ui.FormatID(r.IdentityID),
			r.Name,
			r.Billable,
			r.BillableSource,
			r.Cost,
			r.CostSource,
		})
	}
	return ui.WriteTable(os.Stdout,
		[]string{"ID", "NAME", "BILLABLE", "SOURCE", "COST", "SOURCE"}, rows)
}
