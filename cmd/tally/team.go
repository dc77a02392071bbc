package main

import (
	"os"

	"github.com/alecgard/tally/internal/ui"
	"github.com/spf13/cobra"
)

var teamJSON bool

var teamCmd = &cobra.Command{
	Use:   "team",
	Short: "Work with the team roster",
}

var teamListCmd = &cobra.Command{
	Use:   "list",
	Short: "List team members",
	RunE:  runTeamList,
}

func init() {
	teamListCmd.Flags().BoolVar(&teamJSON, "json", false, "output JSON")
	teamCmd.AddCommand(teamListCmd)
	rootCmd.AddCommand(teamCmd)
}

func runTeamList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	members, err := a.directory.ListMembers(cmd.Context())
	if err != nil {
		return err
	}
	a.warnDiagnostics()

	if teamJSON {
		return ui.WriteJSON(os.Stdout, members)
	}

	rows := make([][]string, 0, len(members))
	for _, m := range members {
		rows = append(rows, []string{
			ui.FormatID(m.IdentityID),
			m.DisplayName(),
			m.Email,
			string(m.Role),
			m.JobTitle,
			ui.YesNo(m.Active),
		})
	}
	return ui.WriteTable(os.Stdout, []string{"ID", "NAME", "EMAIL", "ROLE", "TITLE", "ACTIVE"}, rows)
}
