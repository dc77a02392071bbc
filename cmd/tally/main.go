package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/alecgard/tally/internal/api"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	verbose   bool
	showStats bool
)

var rootCmd = &cobra.Command{
	Use:           "tally",
	Short:         "Tally — FreshBooks from the command line",
	Long:          "Tally is a command-line client for FreshBooks that lists your team, time entries, and invoices, and prices logged time using billable and cost rates you control locally.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: tally.yaml in the config dir)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&showStats, "stats", false, "print request statistics on exit")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if errors.Is(err, api.ErrNotAuthenticated) {
			fmt.Fprintln(os.Stderr, "not logged in; run `tally auth login` first")
			os.Exit(1)
		}
		var expired *api.AuthExpiredError
		if errors.As(err, &expired) {
			fmt.Fprintln(os.Stderr, err)
			fmt.Fprintln(os.Stderr, "run `tally auth login` to start a new session")
			os.Exit(1)
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
