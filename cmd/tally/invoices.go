package main

import (
	"fmt"
	"os"

	"github.com/alecgard/tally/internal/invoice"
	"github.com/alecgard/tally/internal/ui"
	"github.com/spf13/cobra"
)

var (
	invoiceStatus string
	invoiceJSON   bool
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Work with invoices",
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices",
	RunE:  runInvoicesList,
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <number>",
	Short: "Show one invoice by invoice number",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoicesShow,
}

func init() {
	invoicesListCmd.Flags().StringVar(&invoiceStatus, "status", "", "filter by status (draft, sent, viewed, paid, ...)")
	invoicesListCmd.Flags().BoolVar(&invoiceJSON, "json", false, "output JSON")
	invoicesShowCmd.Flags().BoolVar(&invoiceJSON, "json", false, "output JSON")
	invoicesCmd.AddCommand(invoicesListCmd, invoicesShowCmd)
	rootCmd.AddCommand(invoicesCmd)
}

func runInvoicesList(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	invoices, err := a.invoices.List(cmd.Context(), invoice.Filter{Status: invoiceStatus})
	if err != nil {
		return err
	}

	if invoiceJSON {
		return ui.WriteJSON(os.Stdout, invoices)
	}

	rows := make([][]string, 0, len(invoices))
	for _, inv := range invoices {
		rows = append(rows, []string{
			inv.InvoiceNumber,
			inv.CustomerName,
			inv.CreateDate,
			inv.DueDate,
			inv.StatusName(),
			inv.Amount.Value.StringFixed(2) + " " + inv.Amount.Code,
			inv.Outstanding.Value.StringFixed(2),
		})
	}
	return ui.WriteTable(os.Stdout,
		[]string{"NUMBER", "CUSTOMER", "DATE", "DUE", "STATUS", "AMOUNT", "OUTSTANDING"}, rows)
}

func runInvoicesShow(cmd *cobra.Command, args []string) error {
	a, err := newApp()
	if err != nil {
		return err
	}
	defer a.finish()

	inv, ok, err := a.invoices.Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no invoice with number %q", args[0])
	}

	if invoiceJSON {
		return ui.WriteJSON(os.Stdout, inv)
	}

	fmt.Printf("Invoice %s\n", inv.InvoiceNumber)
	fmt.Printf("  Customer:    %s\n", inv.CustomerName)
	fmt.Printf("  Status:      %s\n", inv.StatusName())
	fmt.Printf("  Created:     %s\n", inv.CreateDate)
	fmt.Printf("  Due:         %s\n", inv.DueDate)
	fmt.Printf("  Amount:      %s %s\n", inv.Amount.Value.StringFixed(2), inv.Amount.Code)
	fmt.Printf("  Paid:        %s\n", inv.Paid.Value.StringFixed(2))
	fmt.Printf("  Outstanding: %s\n", inv.Outstanding.Value.StringFixed(2))
	if inv.DatePaid != "" {
		fmt.Printf("  Date paid:   %s\n", inv.DatePaid)
	}
	return nil
}
