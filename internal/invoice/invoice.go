// Package invoice lists invoices from the accounting API.
package invoice

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"

	"github.com/shopspring/decimal"
)

// Amount is a monetary amount with its currency code.
type Amount struct {
	Value decimal.Decimal `json:"amount"`
	Code  string          `json:"code"`
}

// Invoice is one invoice as reported by the accounting API.
type Invoice struct {
	ID            int64  `json:"id"`
	InvoiceNumber string `json:"invoice_number"`
	Status        int    `json:"v3_status_id"`
	V3Status      string `json:"v3_status"`
	CustomerName  string `json:"organization"`
	CreateDate    string `json:"create_date"`
	DueDate       string `json:"due_date"`
	Amount        Amount `json:"amount"`
	Outstanding   Amount `json:"outstanding"`
	Paid          Amount `json:"paid"`
	CurrencyCode  string `json:"currency_code"`
	DatePaid      string `json:"date_paid"`
}

// StatusName renders the invoice status for display. The API sometimes
// reports the string form, sometimes only the numeric id.
func (inv Invoice) StatusName() string {
	if inv.V3Status != "" {
		return inv.V3Status
	}
	names := map[int]string{
		0: "disputed",
		1: "draft",
		2: "sent",
		3: "viewed",
		4: "paid",
		5: "auto-paid",
		6: "retry",
		7: "failed",
		8: "partial",
	}
	if name, ok := names[inv.Status]; ok {
		return name
	}
	return fmt.Sprintf("unknown (%d)", inv.Status)
}

// Filter narrows an invoice listing.
type Filter struct {
	// Status filters on v3_status (draft, sent, viewed, paid, ...).
	Status string
}

// Requester is the slice of the API client the service needs.
type Requester interface {
	Get(ctx context.Context, rawURL string, query url.Values, out any) error
	AccountingURL(ctx context.Context, path string) (string, error)
}

// Service lists invoices.
type Service struct {
	client Requester
	logger *slog.Logger
}

const invoicePageSize = 100

// NewService creates an invoice service backed by the given client.
func NewService(client Requester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

// List fetches all invoices matching the filter, following pagination.
func (s *Service) List(ctx context.Context, filter Filter) ([]Invoice, error) {
	invoicesURL, err := s.client.AccountingURL(ctx, "invoices/invoices")
	if err != nil {
		return nil, fmt.Errorf("listing invoices: %w", err)
	}

	var invoices []Invoice
	for page := 1; ; page++ {
		query := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(invoicePageSize)},
		}
		if filter.Status != "" {
			query.Set("search[v3_status]", filter.Status)
		}

		var out struct {
			Response struct {
				Result struct {
					Invoices []Invoice `json:"invoices"`
					Page     int       `json:"page"`
					Pages    int       `json:"pages"`
					Total    int       `json:"total"`
				} `json:"result"`
			} `json:"response"`
		}
		if err := s.client.Get(ctx, invoicesURL, query, &out); err != nil {
			return nil, fmt.Errorf("listing invoices page %d: %w", page, err)
		}

		invoices = append(invoices, out.Response.Result.Invoices...)
		if len(out.Response.Result.Invoices) == 0 || out.Response.Result.Page >= out.Response.Result.Pages {
			break
		}
	}

	s.logger.Debug("invoices fetched", "count", len(invoices))
	return invoices, nil
}

// Get returns the invoice with the given invoice number.
func (s *Service) Get(ctx context.Context, number string) (Invoice, bool, error) {
	invoicesURL, err := s.client.AccountingURL(ctx, "invoices/invoices")
	if err != nil {
		return Invoice{}, false, fmt.Errorf("fetching invoice %s: %w", number, err)
	}

	query := url.Values{"search[invoice_number]": {number}}
	var out struct {
		Response struct {
			Result struct {
				Invoices []Invoice `json:"invoices"`
			} `json:"result"`
		} `json:"response"`
	}
	if err := s.client.Get(ctx, invoicesURL, query, &out); err != nil {
		return Invoice{}, false, fmt.Errorf("fetching invoice %s: %w", number, err)
	}
	if len(out.Response.Result.Invoices) == 0 {
		return Invoice{}, false, nil
	}
	return out.Response.Result.Invoices[0], true, nil
}
