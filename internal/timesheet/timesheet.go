// Package timesheet fetches time entries and aggregates them into
// per-teammate summaries with billable, cost, and margin figures.
package timesheet

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/alecgard/tally/internal/rates"
	"github.com/shopspring/decimal"
)

// Entry is one logged time entry.
type Entry struct {
	ID         int64     `json:"id"`
	IdentityID int64     `json:"identity_id"`
	Duration   int64     `json:"duration"`
	StartedAt  time.Time `json:"started_at"`
	Note       string    `json:"note"`
	Billable   bool      `json:"billable"`
	Billed     bool      `json:"billed"`
	ClientID   int64     `json:"client_id"`
	ProjectID  int64     `json:"project_id"`
	Internal   bool      `json:"internal"`
}

// Filter narrows a time entry listing. Zero fields are omitted from the
// request.
type Filter struct {
	From         time.Time
	To           time.Time
	IdentityID   int64
	BillableOnly bool
}

// Requester is the slice of the API client the service needs.
type Requester interface {
	Get(ctx context.Context, rawURL string, query url.Values, out any) error
	TimetrackingURL(ctx context.Context, path string) (string, error)
}

// RateSource resolves billable and cost rates per identity.
type RateSource interface {
	Resolve(ctx context.Context, id int64) (rates.ResolvedRate, error)
}

// Service lists and summarizes time entries.
type Service struct {
	client Requester
	logger *slog.Logger
}

const entryPageSize = 100

// NewService creates a timesheet service backed by the given client.
func NewService(client Requester, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{client: client, logger: logger}
}

const timeParamLayout = "2006-01-02T15:04:05"

// List fetches all time entries matching the filter, following pagination
// until the reported total is reached.
func (s *Service) List(ctx context.Context, filter Filter) ([]Entry, error) {
	entriesURL, err := s.client.TimetrackingURL(ctx, "time_entries")
	if err != nil {
		return nil, fmt.Errorf("listing time entries: %w", err)
	}

	var entries []Entry
	for page := 1; ; page++ {
		query := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(entryPageSize)},
			"team":     {"true"},
		}
		if !filter.From.IsZero() {
			query.Set("started_from", filter.From.Format(timeParamLayout))
		}
		if !filter.To.IsZero() {
			query.Set("started_to", filter.To.Format(timeParamLayout))
		}
		if filter.IdentityID != 0 {
			query.Set("identity_id", strconv.FormatInt(filter.IdentityID, 10))
		}
		if filter.BillableOnly {
			query.Set("billable", "true")
		}

		var out struct {
			TimeEntries []Entry `json:"time_entries"`
			Meta        struct {
				Total   int `json:"total"`
				Page    int `json:"page"`
				PerPage int `json:"per_page"`
			} `json:"meta"`
		}
		if err := s.client.Get(ctx, entriesURL, query, &out); err != nil {
			return nil, fmt.Errorf("listing time entries page %d: %w", page, err)
		}

		entries = append(entries, out.TimeEntries...)
		if len(out.TimeEntries) == 0 || len(entries) >= out.Meta.Total {
			break
		}
	}

	s.logger.Debug("time entries fetched", "count", len(entries))
	return entries, nil
}

// TeammateSummary aggregates one identity's entries over the listed period.
// Amounts are nil when the corresponding rate could not be resolved.
type TeammateSummary struct {
	IdentityID     int64
	Entries        int
	Seconds        int64
	BillableAmount *decimal.Decimal
	CostAmount     *decimal.Decimal
	Margin         *decimal.Decimal
	BillableSource rates.BillableSource
	CostSource     rates.CostSource
}

// Summarize groups entries by identity and prices them with the resolver.
// Results are sorted by identity id for stable output.
func Summarize(ctx context.Context, entries []Entry, resolver RateSource) ([]TeammateSummary, error) {
	byIdentity := map[int64]*TeammateSummary{}
	for _, e := range entries {
		sum, ok := byIdentity[e.IdentityID]
		if !ok {
			sum = &TeammateSummary{IdentityID: e.IdentityID}
			byIdentity[e.IdentityID] = sum
		}
		sum.Entries++
		sum.Seconds += e.Duration
	}

	summaries := make([]TeammateSummary, 0, len(byIdentity))
	for id, sum := range byIdentity {
		rr, err := resolver.Resolve(ctx, id)
		if err != nil {
			return nil, fmt.Errorf("pricing entries for identity %d: %w", id, err)
		}
		hours := decimal.NewFromInt(sum.Seconds).Div(decimal.NewFromInt(3600))
		if rr.Billable != nil {
			amount := rr.Billable.Mul(hours).Round(2)
			sum.BillableAmount = &amount
		}
		if rr.Cost != nil {
			amount := rr.Cost.Mul(hours).Round(2)
			sum.CostAmount = &amount
		}
		if sum.BillableAmount != nil && sum.CostAmount != nil {
			margin := sum.BillableAmount.Sub(*sum.CostAmount)
			sum.Margin = &margin
		}
		sum.BillableSource = rr.BillableSource
		sum.CostSource = rr.CostSource
		summaries = append(summaries, *sum)
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].IdentityID < summaries[j].IdentityID
	})
	return summaries, nil
}
