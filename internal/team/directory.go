package team

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/alecgard/tally/internal/api"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// Role classifies a team member.
type Role string

const (
	RoleOwner      Role = "owner"
	RoleStaff      Role = "staff"
	RoleContractor Role = "contractor"
)

// Member is one person on the team roster.
type Member struct {
	IdentityID int64
	UUID       string
	FirstName  string
	LastName   string
	Email      string
	JobTitle   string
	Role       Role
	Active     bool

	// BillableRate is the rate the upstream has on file, merged from the
	// team_member_rates endpoint. Not every member has one.
	BillableRate *decimal.Decimal
}

// DisplayName combines name parts, falling back to email.
func (m Member) DisplayName() string {
	name := strings.TrimSpace(strings.TrimSpace(m.FirstName) + " " + strings.TrimSpace(m.LastName))
	if name != "" {
		return name
	}
	if m.Email != "" {
		return m.Email
	}
	return fmt.Sprintf("Unknown (%d)", m.IdentityID)
}

// Requester is the slice of the API client the directory needs.
type Requester interface {
	Get(ctx context.Context, rawURL string, query url.Values, out any) error
	EnsureAccountInfo(ctx context.Context) (api.AccountInfo, error)
	AuthURL(path string) string
	TimetrackingURL(ctx context.Context, path string) (string, error)
}

// Directory fetches and caches the team roster. The roster is fetched at
// most once per Directory instance; concurrent first calls share a single
// fetch.
type Directory struct {
	client Requester
	logger *slog.Logger
	group  singleflight.Group

	mu      sync.RWMutex
	loaded  bool
	members []Member
	byID    map[int64]Member
	skipped int
}

const rosterPageSize = 100

// NewDirectory creates a directory backed by the given client.
func NewDirectory(client Requester, logger *slog.Logger) *Directory {
	if logger == nil {
		logger = slog.Default()
	}
	return &Directory{client: client, logger: logger}
}

// ListMembers returns the full roster, fetching it on first call.
func (d *Directory) ListMembers(ctx context.Context) ([]Member, error) {
	d.mu.RLock()
	if d.loaded {
		members := d.members
		d.mu.RUnlock()
		return members, nil
	}
	d.mu.RUnlock()

	_, err, _ := d.group.Do("roster", func() (any, error) {
		return nil, d.load(ctx)
	})
	if err != nil {
		return nil, err
	}

	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.members, nil
}

// FindByIdentity returns the member with the given identity id. O(1) once
// the roster is loaded.
func (d *Directory) FindByIdentity(ctx context.Context, id int64) (Member, bool, error) {
	if _, err := d.ListMembers(ctx); err != nil {
		return Member{}, false, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.byID[id]
	return m, ok, nil
}

// FindByName returns the first member whose display name or email contains
// the query, case-insensitively. Used by --teammate filters.
func (d *Directory) FindByName(ctx context.Context, query string) (Member, bool, error) {
	members, err := d.ListMembers(ctx)
	if err != nil {
		return Member{}, false, err
	}
	q := strings.ToLower(query)
	for _, m := range members {
		if strings.Contains(strings.ToLower(m.DisplayName()), q) ||
			strings.Contains(strings.ToLower(m.Email), q) {
			return m, true, nil
		}
	}
	return Member{}, false, nil
}

// SkippedRecords reports how many upstream records were dropped because
// they could not be parsed. Zero until the roster is loaded.
func (d *Directory) SkippedRecords() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.skipped
}

type memberRecord struct {
	IdentityID       *int64 `json:"identity_id"`
	UUID             string `json:"uuid"`
	FirstName        string `json:"first_name"`
	LastName         string `json:"last_name"`
	Email            string `json:"email"`
	JobTitle         string `json:"job_title"`
	BusinessRoleName string `json:"business_role_name"`
	Active           *bool  `json:"active"`
}

func (d *Directory) load(ctx context.Context) error {
	d.mu.RLock()
	loaded := d.loaded
	d.mu.RUnlock()
	if loaded {
		return nil
	}

	info, err := d.client.EnsureAccountInfo(ctx)
	if err != nil {
		return fmt.Errorf("loading team roster: %w", err)
	}

	rosterURL := d.client.AuthURL(fmt.Sprintf("businesses/%d/team_members", info.BusinessID))

	var members []Member
	skipped := 0
	for page := 1; ; page++ {
		query := url.Values{
			"page":     {strconv.Itoa(page)},
			"per_page": {strconv.Itoa(rosterPageSize)},
		}
		var out struct {
			TeamMembers []memberRecord `json:"team_members"`
		}
		if err := d.client.Get(ctx, rosterURL, query, &out); err != nil {
			return fmt.Errorf("loading team roster page %d: %w", page, err)
		}
		if len(out.TeamMembers) == 0 {
			break
		}
		for _, rec := range out.TeamMembers {
			m, ok := parseMember(rec)
			if !ok {
				skipped++
				d.logger.Warn("skipping malformed team member record", "uuid", rec.UUID, "email", rec.Email)
				continue
			}
			members = append(members, m)
		}
	}

	rates := d.fetchBillableRates(ctx)

	byID := make(map[int64]Member, len(members))
	for i := range members {
		if rate, ok := rates[members[i].IdentityID]; ok {
			members[i].BillableRate = rate
		}
		if _, dup := byID[members[i].IdentityID]; !dup {
			byID[members[i].IdentityID] = members[i]
		}
	}

	d.mu.Lock()
	d.members = members
	d.byID = byID
	d.skipped = skipped
	d.loaded = true
	d.mu.Unlock()

	d.logger.Debug("team roster loaded", "members", len(members), "skipped", skipped)
	return nil
}

// fetchBillableRates pulls the per-member rates endpoint. Rates are an
// enrichment; a failure here degrades to "no API rate on file" rather than
// failing the roster.
func (d *Directory) fetchBillableRates(ctx context.Context) map[int64]*decimal.Decimal {
	ratesURL, err := d.client.TimetrackingURL(ctx, "team_member_rates")
	if err != nil {
		d.logger.Warn("team member rates unavailable", "error", err)
		return nil
	}

	var out struct {
		TeamMemberRates []struct {
			IdentityID int64            `json:"identity_id"`
			Rate       *decimal.Decimal `json:"rate"`
		} `json:"team_member_rates"`
	}
	if err := d.client.Get(ctx, ratesURL, nil, &out); err != nil {
		d.logger.Warn("team member rates unavailable", "error", err)
		return nil
	}

	rates := make(map[int64]*decimal.Decimal, len(out.TeamMemberRates))
	for _, r := range out.TeamMemberRates {
		if r.IdentityID == 0 || r.Rate == nil || !r.Rate.IsPositive() {
			continue
		}
		rates[r.IdentityID] = r.Rate
	}
	return rates
}

func parseMember(rec memberRecord) (Member, bool) {
	// identity_id is the primary key everything else joins on; a record
	// without one is unusable.
	if rec.IdentityID == nil || *rec.IdentityID == 0 {
		return Member{}, false
	}
	active := true
	if rec.Active != nil {
		active = *rec.Active
	}
	return Member{
		IdentityID: *rec.IdentityID,
		UUID:       rec.UUID,
		FirstName:  rec.FirstName,
		LastName:   rec.LastName,
		Email:      rec.Email,
		JobTitle:   rec.JobTitle,
		Role:       parseRole(rec.BusinessRoleName),
		Active:     active,
	}, true
}

func parseRole(name string) Role {
	switch strings.ToLower(name) {
	case "owner":
		return RoleOwner
	case "contractor":
		return RoleContractor
	default:
		return RoleStaff
	}
}
