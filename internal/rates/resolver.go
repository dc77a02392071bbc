package rates

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"

	"github.com/alecgard/tally/internal/team"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/singleflight"
)

// BillableSource tags where a resolved billable rate came from.
type BillableSource string

const (
	BillableOverride BillableSource = "override"
	BillableAPI      BillableSource = "api"
	BillableDefault  BillableSource = "default"
	BillableNone     BillableSource = "none"
)

// CostSource tags where a resolved cost rate came from. It is a separate
// type from BillableSource and deliberately defines no API constant: the
// upstream never exposes cost rates, so an API-sourced cost rate cannot be
// constructed.
type CostSource string

const (
	CostOverride CostSource = "override"
	CostDefault  CostSource = "default"
	CostNone     CostSource = "none"
)

// ResolvedRate is the resolver's answer for one identity. A nil rate is a
// valid terminal state meaning "no rate on file", not an error.
type ResolvedRate struct {
	IdentityID     int64
	Billable       *decimal.Decimal
	Cost           *decimal.Decimal
	BillableSource BillableSource
	CostSource     CostSource
}

// MemberSource is the slice of the team directory the resolver needs.
type MemberSource interface {
	FindByIdentity(ctx context.Context, id int64) (team.Member, bool, error)
	SkippedRecords() int
}

// MetricsRecorder is an optional interface for recording resolution
// outcomes.
type MetricsRecorder interface {
	IncRateResolution(billableSource, costSource string)
}

// Diagnostics aggregates the per-record problems absorbed during loading
// and resolution, for the presentation layer to surface as warnings.
type Diagnostics struct {
	SkippedTeamRecords int
	MalformedOverrides int
	OverrideConflicts  int
}

// Resolver produces billable and cost rates for identities by walking a
// fixed source priority chain. Results are cached for the resolver's
// lifetime; repeated lookups for one identity cost nothing.
type Resolver struct {
	members   MemberSource
	overrides *Overrides
	logger    *slog.Logger
	metrics   MetricsRecorder
	group     singleflight.Group

	mu        sync.Mutex
	cache     map[int64]ResolvedRate
	conflicts int
}

// NewResolver creates a resolver over the given directory and override
// table.
func NewResolver(members MemberSource, overrides *Overrides, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	if overrides == nil {
		overrides = NewOverrides()
	}
	return &Resolver{
		members:   members,
		overrides: overrides,
		logger:    logger,
		cache:     map[int64]ResolvedRate{},
	}
}

// SetMetrics sets the optional metrics recorder.
func (r *Resolver) SetMetrics(m MetricsRecorder) {
	r.metrics = m
}

// Resolve returns the rates for an identity.
//
// Billable rate, first match wins: override (id key, then email key) →
// upstream API rate → configured default → none. Cost rate: override →
// configured default → none.
//
// Concurrent calls for the same uncached identity share one computation, so
// the team directory is fetched at most once.
func (r *Resolver) Resolve(ctx context.Context, id int64) (ResolvedRate, error) {
	r.mu.Lock()
	if rr, ok := r.cache[id]; ok {
		r.mu.Unlock()
		return rr, nil
	}
	r.mu.Unlock()

	v, err, _ := r.group.Do(strconv.FormatInt(id, 10), func() (any, error) {
		rr, err := r.resolve(ctx, id)
		if err != nil {
			return ResolvedRate{}, err
		}
		r.mu.Lock()
		r.cache[id] = rr
		r.mu.Unlock()
		if r.metrics != nil {
			r.metrics.IncRateResolution(string(rr.BillableSource), string(rr.CostSource))
		}
		return rr, nil
	})
	if err != nil {
		return ResolvedRate{}, err
	}
	return v.(ResolvedRate), nil
}

func (r *Resolver) resolve(ctx context.Context, id int64) (ResolvedRate, error) {
	rr := ResolvedRate{
		IdentityID:     id,
		BillableSource: BillableNone,
		CostSource:     CostNone,
	}

	// Local override lookup always runs before any network call. When the
	// id-keyed entry answers both rates the directory is never consulted.
	if entry, ok := r.overrides.LookupByID(id); ok && entry.Billable != nil && entry.Cost != nil {
		rr.Billable, rr.BillableSource = entry.Billable, BillableOverride
		rr.Cost, rr.CostSource = entry.Cost, CostOverride
		return rr, nil
	}

	member, found, err := r.members.FindByIdentity(ctx, id)
	if err != nil {
		return ResolvedRate{}, fmt.Errorf("resolving rates for identity %d: %w", id, err)
	}

	email := ""
	if found {
		email = member.Email
	}

	entry, hasOverride, conflict := r.overrides.Lookup(id, email)
	if conflict {
		r.mu.Lock()
		r.conflicts++
		r.mu.Unlock()
		r.logger.Warn("conflicting override entries for identity, id-keyed entry wins",
			"identity_id", id, "email", email)
	}

	switch {
	case hasOverride && entry.Billable != nil:
		rr.Billable, rr.BillableSource = entry.Billable, BillableOverride
	case found && member.BillableRate != nil:
		rr.Billable, rr.BillableSource = member.BillableRate, BillableAPI
	case r.overrides.DefaultBillable() != nil:
		rr.Billable, rr.BillableSource = r.overrides.DefaultBillable(), BillableDefault
	}

	switch {
	case hasOverride && entry.Cost != nil:
		rr.Cost, rr.CostSource = entry.Cost, CostOverride
	case r.overrides.DefaultCost() != nil:
		rr.Cost, rr.CostSource = r.overrides.DefaultCost(), CostDefault
	}

	return rr, nil
}

// ClearCache drops all cached resolutions. One-shot CLI runs never need
// this; long-running callers do after editing the override file.
func (r *Resolver) ClearCache() {
	r.mu.Lock()
	r.cache = map[int64]ResolvedRate{}
	r.mu.Unlock()
}

// Diagnostics reports the problems absorbed so far.
func (r *Resolver) Diagnostics() Diagnostics {
	r.mu.Lock()
	conflicts := r.conflicts
	r.mu.Unlock()
	return Diagnostics{
		SkippedTeamRecords: r.members.SkippedRecords(),
		MalformedOverrides: r.overrides.MalformedEntries(),
		OverrideConflicts:  conflicts,
	}
}
