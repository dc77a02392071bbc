package rates

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/alecgard/tally/internal/team"
)

// fakeMembers is a counting MemberSource.
type fakeMembers struct {
	members map[int64]team.Member
	err     error
	calls   int32
	skipped int
}

func (f *fakeMembers) FindByIdentity(ctx context.Context, id int64) (team.Member, bool, error) {
	atomic.AddInt32(&f.calls, 1)
	if f.err != nil {
		return team.Member{}, false, f.err
	}
	m, ok := f.members[id]
	return m, ok, nil
}

func (f *fakeMembers) SkippedRecords() int {
	return f.skipped
}

func memberWithRate(t *testing.T, id int64, email, rate string) team.Member {
	t.Helper()
	m := team.Member{IdentityID: id, Email: email}
	if rate != "" {
		d := mustDecimal(t, rate)
		m.BillableRate = &d
	}
	return m
}

func TestResolvePriorityChain(t *testing.T) {
	overrides := LoadOverrides([]byte(`
default_billable_rate: 90
default_cost_rate: 60
billable_rates:
  ada@example.com: 175
cost_rates:
  ada@example.com: 110
`), nil)

	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
		2: memberWithRate(t, 2, "grace@example.com", "140"),
		3: memberWithRate(t, 3, "linus@example.com", ""),
	}}
	r := NewResolver(members, overrides, nil)

	tests := []struct {
		name           string
		id             int64
		wantBillable   string
		billableSource BillableSource
		wantCost       string
		costSource     CostSource
	}{
		{"override beats api rate", 1, "175", BillableOverride, "110", CostOverride},
		{"api rate beats default", 2, "140", BillableAPI, "60", CostDefault},
		{"default when nothing else", 3, "90", BillableDefault, "60", CostDefault},
		{"unknown identity still gets defaults", 99, "90", BillableDefault, "60", CostDefault},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, err := r.Resolve(context.Background(), tt.id)
			if err != nil {
				t.Fatalf("Resolve() error = %v", err)
			}
			if rr.BillableSource != tt.billableSource {
				t.Errorf("BillableSource = %q, want %q", rr.BillableSource, tt.billableSource)
			}
			if rr.Billable == nil || !rr.Billable.Equal(mustDecimal(t, tt.wantBillable)) {
				t.Errorf("Billable = %v, want %s", rr.Billable, tt.wantBillable)
			}
			if rr.CostSource != tt.costSource {
				t.Errorf("CostSource = %q, want %q", rr.CostSource, tt.costSource)
			}
			if rr.Cost == nil || !rr.Cost.Equal(mustDecimal(t, tt.wantCost)) {
				t.Errorf("Cost = %v, want %s", rr.Cost, tt.wantCost)
			}
		})
	}
}

func TestResolveNoSources(t *testing.T) {
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", ""),
	}}
	r := NewResolver(members, NewOverrides(), nil)

	rr, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rr.Billable != nil || rr.BillableSource != BillableNone {
		t.Errorf("billable = %v/%q, want nil/none", rr.Billable, rr.BillableSource)
	}
	if rr.Cost != nil || rr.CostSource != CostNone {
		t.Errorf("cost = %v/%q, want nil/none", rr.Cost, rr.CostSource)
	}
}

func TestCostSourceNeverAPI(t *testing.T) {
	overrides := LoadOverrides([]byte(`
default_cost_rate: 60
cost_rates:
  ada@example.com: 110
`), nil)
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
		2: memberWithRate(t, 2, "grace@example.com", "140"),
	}}
	r := NewResolver(members, overrides, nil)

	for _, id := range []int64{1, 2, 99} {
		rr, err := r.Resolve(context.Background(), id)
		if err != nil {
			t.Fatalf("Resolve(%d) error = %v", id, err)
		}
		if string(rr.CostSource) == "api" {
			t.Errorf("Resolve(%d) CostSource = api; cost rates must never come from the upstream", id)
		}
	}
}

func TestFullIDOverrideSkipsDirectory(t *testing.T) {
	overrides := LoadOverrides([]byte(`
members:
  "1":
    billable_rate: 200
    cost_rate: 120
`), nil)
	members := &fakeMembers{}
	r := NewResolver(members, overrides, nil)

	rr, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rr.BillableSource != BillableOverride || rr.CostSource != CostOverride {
		t.Errorf("sources = %q/%q, want override/override", rr.BillableSource, rr.CostSource)
	}
	if n := atomic.LoadInt32(&members.calls); n != 0 {
		t.Errorf("directory calls = %d, want 0 (complete local answer needs no network)", n)
	}
}

func TestResolveCachesResults(t *testing.T) {
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
	}}
	r := NewResolver(members, NewOverrides(), nil)

	for i := 0; i < 5; i++ {
		if _, err := r.Resolve(context.Background(), 1); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}
	if n := atomic.LoadInt32(&members.calls); n != 1 {
		t.Errorf("directory calls = %d, want 1", n)
	}
}

func TestConcurrentResolvesShareOneLookup(t *testing.T) {
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
	}}
	r := NewResolver(members, NewOverrides(), nil)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := r.Resolve(context.Background(), 1); err != nil {
				t.Errorf("Resolve() error = %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&members.calls); n != 1 {
		t.Errorf("directory calls = %d, want 1", n)
	}
}

func TestClearCacheForcesRecompute(t *testing.T) {
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
	}}
	r := NewResolver(members, NewOverrides(), nil)

	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	r.ClearCache()
	if _, err := r.Resolve(context.Background(), 1); err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if n := atomic.LoadInt32(&members.calls); n != 2 {
		t.Errorf("directory calls = %d, want 2 after ClearCache", n)
	}
}

func TestResolvePropagatesLookupError(t *testing.T) {
	members := &fakeMembers{err: fmt.Errorf("roster unavailable")}
	r := NewResolver(members, NewOverrides(), nil)

	if _, err := r.Resolve(context.Background(), 1); err == nil {
		t.Fatal("Resolve() error = nil, want roster error")
	}

	// Errors are not cached; a later call tries again.
	members.err = nil
	members.members = map[int64]team.Member{1: memberWithRate(t, 1, "ada@example.com", "125")}
	rr, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve() after recovery error = %v", err)
	}
	if rr.BillableSource != BillableAPI {
		t.Errorf("BillableSource = %q, want api", rr.BillableSource)
	}
}

func TestMalformedOverrideFallsThrough(t *testing.T) {
	overrides := LoadOverrides([]byte(`
billable_rates:
  ada@example.com: "not a number"
`), nil)
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
	}}
	r := NewResolver(members, overrides, nil)

	rr, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rr.BillableSource != BillableAPI {
		t.Errorf("BillableSource = %q, want api (skipped override must not shadow the upstream rate)", rr.BillableSource)
	}
	if rr.Billable == nil || !rr.Billable.Equal(mustDecimal(t, "125")) {
		t.Errorf("Billable = %v, want 125", rr.Billable)
	}
	if got := r.Diagnostics().MalformedOverrides; got != 1 {
		t.Errorf("MalformedOverrides = %d, want 1", got)
	}
}

func TestConflictCountedInDiagnostics(t *testing.T) {
	overrides := LoadOverrides([]byte(`
billable_rates:
  "1": 50
  ada@example.com: 80
`), nil)
	members := &fakeMembers{
		members: map[int64]team.Member{1: memberWithRate(t, 1, "ada@example.com", "")},
		skipped: 3,
	}
	r := NewResolver(members, overrides, nil)

	rr, err := r.Resolve(context.Background(), 1)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	if rr.Billable == nil || !rr.Billable.Equal(mustDecimal(t, "50")) {
		t.Errorf("Billable = %v, want the id-keyed 50", rr.Billable)
	}

	d := r.Diagnostics()
	if d.OverrideConflicts != 1 {
		t.Errorf("OverrideConflicts = %d, want 1", d.OverrideConflicts)
	}
	if d.SkippedTeamRecords != 3 {
		t.Errorf("SkippedTeamRecords = %d, want 3", d.SkippedTeamRecords)
	}
}

type captureMetrics struct {
	mu    sync.Mutex
	pairs []string
}

func (c *captureMetrics) IncRateResolution(billableSource, costSource string) {
	c.mu.Lock()
	c.pairs = append(c.pairs, billableSource+"/"+costSource)
	c.mu.Unlock()
}

func TestMetricsRecordedPerResolution(t *testing.T) {
	members := &fakeMembers{members: map[int64]team.Member{
		1: memberWithRate(t, 1, "ada@example.com", "125"),
	}}
	r := NewResolver(members, NewOverrides(), nil)
	rec := &captureMetrics{}
	r.SetMetrics(rec)

	// Cached repeats do not re-record.
	for i := 0; i < 3; i++ {
		if _, err := r.Resolve(context.Background(), 1); err != nil {
			t.Fatalf("Resolve() error = %v", err)
		}
	}

	if len(rec.pairs) != 1 || rec.pairs[0] != "api/none" {
		t.Errorf("recorded pairs = %v, want [api/none]", rec.pairs)
	}
}
