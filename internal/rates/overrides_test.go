package rates

import (
	"testing"

	"github.com/shopspring/decimal"
)

func mustDecimal(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("parsing decimal %q: %v", s, err)
	}
	return d
}

func TestLoadOverridesFullFile(t *testing.T) {
	data := []byte(`
default_billable_rate: 150
default_cost_rate: "95.50"

billable_rates:
  ada@example.com: 175
  "42": 160

cost_rates:
  ada@example.com: 110
  "42": 100.25

members:
  "7":
    name: Grace Hopper
    billable_rate: 200
    cost_rate: 120
`)
	o := LoadOverrides(data, nil)

	if got := o.MalformedEntries(); got != 0 {
		t.Fatalf("MalformedEntries() = %d, want 0", got)
	}
	if o.DefaultBillable() == nil || !o.DefaultBillable().Equal(mustDecimal(t, "150")) {
		t.Errorf("DefaultBillable() = %v, want 150", o.DefaultBillable())
	}
	if o.DefaultCost() == nil || !o.DefaultCost().Equal(mustDecimal(t, "95.50")) {
		t.Errorf("DefaultCost() = %v, want 95.50", o.DefaultCost())
	}

	entry, ok := o.LookupByID(7)
	if !ok {
		t.Fatal("LookupByID(7) not found")
	}
	if entry.Name != "Grace Hopper" {
		t.Errorf("Name = %q", entry.Name)
	}
	if entry.Billable == nil || !entry.Billable.Equal(mustDecimal(t, "200")) {
		t.Errorf("Billable = %v, want 200", entry.Billable)
	}

	entry, ok = o.LookupByID(42)
	if !ok {
		t.Fatal("LookupByID(42) not found")
	}
	if entry.Billable == nil || !entry.Billable.Equal(mustDecimal(t, "160")) {
		t.Errorf("Billable = %v, want 160", entry.Billable)
	}
	if entry.Cost == nil || !entry.Cost.Equal(mustDecimal(t, "100.25")) {
		t.Errorf("Cost = %v, want 100.25", entry.Cost)
	}

	entry, found, _ := o.Lookup(999, "ADA@example.com")
	if !found {
		t.Fatal("Lookup by email not found")
	}
	if entry.Billable == nil || !entry.Billable.Equal(mustDecimal(t, "175")) {
		t.Errorf("email Billable = %v, want 175", entry.Billable)
	}
	if entry.Cost == nil || !entry.Cost.Equal(mustDecimal(t, "110")) {
		t.Errorf("email Cost = %v, want 110", entry.Cost)
	}
}

func TestLoadOverridesSkipsMalformedValues(t *testing.T) {
	data := []byte(`
default_cost_rate: ninety
billable_rates:
  ada@example.com: 175
  grace@example.com: "not a number"
cost_rates:
  ada@example.com: [1, 2]
`)
	o := LoadOverrides(data, nil)

	if got := o.MalformedEntries(); got != 3 {
		t.Errorf("MalformedEntries() = %d, want 3", got)
	}
	if o.DefaultCost() != nil {
		t.Errorf("DefaultCost() = %v, want nil", o.DefaultCost())
	}

	// The well-formed value on the same file still loads.
	entry, found, _ := o.Lookup(0, "ada@example.com")
	if !found || entry.Billable == nil || !entry.Billable.Equal(mustDecimal(t, "175")) {
		t.Errorf("Lookup(ada) = %+v, %v", entry, found)
	}
	if entry.Cost != nil {
		t.Errorf("Cost = %v, want nil (malformed value skipped)", entry.Cost)
	}
}

func TestLoadOverridesUnparseableFileDegrades(t *testing.T) {
	o := LoadOverrides([]byte("{{{ not yaml"), nil)

	if got := o.MalformedEntries(); got == 0 {
		t.Error("MalformedEntries() = 0, want > 0")
	}
	if _, found, _ := o.Lookup(1, "anyone@example.com"); found {
		t.Error("Lookup should find nothing in a degraded table")
	}
}

func TestLoadOverridesEmptyInput(t *testing.T) {
	for _, data := range [][]byte{nil, []byte(""), []byte("\n")} {
		o := LoadOverrides(data, nil)
		if got := o.MalformedEntries(); got != 0 {
			t.Errorf("MalformedEntries() = %d, want 0", got)
		}
	}
}

func TestLookupPrefersIDOverEmail(t *testing.T) {
	data := []byte(`
billable_rates:
  "42": 50
  ada@example.com: 80
`)
	o := LoadOverrides(data, nil)

	entry, found, conflict := o.Lookup(42, "ada@example.com")
	if !found {
		t.Fatal("Lookup not found")
	}
	if !conflict {
		t.Error("conflict = false, want true (both keys set different billable rates)")
	}
	if entry.Billable == nil || !entry.Billable.Equal(mustDecimal(t, "50")) {
		t.Errorf("Billable = %v, want the id-keyed 50", entry.Billable)
	}
}

func TestLookupAgreeingEntriesNoConflict(t *testing.T) {
	data := []byte(`
billable_rates:
  "42": 50
  ada@example.com: 50
cost_rates:
  ada@example.com: 30
`)
	o := LoadOverrides(data, nil)

	entry, found, conflict := o.Lookup(42, "ada@example.com")
	if !found {
		t.Fatal("Lookup not found")
	}
	if conflict {
		t.Error("conflict = true, want false (values agree where both are set)")
	}
	// The id entry wins even for fields it does not set.
	if entry.Cost != nil {
		t.Errorf("Cost = %v, want nil (id entry has no cost)", entry.Cost)
	}
}

func TestMembersBlockShadowsFlatIDEntries(t *testing.T) {
	data := []byte(`
members:
  "7":
    billable_rate: 200
billable_rates:
  "7": 999
cost_rates:
  "7": 120
`)
	o := LoadOverrides(data, nil)

	entry, ok := o.LookupByID(7)
	if !ok {
		t.Fatal("LookupByID(7) not found")
	}
	if entry.Billable == nil || !entry.Billable.Equal(mustDecimal(t, "200")) {
		t.Errorf("Billable = %v, want the members value 200", entry.Billable)
	}
	if entry.Cost != nil {
		t.Errorf("Cost = %v, want nil (flat entries do not extend a members entry)", entry.Cost)
	}
}
