package rates

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// OverrideEntry is one row of the user-maintained rate table. It is the only
// source of cost rates; the billable rate, when set, overrides whatever the
// upstream reports.
type OverrideEntry struct {
	Name     string
	Billable *decimal.Decimal
	Cost     *decimal.Decimal
}

func (e OverrideEntry) empty() bool {
	return e.Billable == nil && e.Cost == nil
}

// Overrides is the loaded override table. Immutable after load; safe to
// share without locking.
type Overrides struct {
	byID    map[int64]OverrideEntry
	byEmail map[string]OverrideEntry

	defaultBillable *decimal.Decimal
	defaultCost     *decimal.Decimal

	// fromMembers marks identities defined in the members block, which
	// shadow flat id-keyed entries entirely.
	fromMembers map[int64]bool

	malformed int
}

// overridesFile mirrors the on-disk YAML. Rate values are held as raw nodes
// so a single unparseable rate skips that entry instead of failing the file.
type overridesFile struct {
	DefaultCostRate     yaml.Node                 `yaml:"default_cost_rate"`
	DefaultBillableRate yaml.Node                 `yaml:"default_billable_rate"`
	CostRates           map[string]yaml.Node      `yaml:"cost_rates"`
	BillableRates       map[string]yaml.Node      `yaml:"billable_rates"`
	Members             map[string]memberOverride `yaml:"members"`
}

type memberOverride struct {
	Name         string    `yaml:"name"`
	CostRate     yaml.Node `yaml:"cost_rate"`
	BillableRate yaml.Node `yaml:"billable_rate"`
}

// NewOverrides returns an empty table.
func NewOverrides() *Overrides {
	return &Overrides{
		byID:        map[int64]OverrideEntry{},
		byEmail:     map[string]OverrideEntry{},
		fromMembers: map[int64]bool{},
	}
}

// LoadOverrides parses the override table. A malformed file degrades to an
// empty table with a warning; malformed individual rates are skipped and
// counted. It never fails the process.
func LoadOverrides(data []byte, logger *slog.Logger) *Overrides {
	if logger == nil {
		logger = slog.Default()
	}
	o := NewOverrides()
	if len(data) == 0 {
		return o
	}

	var raw overridesFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		logger.Warn("rate override file is malformed, ignoring overrides", "error", err)
		o.malformed++
		return o
	}

	o.defaultCost = o.parseRate(raw.DefaultCostRate, "default_cost_rate", logger)
	o.defaultBillable = o.parseRate(raw.DefaultBillableRate, "default_billable_rate", logger)

	// members (keyed by identity id) first; id-keyed flat entries for the
	// same identity are shadowed, matching the lookup precedence.
	for key, m := range raw.Members {
		id, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			logger.Warn("skipping override with non-numeric member key", "key", key)
			o.malformed++
			continue
		}
		entry := OverrideEntry{
			Name:     m.Name,
			Cost:     o.parseRate(m.CostRate, key, logger),
			Billable: o.parseRate(m.BillableRate, key, logger),
		}
		if entry.empty() {
			continue
		}
		o.byID[id] = entry
		o.fromMembers[id] = true
	}

	o.mergeFlat(raw.CostRates, logger, func(e *OverrideEntry, rate *decimal.Decimal) {
		if e.Cost == nil {
			e.Cost = rate
		}
	})
	o.mergeFlat(raw.BillableRates, logger, func(e *OverrideEntry, rate *decimal.Decimal) {
		if e.Billable == nil {
			e.Billable = rate
		}
	})

	return o
}

// mergeFlat folds one of the flat key→rate maps in. Numeric keys address
// identities, everything else is an email.
func (o *Overrides) mergeFlat(m map[string]yaml.Node, logger *slog.Logger, set func(*OverrideEntry, *decimal.Decimal)) {
	for key, node := range m {
		rate := o.parseRate(node, key, logger)
		if rate == nil {
			continue
		}
		if id, err := strconv.ParseInt(key, 10, 64); err == nil {
			if o.fromMembers[id] {
				// A members entry for this identity wins outright.
				continue
			}
			entry := o.byID[id]
			set(&entry, rate)
			o.byID[id] = entry
			continue
		}
		email := strings.ToLower(key)
		entry := o.byEmail[email]
		set(&entry, rate)
		o.byEmail[email] = entry
	}
}

func (o *Overrides) parseRate(node yaml.Node, key string, logger *slog.Logger) *decimal.Decimal {
	if node.IsZero() {
		return nil
	}
	var s string
	if err := node.Decode(&s); err != nil {
		logger.Warn("skipping unparseable rate value", "key", key)
		o.malformed++
		return nil
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		logger.Warn("skipping unparseable rate value", "key", key, "value", s)
		o.malformed++
		return nil
	}
	return &d
}

// LookupByID returns the identity-keyed entry, if any. This is the purely
// local lookup the resolver runs before touching the network.
func (o *Overrides) LookupByID(id int64) (OverrideEntry, bool) {
	e, ok := o.byID[id]
	return e, ok
}

// Lookup resolves an entry for an identity, preferring the identity-keyed
// entry over the email-keyed one. conflict reports that both existed and
// disagreed on a value they both set; the id entry still wins — this is
// deterministic, never file-order dependent.
func (o *Overrides) Lookup(id int64, email string) (entry OverrideEntry, found, conflict bool) {
	idEntry, byID := o.byID[id]
	var emailEntry OverrideEntry
	var byEmail bool
	if email != "" {
		emailEntry, byEmail = o.byEmail[strings.ToLower(email)]
	}

	switch {
	case byID && byEmail:
		return idEntry, true, entriesDisagree(idEntry, emailEntry)
	case byID:
		return idEntry, true, false
	case byEmail:
		return emailEntry, true, false
	default:
		return OverrideEntry{}, false, false
	}
}

func entriesDisagree(a, b OverrideEntry) bool {
	return ratesDisagree(a.Billable, b.Billable) || ratesDisagree(a.Cost, b.Cost)
}

func ratesDisagree(a, b *decimal.Decimal) bool {
	return a != nil && b != nil && !a.Equal(*b)
}

// DefaultBillable returns the configured fallback billable rate, if any.
func (o *Overrides) DefaultBillable() *decimal.Decimal {
	return o.defaultBillable
}

// DefaultCost returns the configured fallback cost rate, if any.
func (o *Overrides) DefaultCost() *decimal.Decimal {
	return o.defaultCost
}

// MalformedEntries reports how many values were skipped during load.
func (o *Overrides) MalformedEntries() int {
	return o.malformed
}
