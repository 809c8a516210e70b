// Package route implements path prefix resolution of incoming requests
// to downstream services.
package route

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// Category classifies a route for rate limiting purposes.
type Category string

const (
	CategoryGeneral Category = "general"
	CategoryAuth    Category = "auth"
	CategoryUSSD    Category = "ussd"
)

// Rule maps a path prefix to a downstream service.
type Rule struct {
	PathPrefix   string
	Service      string
	RequiresAuth bool
	Category     Category
	Timeout      time.Duration
}

// Table resolves request paths against an immutable set of rules.
// Resolution picks the longest matching prefix.
type Table struct {
	rules []Rule
}

// NewTable builds a table from rules. Rules are matched longest prefix
// first regardless of their order in the slice.
func NewTable(rules []Rule) (*Table, error) {
	seen := make(map[string]bool, len(rules))
	sorted := make([]Rule, len(rules))
	copy(sorted, rules)

	for i, rule := range sorted {
		if rule.PathPrefix == "" {
			return nil, fmt.Errorf("rule %d: empty path prefix", i)
		}
		if !strings.HasPrefix(rule.PathPrefix, "/") {
			return nil, fmt.Errorf("rule %d: path prefix %q must start with /", i, rule.PathPrefix)
		}
		if rule.Service == "" {
			return nil, fmt.Errorf("rule %d: empty service", i)
		}
		if seen[rule.PathPrefix] {
			return nil, fmt.Errorf("rule %d: duplicate path prefix %q", i, rule.PathPrefix)
		}
		seen[rule.PathPrefix] = true

		if sorted[i].Category == "" {
			sorted[i].Category = CategoryGeneral
		}
		if sorted[i].Timeout == 0 {
			sorted[i].Timeout = 30 * time.Second
		}
	}

	sort.SliceStable(sorted, func(i, j int) bool {
		return len(sorted[i].PathPrefix) > len(sorted[j].PathPrefix)
	})

	return &Table{rules: sorted}, nil
}

// Resolve returns the rule with the longest prefix matching path, or
// false when no rule matches.
func (t *Table) Resolve(path string) (*Rule, bool) {
	for i := range t.rules {
		if strings.HasPrefix(path, t.rules[i].PathPrefix) {
			return &t.rules[i], true
		}
	}
	return nil, false
}

// Rules returns the rules in match order.
func (t *Table) Rules() []Rule {
	out := make([]Rule, len(t.rules))
	copy(out, t.rules)
	return out
}

// Store holds the active table and allows atomic replacement on
// configuration reload. In-flight requests keep the table they resolved
// against.
type Store struct {
	mu    sync.RWMutex
	table *Table
}

// NewStore creates a store with an initial table.
func NewStore(table *Table) *Store {
	return &Store{table: table}
}

// Current returns the active table.
func (s *Store) Current() *Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.table
}

// Swap replaces the active table.
func (s *Store) Swap(table *Table) {
	s.mu.Lock()
	s.table = table
	s.mu.Unlock()
}
