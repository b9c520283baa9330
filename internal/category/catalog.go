// Package category holds the expense category catalog: the set of
// recognized main categories and the subcategories valid under each.
package category

import "sort"

// Catalog provides lookup over category/subcategory pairings.
type Catalog struct {
	subs map[string][]string
}

// Default returns the built-in catalog.
func Default() *Catalog {
	return New(map[string][]string{
		"Food":           {"Breakfast", "Lunch", "Dinner", "Snacks"},
		"Transportation": {"Bus", "Train", "Flight", "Ship", "Bike", "Cabs"},
		"Utilities":      {"Electricity", "Internet"},
		"Health":         {"Medicine", "Hospital"},
		"Entertainment":  {"Theatre", "Concerts", "Subscriptions"},
		"Others":         {"Gifts", "Bank Charges", "Insurance"},
	})
}

// New creates a Catalog from a category -> subcategories map.
func New(subs map[string][]string) *Catalog {
	copied := make(map[string][]string, len(subs))
	for cat, list := range subs {
		copied[cat] = append([]string(nil), list...)
	}
	return &Catalog{subs: copied}
}

// Categories returns all main categories, sorted.
func (c *Catalog) Categories() []string {
	cats := make([]string, 0, len(c.subs))
	for cat := range c.subs {
		cats = append(cats, cat)
	}
	sort.Strings(cats)
	return cats
}

// Subcategories returns the subcategories of a main category.
func (c *Catalog) Subcategories(category string) []string {
	return append([]string(nil), c.subs[category]...)
}

// Valid reports whether the subcategory is recognized under the category.
func (c *Catalog) Valid(category, subcategory string) bool {
	for _, sub := range c.subs[category] {
		if sub == subcategory {
			return true
		}
	}
	return false
}
