package category

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDefault_Valid(t *testing.T) {
	c := Default()

	tests := []struct {
		category, subcategory string
		want                  bool
	}{
		{"Food", "Lunch", true},
		{"Transportation", "Cabs", true},
		{"Others", "Bank Charges", true},
		{"Food", "Cabs", false},
		{"Unknown", "Lunch", false},
		{"Food", "", false},
		{"", "", false},
	}
	for _, tt := range tests {
		got := c.Valid(tt.category, tt.subcategory)
		assert.Equal(t, tt.want, got, "%s/%s", tt.category, tt.subcategory)
	}
}

func TestCategories_Sorted(t *testing.T) {
	c := Default()
	cats := c.Categories()
	assert.Equal(t, []string{"Entertainment", "Food", "Health", "Others", "Transportation", "Utilities"}, cats)
}

func TestNew_CopiesInput(t *testing.T) {
	subs := map[string][]string{"Food": {"Lunch"}}
	c := New(subs)
	subs["Food"][0] = "mutated"
	assert.True(t, c.Valid("Food", "Lunch"))
}

func TestSubcategories(t *testing.T) {
	c := Default()
	assert.Equal(t, []string{"Electricity", "Internet"}, c.Subcategories("Utilities"))
	assert.Empty(t, c.Subcategories("Unknown"))
}
