package filter

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type listing struct {
	title     string
	easyApply bool
}

func (l listing) Title() string      { return l.title }
func (l listing) HasEasyApply() bool { return l.easyApply }

func TestIsEligible(t *testing.T) {
	tests := []struct {
		name      string
		listing   listing
		blacklist []string
		want      bool
	}{
		{"senior blacklisted", listing{"Senior Backend Engineer", true}, []string{"Senior"}, false},
		{"no easy apply", listing{"Backend Engineer", false}, nil, false},
		{"clean title", listing{"Backend Engineer", true}, []string{"Senior", "Lead"}, true},
		{"case insensitive", listing{"backend engineer (SENIOR)", true}, []string{"senior"}, false},
		{"term in middle", listing{"Go Werkstudent Berlin", true}, []string{"werkstudent"}, false},
		{"blank terms ignored", listing{"Backend Engineer", true}, []string{"", "  "}, true},
		{"empty blacklist", listing{"Anything", true}, nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsEligible(tt.listing, tt.blacklist))
		})
	}
}

func TestBlacklistedTerm_FirstMatchWins(t *testing.T) {
	term, hit := BlacklistedTerm("Senior Lead Engineer", []string{"Junior", "Lead", "Senior"})
	assert.True(t, hit)
	assert.Equal(t, "Lead", term)
}

// Any term embedded anywhere in a title, in any casing, disqualifies it.
func TestIsEligible_AnyPositionAnyCase(t *testing.T) {
	terms := []string{"senior", "Praktikum", "LEAD", "c++", "m/w/d"}
	wrappers := []func(string) string{
		func(s string) string { return s },
		func(s string) string { return s + " Engineer" },
		func(s string) string { return "Backend " + s },
		func(s string) string { return "Backend " + s + " Berlin" },
	}
	cases := []func(string) string{
		func(s string) string { return s },
		func(s string) string { return strings.ToUpper(s) },
		func(s string) string { return strings.ToLower(s) },
	}
	for _, term := range terms {
		for _, wrap := range wrappers {
			for _, c := range cases {
				title := wrap(c(term))
				assert.False(t, IsEligible(listing{title, true}, []string{"unrelated", term}), title)
			}
		}
	}
}
