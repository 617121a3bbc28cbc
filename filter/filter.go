// Package filter drops unwanted feed entries before delivery.
package filter

import (
	"fmt"
	"regexp"

	"github.com/scipunch/feedgram/feed"
)

// Rules configures which entries are excluded from delivery.
type Rules struct {
	MinLength       int      `toml:"min_length"`       // minimum title+summary length (0 = no limit)
	ExcludePatterns []string `toml:"exclude_patterns"` // regexes matched against title+summary
}

// Filter applies compiled rules to entries.
type Filter struct {
	rules    Rules
	excludes []*regexp.Regexp
}

// New compiles the rules. Invalid regex patterns are reported up front so a
// misconfigured filter fails at startup, not silently per entry.
func New(rules Rules) (*Filter, error) {
	f := &Filter{
		rules:    rules,
		excludes: make([]*regexp.Regexp, 0, len(rules.ExcludePatterns)),
	}
	for _, pattern := range rules.ExcludePatterns {
		re, err := regexp.Compile(pattern)
		if err != nil {
			return nil, fmt.Errorf("invalid exclude pattern %q: %w", pattern, err)
		}
		f.excludes = append(f.excludes, re)
	}
	return f, nil
}

// ShouldInclude reports whether the entry passes all rules, with a short
// reason when it does not.
func (f *Filter) ShouldInclude(e feed.Entry) (bool, string) {
	text := e.Title + " " + e.Summary

	if f.rules.MinLength > 0 && len(text) < f.rules.MinLength {
		return false, "min_length"
	}
	for i, re := range f.excludes {
		if re.MatchString(text) {
			return false, "exclude_pattern[" + f.rules.ExcludePatterns[i] + "]"
		}
	}
	return true, ""
}
