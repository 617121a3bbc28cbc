package filter

import (
	"testing"

	"github.com/scipunch/feedgram/feed"
)

func TestNew_InvalidPattern(t *testing.T) {
	_, err := New(Rules{ExcludePatterns: []string{"("}})
	if err == nil {
		t.Fatal("expected error for invalid regex")
	}
}

func TestShouldInclude_NoRules(t *testing.T) {
	f, err := New(Rules{})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	ok, reason := f.ShouldInclude(feed.Entry{Title: "anything"})
	if !ok {
		t.Errorf("entry excluded without rules: %s", reason)
	}
}

func TestShouldInclude_MinLength(t *testing.T) {
	f, err := New(Rules{MinLength: 20})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if ok, _ := f.ShouldInclude(feed.Entry{Title: "short"}); ok {
		t.Error("short entry passed min_length")
	}
	long := feed.Entry{Title: "a reasonably long title", Summary: "with a summary"}
	if ok, reason := f.ShouldInclude(long); !ok {
		t.Errorf("long entry excluded: %s", reason)
	}
}

func TestShouldInclude_ExcludePatterns(t *testing.T) {
	f, err := New(Rules{ExcludePatterns: []string{"(?i)sponsored", "crypto giveaway"}})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	cases := []struct {
		entry feed.Entry
		want  bool
	}{
		{feed.Entry{Title: "Sponsored: new gadget"}, false},
		{feed.Entry{Title: "News", Summary: "huge crypto giveaway inside"}, false},
		{feed.Entry{Title: "Regular article", Summary: "nothing to see"}, true},
	}
	for _, tc := range cases {
		got, reason := f.ShouldInclude(tc.entry)
		if got != tc.want {
			t.Errorf("ShouldInclude(%q) = %v (%s), want %v", tc.entry.Title, got, reason, tc.want)
		}
	}
}
