package help

import (
	"fmt"
	"strings"
	"testing"

	"github.com/thomasrohde/chrono/pkg/stdlib"
)

func TestQuickref(t *testing.T) {
	if !strings.Contains(QUICKREF, Version) {
		t.Errorf("quick reference does not carry version %s", Version)
	}
	for _, want := range append([]string{"peer ? expr", "chrono trace"}, TopicList...) {
		if !strings.Contains(QUICKREF, want) {
			t.Errorf("quick reference does not mention %q", want)
		}
	}
}

func TestTopics(t *testing.T) {
	if len(Topics) != len(TopicList) {
		t.Errorf("%d topics, %d listed", len(Topics), len(TopicList))
	}
	for _, name := range TopicList {
		text, ok := Topics[name]
		if !ok {
			t.Errorf("listed topic %q has no text", name)
			continue
		}
		if strings.TrimSpace(text) == "" {
			t.Errorf("topic %q is empty", name)
		}
	}
}

func TestMatchTopic(t *testing.T) {
	tests := []struct {
		query string
		want  string
		err   string
	}{
		{query: "remote", want: "remote"},
		{query: "diag", want: "diagnostics"},
		{query: "ex", want: "examples"},
		{query: "ti", want: "timers"},
		{query: "t", err: "ambiguous"},
		{query: "s", err: "ambiguous"},
		{query: "", err: "unknown"},
		{query: "nonexistent", err: "unknown"},
		{query: "Syntax", err: "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			name, text, err := MatchTopic(tt.query)
			if tt.err != "" {
				if err == nil || !strings.Contains(err.Error(), tt.err) {
					t.Fatalf("MatchTopic(%q) error = %v, want %q", tt.query, err, tt.err)
				}
				return
			}
			if err != nil {
				t.Fatalf("MatchTopic(%q): %v", tt.query, err)
			}
			if name != tt.want || text != Topics[tt.want] {
				t.Errorf("MatchTopic(%q) = %q, want %q", tt.query, name, tt.want)
			}
		})
	}
}

func TestStdlibIndex(t *testing.T) {
	reg := stdlib.NewRegistry()
	stdlib.RegisterDefaults(reg)

	idx := StdlibIndex()
	if want := fmt.Sprintf("Total: %d functions", len(reg.Names())); !strings.Contains(idx, want) {
		t.Errorf("index should report %q, got:\n%s", want, idx)
	}
	for _, name := range []string{"fromJSON", "Sys.time", "is.future", "resolved", "window"} {
		if !strings.Contains(idx, name) {
			t.Errorf("index is missing %s", name)
		}
	}
	if strings.Contains(idx, "Other:") {
		t.Errorf("ungrouped functions in index:\n%s", idx)
	}
}
