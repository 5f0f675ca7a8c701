package utils

import "testing"

func TestTruncateForLog(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		input  string
		limit  int
		expect string
	}{
		{name: "non-positive limit", input: "score: 0.8", limit: 0, expect: ""},
		{name: "fits", input: "score: 0.8", limit: 20, expect: "score: 0.8"},
		{name: "cut with ellipsis", input: "Strong CPV overlap", limit: 6, expect: "Strong..."},
		{name: "multiline response is flattened", input: "score: 0.7\n- Good fit\n\n- Local", limit: 100, expect: "score: 0.7 - Good fit - Local"},
		{name: "counts runes not bytes", input: "£1,200,000 tender", limit: 3, expect: "£1,..."},
		{name: "surrounding whitespace", input: "  spaced  ", limit: 5, expect: "space..."},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := TruncateForLog(tt.input, tt.limit); got != tt.expect {
				t.Fatalf("expected %q, got %q", tt.expect, got)
			}
		})
	}
}
