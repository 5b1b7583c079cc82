package chatman

import "testing"

func TestMatch(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		// Empty pattern matches everything.
		{"", "", true},
		{"", "alice", true},

		// Literal patterns.
		{"alice", "alice", true},
		{"alice", "alicia", false},
		{"alice", "alic", false},
		{"alice", "", false},

		// Bare star.
		{"*", "", true},
		{"*", "alice", true},

		// Prefix, suffix, infix.
		{"al*", "alice", true},
		{"al*", "albert", true},
		{"al*", "bob", false},
		{"*ce", "alice", true},
		{"*ce", "alicer", false},
		{"a*e", "alice", true},
		{"a*e", "apple", true},
		{"a*e", "abc", false},

		// Multiple stars.
		{"a*b*c", "abc", true},
		{"a*b*c", "axxbxxc", true},
		{"a*b*c", "acb", false},
		{"**", "anything", true},

		// Backtracking: the first star candidate fails, a later one works.
		{"*ab", "aab", true},
		{"a*ab", "aaab", true},
		{"*aab", "aaab", true},

		// Star matches the empty string.
		{"ab*", "ab", true},
		{"a*b", "ab", true},
	}

	for _, tt := range tests {
		if got := Match(tt.pattern, tt.name); got != tt.want {
			t.Errorf("Match(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}
