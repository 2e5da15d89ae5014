package util

import "testing"

func TestHideSecret(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"ab", "ab"},
		{"abc", "a...c"},
		{"abcde", "ab...de"},
		{"supersecrettoken", "supe...oken"},
	}
	for _, tc := range cases {
		if got := HideSecret(tc.in); got != tc.want {
			t.Fatalf("HideSecret(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
