package commands

import "testing"

func TestParseValue(t *testing.T) {
	cases := []struct {
		in   string
		want any
	}{
		{"true", true},
		{"FALSE", false},
		{"42", int64(42)},
		{"2.5", 2.5},
		{"hello", "hello"},
		{"60s", "60s"},
	}
	for _, tc := range cases {
		if got := parseValue(tc.in); got != tc.want {
			t.Errorf("parseValue(%q) = %v (%T), want %v (%T)", tc.in, got, got, tc.want, tc.want)
		}
	}
}
