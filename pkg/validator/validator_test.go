package validator

import (
	"strings"
	"testing"
)

type limits struct {
	Name  string `validate:"required"`
	Level string `validate:"omitempty,oneof=low high"`
	Max   int    `validate:"gte=1"`
}

func TestStruct(t *testing.T) {
	tests := []struct {
		name string
		in   limits
		want string
	}{
		{"valid", limits{Name: "a", Max: 1}, ""},
		{"required", limits{Max: 1}, `limits.Name: failed "required" check`},
		{"oneof", limits{Name: "a", Level: "mid", Max: 1}, `limits.Level: failed "oneof" check (low high)`},
		{"gte", limits{Name: "a"}, `limits.Max: failed "gte" check (1)`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Struct(tt.in)
			if tt.want == "" {
				if err != nil {
					t.Fatalf("Struct() = %v", err)
				}
				return
			}
			if err == nil || err.Error() != tt.want {
				t.Fatalf("Struct() = %v, want %s", err, tt.want)
			}
		})
	}
}

func TestChecks(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"identifier", Identifier("page_1", "name"), ""},
		{"leading digit", Identifier("1page", "name"), "not an identifier"},
		{"empty identifier", Identifier("", "name"), "must not be empty"},
		{"prefix", NoPrefix("_x", []string{"_"}, "global"), `must not start with "_"`},
		{"empty prefix ignored", NoPrefix("x", []string{""}, "global"), ""},
		{"contains", Contains([]string{"a", "_"}, "_", "prefixes"), ""},
		{"missing", Contains([]string{"a"}, "_", "prefixes"), "must include _"},
		{"duplicates", NoDuplicates([]int{1, 2, 1}, "ids"), "duplicate value: 1"},
		{"allowed", MatchesAllowed("x", []string{"y"}, "mode"), "must be one of"},
		{"first error wins", All(nil, NotEmpty("", "a"), NotEmpty("", "b")), "a must not be empty"},
		{"map index", Map([]string{"ok", ""}, NotEmpty, "items"), "items[1] must not be empty"},
		{"dict order", MapDict(map[string]int{"b": 0, "a": 0}, func(k string, _ int) error {
			return NotEmpty("", k)
		}, "vals"), "vals: a must not be empty"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			switch {
			case tt.want == "" && tt.err != nil:
				t.Fatalf("unexpected error %v", tt.err)
			case tt.want != "" && (tt.err == nil || !strings.Contains(tt.err.Error(), tt.want)):
				t.Fatalf("error = %v, want %q", tt.err, tt.want)
			}
		})
	}
}
