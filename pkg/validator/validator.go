// Package validator holds small composable checks used when loading
// configuration. Struct tags are checked with go-playground/validator; the
// helpers here cover rules that tags cannot express.
package validator

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"unicode"

	playground "github.com/go-playground/validator/v10"
)

var (
	structValidator *playground.Validate
	once            sync.Once
)

func get() *playground.Validate {
	once.Do(func() {
		structValidator = playground.New(playground.WithRequiredStructEnabled())
	})
	return structValidator
}

// Struct checks the `validate` tags of s and reports the first failing field.
func Struct(s any) error {
	err := get().Struct(s)
	var fields playground.ValidationErrors
	if errors.As(err, &fields) && len(fields) > 0 {
		f := fields[0]
		if f.Param() != "" {
			return fmt.Errorf("%s: failed %q check (%s)", f.Namespace(), f.Tag(), f.Param())
		}
		return fmt.Errorf("%s: failed %q check", f.Namespace(), f.Tag())
	}
	return err
}

func All(errors ...error) error {
	for _, err := range errors {
		if err != nil {
			return err
		}
	}
	return nil
}

func Map[T any](items []T, f func(T, string) error, description string) error {
	for i, item := range items {
		if err := f(item, fmt.Sprintf("%s[%d]", description, i)); err != nil {
			return err
		}
	}
	return nil
}

// MapDict checks entries in key order so the reported error is stable.
func MapDict[T any](items map[string]T, f func(string, T) error, description string) error {
	keys := make([]string, 0, len(items))
	for k := range items {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, key := range keys {
		if err := f(key, items[key]); err != nil {
			return fmt.Errorf("%s: %w", description, err)
		}
	}
	return nil
}

func NotEmpty(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	return nil
}

func NoDuplicates[T comparable](slice []T, description string) error {
	seen := make(map[T]struct{})
	for _, v := range slice {
		if _, ok := seen[v]; ok {
			return fmt.Errorf("%s contains duplicate value: %v", description, v)
		}
		seen[v] = struct{}{}
	}
	return nil
}

func MatchesAllowed[T comparable](field T, allowed []T, description string) error {
	if !slices.Contains(allowed, field) {
		return fmt.Errorf("%s must be one of %v, got %v", description, allowed, field)
	}
	return nil
}

// Identifier checks that field can be used as a template name.
func Identifier(field, description string) error {
	if field == "" {
		return fmt.Errorf("%s must not be empty", description)
	}
	for i, r := range field {
		if r == '_' || unicode.IsLetter(r) || (i > 0 && unicode.IsDigit(r)) {
			continue
		}
		return fmt.Errorf("%s %q is not an identifier", description, field)
	}
	return nil
}

// NoPrefix rejects values that begin with any of prefixes.
func NoPrefix(field string, prefixes []string, description string) error {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(field, p) {
			return fmt.Errorf("%s %q must not start with %q", description, field, p)
		}
	}
	return nil
}

// Contains checks that slice holds want.
func Contains[T comparable](slice []T, want T, description string) error {
	if !slices.Contains(slice, want) {
		return fmt.Errorf("%s must include %v", description, want)
	}
	return nil
}
