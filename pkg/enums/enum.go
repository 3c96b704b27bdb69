// Package enums holds the closed value sets stored as Postgres enum columns.
// Each type validates against the same list its migration declares.
package enums

import (
	"fmt"
	"slices"
)

type valueSet[T ~string] struct {
	label  string
	values []T
}

func newSet[T ~string](label string, values ...T) valueSet[T] {
	return valueSet[T]{label: label, values: values}
}

func (s valueSet[T]) has(v T) bool {
	return slices.Contains(s.values, v)
}

func (s valueSet[T]) parse(raw string) (T, error) {
	if v := T(raw); s.has(v) {
		return v, nil
	}
	return "", fmt.Errorf("invalid %s %q", s.label, raw)
}
