// Package utils holds helpers for the nullable columns of the hosted database.
package utils

import "strings"

// Value dereferences v, returning the zero value for a null column
func Value[T any](v *T) T {
	if v == nil {
		var zero T
		return zero
	}
	return *v
}

func Ptr[T any](v T) *T {
	return &v
}

// TrimmedOrNil trims s and returns nil when nothing is left, so blank
// form fields are stored as null
func TrimmedOrNil(s string) *string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	return &s
}
