// Package testsupport holds small generic assertion helpers shared by this
// module's plain testing.T-style tests, for the cases a ginkgo/gomega
// matcher would be overkill for (packstream, chunk and message codec tests
// stay on the standard library's testing package rather than pull gomega
// into every leaf package).
package testsupport

import (
	"reflect"
	"testing"
)

// AssertLen fails t unless value is a string, slice or map of length
// expected. A pointer value is dereferenced first; nil always fails.
func AssertLen(t *testing.T, value any, expected int) {
	t.Helper()
	if value == nil {
		t.Errorf("expected length of %d, but nil found", expected)
		return
	}

	v := reflect.ValueOf(value)
	if v.Kind() == reflect.Ptr {
		AssertLen(t, v.Elem().Interface(), expected)
		return
	}

	length := -1
	switch v.Kind() {
	case reflect.String, reflect.Slice, reflect.Map:
		length = v.Len()
	}
	if length == -1 {
		t.Errorf("value %v does not support Len()", value)
		return
	}
	if length != expected {
		t.Errorf("expected length %d, got %d for %v", expected, length, value)
	}
}

// AssertMapKey fails t unless dict contains key.
func AssertMapKey(t *testing.T, dict map[string]any, key string) {
	t.Helper()
	if _, ok := dict[key]; !ok {
		t.Errorf("expected map %v to contain key %q", dict, key)
	}
}

// AssertMapKeyValue fails t unless dict[key] equals value.
func AssertMapKeyValue(t *testing.T, dict map[string]any, key string, value any) {
	t.Helper()
	got, ok := dict[key]
	if !ok {
		t.Errorf("expected map %v to contain key %q", dict, key)
		return
	}
	if got != value {
		t.Errorf("expected map[%q] = %v, got %v", key, value, got)
	}
}
