// Package access provides total accessors over admission request documents.
//
// Every helper returns the zero value when a field is absent, nil, or of an
// unexpected type at any depth, so policies can navigate untrusted input
// without guarding each step.
package access

import (
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
)

// Map returns v as a document map, or nil if v is not one.
func Map(v interface{}) map[string]interface{} {
	m, _ := v.(map[string]interface{})
	return m
}

// Field returns the value at fields below obj.
func Field(obj map[string]interface{}, fields ...string) (interface{}, bool) {
	if obj == nil {
		return nil, false
	}
	val, found, err := unstructured.NestedFieldNoCopy(obj, fields...)
	if err != nil || !found {
		return nil, false
	}
	return val, true
}

// Object returns the map at fields below obj.
func Object(obj map[string]interface{}, fields ...string) map[string]interface{} {
	val, _ := Field(obj, fields...)
	return Map(val)
}

// Slice returns the list at fields below obj. Elements are not copied.
func Slice(obj map[string]interface{}, fields ...string) []interface{} {
	val, _ := Field(obj, fields...)
	s, _ := val.([]interface{})
	return s
}

// Bool reports whether the value at fields below obj is the boolean true.
func Bool(obj map[string]interface{}, fields ...string) bool {
	val, _ := Field(obj, fields...)
	b, _ := val.(bool)
	return b
}

// String returns the string at fields below obj.
func String(obj map[string]interface{}, fields ...string) string {
	val, _ := Field(obj, fields...)
	s, _ := val.(string)
	return s
}
