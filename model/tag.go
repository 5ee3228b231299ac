package model

import (
	"strings"
)

// Tag namespaces
const (
	TriggerNamespace = "stamp"
	DoneNamespace    = "stamped"
	ErrorValue       = "error"

	TriggerPrefix = TriggerNamespace + ":"
	DonePrefix    = DoneNamespace + ":"
	ErrorTagName  = TriggerPrefix + ErrorValue
)

// ParseTag splits a tag name of the shape namespace:value.
// The namespace is lower-cased; the value is trimmed and lower-cased.
func ParseTag(name string) (namespace, value string, ok bool) {
	ns, val, found := strings.Cut(name, ":")
	if !found {
		return "", "", false
	}
	ns = strings.ToLower(strings.TrimSpace(ns))
	val = strings.ToLower(strings.TrimSpace(val))
	if ns == "" || val == "" {
		return "", "", false
	}
	return ns, val, true
}

// TriggerType returns the stamp type requested by a trigger tag.
// The reserved stamp:error marker is not a trigger.
func TriggerType(name string) (string, bool) {
	ns, val, ok := ParseTag(name)
	if !ok || ns != TriggerNamespace || val == ErrorValue {
		return "", false
	}
	return val, true
}

// DoneType returns the stamp type recorded by a done tag
func DoneType(name string) (string, bool) {
	ns, val, ok := ParseTag(name)
	if !ok || ns != DoneNamespace {
		return "", false
	}
	return val, true
}

// TriggerTag builds the trigger tag name for a stamp type
func TriggerTag(stampType string) string {
	return TriggerPrefix + stampType
}

// DoneTag builds the done tag name for a stamp type
func DoneTag(stampType string) string {
	return DonePrefix + stampType
}
