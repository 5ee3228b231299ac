package config

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/inkstamp/paperless-stamp/pkg/logger"
)

// Stamp defaults
const (
	DefaultPollInterval = 60
	DefaultColor        = "#003399"
	DefaultOpacity      = 0.5
	defaultPriority     = 100
)

// Date fallback policies
const (
	FallbackDocumentCreated = "document-created"
	FallbackOmit            = "omit"
)

var builtinTypes = map[string]TypeConfig{
	"paid":     {Text: "PAID", DateField: "Paid Date", DateFallback: FallbackOmit, Priority: 10},
	"received": {Text: "RECEIVED", DateField: "Received Date", DateFallback: FallbackDocumentCreated, Priority: 20},
}

func normalizeType(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// typeDefaults fills unset fields from the built-in type or generic defaults
func typeDefaults(name string, tc TypeConfig) TypeConfig {
	builtin, ok := builtinTypes[name]
	if !ok {
		builtin = TypeConfig{Text: strings.ToUpper(name), DateFallback: FallbackOmit, Priority: defaultPriority}
	}
	if tc.Text == "" {
		tc.Text = builtin.Text
	}
	if tc.DateField == "" {
		tc.DateField = builtin.DateField
	}
	if tc.DateFallback == "" {
		tc.DateFallback = builtin.DateFallback
	}
	tc.DateFallback = NormalizeFallback(tc.DateFallback)
	if tc.Priority == 0 {
		tc.Priority = builtin.Priority
	}
	return tc
}

// NormalizeFallback maps accepted spellings onto the two fallback policies.
// Unrecognized values are returned unchanged and rejected by Lookup.
func NormalizeFallback(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "created", "document-created", "document_created":
		return FallbackDocumentCreated
	case "omit", "none", "":
		return FallbackOmit
	default:
		return v
	}
}

// StampSettings is the resolved stamp configuration for one cycle
type StampSettings struct {
	PollInterval time.Duration
	DefaultColor string
	Opacity      float64
	Types        map[string]TypeConfig
}

// StampSettings builds the base layer (defaults, file and environment)
func (c *Config) StampSettings() StampSettings {
	types := make(map[string]TypeConfig, len(c.Stamp.Types))
	for name, tc := range c.Stamp.Types {
		types[name] = tc
	}
	return StampSettings{
		PollInterval: time.Duration(c.Stamp.PollInterval) * time.Second,
		DefaultColor: c.Stamp.DefaultColor,
		Opacity:      c.Stamp.Opacity,
		Types:        types,
	}
}

// TypeSettings is a fully resolved stamp type
type TypeSettings struct {
	Name         string
	Text         string
	Color        string
	DateField    string
	DateFallback string
	Priority     int
}

// Lookup resolves a stamp type. Unknown types and types whose mapping
// cannot be resolved yield a descriptive error.
func (s StampSettings) Lookup(stampType string) (TypeSettings, error) {
	tc, ok := s.Types[normalizeType(stampType)]
	if !ok {
		return TypeSettings{}, fmt.Errorf("unknown stamp type %q", stampType)
	}
	ts := TypeSettings{
		Name:         normalizeType(stampType),
		Text:         tc.Text,
		Color:        tc.Color,
		DateField:    tc.DateField,
		DateFallback: tc.DateFallback,
		Priority:     tc.Priority,
	}
	if ts.Color == "" {
		ts.Color = s.DefaultColor
	}
	if strings.TrimSpace(ts.Text) == "" {
		return ts, fmt.Errorf("no display text for stamp type %q", stampType)
	}
	if ts.DateFallback != FallbackDocumentCreated && ts.DateFallback != FallbackOmit {
		return ts, fmt.Errorf("invalid date fallback %q for stamp type %q", ts.DateFallback, stampType)
	}
	return ts, nil
}

// Order sorts stamp types by configured priority. Ties and unknown types
// keep their discovery order.
func (s StampSettings) Order(types []string) []string {
	ordered := slices.Clone(types)
	slices.SortStableFunc(ordered, func(a, b string) int {
		return cmp.Compare(s.priority(a), s.priority(b))
	})
	return ordered
}

func (s StampSettings) priority(stampType string) int {
	if tc, ok := s.Types[normalizeType(stampType)]; ok {
		return tc.Priority
	}
	return defaultPriority + 1
}

// Runtime setting keys
const (
	KeyPollInterval = "poll_interval"
	KeyDefaultColor = "default_color"
	KeyOpacity      = "opacity"
	KeyTypes        = "types"

	fieldText         = "text"
	fieldColor        = "color"
	fieldDateField    = "date_field"
	fieldDateFallback = "date_fallback"
	fieldPriority     = "priority"
)

// TypeKey builds the runtime setting key for a per-type field
func TypeKey(stampType, field string) string {
	return normalizeType(stampType) + "." + field
}

// ValidateSetting checks a runtime setting before it is stored
func ValidateSetting(key, value string) error {
	switch key {
	case KeyPollInterval:
		n, err := strconv.Atoi(value)
		if err != nil || n < 1 {
			return fmt.Errorf("%s must be a positive number of seconds", key)
		}
		return nil
	case KeyOpacity:
		f, err := strconv.ParseFloat(value, 64)
		if err != nil || f <= 0 || f > 1 {
			return fmt.Errorf("%s must be within (0, 1]", key)
		}
		return nil
	case KeyDefaultColor, KeyTypes:
		if strings.TrimSpace(value) == "" {
			return fmt.Errorf("%s must not be empty", key)
		}
		return nil
	}

	stampType, field, ok := strings.Cut(key, ".")
	if !ok || normalizeType(stampType) == "" {
		return fmt.Errorf("unknown setting %q", key)
	}
	switch field {
	case fieldText, fieldColor, fieldDateField:
		return nil
	case fieldDateFallback:
		v := NormalizeFallback(value)
		if v != FallbackDocumentCreated && v != FallbackOmit {
			return fmt.Errorf("%s must be %s or %s", key, FallbackDocumentCreated, FallbackOmit)
		}
		return nil
	case fieldPriority:
		if _, err := strconv.Atoi(value); err != nil {
			return fmt.Errorf("%s must be an integer", key)
		}
		return nil
	default:
		return fmt.Errorf("unknown setting %q", key)
	}
}

// Overlay applies runtime settings on top of s. Invalid entries are
// skipped and reported.
func (s StampSettings) Overlay(settings map[string]string) (StampSettings, []error) {
	out := s
	out.Types = make(map[string]TypeConfig, len(s.Types))
	for name, tc := range s.Types {
		out.Types[name] = tc
	}

	var errs []error
	keys := make([]string, 0, len(settings))
	for k := range settings {
		keys = append(keys, k)
	}
	// types first so per-type keys for new types land on their defaults
	slices.SortFunc(keys, func(a, b string) int {
		return cmp.Or(cmp.Compare(boolRank(a != KeyTypes), boolRank(b != KeyTypes)), strings.Compare(a, b))
	})

	for _, key := range keys {
		value := settings[key]
		if err := ValidateSetting(key, value); err != nil {
			errs = append(errs, err)
			continue
		}
		switch key {
		case KeyPollInterval:
			n, _ := strconv.Atoi(value)
			out.PollInterval = time.Duration(n) * time.Second
		case KeyDefaultColor:
			out.DefaultColor = value
		case KeyOpacity:
			out.Opacity, _ = strconv.ParseFloat(value, 64)
		case KeyTypes:
			for _, name := range strings.Split(value, ",") {
				name = normalizeType(name)
				if _, ok := out.Types[name]; name != "" && !ok {
					out.Types[name] = typeDefaults(name, TypeConfig{})
				}
			}
		default:
			stampType, field, _ := strings.Cut(key, ".")
			stampType = normalizeType(stampType)
			tc, ok := out.Types[stampType]
			if !ok {
				tc = typeDefaults(stampType, TypeConfig{})
			}
			switch field {
			case fieldText:
				tc.Text = value
			case fieldColor:
				tc.Color = value
			case fieldDateField:
				tc.DateField = value
			case fieldDateFallback:
				tc.DateFallback = NormalizeFallback(value)
			case fieldPriority:
				tc.Priority, _ = strconv.Atoi(value)
			}
			out.Types[stampType] = tc
		}
	}
	return out, errs
}

func boolRank(b bool) int {
	if b {
		return 1
	}
	return 0
}

// SettingsSource is the runtime-editable settings layer
type SettingsSource interface {
	All(ctx context.Context) (map[string]string, error)
}

// Resolver layers runtime settings over the base configuration.
// Current is called once per cycle, so edits apply from the next cycle on.
type Resolver struct {
	base   StampSettings
	source SettingsSource
}

func NewResolver(base StampSettings, source SettingsSource) *Resolver {
	return &Resolver{base: base, source: source}
}

// Base returns the settings without the runtime layer
func (r *Resolver) Base() StampSettings {
	return r.base
}

// Current returns the effective settings. A failing settings source is
// logged and the base layer is used.
func (r *Resolver) Current(ctx context.Context) StampSettings {
	if r.source == nil {
		return r.base
	}
	settings, err := r.source.All(ctx)
	if err != nil {
		logger.Warn(ctx, "failed to read runtime settings, using defaults", "error", err)
		return r.base
	}
	out, errs := r.base.Overlay(settings)
	for _, err := range errs {
		logger.Warn(ctx, "ignoring invalid runtime setting", "error", err)
	}
	return out
}
