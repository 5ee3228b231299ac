package config

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"
)

func baseSettings(t *testing.T) StampSettings {
	t.Helper()
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Failed to load config: %v", err)
	}
	return cfg.StampSettings()
}

func TestStampSettings(t *testing.T) {
	s := baseSettings(t)

	if s.PollInterval != 60*time.Second {
		t.Errorf("Expected 60s poll interval, got %v", s.PollInterval)
	}
	if len(s.Types) != 2 {
		t.Errorf("Expected 2 built-in types, got %d", len(s.Types))
	}
}

func TestLookup(t *testing.T) {
	s := baseSettings(t)

	paid, err := s.Lookup("PAID")
	if err != nil {
		t.Fatalf("Lookup paid failed: %v", err)
	}
	if paid.Name != "paid" {
		t.Errorf("Expected normalized name paid, got %s", paid.Name)
	}
	if paid.Color != DefaultColor {
		t.Errorf("Expected default color fallback, got %s", paid.Color)
	}

	if _, err := s.Lookup("urgent"); err == nil {
		t.Error("Expected error for unknown type")
	}

	s.Types["blank"] = TypeConfig{Text: "  ", DateFallback: FallbackOmit}
	if _, err := s.Lookup("blank"); err == nil {
		t.Error("Expected error for empty display text")
	}

	s.Types["odd"] = TypeConfig{Text: "ODD", DateFallback: "yesterday"}
	if _, err := s.Lookup("odd"); err == nil {
		t.Error("Expected error for invalid date fallback")
	}
}

func TestOrder(t *testing.T) {
	s := baseSettings(t)
	s.Types["urgent"] = TypeConfig{Text: "URGENT", Priority: 1}

	got := s.Order([]string{"received", "mystery", "paid", "urgent"})
	want := []string{"urgent", "paid", "received", "mystery"}
	if !slices.Equal(got, want) {
		t.Errorf("Expected order %v, got %v", want, got)
	}
}

func TestNormalizeFallback(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"created", FallbackDocumentCreated},
		{"Document-Created", FallbackDocumentCreated},
		{"document_created", FallbackDocumentCreated},
		{"omit", FallbackOmit},
		{"none", FallbackOmit},
		{"", FallbackOmit},
		{"later", "later"},
	}

	for _, tt := range tests {
		if got := NormalizeFallback(tt.input); got != tt.expected {
			t.Errorf("NormalizeFallback(%q): expected %s, got %s", tt.input, tt.expected, got)
		}
	}
}

func TestValidateSetting(t *testing.T) {
	tests := []struct {
		key   string
		value string
		valid bool
	}{
		{KeyPollInterval, "30", true},
		{KeyPollInterval, "0", false},
		{KeyPollInterval, "soon", false},
		{KeyOpacity, "0.4", true},
		{KeyOpacity, "1.5", false},
		{KeyOpacity, "0", false},
		{KeyDefaultColor, "#000000", true},
		{KeyDefaultColor, "", false},
		{KeyTypes, "paid,urgent", true},
		{TypeKey("paid", "text"), "BEZAHLT", true},
		{TypeKey("paid", "date_fallback"), "created", true},
		{TypeKey("paid", "date_fallback"), "never", false},
		{TypeKey("paid", "priority"), "3", true},
		{TypeKey("paid", "priority"), "high", false},
		{TypeKey("paid", "font"), "Arial", false},
		{"unknown", "x", false},
	}

	for _, tt := range tests {
		err := ValidateSetting(tt.key, tt.value)
		if tt.valid && err != nil {
			t.Errorf("ValidateSetting(%s=%s): unexpected error %v", tt.key, tt.value, err)
		}
		if !tt.valid && err == nil {
			t.Errorf("ValidateSetting(%s=%s): expected error", tt.key, tt.value)
		}
	}
}

func TestOverlay(t *testing.T) {
	base := baseSettings(t)

	out, errs := base.Overlay(map[string]string{
		KeyPollInterval:                 "10",
		KeyOpacity:                      "0.9",
		KeyTypes:                        "urgent",
		TypeKey("urgent", "color"):      "#ff0000",
		TypeKey("paid", "text"):         "SETTLED",
		TypeKey("received", "priority"): "1",
		KeyDefaultColor:                 "",
	})

	if len(errs) != 1 {
		t.Errorf("Expected 1 invalid setting, got %d: %v", len(errs), errs)
	}
	if out.PollInterval != 10*time.Second {
		t.Errorf("Expected 10s poll interval, got %v", out.PollInterval)
	}
	if out.Opacity != 0.9 {
		t.Errorf("Expected opacity 0.9, got %v", out.Opacity)
	}
	if out.DefaultColor != DefaultColor {
		t.Errorf("Expected default color kept, got %s", out.DefaultColor)
	}
	urgent, err := out.Lookup("urgent")
	if err != nil {
		t.Fatalf("Lookup urgent failed: %v", err)
	}
	if urgent.Text != "URGENT" || urgent.Color != "#ff0000" {
		t.Errorf("Unexpected urgent type: %+v", urgent)
	}
	if out.Types["paid"].Text != "SETTLED" {
		t.Errorf("Expected paid text SETTLED, got %s", out.Types["paid"].Text)
	}
	if !slices.Equal(out.Order([]string{"paid", "received"}), []string{"received", "paid"}) {
		t.Error("Expected received to sort first after priority change")
	}

	if base.Types["paid"].Text != "PAID" {
		t.Error("Expected base settings to be left untouched")
	}
	if _, ok := base.Types["urgent"]; ok {
		t.Error("Expected base types to be left untouched")
	}
}

type fakeSource struct {
	settings map[string]string
	err      error
}

func (f *fakeSource) All(ctx context.Context) (map[string]string, error) {
	return f.settings, f.err
}

func TestResolver(t *testing.T) {
	base := baseSettings(t)
	source := &fakeSource{settings: map[string]string{KeyPollInterval: "5"}}
	r := NewResolver(base, source)

	if got := r.Current(context.Background()).PollInterval; got != 5*time.Second {
		t.Errorf("Expected runtime poll interval 5s, got %v", got)
	}

	source.settings = map[string]string{KeyPollInterval: "20"}
	if got := r.Current(context.Background()).PollInterval; got != 20*time.Second {
		t.Errorf("Expected edits to apply on next call, got %v", got)
	}

	source.err = errors.New("store offline")
	if got := r.Current(context.Background()).PollInterval; got != 60*time.Second {
		t.Errorf("Expected base poll interval on source failure, got %v", got)
	}

	if got := NewResolver(base, nil).Current(context.Background()).PollInterval; got != 60*time.Second {
		t.Errorf("Expected base poll interval without source, got %v", got)
	}
	if r.Base().PollInterval != 60*time.Second {
		t.Errorf("Expected Base to ignore runtime layer")
	}
}
