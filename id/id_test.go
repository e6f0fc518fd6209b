package id_test

import (
	"testing"

	"github.com/DecentralizedGeo/stac-manager-sub002/id"
)

func TestNew_IsUniqueAndPrefixed(t *testing.T) {
	a := id.NewRunID()
	b := id.NewRunID()

	if a.IsNil() || b.IsNil() {
		t.Fatal("NewRunID returned nil ID")
	}
	if a.String() == b.String() {
		t.Fatalf("expected unique IDs, got %s twice", a)
	}
	if a.Prefix() != id.PrefixRun {
		t.Fatalf("expected prefix %q, got %q", id.PrefixRun, a.Prefix())
	}
}

func TestParse_RoundTrip(t *testing.T) {
	orig := id.NewReportID()

	parsed, err := id.Parse(orig.String())
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if parsed.String() != orig.String() {
		t.Fatalf("round trip mismatch: %s != %s", parsed, orig)
	}
}

func TestParseWithPrefix_RejectsWrongPrefix(t *testing.T) {
	run := id.NewRunID()

	if _, err := id.ParseWithPrefix(run.String(), id.PrefixReport); err == nil {
		t.Fatal("expected prefix mismatch error")
	}
}

func TestParse_Empty(t *testing.T) {
	if _, err := id.Parse(""); err == nil {
		t.Fatal("expected error for empty string")
	}
}

func TestNil(t *testing.T) {
	if !id.Nil.IsNil() {
		t.Fatal("Nil should report IsNil")
	}
	if id.Nil.String() != "" {
		t.Fatalf("Nil.String() = %q, want empty", id.Nil.String())
	}
}

func TestTextMarshaling(t *testing.T) {
	orig := id.NewRunID()

	data, err := orig.MarshalText()
	if err != nil {
		t.Fatalf("MarshalText: %v", err)
	}

	var back id.ID
	if err := back.UnmarshalText(data); err != nil {
		t.Fatalf("UnmarshalText: %v", err)
	}
	if back.String() != orig.String() {
		t.Fatalf("text round trip mismatch: %s != %s", back, orig)
	}
}
