package clipboard

import (
	"testing"

	"github.com/atotto/clipboard"
)

func skipIfUnsupported(t *testing.T) {
	t.Helper()
	if clipboard.Unsupported {
		t.Skip("no clipboard utility available in this environment")
	}
}

func TestCopyRead_RoundTrip(t *testing.T) {
	skipIfUnsupported(t)

	if err := Copy("secret-value"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	got, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "secret-value" {
		t.Errorf("got %q, want %q", got, "secret-value")
	}
}

func TestClear_OnlyClearsWhenStillMatching(t *testing.T) {
	skipIfUnsupported(t)

	if err := Copy("original"); err != nil {
		t.Fatalf("Copy: %v", err)
	}
	if err := Clear("different-expected-value"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err := Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "original" {
		t.Errorf("clipboard should be untouched when expected value no longer matches, got %q", got)
	}

	if err := Clear("original"); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	got, err = Read()
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if got != "" {
		t.Errorf("clipboard should be cleared when expected value still matches, got %q", got)
	}
}
