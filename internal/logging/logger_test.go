package logging

import "testing"

func TestNewRejectsUnknownLevel(t *testing.T) {
	t.Parallel()

	if _, err := New("local", "loud"); err == nil {
		t.Fatalf("expected error for unknown log level")
	}
}

func TestNewParsesLevel(t *testing.T) {
	t.Parallel()

	logger, err := New("production", " WARN ")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := logger.GetLevel().String(); got != "warn" {
		t.Fatalf("unexpected level: got %q want %q", got, "warn")
	}
}
