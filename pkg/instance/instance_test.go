package instance

import "testing"

func TestIDPrefersDyno(t *testing.T) {
	t.Setenv("DYNO", "web.1")
	t.Setenv("HOSTNAME", "box")
	if got := ID(); got != "web.1" {
		t.Fatalf("expected dyno name, got %q", got)
	}
}

func TestIDFallsBackToHostname(t *testing.T) {
	t.Setenv("DYNO", "")
	t.Setenv("HOSTNAME", "box")
	if got := ID(); got != "box" {
		t.Fatalf("expected hostname, got %q", got)
	}
}
