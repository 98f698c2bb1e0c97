package rule

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "listener.conf")
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	return path
}

func TestLoadBlockDialectRoundTrip(t *testing.T) {
	path := writeConfig(t, `
# a comment before the first rule
{
  TARGET = /tmp/T
  WATCHES = CREATE MOVED_TO CLOSE_WRITE
  SPAWN = /usr/local/bin/react $ENTRY
  LOOKAT = FILES
  ACCEPT_REGEX = .*\.log$
  RECURSIVE_DEPTH = 2
}
{
  TARGET = /tmp/U
  WATCHES = DELETE
  SPAWN = echo gone
  LOOKAT = DIRS
  RECURSIVE_DEPTH = NO
}
`)

	rules, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rules) != 2 {
		t.Fatalf("got %d rules, want 2", len(rules))
	}

	r0 := rules[0]
	if r0.Target != "/tmp/T" || r0.Command != "/usr/local/bin/react $ENTRY" {
		t.Errorf("rule 0 fields wrong: %+v", r0)
	}
	if !r0.Events.Has(Create) || !r0.Events.Has(MovedTo) || !r0.Events.Has(CloseWrite) {
		t.Errorf("rule 0 events wrong: %v", r0.Events)
	}
	if r0.LookAt != LookAtFiles || r0.Depth != 2 {
		t.Errorf("rule 0 lookat/depth wrong: %v %d", r0.LookAt, r0.Depth)
	}
	if r0.RegexSource != `.*\.log$` {
		t.Errorf("rule 0 regex source wrong: %q", r0.RegexSource)
	}

	r1 := rules[1]
	if r1.Target != "/tmp/U" || r1.Depth != 0 || r1.LookAt != LookAtDirs {
		t.Errorf("rule 1 fields wrong: %+v", r1)
	}
}

func TestLoadStructuredDialectRoundTrip(t *testing.T) {
	path := writeConfig(t, `[
  {
    "description": "react to new logs",
    "target": "/tmp/T",
    "watches": "CREATE CLOSE_WRITE",
    "spawn": "echo $ENTRY",
    "lookat": "files",
    "regex": "\\.log$",
    "depth": "2"
  }
]`)

	rules, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(rules) != 1 {
		t.Fatalf("got %d rules, want 1", len(rules))
	}
	r := rules[0]
	if r.Description != "react to new logs" || r.Target != "/tmp/T" || r.Depth != 2 {
		t.Errorf("rule fields wrong: %+v", r)
	}
	if !r.Events.Has(Create) || !r.Events.Has(CloseWrite) {
		t.Errorf("rule events wrong: %v", r.Events)
	}
}

func TestLoadRejectsInvalidField(t *testing.T) {
	// RECURSIVE_DEPTH out of range: the whole file must be rejected, no
	// partial Rule slice produced.
	path := writeConfig(t, `
{
  TARGET = /tmp/T
  WATCHES = CREATE
  SPAWN = echo hi
  LOOKAT = FILES
  RECURSIVE_DEPTH = 999
}
`)
	if rules, err := Load(path); err == nil {
		t.Fatalf("expected error, got %d rules", len(rules))
	}
}

func TestLoadStructuredRejectsNonStringDepth(t *testing.T) {
	path := writeConfig(t, `[
  {"target": "/tmp/T", "watches": "CREATE", "spawn": "echo hi", "lookat": "files", "depth": 2}
]`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error: depth must be a JSON string, not a number")
	}
}

func TestLoadRejectsUnknownDialect(t *testing.T) {
	path := writeConfig(t, "not a rule file at all\n")
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for undetectable dialect")
	}
}
