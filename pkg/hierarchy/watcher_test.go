package hierarchy

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/pariksha-io/pariksha/pkg/observability"
)

func writeRegionFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("Failed to write region file: %v", err)
	}
}

func TestWatcher_Reload(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	writeRegionFile(t, path, testRegionYAML)

	tree := NewTree(nil)
	if tree.HasState("MH") {
		t.Fatal("Empty tree should deny every state before the first load")
	}

	watcher := NewWatcher(path, tree, observability.NewLogger(observability.ErrorLevel, io.Discard))
	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	if !tree.SchoolInState("SCH-001", "MH") {
		t.Error("Expected loaded snapshot to answer containment")
	}
	if !tree.ClassInSchool("10A", "SCH-001") {
		t.Error("Expected classes from the loaded file")
	}
}

func TestWatcher_Reload_KeepsSnapshotOnBadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "regions.yaml")
	writeRegionFile(t, path, testRegionYAML)

	tree := NewTree(nil)
	watcher := NewWatcher(path, tree, observability.NewLogger(observability.ErrorLevel, io.Discard))
	if err := watcher.Reload(); err != nil {
		t.Fatalf("Reload failed: %v", err)
	}

	writeRegionFile(t, path, "states: [not, a, mapping]")
	if err := watcher.Reload(); err == nil {
		t.Fatal("Expected Reload to reject a malformed file")
	}

	// Well-formed YAML describing a duplicate state is rejected too
	writeRegionFile(t, path, `
states:
  - code: MH
    name: Maharashtra
  - code: MH
    name: Maharashtra Again
`)
	if err := watcher.Reload(); err == nil {
		t.Fatal("Expected Reload to reject a duplicate state")
	}

	if !tree.SchoolInState("SCH-001", "MH") {
		t.Error("Expected the previous snapshot to survive a bad reload")
	}
}
