package position

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/vpntrail/vpntrail/internal/logging"
	"github.com/vpntrail/vpntrail/pkg/types"
)

func TestStoreSaveAndReload(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state", "vpntrail.json")
	logger := logging.Nop()

	s1 := Open(statePath, 100, logger)
	s1.SetPosition(types.FilePosition{Path: "/var/log/openvpn/server.log", Offset: 4096, Inode: 77})
	s1.SetPosition(types.FilePosition{Path: "/var/log/openvpn/status.log", Offset: 512, Inode: 78})
	s1.RecordNotified("1.2.3.4:5/connect@1000")
	s1.RecordNotified("1.2.3.4:5/disconnect@2000")

	if err := s1.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	s2 := Open(statePath, 100, logger)

	pos, ok := s2.Position("/var/log/openvpn/server.log")
	if !ok {
		t.Fatal("position not recovered")
	}
	if pos.Offset != 4096 || pos.Inode != 77 {
		t.Errorf("recovered position mismatch: %+v", pos)
	}

	if !s2.IsNotified("1.2.3.4:5/connect@1000") {
		t.Error("notified identifier not recovered")
	}
	if s2.IsNotified("9.9.9.9:1/connect@1") {
		t.Error("unknown identifier reported as notified")
	}
}

func TestOpenMissingFileStartsEmpty(t *testing.T) {
	s := Open(filepath.Join(t.TempDir(), "does-not-exist.json"), 10, logging.Nop())

	if _, ok := s.Position("/var/log/openvpn/server.log"); ok {
		t.Error("empty store should have no positions")
	}
	if s.NotifiedCount() != 0 {
		t.Errorf("empty store should track nothing, got %d", s.NotifiedCount())
	}
}

func TestOpenCorruptFileStartsEmpty(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	if err := os.WriteFile(statePath, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("failed to write corrupt file: %v", err)
	}

	s := Open(statePath, 10, logging.Nop())
	if s.NotifiedCount() != 0 {
		t.Error("corrupt state must reset to empty, not fail")
	}

	// The store must remain writable after recovery.
	s.SetPosition(types.FilePosition{Path: "/a", Offset: 1})
	if err := s.Save(); err != nil {
		t.Fatalf("Save after corrupt load failed: %v", err)
	}
}

func TestStoreBoundsNotifiedSet(t *testing.T) {
	statePath := filepath.Join(t.TempDir(), "state.json")
	s := Open(statePath, 3, logging.Nop())

	for _, id := range []string{"a", "b", "c", "d", "e"} {
		s.RecordNotified(id)
	}

	if s.NotifiedCount() != 3 {
		t.Fatalf("expected bound of 3, got %d", s.NotifiedCount())
	}
	if s.IsNotified("a") || s.IsNotified("b") {
		t.Error("oldest identifiers should have been evicted")
	}
	if !s.IsNotified("e") {
		t.Error("newest identifier missing")
	}
}

func TestSaveLeavesNoTempFile(t *testing.T) {
	dir := t.TempDir()
	statePath := filepath.Join(dir, "state.json")
	s := Open(statePath, 10, logging.Nop())
	s.SetPosition(types.FilePosition{Path: "/a", Offset: 10})

	if err := s.Save(); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if _, err := os.Stat(statePath + ".tmp"); !os.IsNotExist(err) {
		t.Error("temporary file left behind after atomic save")
	}
}
