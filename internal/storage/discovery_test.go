package storage

import (
	"os"
	"path/filepath"
	"testing"
)

// TestDiscoverDataDirIn_CurrentDirOnly verifies that discovery does not walk
// up into a parent project's .vos directory.
func TestDiscoverDataDirIn_CurrentDirOnly(t *testing.T) {
	// tmpRoot/
	//   parent/
	//     .vos/
	//     child/
	tmpRoot := t.TempDir()
	parentDir := filepath.Join(tmpRoot, "parent")
	childDir := filepath.Join(parentDir, "child")

	parentData := filepath.Join(parentDir, DataDirName)
	if err := os.MkdirAll(parentData, 0755); err != nil {
		t.Fatalf("failed to create parent .vos dir: %v", err)
	}
	if err := os.MkdirAll(childDir, 0755); err != nil {
		t.Fatalf("failed to create child dir: %v", err)
	}

	if _, err := discoverDataDirIn(childDir); err == nil {
		t.Error("Expected error when no .vos in current dir, but got success")
	}

	got, err := discoverDataDirIn(parentDir)
	if err != nil {
		t.Fatalf("Expected to find .vos in parent dir, got error: %v", err)
	}
	if got != parentData {
		t.Errorf("Expected %s, got %s", parentData, got)
	}
}

// TestDiscoverDataDirIn_FileNotDir verifies a plain file named .vos is ignored
func TestDiscoverDataDirIn_FileNotDir(t *testing.T) {
	tmpDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(tmpDir, DataDirName), nil, 0644); err != nil {
		t.Fatalf("failed to create file: %v", err)
	}
	if _, err := discoverDataDirIn(tmpDir); err == nil {
		t.Error("Expected error when .vos is a file")
	}
}

// TestDiscoverDataDir_WithEnvVar verifies VOS_DATA_DIR takes precedence
func TestDiscoverDataDir_WithEnvVar(t *testing.T) {
	want := filepath.Join(t.TempDir(), "custom")
	t.Setenv("VOS_DATA_DIR", want)

	got, err := DiscoverDataDir()
	if err != nil {
		t.Fatalf("Expected success with env var set, got error: %v", err)
	}
	if got != want {
		t.Errorf("Expected %s, got %s", want, got)
	}
}

func TestInitDataDir(t *testing.T) {
	tmpDir := t.TempDir()

	dataDir, err := InitDataDir(tmpDir)
	if err != nil {
		t.Fatalf("InitDataDir failed: %v", err)
	}
	if info, err := os.Stat(dataDir); err != nil || !info.IsDir() {
		t.Fatalf("expected %s to be a directory", dataDir)
	}

	if _, err := InitDataDir(tmpDir); err == nil {
		t.Error("Expected error when .vos already exists")
	}
	if _, err := InitDataDir(filepath.Join(tmpDir, "missing")); err == nil {
		t.Error("Expected error for missing project dir")
	}
}

func TestResolveInDataDir(t *testing.T) {
	dataDir := filepath.Join("/proj", DataDirName)
	tests := []struct {
		in, want string
	}{
		{"", ""},
		{":memory:", ":memory:"},
		{"/abs/vos.db", "/abs/vos.db"},
		{".vos/vos.db", "/proj/.vos/vos.db"},
		{"vos.db", "/proj/.vos/vos.db"},
		{"blobs", "/proj/.vos/blobs"},
	}
	for _, tt := range tests {
		if got := ResolveInDataDir(dataDir, tt.in); got != tt.want {
			t.Errorf("ResolveInDataDir(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestDaemonLock(t *testing.T) {
	dataDir := t.TempDir()

	lockPath, err := AcquireDaemonLock(dataDir, "test", "/tmp/vos.sock")
	if err != nil {
		t.Fatalf("AcquireDaemonLock failed: %v", err)
	}

	held, err := ReadDaemonLock(dataDir)
	if err != nil || held == nil {
		t.Fatalf("expected lock to be held, got %v, %v", held, err)
	}
	if held.PID != os.Getpid() || held.Socket != "/tmp/vos.sock" {
		t.Errorf("unexpected lock contents: %+v", held)
	}

	if _, err := AcquireDaemonLock(dataDir, "test", ""); err == nil {
		t.Error("second acquire should fail while this process is alive")
	}

	if err := ReleaseDaemonLock(lockPath); err != nil {
		t.Fatalf("ReleaseDaemonLock failed: %v", err)
	}
	if held, _ := ReadDaemonLock(dataDir); held != nil {
		t.Error("lock should be gone after release")
	}
	if err := ReleaseDaemonLock(lockPath); err != nil {
		t.Errorf("double release should be a no-op, got %v", err)
	}
}

func TestStaleDaemonLockIsIgnored(t *testing.T) {
	dataDir := t.TempDir()
	host, _ := os.Hostname()
	stale := `{"holder":"vos-daemon","pid":999999999,"hostname":"` + host + `"}`
	if err := os.WriteFile(LockPath(dataDir), []byte(stale), 0644); err != nil {
		t.Fatal(err)
	}
	if _, err := AcquireDaemonLock(dataDir, "test", ""); err != nil {
		t.Errorf("stale lock should be overwritten, got %v", err)
	}
}
