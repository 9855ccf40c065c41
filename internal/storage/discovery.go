package storage

import (
	"fmt"
	"os"
	"path/filepath"
)

// DataDirName is the per-project directory holding config, database, lock, and socket.
const DataDirName = ".vos"

// DiscoverDataDir finds the .vos directory to use.
//
// VOS_DATA_DIR wins when set, so tests and scripts can point at an isolated
// directory. Otherwise only the current directory is checked; parent
// directories are not searched, so a nested project never picks up its
// parent's state.
func DiscoverDataDir() (string, error) {
	if dir := os.Getenv("VOS_DATA_DIR"); dir != "" {
		return filepath.Abs(dir)
	}

	cwd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get current directory: %w", err)
	}
	return discoverDataDirIn(cwd)
}

// discoverDataDirIn checks for .vos/ in dir only.
func discoverDataDirIn(dir string) (string, error) {
	dataDir := filepath.Join(dir, DataDirName)
	if info, err := os.Stat(dataDir); err == nil && info.IsDir() {
		absPath, err := filepath.Abs(dataDir)
		if err != nil {
			return "", fmt.Errorf("failed to get absolute path: %w", err)
		}
		return absPath, nil
	}

	return "", fmt.Errorf(
		"no %s/ directory found in %s\n"+
			"  Run 'vos init' to create one here\n"+
			"  Or use --data-dir to point at an existing one",
		DataDirName, dir)
}

// InitDataDir creates projectDir/.vos and returns its absolute path.
// It fails if the directory already exists.
func InitDataDir(projectDir string) (string, error) {
	if info, err := os.Stat(projectDir); err != nil || !info.IsDir() {
		return "", fmt.Errorf("project directory does not exist: %s", projectDir)
	}

	dataDir := filepath.Join(projectDir, DataDirName)
	if _, err := os.Stat(dataDir); err == nil {
		return "", fmt.Errorf("%s already exists", dataDir)
	}
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", dataDir, err)
	}
	return filepath.Abs(dataDir)
}

// ResolveInDataDir makes a relative path from config relative to dataDir's project.
// Paths like ".vos/vos.db" resolve against the project root; bare names against dataDir.
func ResolveInDataDir(dataDir, p string) string {
	if p == "" || p == ":memory:" || filepath.IsAbs(p) {
		return p
	}
	projectRoot := filepath.Dir(dataDir)
	if isUnder(p, DataDirName) {
		return filepath.Join(projectRoot, p)
	}
	return filepath.Join(dataDir, p)
}

// isUnder reports whether relative path p starts with dir.
func isUnder(p, dir string) bool {
	p = filepath.Clean(p)
	return p == dir || len(p) > len(dir) && p[:len(dir)+1] == dir+string(filepath.Separator)
}
