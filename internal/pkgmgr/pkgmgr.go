// Package pkgmgr installs script packages into the virtual filesystem and
// resolves installed package names to module source.
package pkgmgr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"maps"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/steveyegge/vos/internal/logging"
	"github.com/steveyegge/vos/internal/metrics"
	"github.com/steveyegge/vos/internal/vfs"
)

// DefaultRoot is where packages are installed.
const DefaultRoot = "/usr/lib/apm"

// ErrNotFound is returned when a package is not in the registry.
var ErrNotFound = errors.New("package not found")

// PackageError names the package an operation failed for.
type PackageError struct {
	Name string
	Err  error
}

func (e *PackageError) Error() string {
	return fmt.Sprintf("package '%s': %v", e.Name, e.Err)
}

func (e *PackageError) Unwrap() error {
	return e.Err
}

// Installed is a manifest record.
type Installed struct {
	Name        string    `json:"name"`
	Version     string    `json:"version"`
	Path        string    `json:"path"`
	Description string    `json:"description,omitempty"`
	InstalledAt time.Time `json:"installedAt"`
}

// Config tunes registry access.
type Config struct {
	Root string
	// RateLimit is registry lookups per second; zero disables throttling.
	RateLimit float64
	Burst     int
}

// Manager installs packages and resolves them for the script runtime.
type Manager struct {
	fs       *vfs.FS
	registry Registry
	limiter  *rate.Limiter
	root     string
	now      func() time.Time
	log      *zap.Logger

	// mu serializes installs so the manifest is read-modify-written atomically.
	mu sync.Mutex
}

// New creates a manager writing under cfg.Root.
func New(fs *vfs.FS, registry Registry, cfg Config) *Manager {
	root := cfg.Root
	if root == "" {
		root = DefaultRoot
	}
	limit := rate.Inf
	if cfg.RateLimit > 0 {
		limit = rate.Limit(cfg.RateLimit)
	}
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	return &Manager{
		fs:       fs,
		registry: registry,
		limiter:  rate.NewLimiter(limit, burst),
		root:     vfs.Clean(root),
		now:      time.Now,
		log:      logging.Named("apm"),
	}
}

func (m *Manager) manifestPath() string {
	return m.root + "/packages.json"
}

// ModulePath is where name's source is installed.
func (m *Manager) ModulePath(name string) string {
	return m.root + "/" + name + "/index.star"
}

// ParseSpec splits "name@version". Scoped names ("@org/name@1.0") keep
// their leading "@".
func ParseSpec(spec string) (name, version string, err error) {
	spec = strings.TrimSpace(spec)
	at := strings.LastIndex(spec, "@")
	if at > 0 {
		name, version = spec[:at], spec[at+1:]
	} else {
		name = spec
	}
	if name == "" || strings.ContainsAny(name, " \t\n") || strings.Contains(name, "..") {
		return "", "", fmt.Errorf("invalid package spec %q", spec)
	}
	return name, version, nil
}

func (m *Manager) readManifest() (map[string]Installed, error) {
	out := map[string]Installed{}
	data, err := m.fs.ReadFile(m.manifestPath())
	if vfs.IsNotFound(err) {
		return out, nil
	}
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("corrupt package manifest: %w", err)
	}
	return out, nil
}

func (m *Manager) writeManifest(ctx context.Context, manifest map[string]Installed) error {
	data, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return err
	}
	return m.fs.WriteFile(ctx, m.manifestPath(), data, false)
}

// Install resolves spec in the registry and installs it with its
// dependencies. Reinstalling the same version is a no-op. When a later
// step fails, dependencies already written are still recorded in the
// manifest so nothing under the root goes untracked.
func (m *Manager) Install(ctx context.Context, spec string) (Installed, error) {
	name, constraint, err := ParseSpec(spec)
	if err != nil {
		return Installed{}, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	manifest, err := m.readManifest()
	if err != nil {
		return Installed{}, &PackageError{Name: name, Err: err}
	}
	before := maps.Clone(manifest)
	inst, err := m.installLocked(ctx, manifest, name, constraint, map[string]bool{})
	metrics.RecordPackageInstall(name, err == nil)
	if err != nil {
		// Dependencies written before the failure stay installed and listed.
		if !maps.Equal(before, manifest) {
			if werr := m.writeManifest(ctx, manifest); werr != nil {
				m.log.Warn("failed to record installed dependencies",
					zap.String("name", name), zap.Error(werr))
			}
		}
		return Installed{}, err
	}
	if err := m.writeManifest(ctx, manifest); err != nil {
		return Installed{}, &PackageError{Name: name, Err: err}
	}
	return inst, nil
}

func (m *Manager) installLocked(ctx context.Context, manifest map[string]Installed, name, constraint string, visiting map[string]bool) (Installed, error) {
	if visiting[name] {
		return manifest[name], nil
	}
	visiting[name] = true

	if err := m.limiter.Wait(ctx); err != nil {
		return Installed{}, &PackageError{Name: name, Err: err}
	}
	pkg, err := m.registry.Lookup(ctx, name, constraint)
	if err != nil {
		return Installed{}, &PackageError{Name: name, Err: err}
	}

	for _, dep := range pkg.Dependencies {
		depName, depVersion, err := ParseSpec(dep)
		if err != nil {
			return Installed{}, &PackageError{Name: name, Err: err}
		}
		if _, ok := manifest[depName]; ok && depVersion == "" {
			continue
		}
		if _, err := m.installLocked(ctx, manifest, depName, depVersion, visiting); err != nil {
			return Installed{}, &PackageError{Name: name, Err: fmt.Errorf("dependency: %w", err)}
		}
	}

	if cur, ok := manifest[name]; ok && cur.Version == strings.TrimPrefix(pkg.Version, "v") && m.fs.Exists(cur.Path) {
		return cur, nil
	}
	path := m.ModulePath(name)
	if err := m.fs.WriteFile(ctx, path, []byte(pkg.Source), false); err != nil {
		return Installed{}, &PackageError{Name: name, Err: err}
	}
	inst := Installed{
		Name:        name,
		Version:     strings.TrimPrefix(pkg.Version, "v"),
		Path:        path,
		Description: pkg.Description,
		InstalledAt: m.now(),
	}
	manifest[name] = inst
	m.log.Info("installed package",
		zap.String("name", name),
		zap.String("version", inst.Version),
		zap.String("path", path))
	return inst, nil
}

// Resolve returns the installed source for name.
func (m *Manager) Resolve(name string) (string, error) {
	manifest, err := m.readManifest()
	if err != nil {
		return "", &PackageError{Name: name, Err: err}
	}
	inst, ok := manifest[name]
	if !ok {
		return "", &PackageError{Name: name, Err: errors.New("not installed")}
	}
	src, err := m.fs.ReadFile(inst.Path)
	if err != nil {
		return "", &PackageError{Name: name, Err: err}
	}
	return string(src), nil
}

// EnsureInstalled resolves name, installing the newest catalog version
// first if needed.
func (m *Manager) EnsureInstalled(ctx context.Context, name string) (string, error) {
	if src, err := m.Resolve(name); err == nil {
		return src, nil
	}
	if _, err := m.Install(ctx, name); err != nil {
		return "", err
	}
	return m.Resolve(name)
}

// List returns installed packages sorted by name.
func (m *Manager) List() ([]Installed, error) {
	manifest, err := m.readManifest()
	if err != nil {
		return nil, err
	}
	out := make([]Installed, 0, len(manifest))
	for _, inst := range manifest {
		out = append(out, inst)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
