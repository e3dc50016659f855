// Package pathresolve implements spec.md §4.1: resolving the project root,
// the config/management directory layout, and the derived subtree paths
// that every other Edison package (entity, session, validate) builds its
// on-disk layout against.
package pathresolve

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/leeroybrun/edison-sub004/edisonerrors"
	"github.com/leeroybrun/edison-sub004/internal/gitutil"
)

// Conventional directory names, overridable through the Options the caller
// supplies or the env vars below (never hardcoded at the call site), matching spec.md §6's
// "conventional names from configuration" framing.
const (
	DefaultConfigDirName     = ".edison"
	DefaultManagementDirName = ".project"
)

// Env vars consumed per spec.md §6.
const (
	EnvProjectRoot        = "AGENTS_PROJECT_ROOT"
	EnvProjectConfigDir   = "EDISON_paths__project_config_dir"
	EnvUserConfigDir      = "EDISON_paths__user_config_dir"
	EnvProjectManagement = "EDISON_project_management_dir"
	EnvSession           = "AGENTS_SESSION"
	EnvOwner             = "AGENTS_OWNER"
	EnvSessionProgress   = "EDISON_SESSION_CREATE_PROGRESS"
)

// Paths is the resolved, absolute directory layout for one project.
type Paths struct {
	ProjectRoot   string
	ConfigDir     string // <project_root>/.edison
	ManagementDir string // <project_root>/.project

	TasksDir    string
	QADir       string
	SessionsDir string
	EvidenceDir string // qa/<evidence-subdir>
	LogsDir     string
}

// Options controls directory names so callers (and tests) can override the
// conventional ".edison"/".project" names the same way the env vars do.
type Options struct {
	ConfigDirName     string
	ManagementDirName string
	EvidenceSubdir    string
}

func (o Options) withDefaults() Options {
	if o.ConfigDirName == "" {
		o.ConfigDirName = DefaultConfigDirName
	}
	if o.ManagementDirName == "" {
		o.ManagementDirName = DefaultManagementDirName
	}
	if o.EvidenceSubdir == "" {
		o.EvidenceSubdir = "evidence"
	}
	return o
}

// resolverCache memoizes the last resolution keyed by the cwd it was
// computed from, invalidated once the process cwd leaves that subtree, per
// spec.md §4.1 "Results are cached per-process but invalidated when the CWD
// leaves the cached root."
type resolverCache struct {
	mu       sync.Mutex
	cwd      string
	resolved string
}

var cache resolverCache

// ResolveProjectRoot returns the absolute project root using the precedence
// from spec.md §4.1:
//  1. AGENTS_PROJECT_ROOT env override
//  2. CWD (or an ancestor) containing the management dir marker
//  3. `git rev-parse --show-toplevel`
//
// It fails closed (KindPathResolution) when the resolved path equals the
// config directory itself, and when no strategy succeeds.
func ResolveProjectRoot(ctx context.Context, opts Options) (string, error) {
	opts = opts.withDefaults()

	cwd, err := os.Getwd()
	if err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindPathResolution, "get working directory", err)
	}

	cache.mu.Lock()
	if cache.resolved != "" && withinSubtree(cwd, cache.cwd) {
		root := cache.resolved
		cache.mu.Unlock()
		return root, nil
	}
	cache.mu.Unlock()

	root, err := resolveProjectRootUncached(ctx, cwd, opts)
	if err != nil {
		return "", err
	}

	cache.mu.Lock()
	cache.cwd = cwd
	cache.resolved = root
	cache.mu.Unlock()

	return root, nil
}

// ResetCache clears the per-process resolution cache; used by tests that
// need ResolveProjectRoot to re-derive from a fresh cwd.
func ResetCache() {
	cache.mu.Lock()
	defer cache.mu.Unlock()
	cache.cwd = ""
	cache.resolved = ""
}

func withinSubtree(cwd, cachedCWD string) bool {
	rel, err := filepath.Rel(cachedCWD, cwd)
	if err != nil {
		return false
	}
	return rel == "." || (len(rel) > 0 && rel[0] != '.')
}

func resolveProjectRootUncached(ctx context.Context, cwd string, opts Options) (string, error) {
	logger := log.With("component", "pathresolve")

	if override := os.Getenv(EnvProjectRoot); override != "" {
		abs, err := filepath.Abs(override)
		if err != nil {
			return "", edisonerrors.Wrap(edisonerrors.KindPathResolution, "resolve "+EnvProjectRoot, err)
		}
		return validateRoot(abs, opts)
	}

	if root, ok := findManagementMarker(cwd, opts); ok {
		logger.Debug("resolved project root via management marker", "root", root)
		return validateRoot(root, opts)
	}

	top, err := gitutil.ShowTopLevel(ctx, cwd, 5*time.Second)
	if err == nil && top != "" {
		logger.Debug("resolved project root via git toplevel", "root", top)
		return validateRoot(top, opts)
	}

	return "", edisonerrors.New(
		edisonerrors.KindPathResolution,
		"could not determine project root: no "+EnvProjectRoot+" override, no "+opts.ManagementDirName+" marker, and not inside a git repository",
	).WithRemediation("run from inside a git repository or set " + EnvProjectRoot)
}

// findManagementMarker walks up from start looking for a directory
// containing the management dir marker.
func findManagementMarker(start string, opts Options) (string, bool) {
	dir := start
	for {
		marker := filepath.Join(dir, opts.ManagementDirName)
		if info, err := os.Stat(marker); err == nil && info.IsDir() {
			return dir, true
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", false
		}
		dir = parent
	}
}

// validateRoot fails closed when root equals the config directory itself
// (spec.md §4.1: "invalid-root when resolution points at the config dir
// itself").
func validateRoot(root string, opts Options) (string, error) {
	if filepath.Base(root) == opts.ConfigDirName {
		return "", edisonerrors.New(
			edisonerrors.KindPathResolution,
			"resolved project root points at the config directory itself: "+root,
		).WithRemediation("run from the repository root, not from inside " + opts.ConfigDirName)
	}
	return root, nil
}

// Resolve computes the full Paths struct for a project root, applying the
// EDISON_paths__*/EDISON_project_management_dir env overrides (highest
// precedence per spec.md §6).
func Resolve(root string, opts Options) Paths {
	opts = opts.withDefaults()

	configDirName := opts.ConfigDirName
	if v := os.Getenv(EnvProjectConfigDir); v != "" {
		configDirName = v
	}
	managementDirName := opts.ManagementDirName
	if v := os.Getenv(EnvProjectManagement); v != "" {
		managementDirName = v
	}

	managementDir := filepath.Join(root, managementDirName)

	return Paths{
		ProjectRoot:   root,
		ConfigDir:     filepath.Join(root, configDirName),
		ManagementDir: managementDir,
		TasksDir:      filepath.Join(managementDir, "tasks"),
		QADir:         filepath.Join(managementDir, "qa"),
		SessionsDir:   filepath.Join(managementDir, "sessions"),
		EvidenceDir:   filepath.Join(managementDir, "qa", opts.EvidenceSubdir),
		LogsDir:       filepath.Join(managementDir, "logs"),
	}
}

// UserConfigDir returns the user-level config directory, honoring the
// EDISON_paths__user_config_dir override, falling back to
// os.UserConfigDir()/edison.
func UserConfigDir() (string, error) {
	if v := os.Getenv(EnvUserConfigDir); v != "" {
		return v, nil
	}
	base, err := os.UserConfigDir()
	if err != nil {
		return "", edisonerrors.Wrap(edisonerrors.KindPathResolution, "determine user config directory", err)
	}
	return filepath.Join(base, "edison"), nil
}
