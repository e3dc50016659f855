package pathresolve

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func chdir(t *testing.T, dir string) {
	t.Helper()
	original, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() {
		_ = os.Chdir(original)
		ResetCache()
	})
	ResetCache()
}

func TestResolveProjectRootViaEnvOverride(t *testing.T) {
	root := t.TempDir()
	t.Setenv(EnvProjectRoot, root)
	ResetCache()

	resolved, err := ResolveProjectRoot(context.Background(), Options{})
	require.NoError(t, err)
	abs, _ := filepath.Abs(root)
	assert.Equal(t, abs, resolved)
}

func TestResolveProjectRootViaManagementMarker(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, ".project"), 0o755))
	sub := filepath.Join(root, "a", "b")
	require.NoError(t, os.MkdirAll(sub, 0o755))
	chdir(t, sub)

	resolved, err := ResolveProjectRoot(context.Background(), Options{})
	require.NoError(t, err)

	resolvedEval, err := filepath.EvalSymlinks(resolved)
	require.NoError(t, err)
	rootEval, err := filepath.EvalSymlinks(root)
	require.NoError(t, err)
	assert.Equal(t, rootEval, resolvedEval)
}

func TestResolveProjectRootRejectsConfigDirItself(t *testing.T) {
	root := t.TempDir()
	configDir := filepath.Join(root, ".edison")
	require.NoError(t, os.MkdirAll(filepath.Join(configDir, ".project"), 0o755))
	t.Setenv(EnvProjectRoot, configDir)
	ResetCache()

	_, err := ResolveProjectRoot(context.Background(), Options{})
	assert.Error(t, err)
}

func TestResolveDerivesSubtreeLayout(t *testing.T) {
	root := "/srv/project"
	paths := Resolve(root, Options{})

	assert.Equal(t, filepath.Join(root, ".edison"), paths.ConfigDir)
	assert.Equal(t, filepath.Join(root, ".project"), paths.ManagementDir)
	assert.Equal(t, filepath.Join(root, ".project", "tasks"), paths.TasksDir)
	assert.Equal(t, filepath.Join(root, ".project", "qa"), paths.QADir)
	assert.Equal(t, filepath.Join(root, ".project", "qa", "evidence"), paths.EvidenceDir)
	assert.Equal(t, filepath.Join(root, ".project", "sessions"), paths.SessionsDir)
}

func TestResolveHonorsManagementDirEnvOverride(t *testing.T) {
	t.Setenv(EnvProjectManagement, ".custom-mgmt")
	root := "/srv/project"
	paths := Resolve(root, Options{})
	assert.Equal(t, filepath.Join(root, ".custom-mgmt"), paths.ManagementDir)
}

func TestUserConfigDirHonorsOverride(t *testing.T) {
	t.Setenv(EnvUserConfigDir, "/custom/config")
	dir, err := UserConfigDir()
	require.NoError(t, err)
	assert.Equal(t, "/custom/config", dir)
}
