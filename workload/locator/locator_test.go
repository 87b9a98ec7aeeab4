package locator

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/modix-panel/modix/util/common"
	"github.com/modix-panel/modix/workload"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeInspector struct {
	details map[string]*workload.Detail
}

func (f *fakeInspector) Inspect(_ context.Context, id string) (*workload.Detail, error) {
	d, ok := f.details[id]
	if !ok {
		return nil, common.New(common.KindNotFound, "no such workload %s", id)
	}
	return d, nil
}

func newTestLocator(t *testing.T) (*Locator, string) {
	t.Helper()
	mount := t.TempDir()

	inspector := &fakeInspector{details: map[string]*workload.Detail{
		"w1": {
			Mounts: []workload.Mount{{Source: mount, Destination: "/data"}},
		},
	}}
	return &Locator{Inspector: inspector}, mount
}

func TestResolveInsideMount(t *testing.T) {
	loc, mount := newTestLocator(t)

	require.NoError(t, os.WriteFile(filepath.Join(mount, "server.properties"), []byte("x"), 0o644))

	res, err := loc.Resolve(context.Background(), "w1", "server.properties")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mount, "server.properties"), res.Path)
}

func TestResolveRejectsDotDotEscape(t *testing.T) {
	loc, _ := newTestLocator(t)

	for _, p := range []string{
		"../outside",
		"../../etc/passwd",
		"a/../../../../etc/passwd",
		"/../escape",
	} {
		_, err := loc.Resolve(context.Background(), "w1", p)
		require.Error(t, err, p)
		assert.Equal(t, common.KindPathTraversal, common.KindOf(err), p)
	}
}

func TestResolveAbsolutePathStaysRelative(t *testing.T) {
	loc, mount := newTestLocator(t)

	// An absolute user path is interpreted relative to the mount, never
	// as a host path.
	res, err := loc.Resolve(context.Background(), "w1", "/etc/passwd")
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(mount, "etc/passwd"), res.Path)
}

func TestResolveRejectsSymlinkEscape(t *testing.T) {
	loc, mount := newTestLocator(t)
	outside := t.TempDir()

	require.NoError(t, os.Symlink(outside, filepath.Join(mount, "sneaky")))

	_, err := loc.Resolve(context.Background(), "w1", "sneaky/config.yml")
	require.Error(t, err)
	assert.Equal(t, common.KindPathTraversal, common.KindOf(err))
}

func TestResolveAllowsInternalSymlink(t *testing.T) {
	loc, mount := newTestLocator(t)

	require.NoError(t, os.MkdirAll(filepath.Join(mount, "real"), 0o755))
	require.NoError(t, os.Symlink(filepath.Join(mount, "real"), filepath.Join(mount, "alias")))

	res, err := loc.Resolve(context.Background(), "w1", "alias/save.dat")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(res.Path, res.Roots[0]))
}

func TestResolveNoMounts(t *testing.T) {
	loc := &Locator{Inspector: &fakeInspector{details: map[string]*workload.Detail{
		"bare": {},
	}}}

	_, err := loc.Resolve(context.Background(), "bare", "anything")
	require.Error(t, err)
	assert.Equal(t, common.KindNotFound, common.KindOf(err))
}

func TestListAndOpen(t *testing.T) {
	loc, mount := newTestLocator(t)

	require.NoError(t, os.MkdirAll(filepath.Join(mount, "world"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mount, "world", "level.dat"), []byte("data"), 0o644))

	entries, err := loc.List(context.Background(), "w1", "world")
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "level.dat", entries[0].Name)
	assert.EqualValues(t, 4, entries[0].Size)
	assert.False(t, entries[0].IsDir)

	f, info, err := loc.Open(context.Background(), "w1", "world/level.dat")
	require.NoError(t, err)
	defer f.Close()
	assert.EqualValues(t, 4, info.Size())

	body, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Equal(t, "data", string(body))
}

func TestWriteIsAtomicReplace(t *testing.T) {
	loc, mount := newTestLocator(t)

	target := filepath.Join(mount, "cfg", "server.yml")
	require.NoError(t, loc.Write(context.Background(), "w1", "cfg/server.yml", strings.NewReader("one")))
	require.NoError(t, loc.Write(context.Background(), "w1", "cfg/server.yml", strings.NewReader("two")))

	body, err := os.ReadFile(target)
	require.NoError(t, err)
	assert.Equal(t, "two", string(body))

	// No temp droppings left behind.
	entries, err := os.ReadDir(filepath.Dir(target))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestDeleteRefusesRoot(t *testing.T) {
	loc, _ := newTestLocator(t)

	err := loc.Delete(context.Background(), "w1", "", false)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))

	err = loc.Delete(context.Background(), "w1", "/", false)
	require.Error(t, err)
	assert.Equal(t, common.KindInvalidArgument, common.KindOf(err))
}

func TestDeleteNonEmptyDirNeedsRecursive(t *testing.T) {
	loc, mount := newTestLocator(t)

	require.NoError(t, os.MkdirAll(filepath.Join(mount, "plugins"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(mount, "plugins", "a.jar"), []byte("x"), 0o644))

	err := loc.Delete(context.Background(), "w1", "plugins", false)
	require.Error(t, err)
	assert.Equal(t, common.KindConflict, common.KindOf(err))

	require.NoError(t, loc.Delete(context.Background(), "w1", "plugins", true))
	_, statErr := os.Stat(filepath.Join(mount, "plugins"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestDeleteFile(t *testing.T) {
	loc, mount := newTestLocator(t)

	require.NoError(t, os.WriteFile(filepath.Join(mount, "old.log"), []byte("x"), 0o644))
	require.NoError(t, loc.Delete(context.Background(), "w1", "old.log", false))

	_, err := os.Stat(filepath.Join(mount, "old.log"))
	assert.True(t, os.IsNotExist(err))
}
