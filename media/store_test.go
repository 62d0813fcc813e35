package media

import (
	"bytes"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *LocalStorage {
	t.Helper()
	store, err := NewLocalStorage(t.TempDir(), "http://localhost:8080/api", map[AssetType]string{
		AssetTypeAvatar:   "avatars",
		AssetTypeHeadshot: "headshots",
	})
	require.NoError(t, err)
	return store
}

func TestStoreSaveAndGet(t *testing.T) {
	store := newTestStore(t)

	relPath, err := store.Save(AssetTypeAvatar, "7", "avatar.jpg", bytes.NewReader([]byte("first")), false)
	require.NoError(t, err)
	assert.Equal(t, "avatars/7/avatar.jpg", relPath)

	reader, info, err := store.Get(relPath)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), content)
	assert.Equal(t, int64(5), info.Size())
}

func TestStoreSaveWithoutOverwriteConflicts(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(AssetTypeAvatar, "7", "avatar.jpg", bytes.NewReader([]byte("first")), false)
	require.NoError(t, err)

	_, err = store.Save(AssetTypeAvatar, "7", "avatar.jpg", bytes.NewReader([]byte("second")), false)
	assert.ErrorIs(t, err, ErrObjectExists)
}

func TestStoreSaveOverwriteReplacesObject(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(AssetTypeAvatar, "7", "avatar.jpg", bytes.NewReader([]byte("first")), true)
	require.NoError(t, err)

	relPath, err := store.Save(AssetTypeAvatar, "7", "avatar.jpg", bytes.NewReader([]byte("second")), true)
	require.NoError(t, err)

	reader, _, err := store.Get(relPath)
	require.NoError(t, err)
	defer reader.Close()

	content, err := io.ReadAll(reader)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), content)
}

func TestStorePublicURLShape(t *testing.T) {
	store := newTestStore(t)
	assert.Equal(t, "http://localhost:8080/api/avatars/7/avatar.jpg", store.PublicURL("avatars/7/avatar.jpg"))
}

func TestStoreRejectsTraversal(t *testing.T) {
	store := newTestStore(t)

	_, _, err := store.Get("../../../etc/passwd")
	assert.Error(t, err)

	_, err = store.Save(AssetTypeAvatar, "../../escape", "avatar.jpg", bytes.NewReader([]byte("x")), true)
	assert.Error(t, err)
}

func TestStoreRejectsSiblingWithBasePrefix(t *testing.T) {
	// a sibling directory whose name shares the base path as a prefix must
	// not satisfy the containment check
	root := t.TempDir()
	base := filepath.Join(root, "media")
	sibling := filepath.Join(root, "media2")
	require.NoError(t, os.MkdirAll(sibling, 0755))
	require.NoError(t, os.WriteFile(filepath.Join(sibling, "secret.txt"), []byte("private"), 0644))

	store, err := NewLocalStorage(base, "http://localhost:8080/api", map[AssetType]string{
		AssetTypeAvatar: "avatars",
	})
	require.NoError(t, err)

	_, _, err = store.Get("../media2/secret.txt")
	assert.Error(t, err)

	assert.Error(t, store.Delete("../media2/secret.txt"))
	_, statErr := os.Stat(filepath.Join(sibling, "secret.txt"))
	assert.NoError(t, statErr, "delete must not reach outside the base path")
}

func TestStoreList(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Save(AssetTypeAvatar, "7", "a.jpg", bytes.NewReader([]byte("a")), true)
	require.NoError(t, err)
	_, err = store.Save(AssetTypeAvatar, "7", "b.jpg", bytes.NewReader([]byte("b")), true)
	require.NoError(t, err)

	names, err := store.List(AssetTypeAvatar, "7")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.jpg", "b.jpg"}, names)

	names, err = store.List(AssetTypeAvatar, "99")
	require.NoError(t, err)
	assert.Empty(t, names)
}

func TestStoreDelete(t *testing.T) {
	store := newTestStore(t)

	relPath, err := store.Save(AssetTypeAvatar, "7", "avatar.jpg", bytes.NewReader([]byte("x")), true)
	require.NoError(t, err)

	require.NoError(t, store.Delete(relPath))
	_, _, err = store.Get(relPath)
	assert.Error(t, err)

	// deleting an already-gone object is not an error
	assert.NoError(t, store.Delete(relPath))
}
