package store

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kestreldns/kestrel/internal/data"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "revisions.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func testTree(t *testing.T, text string) *data.Element {
	t.Helper()
	tree, err := data.FromString(text)
	require.NoError(t, err)
	return tree
}

func TestSaveAssignsGrowingVersions(t *testing.T) {
	s := openTestStore(t)

	v1, err := s.Save(testTree(t, `{ "port": 53 }`))
	require.NoError(t, err)
	v2, err := s.Save(testTree(t, `{ "port": 5353 }`))
	require.NoError(t, err)

	assert.Equal(t, int64(1), v1)
	assert.Equal(t, int64(2), v2)
}

func TestLoadReturnsSavedTree(t *testing.T) {
	s := openTestStore(t)
	tree := testTree(t, `{ "server": { "port": 53, "tcp": true }, "keys": [ "a", "b" ] }`)

	v, err := s.Save(tree)
	require.NoError(t, err)

	got, err := s.Load(v)
	require.NoError(t, err)
	assert.True(t, data.Equal(got, tree))
	assert.Equal(t, tree.Str(), got.Str())
}

func TestLoadUnknownVersion(t *testing.T) {
	s := openTestStore(t)

	_, err := s.Load(42)
	assert.ErrorIs(t, err, ErrNoRevision)
}

func TestLatest(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.Latest()
	assert.ErrorIs(t, err, ErrNoRevision)

	s.Save(testTree(t, `{ "port": 53 }`))
	newest := testTree(t, `{ "port": 5353 }`)
	v2, err := s.Save(newest)
	require.NoError(t, err)

	version, tree, err := s.Latest()
	require.NoError(t, err)
	assert.Equal(t, v2, version)
	assert.True(t, data.Equal(tree, newest))
}

func TestVersions(t *testing.T) {
	s := openTestStore(t)

	versions, err := s.Versions()
	require.NoError(t, err)
	assert.Empty(t, versions)

	for i := 0; i < 3; i++ {
		_, err := s.Save(testTree(t, `{ "n": 1 }`))
		require.NoError(t, err)
	}

	versions, err = s.Versions()
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, versions)
}

func TestStoreSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "revisions.db")

	s, err := Open(path)
	require.NoError(t, err)
	tree := testTree(t, `{ "port": 53 }`)
	v, err := s.Save(tree)
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()

	got, err := s.Load(v)
	require.NoError(t, err)
	assert.True(t, data.Equal(got, tree))
}
