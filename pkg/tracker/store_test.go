package tracker

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStoreRoundTrip(t *testing.T) {
	s := NewMemoryStore()

	b, err := s.Get("missing")
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, s.Set("k", []byte("v1")))
	require.NoError(t, s.Set("k", []byte("v2"))) // wholesale overwrite

	b, err = s.Get("k")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), b)

	require.NoError(t, s.Remove("k"))
	b, err = s.Get("k")
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestFileStoreRoundTrip(t *testing.T) {
	s, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	b, err := s.Get(DefaultSnapshotKey)
	require.NoError(t, err)
	assert.Nil(t, b)

	require.NoError(t, s.Set(DefaultSnapshotKey, []byte(`[{"eventId":"a"}]`)))
	b, err = s.Get(DefaultSnapshotKey)
	require.NoError(t, err)
	assert.JSONEq(t, `[{"eventId":"a"}]`, string(b))

	require.NoError(t, s.Remove(DefaultSnapshotKey))
	require.NoError(t, s.Remove(DefaultSnapshotKey)) // removing twice is fine
	b, err = s.Get(DefaultSnapshotKey)
	require.NoError(t, err)
	assert.Nil(t, b)
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	s, err := NewFileStore(dir)
	require.NoError(t, err)

	require.NoError(t, s.Set("a/../b", []byte("x")))
	b, err := s.Get("a/../b")
	require.NoError(t, err)
	assert.Equal(t, []byte("x"), b)
}
