package storage

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type doc struct {
	Users map[string]string `json:"users"`
}

func TestJSONStoreRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := NewJSONStore(dir, "users.json")
	require.NoError(t, err)

	var empty doc
	require.NoError(t, s.Load(&empty), "missing file is not an error")
	assert.Nil(t, empty.Users)

	require.NoError(t, s.Save(doc{Users: map[string]string{"u1": "Ada"}}))
	_, err = os.Stat(s.Path() + ".tmp")
	assert.True(t, os.IsNotExist(err), "temp file should be renamed away")

	var got doc
	require.NoError(t, s.Load(&got))
	assert.Equal(t, "Ada", got.Users["u1"])
}

func TestNilJSONStoreIsNoop(t *testing.T) {
	s, err := NewJSONStore("", "users.json")
	require.NoError(t, err)
	assert.Nil(t, s)
	assert.NoError(t, s.Save(doc{}))
	assert.NoError(t, s.Load(&doc{}))
}
