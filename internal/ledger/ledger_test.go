package ledger

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppendAndReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "processed_ids.txt")

	l, err := Open(path)
	require.NoError(t, err)
	assert.Equal(t, 0, l.Len())

	require.NoError(t, l.Append(10))
	require.NoError(t, l.Append(20))
	assert.True(t, l.Contains(10))
	assert.False(t, l.Contains(30))
	require.NoError(t, l.Close())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10\n20\n", string(data))

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.Equal(t, 2, reopened.Len())
	assert.True(t, reopened.Contains(20))

	require.NoError(t, reopened.Append(30))
	data, err = os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "10\n20\n30\n", string(data))
}

func TestAppendIsVisibleWithoutClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	l, err := Open(path)
	require.NoError(t, err)
	defer l.Close()

	require.NoError(t, l.Append(570))

	ids, err := Load(path)
	require.NoError(t, err)
	assert.Contains(t, ids, int64(570))
}

func TestLoadSkipsMalformedLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n\nabc\n2\n3"), 0o644))

	ids, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, int64(3))
}

func TestLoadMissingFile(t *testing.T) {
	ids, err := Load(filepath.Join(t.TempDir(), "missing.txt"))
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestAppendAfterClose(t *testing.T) {
	l, err := Open(filepath.Join(t.TempDir(), "ids.txt"))
	require.NoError(t, err)
	require.NoError(t, l.Close())
	assert.Error(t, l.Append(1))
	assert.NoError(t, l.Close())
}

func TestOpenTerminatesTornLine(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ids.txt")
	require.NoError(t, os.WriteFile(path, []byte("1\n2"), 0o644))

	l, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, l.Append(3))
	require.NoError(t, l.Close())

	ids, err := Load(path)
	require.NoError(t, err)
	assert.Len(t, ids, 3)
	assert.Contains(t, ids, int64(2))
	assert.Contains(t, ids, int64(3))
}
