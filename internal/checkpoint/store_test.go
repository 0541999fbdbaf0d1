package checkpoint

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "checkpoints.db")
	st, err := Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return st, path
}

func TestSetAndHas(t *testing.T) {
	st, _ := openStore(t)

	ok, err := st.Has(Temporary, "fc_finish")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, st.Set(Temporary, "fc_finish"))

	ok, err = st.Has(Temporary, "fc_finish")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSetValueOverwrites(t *testing.T) {
	st, _ := openStore(t)

	require.NoError(t, st.SetValue(Permanent, "key", "one"))
	require.NoError(t, st.SetValue(Permanent, "key", "two"))

	value, ok, err := st.Get(Permanent, "key")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "two", value)
}

func TestNamespaceIsolation(t *testing.T) {
	st, _ := openStore(t)

	require.NoError(t, st.Set(Temporary, "shared"))

	ok, err := st.Has(Permanent, "shared")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestClearOnlyTargetNamespace(t *testing.T) {
	st, _ := openStore(t)

	require.NoError(t, st.Set(Temporary, "a"))
	require.NoError(t, st.Set(Temporary, "b"))
	require.NoError(t, st.Set(Permanent, "keep"))

	require.NoError(t, st.Clear(Temporary))

	ok, err := st.Has(Temporary, "a")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = st.Has(Permanent, "keep")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestRemove(t *testing.T) {
	st, _ := openStore(t)

	require.NoError(t, st.Set(Temporary, "unfinished_task"))
	require.NoError(t, st.Remove(Temporary, "unfinished_task"))

	ok, err := st.Has(Temporary, "unfinished_task")
	require.NoError(t, err)
	assert.False(t, ok)

	// Removing a missing key is not an error.
	assert.NoError(t, st.Remove(Temporary, "unfinished_task"))
}

func TestTimeRoundTrip(t *testing.T) {
	st, _ := openStore(t)

	ts := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	require.NoError(t, st.SetTime(Temporary, "task_timestamp", ts))

	got, ok, err := st.GetTime(Temporary, "task_timestamp")
	require.NoError(t, err)
	require.True(t, ok)
	assert.True(t, got.Equal(ts))

	_, ok, err = st.GetTime(Temporary, "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDurabilityAcrossReopen(t *testing.T) {
	st, path := openStore(t)

	require.NoError(t, st.Set(Permanent, "survives"))
	require.NoError(t, st.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = reopened.Close() }()

	ok, err := reopened.Has(Permanent, "survives")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestStamp(t *testing.T) {
	ts := time.Date(2026, 8, 27, 9, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-08-27 09:00:00", Stamp(ts))
}
