package output

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubmitAppendsInOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "stocks.txt")

	w := NewWriter()
	defer func() { _ = w.Close() }()

	var dones []*Done
	for _, line := range []string{"one\n", "two\n", "three\n"} {
		dones = append(dones, w.Submit(Batch{path: []byte(line)}))
	}
	for _, d := range dones {
		require.NoError(t, d.Wait())
	}

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "one\ntwo\nthree\n", string(data))
}

func TestSubmitSkipsEmptyPayloads(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "sellers.txt")

	w := NewWriter()
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Submit(Batch{path: nil}).Wait())

	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestCloseHandlesReopensOnNextSubmit(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "brands.txt")

	w := NewWriter()
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Submit(Batch{path: []byte("before\n")}).Wait())
	require.NoError(t, w.CloseHandles())
	require.NoError(t, w.Submit(Batch{path: []byte("after\n")}).Wait())
	require.NoError(t, w.CloseHandles())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "before\nafter\n", string(data))
}

func TestSubmitToMultiplePaths(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "products.txt")
	second := filepath.Join(dir, "positions.txt")

	w := NewWriter()
	defer func() { _ = w.Close() }()

	require.NoError(t, w.Submit(Batch{
		first:  []byte("p\n"),
		second: []byte("pos\n"),
	}).Wait())

	data, err := os.ReadFile(first)
	require.NoError(t, err)
	assert.Equal(t, "p\n", string(data))
	data, err = os.ReadFile(second)
	require.NoError(t, err)
	assert.Equal(t, "pos\n", string(data))
}

func TestWriteErrorSurfaces(t *testing.T) {
	w := NewWriter()
	defer func() { _ = w.Close() }()

	err := w.Submit(Batch{filepath.Join(t.TempDir(), "missing", "out.txt"): []byte("x\n")}).Wait()
	assert.Error(t, err)
}
