package bronze

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWritePage_Layout(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	path, err := sink.WritePage("2026-08-29", "prov-a", "banking:get-products", 1, []byte(`{"data":{}}`))
	require.NoError(t, err)

	want := filepath.Join(dir,
		"ingestion_date=2026-08-29",
		"provider=prov-a",
		"endpoint=banking_get-products",
		"page=0001.json",
	)
	assert.Equal(t, want, path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, `{"data":{}}`, string(data))
}

func TestWritePage_OverwritesSameKey(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	_, err := sink.WritePage("2026-08-29", "p", "e", 2, []byte("first"))
	require.NoError(t, err)
	path, err := sink.WritePage("2026-08-29", "p", "e", 2, []byte("second"))
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "second", string(data))

	// Only one file for the key, no duplicates.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestStage_PromoteAndDiscard(t *testing.T) {
	dir := t.TempDir()
	sink := NewFileSink(dir)

	promote, _, err := sink.Stage("2026-08-29", "p", "e", 1, []byte("staged"))
	require.NoError(t, err)

	final := sink.PagePath("2026-08-29", "p", "e", 1)
	_, statErr := os.Stat(final)
	assert.True(t, os.IsNotExist(statErr), "page must not be visible before promote")

	require.NoError(t, promote())
	data, err := os.ReadFile(final)
	require.NoError(t, err)
	assert.Equal(t, "staged", string(data))

	// Discard path: staged bytes never become visible.
	_, discard2, err := sink.Stage("2026-08-29", "p", "e", 3, []byte("doomed"))
	require.NoError(t, err)
	discard2()
	_, statErr = os.Stat(sink.PagePath("2026-08-29", "p", "e", 3))
	assert.True(t, os.IsNotExist(statErr))

	// No stray temp files left behind.
	entries, err := os.ReadDir(filepath.Dir(final))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestSafeSegment(t *testing.T) {
	assert.Equal(t, "a_b_c.1-2_3", safeSegment("a b/c.1-2:3"))
}
