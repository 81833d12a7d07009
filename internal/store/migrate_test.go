package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codekeep/codekeep/internal/config"
)

func fileExists(t *testing.T, path string) bool {
	t.Helper()
	_, err := os.Stat(path)
	return err == nil
}

// --- Open ---

func TestOpen_FileDriver(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(context.Background(), config.StoreConfig{Driver: "file", DataDir: dir}, testOptions())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*FileStore)
	assert.True(t, ok)
}

func TestOpen_SQLiteDefault(t *testing.T) {
	dir := t.TempDir()
	st, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", DataDir: dir}, testOptions())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	_, ok := st.(*SQLiteStore)
	assert.True(t, ok)
	assert.True(t, fileExists(t, filepath.Join(dir, DBFileName)))
}

func TestOpen_CreatesDataDir(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	st, err := Open(context.Background(), config.StoreConfig{Driver: "sqlite", DataDir: dir}, testOptions())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	assert.True(t, fileExists(t, filepath.Join(dir, DBFileName)))
}

// --- Legacy import ---

func TestImportLegacy_EndToEnd(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	// Seed a legacy flat-file store.
	legacy, err := NewFile(dir, testOptions())
	require.NoError(t, err)
	p, err := legacy.Register(ctx, stackInput())
	require.NoError(t, err)
	c, err := legacy.AddCandidate(ctx, CandidateInput{Name: "draft", Code: stackCode, Language: "go"})
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	// Opening the SQLite backend over the same directory imports it once.
	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DataDir: dir}, testOptions())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck
	_, ok := st.(*SQLiteStore)
	require.True(t, ok)

	got, err := st.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, p.Name, got.Name)
	assert.Equal(t, p.Version, got.Version)

	candidates, err := st.GetAllCandidates(ctx, CandidateFilters{})
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	assert.Equal(t, c.ID, candidates[0].ID)

	// The legacy documents are renamed, not deleted.
	assert.False(t, fileExists(t, filepath.Join(dir, patternsFile)))
	assert.True(t, fileExists(t, filepath.Join(dir, patternsFile+MigratedSuffix)))
	assert.False(t, fileExists(t, filepath.Join(dir, candidatesFile)))
	assert.True(t, fileExists(t, filepath.Join(dir, candidatesFile+MigratedSuffix)))
}

func TestImportLegacy_SecondOpenDoesNotReimport(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	legacy, err := NewFile(dir, testOptions())
	require.NoError(t, err)
	_, err = legacy.Register(ctx, stackInput())
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DataDir: dir}, testOptions())
	require.NoError(t, err)
	require.NoError(t, st.Close())

	st, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DataDir: dir}, testOptions())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	all, err := st.GetAll(ctx, Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestImportLegacy_NoLegacyFilesIsANoOp(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	st, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DataDir: dir}, testOptions())
	require.NoError(t, err)
	defer st.Close() //nolint:errcheck

	all, err := st.GetAll(ctx, Filters{})
	require.NoError(t, err)
	assert.Empty(t, all)
}

// --- Flat-file persistence ---

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFile(dir, testOptions())
	require.NoError(t, err)
	p, err := first.Register(ctx, stackInput())
	require.NoError(t, err)
	require.NoError(t, first.RecordUsage(ctx, p.ID, true))
	_, err = first.Vote(ctx, p.ID, "alice", 1)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewFile(dir, testOptions())
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck

	got, err := second.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.UsageCount)
	assert.Equal(t, 1, got.Upvotes)

	// The audit sequence keeps counting after a reopen.
	entries, err := second.AuditLog(ctx, AuditFilters{})
	require.NoError(t, err)
	require.NotEmpty(t, entries)
	prevTop := entries[0].Seq

	require.NoError(t, second.ReportBug(ctx, p.ID, "flaky"))
	entries, err = second.AuditLog(ctx, AuditFilters{Limit: 1})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, prevTop+1, entries[0].Seq)
}

func TestFileStore_CorruptDocumentSurfaces(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, patternsFile), []byte("{not json"), 0o644))

	_, err := NewFile(dir, testOptions())
	assert.Error(t, err)
}
