package history

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codekeep/codekeep/internal/config"
	"github.com/codekeep/codekeep/internal/model"
)

func newTestSQLiteHistory(t *testing.T) History {
	t.Helper()
	h, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() }) //nolint:errcheck
	require.NoError(t, h.Migrate(context.Background()))
	return h
}

func newTestFileHistory(t *testing.T) History {
	t.Helper()
	h, err := NewFile(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { h.Close() }) //nolint:errcheck
	return h
}

func forEachBackend(t *testing.T, fn func(t *testing.T, h History)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteHistory(t)) })
	t.Run("file", func(t *testing.T) { fn(t, newTestFileHistory(t)) })
}

func sample() AddInput {
	return AddInput{
		Description: "clamp a float into a range",
		Code:        "func clamp(v, lo, hi float64) float64 {\n\tif v < lo {\n\t\treturn lo\n\t}\n\tif v > hi {\n\t\treturn hi\n\t}\n\treturn v\n}",
		Language:    "go",
		Tags:        []string{"math"},
	}
}

// --- Add / Get ---

func TestHistory_AddAndGet(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		sub, err := h.Add(ctx, sample())
		require.NoError(t, err)
		assert.NotEmpty(t, sub.ID)
		assert.Greater(t, sub.Coherency, 0.0)

		got, err := h.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, sub.Code, got.Code)

		_, err = h.Get(ctx, "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestHistory_Add_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		_, err := h.Add(ctx, AddInput{Language: "go"})
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = h.Add(ctx, AddInput{Code: "x := 1"})
		assert.ErrorIs(t, err, model.ErrValidation)
	})
}

func TestHistory_DuplicatesAllowed(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		// Unlike patterns, identical submissions both land.
		a, err := h.Add(ctx, sample())
		require.NoError(t, err)
		b, err := h.Add(ctx, sample())
		require.NoError(t, err)
		assert.NotEqual(t, a.ID, b.ID)

		all, err := h.GetAll(ctx, Filters{})
		require.NoError(t, err)
		assert.Len(t, all, 2)
	})
}

// --- GetAll ---

func TestHistory_GetAll_FiltersAndLimit(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		_, err := h.Add(ctx, sample())
		require.NoError(t, err)

		py := sample()
		py.Language = "python"
		py.Code = "def clamp(v, lo, hi):\n    return max(lo, min(hi, v))"
		_, err = h.Add(ctx, py)
		require.NoError(t, err)

		goOnly, err := h.GetAll(ctx, Filters{Language: "GO"})
		require.NoError(t, err)
		require.Len(t, goOnly, 1)
		assert.Equal(t, "go", goOnly[0].Language)

		limited, err := h.GetAll(ctx, Filters{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)
	})
}

// --- Usage ---

func TestHistory_RecordUsage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		sub, err := h.Add(ctx, sample())
		require.NoError(t, err)

		require.NoError(t, h.RecordUsage(ctx, sub.ID, true))
		require.NoError(t, h.RecordUsage(ctx, sub.ID, false))

		got, err := h.Get(ctx, sub.ID)
		require.NoError(t, err)
		assert.Equal(t, 2, got.UsageCount)
		assert.Equal(t, 1, got.SuccessCount)

		assert.ErrorIs(t, h.RecordUsage(ctx, "missing", true), model.ErrNotFound)
	})
}

// --- Prune / Summarize ---

func TestHistory_Prune_CoherencyFloor(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		solid, err := h.Add(ctx, sample())
		require.NoError(t, err)

		stub := sample()
		stub.Code = "func doStuff() { // TODO implement"
		weak, err := h.Add(ctx, stub)
		require.NoError(t, err)
		require.Less(t, weak.Coherency, solid.Coherency)

		// Floor below both entries removes nothing.
		pruned, err := h.Prune(ctx, 0.1)
		require.NoError(t, err)
		assert.Zero(t, pruned)

		// Floor between the two removes only the weak entry.
		pruned, err = h.Prune(ctx, 0.75)
		require.NoError(t, err)
		assert.Equal(t, 1, pruned)

		_, err = h.Get(ctx, weak.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = h.Get(ctx, solid.ID)
		assert.NoError(t, err)
	})
}

func TestHistory_Summarize(t *testing.T) {
	forEachBackend(t, func(t *testing.T, h History) {
		ctx := context.Background()

		empty, err := h.Summarize(ctx)
		require.NoError(t, err)
		assert.Zero(t, empty.Count)
		assert.Zero(t, empty.AvgCoherency)

		_, err = h.Add(ctx, sample())
		require.NoError(t, err)
		py := sample()
		py.Language = "Python"
		py.Code = "def clamp(v, lo, hi):\n    return max(lo, min(hi, v))"
		_, err = h.Add(ctx, py)
		require.NoError(t, err)

		sum, err := h.Summarize(ctx)
		require.NoError(t, err)
		assert.Equal(t, 2, sum.Count)
		assert.Greater(t, sum.AvgCoherency, 0.0)
		assert.Equal(t, 1, sum.Languages["go"])
		assert.Equal(t, 1, sum.Languages["python"])
	})
}

// --- Open / legacy import ---

func TestHistoryOpen_FileDriver(t *testing.T) {
	h, err := Open(context.Background(), config.StoreConfig{Driver: "file", DataDir: t.TempDir()})
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck

	_, ok := h.(*FileHistory)
	assert.True(t, ok)
}

func TestHistoryOpen_ImportsLegacyLedgerOnce(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	legacy, err := NewFile(dir)
	require.NoError(t, err)
	sub, err := legacy.Add(ctx, sample())
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	h, err := Open(ctx, config.StoreConfig{Driver: "sqlite", DataDir: dir})
	require.NoError(t, err)
	_, ok := h.(*SQLiteHistory)
	require.True(t, ok)

	got, err := h.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Code, got.Code)
	require.NoError(t, h.Close())

	// Renamed source file means the second open imports nothing new.
	h, err = Open(ctx, config.StoreConfig{Driver: "sqlite", DataDir: dir})
	require.NoError(t, err)
	defer h.Close() //nolint:errcheck

	all, err := h.GetAll(ctx, Filters{})
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestFileHistory_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	first, err := NewFile(dir)
	require.NoError(t, err)
	sub, err := first.Add(ctx, sample())
	require.NoError(t, err)
	require.NoError(t, first.Close())

	second, err := NewFile(dir)
	require.NoError(t, err)
	defer second.Close() //nolint:errcheck

	got, err := second.Get(ctx, sub.ID)
	require.NoError(t, err)
	assert.Equal(t, sub.Code, got.Code)
}
