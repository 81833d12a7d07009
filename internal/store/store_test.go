package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codekeep/codekeep/internal/config"
	"github.com/codekeep/codekeep/internal/model"
)

func testOptions() Options {
	return Options{
		Tiers: config.TierConfig{
			AtomicMaxLines:      30,
			AtomicMaxNesting:    3,
			CompositeMaxLines:   90,
			CompositeMaxNesting: 5,
		},
		Actor: "test",
	}
}

func newTestSQLiteStore(t *testing.T) Store {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	st, err := NewSQLite(dbPath, testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))
	return st
}

func newTestFileStore(t *testing.T) Store {
	t.Helper()
	st, err := NewFile(t.TempDir(), testOptions())
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	return st
}

// forEachBackend runs a test against both backends. The same operation
// sequence must produce equivalent observable state on either one.
func forEachBackend(t *testing.T, fn func(t *testing.T, st Store)) {
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLiteStore(t)) })
	t.Run("file", func(t *testing.T) { fn(t, newTestFileStore(t)) })
}

const stackCode = `type Stack struct {
	items []int
}

func (s *Stack) Push(v int) {
	s.items = append(s.items, v)
}

func (s *Stack) Pop() (int, bool) {
	if len(s.items) == 0 {
		return 0, false
	}
	v := s.items[len(s.items)-1]
	s.items = s.items[:len(s.items)-1]
	return v, true
}`

func stackInput() RegisterInput {
	return RegisterInput{
		Name:        "stack",
		Code:        stackCode,
		Language:    "go",
		PatternType: "data-structure",
		Description: "LIFO stack with push and pop",
		Tags:        []string{"data-structure", "lifo"},
	}
}

func boolPtr(b bool) *bool { return &b }

// --- Register ---

func TestStore_Register(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)
		assert.NotEmpty(t, p.ID)
		assert.Equal(t, 1, p.Version)
		assert.Greater(t, p.Coherency, 0.0)
		assert.Equal(t, model.TierAtomic, p.Tier)

		got, err := st.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)
		assert.Equal(t, stackCode, got.Code)
	})
}

func TestStore_Register_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		cases := []RegisterInput{
			{Code: stackCode, Language: "go"},
			{Name: "stack", Language: "go"},
			{Name: "stack", Code: stackCode},
			{Name: "  ", Code: stackCode, Language: "go"},
		}
		for _, in := range cases {
			_, err := st.Register(ctx, in)
			assert.ErrorIs(t, err, model.ErrValidation)
		}
	})
}

func TestStore_Register_DedupLowerCoherencyIsNoOp(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		in := stackInput()
		in.TestsPassed = boolPtr(true)
		first, err := st.Register(ctx, in)
		require.NoError(t, err)

		// Same (name, language), worse code, no test proof.
		weak := stackInput()
		weak.Code = "func Pop() { // TODO"
		second, err := st.Register(ctx, weak)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.Equal(t, first.Version, second.Version)
		assert.Equal(t, stackCode, second.Code)
	})
}

func TestStore_Register_DedupHigherCoherencyReplacesInPlace(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		first, err := st.Register(ctx, stackInput())
		require.NoError(t, err)
		require.NoError(t, st.RecordUsage(ctx, first.ID, true))

		// Test-proven version of the same pattern scores higher.
		better := stackInput()
		better.TestsPassed = boolPtr(true)
		replaced, err := st.Register(ctx, better)
		require.NoError(t, err)

		assert.Equal(t, first.ID, replaced.ID)
		assert.Greater(t, replaced.Coherency, first.Coherency)
		assert.Equal(t, first.Version+1, replaced.Version)
		assert.Equal(t, 1, replaced.UsageCount)
		assert.Equal(t, 1, replaced.SuccessCount)
	})
}

func TestStore_Register_DedupIsCaseInsensitive(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		shouted := stackInput()
		shouted.Name = "STACK"
		shouted.Language = "Go"
		_, err = st.Register(ctx, shouted)
		require.NoError(t, err)

		all, err := st.GetAll(ctx, Filters{})
		require.NoError(t, err)
		assert.Len(t, all, 1)
	})
}

// --- Get / GetAll ---

func TestStore_Get_NotFound(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		_, err := st.Get(context.Background(), "missing")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestStore_GetByName(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		got, err := st.GetByName(ctx, "STACK", "GO")
		require.NoError(t, err)
		assert.Equal(t, p.ID, got.ID)

		_, err = st.GetByName(ctx, "stack", "python")
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestStore_GetAll_Filters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		_, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		queue := stackInput()
		queue.Name = "queue"
		queue.Language = "python"
		queue.Code = "def push(q, v):\n    q.append(v)\n\ndef pop(q):\n    return q.pop(0)"
		queue.Tags = []string{"data-structure", "fifo"}
		_, err = st.Register(ctx, queue)
		require.NoError(t, err)

		byLang, err := st.GetAll(ctx, Filters{Language: "go"})
		require.NoError(t, err)
		require.Len(t, byLang, 1)
		assert.Equal(t, "stack", byLang[0].Name)

		byTag, err := st.GetAll(ctx, Filters{Tag: "FIFO"})
		require.NoError(t, err)
		require.Len(t, byTag, 1)
		assert.Equal(t, "queue", byTag[0].Name)

		limited, err := st.GetAll(ctx, Filters{Limit: 1})
		require.NoError(t, err)
		assert.Len(t, limited, 1)

		none, err := st.GetAll(ctx, Filters{MinCoherency: 1.01})
		require.NoError(t, err)
		assert.Empty(t, none)
	})
}

// --- Update (optimistic concurrency) ---

func TestStore_Update_BumpsVersion(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		desc := "generic LIFO stack"
		updated, err := st.Update(ctx, p.ID, p.Version, model.PatternUpdate{Description: &desc})
		require.NoError(t, err)
		assert.Equal(t, p.Version+1, updated.Version)
		assert.Equal(t, desc, updated.Description)
	})
}

func TestStore_Update_StaleVersionFails(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		descA, descB := "writer A", "writer B"

		// Two callers read version 1; exactly one write wins.
		_, err = st.Update(ctx, p.ID, p.Version, model.PatternUpdate{Description: &descA})
		require.NoError(t, err)

		_, err = st.Update(ctx, p.ID, p.Version, model.PatternUpdate{Description: &descB})
		assert.ErrorIs(t, err, model.ErrConcurrentModification)

		got, err := st.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, descA, got.Description)
		assert.Equal(t, p.Version+1, got.Version)
	})
}

// --- Usage and bugs ---

func TestStore_RecordUsage(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		require.NoError(t, st.RecordUsage(ctx, p.ID, true))
		require.NoError(t, st.RecordUsage(ctx, p.ID, false))
		require.NoError(t, st.RecordUsage(ctx, p.ID, true))

		got, err := st.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 3, got.UsageCount)
		assert.Equal(t, 2, got.SuccessCount)
		// Counter mutations do not bump the version.
		assert.Equal(t, p.Version, got.Version)

		assert.ErrorIs(t, st.RecordUsage(ctx, "missing", true), model.ErrNotFound)
	})
}

func TestStore_ReportBug(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		require.NoError(t, st.ReportBug(ctx, p.ID, "pop panics on empty stack"))
		got, err := st.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.BugReports)
	})
}

// --- Voting ---

func TestStore_Vote_FirstVote(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		voted, err := st.Vote(ctx, p.ID, "alice", model.VoteUp)
		require.NoError(t, err)
		assert.Equal(t, 1, voted.Upvotes)
		assert.Zero(t, voted.Downvotes)
		// Fresh voter carries default reputation, so weight 1.0.
		assert.InDelta(t, 1.0, voted.WeightedVoteScore, 0.001)
	})
}

func TestStore_Vote_DuplicateRejected(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		_, err = st.Vote(ctx, p.ID, "alice", model.VoteUp)
		require.NoError(t, err)

		_, err = st.Vote(ctx, p.ID, "alice", model.VoteUp)
		assert.ErrorIs(t, err, model.ErrDuplicateVote)

		got, err := st.Get(ctx, p.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, got.Upvotes)
	})
}

func TestStore_Vote_FlipMovesCounters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		_, err = st.Vote(ctx, p.ID, "alice", model.VoteUp)
		require.NoError(t, err)

		flipped, err := st.Vote(ctx, p.ID, "alice", model.VoteDown)
		require.NoError(t, err)
		assert.Zero(t, flipped.Upvotes)
		assert.Equal(t, 1, flipped.Downvotes)
		assert.InDelta(t, -1.0, flipped.WeightedVoteScore, 0.001)
	})
}

func TestStore_Vote_Validation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		_, err = st.Vote(ctx, p.ID, "alice", 0)
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = st.Vote(ctx, p.ID, "", model.VoteUp)
		assert.ErrorIs(t, err, model.ErrValidation)
		_, err = st.Vote(ctx, "missing", "alice", model.VoteUp)
		assert.ErrorIs(t, err, model.ErrNotFound)
	})
}

func TestStore_UpdateVoterReputation(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		_, err = st.Vote(ctx, p.ID, "optimist", model.VoteUp)
		require.NoError(t, err)
		_, err = st.Vote(ctx, p.ID, "pessimist", model.VoteDown)
		require.NoError(t, err)

		// Success agrees with the upvoter and disagrees with the downvoter,
		// so the next vote from each carries a different weight.
		require.NoError(t, st.UpdateVoterReputation(ctx, p.ID, true))

		other := stackInput()
		other.Name = "queue"
		q, err := st.Register(ctx, other)
		require.NoError(t, err)

		up, err := st.Vote(ctx, q.ID, "optimist", model.VoteUp)
		require.NoError(t, err)
		assert.InDelta(t, 1.05, up.WeightedVoteScore, 0.001)
	})
}

// --- Retire ---

func TestStore_Retire(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		strong := stackInput()
		strong.TestsPassed = boolPtr(true)
		keep, err := st.Register(ctx, strong)
		require.NoError(t, err)

		weak := stackInput()
		weak.Name = "half-finished"
		weak.Code = "func doStuff() { // TODO implement"
		weak.TestsPassed = boolPtr(false)
		gone, err := st.Register(ctx, weak)
		require.NoError(t, err)
		require.Less(t, gone.Coherency, keep.Coherency)

		result, err := st.Retire(ctx, 0.6, func(p *model.Pattern) float64 { return p.SuccessRate(0.5) })
		require.NoError(t, err)
		assert.Equal(t, 1, result.Retired)
		assert.Equal(t, 1, result.Remaining)

		_, err = st.Get(ctx, gone.ID)
		assert.ErrorIs(t, err, model.ErrNotFound)
		_, err = st.Get(ctx, keep.ID)
		assert.NoError(t, err)
	})
}

// --- Candidates ---

func TestStore_Candidates_AddListPromote(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		c, err := st.AddCandidate(ctx, CandidateInput{
			Name:     "draft-stack",
			Code:     stackCode,
			Language: "go",
		})
		require.NoError(t, err)
		assert.False(t, c.Promoted())

		listed, err := st.GetAllCandidates(ctx, CandidateFilters{})
		require.NoError(t, err)
		require.Len(t, listed, 1)

		promoted, err := st.PromoteCandidate(ctx, c.ID)
		require.NoError(t, err)
		assert.True(t, promoted.Promoted())

		// Promoted candidates drop out of the listing.
		listed, err = st.GetAllCandidates(ctx, CandidateFilters{})
		require.NoError(t, err)
		assert.Empty(t, listed)

		// Promotion is idempotent and keeps the original timestamp.
		again, err := st.PromoteCandidate(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, promoted.PromotedAt.Unix(), again.PromotedAt.Unix())
	})
}

func TestStore_PruneCandidates_SparesPromoted(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		junkCode := "x = // TODO"
		promoted, err := st.AddCandidate(ctx, CandidateInput{Name: "keep-me", Code: junkCode, Language: "go"})
		require.NoError(t, err)
		_, err = st.PromoteCandidate(ctx, promoted.ID)
		require.NoError(t, err)

		doomed, err := st.AddCandidate(ctx, CandidateInput{Name: "prune-me", Code: junkCode, Language: "go"})
		require.NoError(t, err)

		pruned, err := st.PruneCandidates(ctx, 0.99)
		require.NoError(t, err)
		assert.Equal(t, 1, pruned)

		// The promoted candidate survives even below the threshold.
		kept, err := st.PromoteCandidate(ctx, promoted.ID)
		require.NoError(t, err)
		assert.True(t, kept.Promoted())

		listed, err := st.GetAllCandidates(ctx, CandidateFilters{})
		require.NoError(t, err)
		for _, c := range listed {
			assert.NotEqual(t, doomed.ID, c.ID)
		}
	})
}

// --- Evolution ---

func TestStore_LinkEvolution(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		parent, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		childIn := stackInput()
		childIn.Name = "stack-generic"
		childIn.ParentID = parent.ID
		child, err := st.Register(ctx, childIn)
		require.NoError(t, err)

		require.NoError(t, st.LinkEvolution(ctx, parent.ID, child.ID))

		gotParent, err := st.Get(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotParent.ChildCount())

		gotChild, err := st.Get(ctx, child.ID)
		require.NoError(t, err)
		assert.Equal(t, parent.ID, gotChild.ParentID())
	})
}

func TestStore_LinkEvolution_RelinkIsNoOp(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		parent, err := st.Register(ctx, stackInput())
		require.NoError(t, err)

		childIn := stackInput()
		childIn.Name = "stack-generic"
		childIn.ParentID = parent.ID
		child, err := st.Register(ctx, childIn)
		require.NoError(t, err)

		require.NoError(t, st.LinkEvolution(ctx, parent.ID, child.ID))
		require.NoError(t, st.LinkEvolution(ctx, parent.ID, child.ID))

		gotParent, err := st.Get(ctx, parent.ID)
		require.NoError(t, err)
		assert.Equal(t, 1, gotParent.ChildCount())

		gotChild, err := st.Get(ctx, child.ID)
		require.NoError(t, err)
		assert.Len(t, gotChild.Evolution, 1)
	})
}

// --- Audit ---

func TestStore_AuditLog_MonotonicAndFiltered(t *testing.T) {
	forEachBackend(t, func(t *testing.T, st Store) {
		ctx := context.Background()

		p, err := st.Register(ctx, stackInput())
		require.NoError(t, err)
		require.NoError(t, st.RecordUsage(ctx, p.ID, true))
		_, err = st.Vote(ctx, p.ID, "alice", model.VoteUp)
		require.NoError(t, err)

		entries, err := st.AuditLog(ctx, AuditFilters{})
		require.NoError(t, err)
		require.Len(t, entries, 3)

		// Newest first, strictly decreasing seq.
		for i := 1; i < len(entries); i++ {
			assert.Greater(t, entries[i-1].Seq, entries[i].Seq)
		}
		for _, e := range entries {
			assert.Equal(t, "test", e.Actor)
		}

		votes, err := st.AuditLog(ctx, AuditFilters{Action: model.AuditVote})
		require.NoError(t, err)
		require.Len(t, votes, 1)
		assert.Equal(t, p.ID, votes[0].TargetID)

		limited, err := st.AuditLog(ctx, AuditFilters{Limit: 2})
		require.NoError(t, err)
		assert.Len(t, limited, 2)
	})
}
