package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/codekeep/codekeep/internal/model"
)

// FileStore implements Store over flat JSON documents, one per logical
// table, under a data directory. It assumes a single owning process: the
// in-memory state is authoritative between saves and there is no cross-
// process locking. This is a documented constraint, not a defect.
type FileStore struct {
	mu   sync.Mutex
	dir  string
	opts Options

	patterns   []model.Pattern
	candidates []model.Candidate
	votes      []model.Vote
	voters     []model.Voter
	audit      auditDoc
}

type auditDoc struct {
	Seq     int64              `json:"seq"`
	Entries []model.AuditEntry `json:"entries"`
}

// Table document file names.
const (
	patternsFile   = "patterns.json"
	candidatesFile = "candidates.json"
	votesFile      = "votes.json"
	votersFile     = "voters.json"
	auditFile      = "audit.json"
)

// NewFile opens (or creates) a file-backed store in dir. An absent document
// starts empty; a present-but-corrupt document is surfaced immediately.
func NewFile(dir string, opts Options) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "filestore: create data dir")
	}
	s := &FileStore{dir: dir, opts: opts}

	if err := loadDoc(filepath.Join(dir, patternsFile), "patterns", &s.patterns); err != nil {
		return nil, err
	}
	if err := loadDoc(filepath.Join(dir, candidatesFile), "candidates", &s.candidates); err != nil {
		return nil, err
	}
	if err := loadDoc(filepath.Join(dir, votesFile), "votes", &s.votes); err != nil {
		return nil, err
	}
	if err := loadDoc(filepath.Join(dir, votersFile), "voters", &s.voters); err != nil {
		return nil, err
	}
	if err := loadAudit(filepath.Join(dir, auditFile), &s.audit); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *FileStore) Close() error {
	return nil
}

// --- Patterns ---

func (s *FileStore) Register(ctx context.Context, in RegisterInput) (*model.Pattern, error) {
	p, err := buildPattern(in, s.opts.Tiers, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	key := model.DedupKey(p.Name, p.Language)
	if i := s.patternIndexByKey(key); i >= 0 {
		existing := &s.patterns[i]
		if p.Coherency <= existing.Coherency {
			out := *existing
			return &out, nil
		}
		replaceInPlace(existing, p, time.Now().UTC())
		s.appendAudit(model.AuditReplace, "patterns", existing.ID, map[string]any{
			"name": existing.Name, "language": existing.Language, "coherency": existing.Coherency,
		})
		if err := s.savePatterns(); err != nil {
			return nil, err
		}
		out := *existing
		return &out, nil
	}

	s.patterns = append(s.patterns, *p)
	s.appendAudit(model.AuditRegister, "patterns", p.ID, map[string]any{
		"name": p.Name, "language": p.Language, "coherency": p.Coherency,
	})
	if err := s.savePatterns(); err != nil {
		return nil, err
	}
	return p, nil
}

func (s *FileStore) Get(ctx context.Context, id string) (*model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.patternIndex(id); i >= 0 {
		out := s.patterns[i]
		return &out, nil
	}
	return nil, eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", id)
}

func (s *FileStore) GetByName(ctx context.Context, name, language string) (*model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i := s.patternIndexByKey(model.DedupKey(name, language)); i >= 0 {
		out := s.patterns[i]
		return &out, nil
	}
	return nil, eris.Wrapf(model.ErrNotFound, "filestore: pattern %s/%s", name, language)
}

func (s *FileStore) GetAll(ctx context.Context, f Filters) ([]model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sorted := make([]model.Pattern, len(s.patterns))
	copy(sorted, s.patterns)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})

	var out []model.Pattern
	for _, p := range sorted {
		if !matchesFilters(&p, f) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

func (s *FileStore) Update(ctx context.Context, id string, expectedVersion int, up model.PatternUpdate) (*model.Pattern, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.patternIndex(id)
	if i < 0 {
		return nil, eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", id)
	}
	p := &s.patterns[i]
	if p.Version != expectedVersion {
		return nil, eris.Wrapf(model.ErrConcurrentModification,
			"filestore: pattern %s is at version %d, caller read %d", id, p.Version, expectedVersion)
	}

	applyUpdate(p, up, time.Now().UTC())
	s.appendAudit(model.AuditUpdate, "patterns", id, map[string]any{"version": p.Version})
	if err := s.savePatterns(); err != nil {
		return nil, err
	}
	out := *p
	return &out, nil
}

func (s *FileStore) RecordUsage(ctx context.Context, id string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.patternIndex(id)
	if i < 0 {
		return eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", id)
	}
	p := &s.patterns[i]
	p.UsageCount++
	if succeeded {
		p.SuccessCount++
	}
	p.UpdatedAt = time.Now().UTC()
	s.appendAudit(model.AuditUsage, "patterns", id, map[string]any{
		"succeeded": succeeded, "usage_count": p.UsageCount,
	})
	return s.savePatterns()
}

func (s *FileStore) ReportBug(ctx context.Context, id, description string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.patternIndex(id)
	if i < 0 {
		return eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", id)
	}
	p := &s.patterns[i]
	p.BugReports++
	p.UpdatedAt = time.Now().UTC()
	s.appendAudit(model.AuditBugReport, "patterns", id, map[string]any{
		"description": description, "bug_reports": p.BugReports,
	})
	return s.savePatterns()
}

// --- Voting ---

func (s *FileStore) Vote(ctx context.Context, patternID, voterID string, direction int) (*model.Pattern, error) {
	if direction != model.VoteUp && direction != model.VoteDown {
		return nil, eris.Wrap(model.ErrValidation, "filestore: vote direction must be +1 or -1")
	}
	if voterID == "" {
		return nil, eris.Wrap(model.ErrValidation, "filestore: voter id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pi := s.patternIndex(patternID)
	if pi < 0 {
		return nil, eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", patternID)
	}
	p := &s.patterns[pi]
	voter := s.getOrCreateVoter(voterID)
	now := time.Now().UTC()
	weight := model.VoteWeight(voter.Reputation)

	vi := -1
	for j := range s.votes {
		if s.votes[j].PatternID == patternID && s.votes[j].VoterID == voterID {
			vi = j
			break
		}
	}

	switch {
	case vi < 0:
		s.votes = append(s.votes, model.Vote{
			ID: uuid.New().String(), PatternID: patternID, VoterID: voterID,
			Direction: direction, Weight: weight, CastAt: now,
		})
		if direction == model.VoteUp {
			p.Upvotes++
		} else {
			p.Downvotes++
		}
		voter.TotalVotes++
	case s.votes[vi].Direction == direction:
		return nil, eris.Wrapf(model.ErrDuplicateVote,
			"filestore: voter %s already voted %+d on %s", voterID, direction, patternID)
	default:
		s.votes[vi].Direction = direction
		s.votes[vi].Weight = weight
		s.votes[vi].CastAt = now
		if direction == model.VoteUp {
			p.Upvotes++
			p.Downvotes--
		} else {
			p.Upvotes--
			p.Downvotes++
		}
	}

	p.WeightedVoteScore = 0
	for _, v := range s.votes {
		if v.PatternID == patternID {
			p.WeightedVoteScore += float64(v.Direction) * v.Weight
		}
	}
	p.UpdatedAt = now
	voter.UpdatedAt = now

	s.appendAudit(model.AuditVote, "patterns", patternID, map[string]any{
		"voter": voterID, "direction": direction, "weight": weight,
	})
	if err := s.saveVoting(); err != nil {
		return nil, err
	}
	if err := s.savePatterns(); err != nil {
		return nil, err
	}
	out := *p
	return &out, nil
}

func (s *FileStore) UpdateVoterReputation(ctx context.Context, patternID string, succeeded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	adjusted := 0
	for _, v := range s.votes {
		if v.PatternID != patternID {
			continue
		}
		voter := s.getOrCreateVoter(v.VoterID)
		agreed := (v.Direction == model.VoteUp) == succeeded
		if agreed {
			voter.Reputation = model.ClampReputation(voter.Reputation + model.ReputationReward)
			voter.AccurateVotes++
		} else {
			voter.Reputation = model.ClampReputation(voter.Reputation - model.ReputationPenalty)
		}
		voter.UpdatedAt = now
		adjusted++
	}

	s.appendAudit(model.AuditReputation, "voters", patternID, map[string]any{
		"succeeded": succeeded, "voters": adjusted,
	})
	return s.saveVoting()
}

// --- Retire ---

func (s *FileStore) Retire(ctx context.Context, minScore float64, reliability ReliabilityFunc) (RetireResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []model.Pattern
	retired := 0
	retiredIDs := make(map[string]bool)
	for _, p := range s.patterns {
		if retireScore(&p, reliability) < minScore {
			retired++
			retiredIDs[p.ID] = true
			s.appendAudit(model.AuditRetire, "patterns", p.ID, map[string]any{
				"name": p.Name, "min_score": minScore,
			})
			continue
		}
		kept = append(kept, p)
	}
	s.patterns = kept

	if retired > 0 {
		var votes []model.Vote
		for _, v := range s.votes {
			if !retiredIDs[v.PatternID] {
				votes = append(votes, v)
			}
		}
		s.votes = votes
		if err := s.saveVoting(); err != nil {
			return RetireResult{}, err
		}
	}

	if err := s.savePatterns(); err != nil {
		return RetireResult{}, err
	}
	return RetireResult{Retired: retired, Remaining: len(kept)}, nil
}

// --- Candidates ---

func (s *FileStore) AddCandidate(ctx context.Context, in CandidateInput) (*model.Candidate, error) {
	c, err := buildCandidate(in, uuid.New().String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.candidates = append(s.candidates, *c)
	s.appendAudit(model.AuditCandidate, "candidates", c.ID, map[string]any{
		"name": c.Name, "coherency": c.Coherency,
	})
	if err := s.saveCandidates(); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *FileStore) GetAllCandidates(ctx context.Context, f CandidateFilters) ([]model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.Candidate
	for _, c := range s.candidates {
		if c.Promoted() {
			continue
		}
		if f.Language != "" && model.Fold(c.Language) != model.Fold(f.Language) {
			continue
		}
		if f.MinCoherency > 0 && c.Coherency < f.MinCoherency {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *FileStore) PromoteCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.candidates {
		if s.candidates[i].ID != id {
			continue
		}
		c := &s.candidates[i]
		if c.Promoted() {
			out := *c
			return &out, nil
		}
		now := time.Now().UTC()
		c.PromotedAt = &now
		s.appendAudit(model.AuditPromote, "candidates", id, map[string]any{"name": c.Name})
		if err := s.saveCandidates(); err != nil {
			return nil, err
		}
		out := *c
		return &out, nil
	}
	return nil, eris.Wrapf(model.ErrNotFound, "filestore: candidate %s", id)
}

func (s *FileStore) PruneCandidates(ctx context.Context, minCoherency float64) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var kept []model.Candidate
	pruned := 0
	for _, c := range s.candidates {
		if !c.Promoted() && c.Coherency < minCoherency {
			pruned++
			s.appendAudit(model.AuditPrune, "candidates", c.ID, map[string]any{
				"min_coherency": minCoherency,
			})
			continue
		}
		kept = append(kept, c)
	}
	s.candidates = kept
	if err := s.saveCandidates(); err != nil {
		return 0, err
	}
	return pruned, nil
}

// --- Evolution ---

func (s *FileStore) LinkEvolution(ctx context.Context, parentID, childID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pi := s.patternIndex(parentID)
	if pi < 0 {
		return eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", parentID)
	}
	ci := s.patternIndex(childID)
	if ci < 0 {
		return eris.Wrapf(model.ErrNotFound, "filestore: pattern %s", childID)
	}

	parent, child := &s.patterns[pi], &s.patterns[ci]
	// Re-linking an existing edge is a no-op; a child carries at most one
	// edge per parent.
	if parent.HasChild(childID) {
		return nil
	}

	now := time.Now().UTC()
	parent.Evolution = append(parent.Evolution, model.EvolutionLink{ChildID: childID, EvolvedAt: &now})
	if child.ParentID() == "" {
		child.Evolution = append(child.Evolution, model.EvolutionLink{ParentID: parentID})
	}
	parent.UpdatedAt = now
	child.UpdatedAt = now

	s.appendAudit(model.AuditEvolve, "patterns", childID, map[string]any{"parent": parentID})
	return s.savePatterns()
}

// --- Audit ---

func (s *FileStore) AuditLog(ctx context.Context, f AuditFilters) ([]model.AuditEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []model.AuditEntry
	for i := len(s.audit.Entries) - 1; i >= 0; i-- {
		e := s.audit.Entries[i]
		if !matchesAuditFilters(&e, f) {
			continue
		}
		out = append(out, e)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, nil
}

// appendAudit must be called with the mutex held. The entry is persisted by
// the caller's subsequent save; seq assignment is monotonic per store.
func (s *FileStore) appendAudit(action, table, targetID string, detail map[string]any) {
	s.audit.Seq++
	s.audit.Entries = append(s.audit.Entries, model.AuditEntry{
		Seq:       s.audit.Seq,
		Timestamp: time.Now().UTC(),
		Action:    action,
		Table:     table,
		TargetID:  targetID,
		Detail:    detail,
		Actor:     s.opts.actor(),
	})
}

// --- helpers ---

func (s *FileStore) patternIndex(id string) int {
	for i := range s.patterns {
		if s.patterns[i].ID == id {
			return i
		}
	}
	return -1
}

func (s *FileStore) patternIndexByKey(key string) int {
	for i := range s.patterns {
		if model.DedupKey(s.patterns[i].Name, s.patterns[i].Language) == key {
			return i
		}
	}
	return -1
}

func (s *FileStore) getOrCreateVoter(id string) *model.Voter {
	for i := range s.voters {
		if s.voters[i].ID == id {
			return &s.voters[i]
		}
	}
	now := time.Now().UTC()
	s.voters = append(s.voters, model.Voter{
		ID: id, Reputation: model.ReputationDefault, CreatedAt: now, UpdatedAt: now,
	})
	return &s.voters[len(s.voters)-1]
}

func (s *FileStore) savePatterns() error {
	if err := saveDoc(filepath.Join(s.dir, patternsFile), "patterns", s.patterns); err != nil {
		return err
	}
	return s.saveAudit()
}

func (s *FileStore) saveCandidates() error {
	if err := saveDoc(filepath.Join(s.dir, candidatesFile), "candidates", s.candidates); err != nil {
		return err
	}
	return s.saveAudit()
}

func (s *FileStore) saveVoting() error {
	if err := saveDoc(filepath.Join(s.dir, votesFile), "votes", s.votes); err != nil {
		return err
	}
	if err := saveDoc(filepath.Join(s.dir, votersFile), "voters", s.voters); err != nil {
		return err
	}
	return s.saveAudit()
}

func (s *FileStore) saveAudit() error {
	return writeFileAtomic(filepath.Join(s.dir, auditFile), s.audit)
}

// loadDoc reads a `{"<table>":[...]}` document into dst. A missing file is
// an empty table; a corrupt file is an error.
func loadDoc[T any](path, table string, dst *[]T) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "filestore: read %s", path)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrapf(err, "filestore: corrupt document %s", path)
	}
	if raw, ok := doc[table]; ok {
		if err := json.Unmarshal(raw, dst); err != nil {
			return eris.Wrapf(err, "filestore: corrupt table %q in %s", table, path)
		}
	}
	return nil
}

func loadAudit(path string, dst *auditDoc) error {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrapf(err, "filestore: read %s", path)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return eris.Wrapf(err, "filestore: corrupt document %s", path)
	}
	return nil
}

func saveDoc[T any](path, table string, rows []T) error {
	if rows == nil {
		rows = []T{}
	}
	return writeFileAtomic(path, map[string]any{table: rows})
}

// writeFileAtomic writes via a temp file and rename so a crash never leaves
// a half-written document.
func writeFileAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return eris.Wrapf(err, "filestore: marshal %s", path)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrapf(err, "filestore: write %s", tmp)
	}
	if err := os.Rename(tmp, path); err != nil {
		return eris.Wrapf(err, "filestore: rename %s", tmp)
	}
	return nil
}
