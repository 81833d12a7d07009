package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/codekeep/codekeep/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite. WAL mode gives
// multi-reader safety; writers serialize on the database.
type SQLiteStore struct {
	db   *sql.DB
	opts Options
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string, opts Options) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(model.ErrBackendUnavailable, eris.Wrap(err, "sqlite: open").Error())
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrap(model.ErrBackendUnavailable, eris.Wrapf(err, "sqlite: exec %s", pragma).Error())
		}
	}
	return &SQLiteStore{db: db, opts: opts}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS patterns (
	id         TEXT PRIMARY KEY,
	dedup_key  TEXT NOT NULL UNIQUE,
	name       TEXT NOT NULL,
	language   TEXT NOT NULL,
	coherency  REAL NOT NULL,
	version    INTEGER NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS candidates (
	id          TEXT PRIMARY KEY,
	coherency   REAL NOT NULL,
	promoted_at DATETIME,
	doc         TEXT NOT NULL,
	created_at  DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS votes (
	id         TEXT PRIMARY KEY,
	pattern_id TEXT NOT NULL,
	voter_id   TEXT NOT NULL,
	direction  INTEGER NOT NULL,
	weight     REAL NOT NULL,
	cast_at    DATETIME NOT NULL,
	UNIQUE(pattern_id, voter_id)
);

CREATE TABLE IF NOT EXISTS voters (
	id  TEXT PRIMARY KEY,
	doc TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS audit_log (
	seq          INTEGER PRIMARY KEY AUTOINCREMENT,
	timestamp    DATETIME NOT NULL,
	action       TEXT NOT NULL,
	target_table TEXT NOT NULL,
	target_id    TEXT NOT NULL,
	detail       TEXT,
	actor        TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS meta (
	key   TEXT PRIMARY KEY,
	value TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_patterns_language ON patterns(language);
CREATE INDEX IF NOT EXISTS idx_votes_pattern ON votes(pattern_id);
CREATE INDEX IF NOT EXISTS idx_audit_table_id ON audit_log(target_table, target_id);
CREATE INDEX IF NOT EXISTS idx_audit_action ON audit_log(action);
`

// Migrate creates the schema. Idempotent.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// withTx runs fn inside a transaction, committing on nil error.
func (s *SQLiteStore) withTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck
	if err := fn(tx); err != nil {
		return err
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit")
}

// --- Patterns ---

func (s *SQLiteStore) Register(ctx context.Context, in RegisterInput) (*model.Pattern, error) {
	p, err := buildPattern(in, s.opts.Tiers, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	var out *model.Pattern
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		existing, err := s.getByKeyTx(ctx, tx, model.DedupKey(p.Name, p.Language))
		if err != nil && !eris.Is(err, model.ErrNotFound) {
			return err
		}

		if existing == nil {
			if err := s.insertPatternTx(ctx, tx, p); err != nil {
				return err
			}
			out = p
			return s.auditTx(ctx, tx, model.AuditRegister, "patterns", p.ID, map[string]any{
				"name": p.Name, "language": p.Language, "coherency": p.Coherency,
			})
		}

		// Dedup: a lower-or-equal challenger is a no-op.
		if p.Coherency <= existing.Coherency {
			out = existing
			return nil
		}

		replaceInPlace(existing, p, time.Now().UTC())
		if err := s.putPatternTx(ctx, tx, existing); err != nil {
			return err
		}
		out = existing
		return s.auditTx(ctx, tx, model.AuditReplace, "patterns", existing.ID, map[string]any{
			"name": existing.Name, "language": existing.Language, "coherency": existing.Coherency,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id string) (*model.Pattern, error) {
	row := s.db.QueryRowContext(ctx, `SELECT doc FROM patterns WHERE id = ?`, id)
	return scanPatternDoc(row, id)
}

func (s *SQLiteStore) GetByName(ctx context.Context, name, language string) (*model.Pattern, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT doc FROM patterns WHERE dedup_key = ?`, model.DedupKey(name, language))
	return scanPatternDoc(row, name)
}

func (s *SQLiteStore) GetAll(ctx context.Context, f Filters) ([]model.Pattern, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM patterns ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list patterns")
	}
	defer rows.Close()

	var out []model.Pattern
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan pattern")
		}
		var p model.Pattern
		if err := json.Unmarshal([]byte(doc), &p); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal pattern")
		}
		if !matchesFilters(&p, f) {
			continue
		}
		out = append(out, p)
		if f.Limit > 0 && len(out) >= f.Limit {
			break
		}
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list patterns iterate")
}

func (s *SQLiteStore) Update(ctx context.Context, id string, expectedVersion int, up model.PatternUpdate) (*model.Pattern, error) {
	var out *model.Pattern
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		if p.Version != expectedVersion {
			return eris.Wrapf(model.ErrConcurrentModification,
				"sqlite: pattern %s is at version %d, caller read %d", id, p.Version, expectedVersion)
		}

		applyUpdate(p, up, time.Now().UTC())

		doc, err := json.Marshal(p)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal pattern")
		}
		res, err := tx.ExecContext(ctx,
			`UPDATE patterns SET doc = ?, coherency = ?, version = ?, updated_at = ? WHERE id = ? AND version = ?`,
			string(doc), p.Coherency, p.Version, p.UpdatedAt, id, expectedVersion)
		if err != nil {
			return eris.Wrapf(err, "sqlite: update pattern %s", id)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return eris.Wrap(err, "sqlite: rows affected")
		}
		if n == 0 {
			return eris.Wrapf(model.ErrConcurrentModification, "sqlite: pattern %s lost update race", id)
		}

		out = p
		return s.auditTx(ctx, tx, model.AuditUpdate, "patterns", id, map[string]any{
			"version": p.Version,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) RecordUsage(ctx context.Context, id string, succeeded bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		p.UsageCount++
		if succeeded {
			p.SuccessCount++
		}
		p.UpdatedAt = time.Now().UTC()
		if err := s.putPatternTx(ctx, tx, p); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, model.AuditUsage, "patterns", id, map[string]any{
			"succeeded": succeeded, "usage_count": p.UsageCount,
		})
	})
}

func (s *SQLiteStore) ReportBug(ctx context.Context, id, description string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getTx(ctx, tx, id)
		if err != nil {
			return err
		}
		p.BugReports++
		p.UpdatedAt = time.Now().UTC()
		if err := s.putPatternTx(ctx, tx, p); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, model.AuditBugReport, "patterns", id, map[string]any{
			"description": description, "bug_reports": p.BugReports,
		})
	})
}

// --- Voting ---

func (s *SQLiteStore) Vote(ctx context.Context, patternID, voterID string, direction int) (*model.Pattern, error) {
	if direction != model.VoteUp && direction != model.VoteDown {
		return nil, eris.Wrap(model.ErrValidation, "sqlite: vote direction must be +1 or -1")
	}
	if voterID == "" {
		return nil, eris.Wrap(model.ErrValidation, "sqlite: voter id is required")
	}

	var out *model.Pattern
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		p, err := s.getTx(ctx, tx, patternID)
		if err != nil {
			return err
		}
		voter, err := s.getOrCreateVoterTx(ctx, tx, voterID)
		if err != nil {
			return err
		}

		now := time.Now().UTC()
		weight := model.VoteWeight(voter.Reputation)

		var existingDir int
		var voteID string
		err = tx.QueryRowContext(ctx,
			`SELECT id, direction FROM votes WHERE pattern_id = ? AND voter_id = ?`,
			patternID, voterID).Scan(&voteID, &existingDir)
		switch {
		case err == sql.ErrNoRows:
			_, err = tx.ExecContext(ctx,
				`INSERT INTO votes (id, pattern_id, voter_id, direction, weight, cast_at) VALUES (?, ?, ?, ?, ?, ?)`,
				uuid.New().String(), patternID, voterID, direction, weight, now)
			if err != nil {
				return eris.Wrap(err, "sqlite: insert vote")
			}
			if direction == model.VoteUp {
				p.Upvotes++
			} else {
				p.Downvotes++
			}
			voter.TotalVotes++
		case err != nil:
			return eris.Wrap(err, "sqlite: read vote")
		case existingDir == direction:
			return eris.Wrapf(model.ErrDuplicateVote,
				"sqlite: voter %s already voted %+d on %s", voterID, direction, patternID)
		default:
			// Direction change: replace in place and move the counter pair.
			_, err = tx.ExecContext(ctx,
				`UPDATE votes SET direction = ?, weight = ?, cast_at = ? WHERE id = ?`,
				direction, weight, now, voteID)
			if err != nil {
				return eris.Wrap(err, "sqlite: flip vote")
			}
			if direction == model.VoteUp {
				p.Upvotes++
				p.Downvotes--
			} else {
				p.Upvotes--
				p.Downvotes++
			}
		}

		if err := tx.QueryRowContext(ctx,
			`SELECT COALESCE(SUM(direction * weight), 0) FROM votes WHERE pattern_id = ?`,
			patternID).Scan(&p.WeightedVoteScore); err != nil {
			return eris.Wrap(err, "sqlite: sum vote score")
		}

		p.UpdatedAt = now
		if err := s.putPatternTx(ctx, tx, p); err != nil {
			return err
		}
		voter.UpdatedAt = now
		if err := s.putVoterTx(ctx, tx, voter); err != nil {
			return err
		}

		out = p
		return s.auditTx(ctx, tx, model.AuditVote, "patterns", patternID, map[string]any{
			"voter": voterID, "direction": direction, "weight": weight,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) UpdateVoterReputation(ctx context.Context, patternID string, succeeded bool) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT voter_id, direction FROM votes WHERE pattern_id = ?`, patternID)
		if err != nil {
			return eris.Wrap(err, "sqlite: list votes")
		}
		type cast struct {
			voter string
			dir   int
		}
		var casts []cast
		for rows.Next() {
			var c cast
			if err := rows.Scan(&c.voter, &c.dir); err != nil {
				rows.Close()
				return eris.Wrap(err, "sqlite: scan vote")
			}
			casts = append(casts, c)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "sqlite: iterate votes")
		}

		now := time.Now().UTC()
		for _, c := range casts {
			voter, err := s.getOrCreateVoterTx(ctx, tx, c.voter)
			if err != nil {
				return err
			}
			agreed := (c.dir == model.VoteUp) == succeeded
			if agreed {
				voter.Reputation = model.ClampReputation(voter.Reputation + model.ReputationReward)
				voter.AccurateVotes++
			} else {
				voter.Reputation = model.ClampReputation(voter.Reputation - model.ReputationPenalty)
			}
			voter.UpdatedAt = now
			if err := s.putVoterTx(ctx, tx, voter); err != nil {
				return err
			}
		}

		return s.auditTx(ctx, tx, model.AuditReputation, "voters", patternID, map[string]any{
			"succeeded": succeeded, "voters": len(casts),
		})
	})
}

// --- Retire ---

func (s *SQLiteStore) Retire(ctx context.Context, minScore float64, reliability ReliabilityFunc) (RetireResult, error) {
	var result RetireResult
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT doc FROM patterns`)
		if err != nil {
			return eris.Wrap(err, "sqlite: list patterns")
		}
		var retire []model.Pattern
		total := 0
		for rows.Next() {
			var doc string
			if err := rows.Scan(&doc); err != nil {
				rows.Close()
				return eris.Wrap(err, "sqlite: scan pattern")
			}
			var p model.Pattern
			if err := json.Unmarshal([]byte(doc), &p); err != nil {
				rows.Close()
				return eris.Wrap(err, "sqlite: unmarshal pattern")
			}
			total++
			if retireScore(&p, reliability) < minScore {
				retire = append(retire, p)
			}
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "sqlite: iterate patterns")
		}

		for _, p := range retire {
			if _, err := tx.ExecContext(ctx, `DELETE FROM patterns WHERE id = ?`, p.ID); err != nil {
				return eris.Wrapf(err, "sqlite: retire pattern %s", p.ID)
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM votes WHERE pattern_id = ?`, p.ID); err != nil {
				return eris.Wrapf(err, "sqlite: delete votes for %s", p.ID)
			}
			if err := s.auditTx(ctx, tx, model.AuditRetire, "patterns", p.ID, map[string]any{
				"name": p.Name, "min_score": minScore,
			}); err != nil {
				return err
			}
		}

		result = RetireResult{Retired: len(retire), Remaining: total - len(retire)}
		return nil
	})
	return result, err
}

// --- Candidates ---

func (s *SQLiteStore) AddCandidate(ctx context.Context, in CandidateInput) (*model.Candidate, error) {
	c, err := buildCandidate(in, uuid.New().String(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	doc, err := json.Marshal(c)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: marshal candidate")
	}
	err = s.withTx(ctx, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO candidates (id, coherency, promoted_at, doc, created_at) VALUES (?, ?, NULL, ?, ?)`,
			c.ID, c.Coherency, string(doc), c.CreatedAt)
		if err != nil {
			return eris.Wrap(err, "sqlite: insert candidate")
		}
		return s.auditTx(ctx, tx, model.AuditCandidate, "candidates", c.ID, map[string]any{
			"name": c.Name, "coherency": c.Coherency,
		})
	})
	if err != nil {
		return nil, err
	}
	return c, nil
}

func (s *SQLiteStore) GetAllCandidates(ctx context.Context, f CandidateFilters) ([]model.Candidate, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT doc FROM candidates WHERE promoted_at IS NULL ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list candidates")
	}
	defer rows.Close()

	var out []model.Candidate
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan candidate")
		}
		var c model.Candidate
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
		}
		if f.Language != "" && model.Fold(c.Language) != model.Fold(f.Language) {
			continue
		}
		if f.MinCoherency > 0 && c.Coherency < f.MinCoherency {
			continue
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list candidates iterate")
}

func (s *SQLiteStore) PromoteCandidate(ctx context.Context, id string) (*model.Candidate, error) {
	var out *model.Candidate
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		row := tx.QueryRowContext(ctx, `SELECT doc FROM candidates WHERE id = ?`, id)
		c, err := scanCandidateDoc(row, id)
		if err != nil {
			return err
		}
		if c.Promoted() {
			// Promotion is one-way and idempotent.
			out = c
			return nil
		}

		now := time.Now().UTC()
		c.PromotedAt = &now
		doc, err := json.Marshal(c)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal candidate")
		}
		if _, err := tx.ExecContext(ctx,
			`UPDATE candidates SET promoted_at = ?, doc = ? WHERE id = ?`,
			now, string(doc), id); err != nil {
			return eris.Wrapf(err, "sqlite: promote candidate %s", id)
		}

		out = c
		return s.auditTx(ctx, tx, model.AuditPromote, "candidates", id, map[string]any{
			"name": c.Name,
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *SQLiteStore) PruneCandidates(ctx context.Context, minCoherency float64) (int, error) {
	pruned := 0
	err := s.withTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx,
			`SELECT id FROM candidates WHERE promoted_at IS NULL AND coherency < ?`, minCoherency)
		if err != nil {
			return eris.Wrap(err, "sqlite: select prunable")
		}
		var ids []string
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return eris.Wrap(err, "sqlite: scan candidate id")
			}
			ids = append(ids, id)
		}
		rows.Close()
		if err := rows.Err(); err != nil {
			return eris.Wrap(err, "sqlite: iterate prunable")
		}

		for _, id := range ids {
			if _, err := tx.ExecContext(ctx, `DELETE FROM candidates WHERE id = ?`, id); err != nil {
				return eris.Wrapf(err, "sqlite: prune candidate %s", id)
			}
			if err := s.auditTx(ctx, tx, model.AuditPrune, "candidates", id, map[string]any{
				"min_coherency": minCoherency,
			}); err != nil {
				return err
			}
		}
		pruned = len(ids)
		return nil
	})
	return pruned, err
}

// --- Evolution ---

func (s *SQLiteStore) LinkEvolution(ctx context.Context, parentID, childID string) error {
	return s.withTx(ctx, func(tx *sql.Tx) error {
		parent, err := s.getTx(ctx, tx, parentID)
		if err != nil {
			return err
		}
		child, err := s.getTx(ctx, tx, childID)
		if err != nil {
			return err
		}
		// Re-linking an existing edge is a no-op; a child carries at most
		// one edge per parent.
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

		if err := s.putPatternTx(ctx, tx, parent); err != nil {
			return err
		}
		if err := s.putPatternTx(ctx, tx, child); err != nil {
			return err
		}
		return s.auditTx(ctx, tx, model.AuditEvolve, "patterns", childID, map[string]any{
			"parent": parentID,
		})
	})
}

// --- Audit ---

func (s *SQLiteStore) AuditLog(ctx context.Context, f AuditFilters) ([]model.AuditEntry, error) {
	query := `SELECT seq, timestamp, action, target_table, target_id, detail, actor FROM audit_log WHERE 1=1`
	var args []any
	if f.Table != "" {
		query += ` AND target_table = ?`
		args = append(args, f.Table)
	}
	if f.TargetID != "" {
		query += ` AND target_id = ?`
		args = append(args, f.TargetID)
	}
	if f.Action != "" {
		query += ` AND action = ?`
		args = append(args, f.Action)
	}
	if !f.Since.IsZero() {
		query += ` AND timestamp >= ?`
		args = append(args, f.Since)
	}
	if !f.Until.IsZero() {
		query += ` AND timestamp <= ?`
		args = append(args, f.Until)
	}
	query += ` ORDER BY seq DESC`
	if f.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, f.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query audit log")
	}
	defer rows.Close()

	var out []model.AuditEntry
	for rows.Next() {
		var e model.AuditEntry
		var detail sql.NullString
		if err := rows.Scan(&e.Seq, &e.Timestamp, &e.Action, &e.Table, &e.TargetID, &detail, &e.Actor); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan audit entry")
		}
		if detail.Valid && detail.String != "" {
			if err := json.Unmarshal([]byte(detail.String), &e.Detail); err != nil {
				return nil, eris.Wrap(err, "sqlite: unmarshal audit detail")
			}
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: audit log iterate")
}

func (s *SQLiteStore) auditTx(ctx context.Context, tx *sql.Tx, action, table, targetID string, detail map[string]any) error {
	var detailJSON []byte
	if detail != nil {
		var err error
		detailJSON, err = json.Marshal(detail)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal audit detail")
		}
	}
	_, err := tx.ExecContext(ctx,
		`INSERT INTO audit_log (timestamp, action, target_table, target_id, detail, actor) VALUES (?, ?, ?, ?, ?, ?)`,
		time.Now().UTC(), action, table, targetID, string(detailJSON), s.opts.actor())
	return eris.Wrap(err, "sqlite: append audit entry")
}

// --- row helpers ---

func (s *SQLiteStore) getTx(ctx context.Context, tx *sql.Tx, id string) (*model.Pattern, error) {
	row := tx.QueryRowContext(ctx, `SELECT doc FROM patterns WHERE id = ?`, id)
	return scanPatternDoc(row, id)
}

func (s *SQLiteStore) getByKeyTx(ctx context.Context, tx *sql.Tx, key string) (*model.Pattern, error) {
	row := tx.QueryRowContext(ctx, `SELECT doc FROM patterns WHERE dedup_key = ?`, key)
	p, err := scanPatternDoc(row, key)
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *SQLiteStore) insertPatternTx(ctx context.Context, tx *sql.Tx, p *model.Pattern) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pattern")
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO patterns (id, dedup_key, name, language, coherency, version, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, model.DedupKey(p.Name, p.Language), p.Name, p.Language,
		p.Coherency, p.Version, string(doc), p.CreatedAt, p.UpdatedAt)
	return eris.Wrapf(err, "sqlite: insert pattern %s", p.ID)
}

func (s *SQLiteStore) putPatternTx(ctx context.Context, tx *sql.Tx, p *model.Pattern) error {
	doc, err := json.Marshal(p)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal pattern")
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE patterns SET coherency = ?, version = ?, doc = ?, updated_at = ? WHERE id = ?`,
		p.Coherency, p.Version, string(doc), p.UpdatedAt, p.ID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: write pattern %s", p.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "sqlite: rows affected")
	}
	if n == 0 {
		return eris.Wrapf(model.ErrNotFound, "sqlite: pattern %s", p.ID)
	}
	return nil
}

func (s *SQLiteStore) getOrCreateVoterTx(ctx context.Context, tx *sql.Tx, id string) (*model.Voter, error) {
	var doc string
	err := tx.QueryRowContext(ctx, `SELECT doc FROM voters WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		now := time.Now().UTC()
		v := &model.Voter{ID: id, Reputation: model.ReputationDefault, CreatedAt: now, UpdatedAt: now}
		b, err := json.Marshal(v)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: marshal voter")
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO voters (id, doc) VALUES (?, ?)`, id, string(b)); err != nil {
			return nil, eris.Wrap(err, "sqlite: insert voter")
		}
		return v, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: read voter")
	}
	var v model.Voter
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal voter")
	}
	return &v, nil
}

func (s *SQLiteStore) putVoterTx(ctx context.Context, tx *sql.Tx, v *model.Voter) error {
	doc, err := json.Marshal(v)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal voter")
	}
	_, err = tx.ExecContext(ctx, `UPDATE voters SET doc = ? WHERE id = ?`, string(doc), v.ID)
	return eris.Wrapf(err, "sqlite: write voter %s", v.ID)
}

type scannable interface {
	Scan(dest ...any) error
}

func scanPatternDoc(row scannable, ref string) (*model.Pattern, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: pattern %s", ref)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan pattern")
	}
	var p model.Pattern
	if err := json.Unmarshal([]byte(doc), &p); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal pattern")
	}
	return &p, nil
}

func scanCandidateDoc(row scannable, ref string) (*model.Candidate, error) {
	var doc string
	err := row.Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "sqlite: candidate %s", ref)
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: scan candidate")
	}
	var c model.Candidate
	if err := json.Unmarshal([]byte(doc), &c); err != nil {
		return nil, eris.Wrap(err, "sqlite: unmarshal candidate")
	}
	return &c, nil
}
