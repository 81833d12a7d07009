package history

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

// SQLiteHistory implements History on modernc.org/sqlite. It shares the data
// directory with the pattern store but owns its own table.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path.
func NewSQLite(dsn string) (*SQLiteHistory, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(model.ErrBackendUnavailable, eris.Wrap(err, "history: open sqlite").Error())
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrap(model.ErrBackendUnavailable, eris.Wrapf(err, "history: exec %s", pragma).Error())
		}
	}
	return &SQLiteHistory{db: db}, nil
}

const historyMigration = `
CREATE TABLE IF NOT EXISTS history (
	id         TEXT PRIMARY KEY,
	language   TEXT NOT NULL,
	coherency  REAL NOT NULL,
	doc        TEXT NOT NULL,
	created_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_history_language ON history(language);
CREATE INDEX IF NOT EXISTS idx_history_created ON history(created_at);
`

// Migrate creates the schema. Idempotent.
func (h *SQLiteHistory) Migrate(ctx context.Context) error {
	_, err := h.db.ExecContext(ctx, historyMigration)
	return eris.Wrap(err, "history: migrate")
}

func (h *SQLiteHistory) Close() error {
	return h.db.Close()
}

func (h *SQLiteHistory) Add(ctx context.Context, in AddInput) (*model.Submission, error) {
	sub, err := buildSubmission(in, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return nil, err
	}
	if err := h.put(ctx, sub, true); err != nil {
		return nil, err
	}
	return sub, nil
}

func (h *SQLiteHistory) Get(ctx context.Context, id string) (*model.Submission, error) {
	var doc string
	err := h.db.QueryRowContext(ctx, `SELECT doc FROM history WHERE id = ?`, id).Scan(&doc)
	if err == sql.ErrNoRows {
		return nil, eris.Wrapf(model.ErrNotFound, "history: submission %s", id)
	}
	if err != nil {
		return nil, eris.Wrap(err, "history: get submission")
	}
	var sub model.Submission
	if err := json.Unmarshal([]byte(doc), &sub); err != nil {
		return nil, eris.Wrap(err, "history: decode submission doc")
	}
	return &sub, nil
}

func (h *SQLiteHistory) GetAll(ctx context.Context, f Filters) ([]model.Submission, error) {
	rows, err := h.db.QueryContext(ctx, `SELECT doc FROM history ORDER BY created_at DESC`)
	if err != nil {
		return nil, eris.Wrap(err, "history: list submissions")
	}
	defer rows.Close()

	var subs []model.Submission
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, eris.Wrap(err, "history: scan submission")
		}
		var sub model.Submission
		if err := json.Unmarshal([]byte(doc), &sub); err != nil {
			return nil, eris.Wrap(err, "history: decode submission doc")
		}
		if !matchesFilters(&sub, f) {
			continue
		}
		subs = append(subs, sub)
		if f.Limit > 0 && len(subs) == f.Limit {
			break
		}
	}
	return subs, eris.Wrap(rows.Err(), "history: iterate submissions")
}

func (h *SQLiteHistory) RecordUsage(ctx context.Context, id string, succeeded bool) error {
	sub, err := h.Get(ctx, id)
	if err != nil {
		return err
	}
	sub.UsageCount++
	if succeeded {
		sub.SuccessCount++
	}
	return h.put(ctx, sub, false)
}

func (h *SQLiteHistory) Prune(ctx context.Context, minCoherency float64) (int, error) {
	res, err := h.db.ExecContext(ctx, `DELETE FROM history WHERE coherency < ?`, minCoherency)
	if err != nil {
		return 0, eris.Wrap(err, "history: prune")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "history: rows affected")
	}
	return int(n), nil
}

func (h *SQLiteHistory) Summarize(ctx context.Context) (*Summary, error) {
	subs, err := h.GetAll(ctx, Filters{})
	if err != nil {
		return nil, err
	}
	return summarize(subs), nil
}

func (h *SQLiteHistory) put(ctx context.Context, sub *model.Submission, insert bool) error {
	doc, err := json.Marshal(sub)
	if err != nil {
		return eris.Wrap(err, "history: marshal submission")
	}
	if insert {
		_, err = h.db.ExecContext(ctx,
			`INSERT INTO history (id, language, coherency, doc, created_at) VALUES (?, ?, ?, ?, ?)`,
			sub.ID, sub.Language, sub.Coherency, string(doc), sub.CreatedAt)
		return eris.Wrap(err, "history: insert submission")
	}
	_, err = h.db.ExecContext(ctx, `UPDATE history SET doc = ? WHERE id = ?`, string(doc), sub.ID)
	return eris.Wrap(err, "history: update submission")
}

// importLegacy inserts legacy rows, skipping ids that already exist.
func (h *SQLiteHistory) importLegacy(ctx context.Context, subs []model.Submission) (int, error) {
	imported := 0
	for i := range subs {
		sub := &subs[i]
		doc, err := json.Marshal(sub)
		if err != nil {
			return imported, eris.Wrap(err, "history: marshal legacy submission")
		}
		res, err := h.db.ExecContext(ctx,
			`INSERT OR IGNORE INTO history (id, language, coherency, doc, created_at) VALUES (?, ?, ?, ?, ?)`,
			sub.ID, sub.Language, sub.Coherency, string(doc), sub.CreatedAt)
		if err != nil {
			return imported, eris.Wrapf(err, "history: import submission %s", sub.ID)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return imported, eris.Wrap(err, "history: rows affected")
		}
		imported += int(n)
	}
	return imported, nil
}
