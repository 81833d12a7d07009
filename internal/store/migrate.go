package store

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/model"
)

// MigratedSuffix marks a legacy flat-file document that has already been
// imported; renamed files are never imported again.
const MigratedSuffix = ".migrated"

// ImportLegacy imports legacy flat-file documents from dir into the SQLite
// backend, then renames each source file with MigratedSuffix so re-runs are
// idempotent. Rows that already exist (by dedup key or id) are skipped. Any
// failure leaves the legacy file in place.
func ImportLegacy(ctx context.Context, s *SQLiteStore, dir string) error {
	imported := 0

	path := filepath.Join(dir, patternsFile)
	if exists(path) {
		var patterns []model.Pattern
		if err := loadDoc(path, "patterns", &patterns); err != nil {
			return eris.Wrap(model.ErrMigration, err.Error())
		}
		for i := range patterns {
			n, err := s.importPattern(ctx, &patterns[i])
			if err != nil {
				return eris.Wrap(model.ErrMigration, err.Error())
			}
			imported += n
		}
		if err := os.Rename(path, path+MigratedSuffix); err != nil {
			return eris.Wrap(model.ErrMigration, eris.Wrap(err, "rename patterns document").Error())
		}
	}

	path = filepath.Join(dir, candidatesFile)
	if exists(path) {
		var candidates []model.Candidate
		if err := loadDoc(path, "candidates", &candidates); err != nil {
			return eris.Wrap(model.ErrMigration, err.Error())
		}
		for i := range candidates {
			n, err := s.importCandidate(ctx, &candidates[i])
			if err != nil {
				return eris.Wrap(model.ErrMigration, err.Error())
			}
			imported += n
		}
		if err := os.Rename(path, path+MigratedSuffix); err != nil {
			return eris.Wrap(model.ErrMigration, eris.Wrap(err, "rename candidates document").Error())
		}
	}

	if imported > 0 {
		zap.L().Info("store: imported legacy flat-file documents",
			zap.String("data_dir", dir),
			zap.Int("rows", imported),
		)
	}
	return nil
}

func (s *SQLiteStore) importPattern(ctx context.Context, p *model.Pattern) (int, error) {
	doc, err := json.Marshal(p)
	if err != nil {
		return 0, eris.Wrap(err, "marshal legacy pattern")
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO patterns (id, dedup_key, name, language, coherency, version, doc, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, model.DedupKey(p.Name, p.Language), p.Name, p.Language,
		p.Coherency, p.Version, string(doc), p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return 0, eris.Wrapf(err, "import pattern %s", p.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	return int(n), nil
}

func (s *SQLiteStore) importCandidate(ctx context.Context, c *model.Candidate) (int, error) {
	doc, err := json.Marshal(c)
	if err != nil {
		return 0, eris.Wrap(err, "marshal legacy candidate")
	}
	var promotedAt any
	if c.PromotedAt != nil {
		promotedAt = *c.PromotedAt
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT OR IGNORE INTO candidates (id, coherency, promoted_at, doc, created_at) VALUES (?, ?, ?, ?, ?)`,
		c.ID, c.Coherency, promotedAt, string(doc), c.CreatedAt)
	if err != nil {
		return 0, eris.Wrapf(err, "import candidate %s", c.ID)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "rows affected")
	}
	return int(n), nil
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
