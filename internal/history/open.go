package history

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/config"
	"github.com/codekeep/codekeep/internal/model"
	"github.com/codekeep/codekeep/internal/store"
)

// Open constructs a History from configuration, using the same driver and
// data directory as the pattern store. The SQLite backend falls back to the
// flat-file ledger when it cannot be opened, and imports a legacy
// history.json document once, renaming it with the store's .migrated suffix.
func Open(ctx context.Context, cfg config.StoreConfig) (History, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = ".codekeep"
	}

	if cfg.Driver == "file" {
		return NewFile(dir)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "history: create data dir")
	}

	sq, err := NewSQLite(filepath.Join(dir, store.DBFileName))
	if err != nil {
		zap.L().Warn("history: sqlite backend unavailable, falling back to flat file",
			zap.String("data_dir", dir),
			zap.Error(err),
		)
		return NewFile(dir)
	}
	if err := sq.Migrate(ctx); err != nil {
		sq.Close() //nolint:errcheck
		zap.L().Warn("history: sqlite schema migration failed, falling back to flat file",
			zap.String("data_dir", dir),
			zap.Error(err),
		)
		return NewFile(dir)
	}

	// Best effort: a failed import leaves the legacy file untouched.
	if err := importLegacyFile(ctx, sq, dir); err != nil {
		zap.L().Warn("history: legacy ledger import failed",
			zap.String("data_dir", dir),
			zap.Error(err),
		)
	}

	return sq, nil
}

func importLegacyFile(ctx context.Context, sq *SQLiteHistory, dir string) error {
	path := filepath.Join(dir, HistoryFileName)
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return eris.Wrap(model.ErrMigration, eris.Wrap(err, "read legacy ledger").Error())
	}

	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return eris.Wrap(model.ErrMigration, eris.Wrap(err, "decode legacy ledger").Error())
	}

	n, err := sq.importLegacy(ctx, doc.History)
	if err != nil {
		return eris.Wrap(model.ErrMigration, err.Error())
	}
	if err := os.Rename(path, path+store.MigratedSuffix); err != nil {
		return eris.Wrap(model.ErrMigration, eris.Wrap(err, "rename legacy ledger").Error())
	}
	if n > 0 {
		zap.L().Info("history: imported legacy ledger",
			zap.String("data_dir", dir),
			zap.Int("rows", n),
		)
	}
	return nil
}
