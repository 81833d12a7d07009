package store

import (
	"context"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/codekeep/codekeep/internal/config"
)

// DBFileName is the SQLite database file inside the data directory.
const DBFileName = "codekeep.db"

// Open constructs a Store from configuration. The "sqlite" driver (default)
// falls back to the flat-file backend when the database cannot be opened;
// the fallback is logged, not surfaced as failure. When the SQLite backend
// opens next to legacy flat-file documents, they are imported once and
// renamed with a .migrated suffix.
func Open(ctx context.Context, cfg config.StoreConfig, opts Options) (Store, error) {
	dir := cfg.DataDir
	if dir == "" {
		dir = ".codekeep"
	}

	if cfg.Driver == "file" {
		return NewFile(dir, opts)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "store: create data dir")
	}

	sq, err := NewSQLite(filepath.Join(dir, DBFileName), opts)
	if err != nil {
		zap.L().Warn("store: sqlite backend unavailable, falling back to flat files",
			zap.String("data_dir", dir),
			zap.Error(err),
		)
		return NewFile(dir, opts)
	}
	if err := sq.Migrate(ctx); err != nil {
		sq.Close() //nolint:errcheck
		zap.L().Warn("store: sqlite schema migration failed, falling back to flat files",
			zap.String("data_dir", dir),
			zap.Error(err),
		)
		return NewFile(dir, opts)
	}

	// Best effort: a failed import leaves the legacy files untouched.
	if err := ImportLegacy(ctx, sq, dir); err != nil {
		zap.L().Warn("store: legacy flat-file import failed",
			zap.String("data_dir", dir),
			zap.Error(err),
		)
	}

	return sq, nil
}
