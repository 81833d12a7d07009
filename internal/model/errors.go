package model

import "github.com/rotisserie/eris"

// Sentinel errors for the store and engine. Check with eris.Is; wrap with
// eris.Wrap to add context while preserving the class.
var (
	// ErrValidation indicates a missing or malformed required field.
	ErrValidation = eris.New("validation failed")

	// ErrNotFound indicates an unknown pattern, candidate, or voter id.
	ErrNotFound = eris.New("not found")

	// ErrConcurrentModification indicates a version mismatch on update.
	// The caller must re-read and retry.
	ErrConcurrentModification = eris.New("concurrent modification")

	// ErrDuplicateVote indicates an identical repeat vote.
	ErrDuplicateVote = eris.New("duplicate vote")

	// ErrBackendUnavailable indicates the relational backend could not be
	// opened. The store falls back to the flat-file backend and logs it.
	ErrBackendUnavailable = eris.New("backend unavailable")

	// ErrMigration indicates a best-effort legacy import failed. The legacy
	// file is left untouched and startup proceeds.
	ErrMigration = eris.New("migration failed")
)
