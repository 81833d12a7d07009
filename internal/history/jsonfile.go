package history

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

// HistoryFileName is the flat-file ledger document inside the data directory.
const HistoryFileName = "history.json"

// FileHistory implements History on a single JSON document. It assumes one
// owning process; every mutation rewrites the file atomically.
type FileHistory struct {
	mu   sync.Mutex
	path string
	subs []model.Submission
}

type historyDoc struct {
	History []model.Submission `json:"history"`
}

// NewFile loads (or initializes) the ledger document under dir.
func NewFile(dir string) (*FileHistory, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, eris.Wrap(err, "history: create data dir")
	}
	h := &FileHistory{path: filepath.Join(dir, HistoryFileName)}

	data, err := os.ReadFile(h.path)
	if os.IsNotExist(err) {
		return h, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "history: read ledger document")
	}
	var doc historyDoc
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrap(err, "history: decode ledger document")
	}
	h.subs = doc.History
	return h, nil
}

func (h *FileHistory) Close() error { return nil }

func (h *FileHistory) Add(ctx context.Context, in AddInput) (*model.Submission, error) {
	sub, err := buildSubmission(in, uuid.NewString(), time.Now().UTC())
	if err != nil {
		return nil, err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.subs = append(h.subs, *sub)
	if err := h.save(); err != nil {
		return nil, err
	}
	return sub, nil
}

func (h *FileHistory) Get(ctx context.Context, id string) (*model.Submission, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.subs {
		if h.subs[i].ID == id {
			sub := h.subs[i]
			return &sub, nil
		}
	}
	return nil, eris.Wrapf(model.ErrNotFound, "history: submission %s", id)
}

func (h *FileHistory) GetAll(ctx context.Context, f Filters) ([]model.Submission, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	subs := make([]model.Submission, 0, len(h.subs))
	for i := range h.subs {
		if matchesFilters(&h.subs[i], f) {
			subs = append(subs, h.subs[i])
		}
	}
	sort.SliceStable(subs, func(i, j int) bool {
		return subs[i].CreatedAt.After(subs[j].CreatedAt)
	})
	if f.Limit > 0 && len(subs) > f.Limit {
		subs = subs[:f.Limit]
	}
	return subs, nil
}

func (h *FileHistory) RecordUsage(ctx context.Context, id string, succeeded bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	for i := range h.subs {
		if h.subs[i].ID == id {
			h.subs[i].UsageCount++
			if succeeded {
				h.subs[i].SuccessCount++
			}
			return h.save()
		}
	}
	return eris.Wrapf(model.ErrNotFound, "history: submission %s", id)
}

func (h *FileHistory) Prune(ctx context.Context, minCoherency float64) (int, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	kept := h.subs[:0]
	pruned := 0
	for i := range h.subs {
		if h.subs[i].Coherency < minCoherency {
			pruned++
			continue
		}
		kept = append(kept, h.subs[i])
	}
	h.subs = kept
	if pruned == 0 {
		return 0, nil
	}
	return pruned, h.save()
}

func (h *FileHistory) Summarize(ctx context.Context) (*Summary, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return summarize(h.subs), nil
}

// save writes the document atomically. Caller holds the mutex.
func (h *FileHistory) save() error {
	data, err := json.MarshalIndent(historyDoc{History: h.subs}, "", "  ")
	if err != nil {
		return eris.Wrap(err, "history: marshal ledger document")
	}
	tmp := h.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return eris.Wrap(err, "history: write ledger document")
	}
	return eris.Wrap(os.Rename(tmp, h.path), "history: replace ledger document")
}
