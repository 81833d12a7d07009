package model

import "time"

// Audit actions recorded by the store.
const (
	AuditRegister   = "register"
	AuditReplace    = "replace"
	AuditUpdate     = "update"
	AuditUsage      = "usage"
	AuditBugReport  = "bug_report"
	AuditVote       = "vote"
	AuditReputation = "reputation"
	AuditRetire     = "retire"
	AuditEvolve     = "evolve"
	AuditCandidate  = "candidate_add"
	AuditPromote    = "candidate_promote"
	AuditPrune      = "candidate_prune"
)

// AuditEntry is one row of the append-only audit log. Seq is assigned by the
// backend and increases monotonically; entries are never updated or deleted.
type AuditEntry struct {
	Seq       int64          `json:"seq"`
	Timestamp time.Time      `json:"timestamp"`
	Action    string         `json:"action"`
	Table     string         `json:"table"`
	TargetID  string         `json:"target_id"`
	Detail    map[string]any `json:"detail,omitempty"`
	Actor     string         `json:"actor"`
}

// Submission is one validated, one-off entry in the history ledger. Unlike
// patterns, submissions are never deduplicated or evolved.
type Submission struct {
	ID           string    `json:"id"`
	Description  string    `json:"description"`
	Code         string    `json:"code"`
	Language     string    `json:"language"`
	Tags         []string  `json:"tags,omitempty"`
	Coherency    float64   `json:"coherency"`
	UsageCount   int       `json:"usage_count"`
	SuccessCount int       `json:"success_count"`
	CreatedAt    time.Time `json:"created_at"`
}
