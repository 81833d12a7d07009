package model

import "time"

// Vote directions.
const (
	VoteUp   = 1
	VoteDown = -1
)

// Vote is a single voter's live vote on a pattern. At most one vote exists
// per (pattern, voter) pair; changing direction replaces it in place.
type Vote struct {
	ID        string    `json:"id"`
	PatternID string    `json:"pattern_id"`
	VoterID   string    `json:"voter_id"`
	Direction int       `json:"direction"` // +1 or -1
	Weight    float64   `json:"weight"`    // voter reputation at cast time, clamped
	CastAt    time.Time `json:"cast_at"`
}

// Voter tracks a participant's voting history and reputation.
type Voter struct {
	ID            string    `json:"id"`
	Reputation    float64   `json:"reputation"` // clamped to [0.1, 3.0]
	TotalVotes    int       `json:"total_votes"`
	AccurateVotes int       `json:"accurate_votes"`
	Contributions int       `json:"contributions"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// Reputation bounds and adjustment steps.
const (
	ReputationMin     = 0.1
	ReputationMax     = 3.0
	ReputationDefault = 1.0
	ReputationReward  = 0.05
	ReputationPenalty = 0.03

	VoteWeightMin = 0.5
	VoteWeightMax = 2.0
)

// ClampReputation bounds r to [ReputationMin, ReputationMax].
func ClampReputation(r float64) float64 {
	if r < ReputationMin {
		return ReputationMin
	}
	if r > ReputationMax {
		return ReputationMax
	}
	return r
}

// VoteWeight derives a vote's weight from the voter's reputation.
func VoteWeight(reputation float64) float64 {
	if reputation < VoteWeightMin {
		return VoteWeightMin
	}
	if reputation > VoteWeightMax {
		return VoteWeightMax
	}
	return reputation
}
