// Package prompts holds the catalog of rewriting instructions, their learned
// scores, and the explore/exploit policy that picks one for the next rewrite.
package prompts

import (
	"errors"
	"time"
)

// Sentinel prompt names. They label rewrites that did not come from a scored
// catalog entry and never receive rewards.
const (
	SentinelCustom   = "custom_instruction_override"
	SentinelFallback = "fallback_default"
	SentinelUnknown  = "unknown_initial_prompt"
)

// FallbackTemplate is used when no catalog entry is eligible for selection.
const FallbackTemplate = "Rewrite the following text:\n\n"

var (
	ErrExists      = errors.New("prompt already exists")
	ErrEmptyName   = errors.New("prompt name is required")
	ErrCorruptFile = errors.New("prompt score file is corrupt")
)

// Origin records how a prompt entered the catalog.
type Origin string

const (
	OriginSeed      Origin = "seed"
	OriginGenerated Origin = "generated"
	OriginManual    Origin = "manual"
)

// Record is one named instruction template and its learned score.
type Record struct {
	Template    string     `json:"template"`
	Score       float64    `json:"score"`
	Uses        int        `json:"uses,omitempty"`
	TotalReward float64    `json:"total_reward,omitempty"`
	LastReward  float64    `json:"last_reward,omitempty"`
	Origin      Origin     `json:"origin,omitempty"`
	CreatedAt   time.Time  `json:"created_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
}

// Catalog maps prompt names to their records.
type Catalog map[string]Record

// Clone returns an independent copy of c.
func (c Catalog) Clone() Catalog {
	out := make(Catalog, len(c))
	for name, rec := range c {
		if rec.LastUsedAt != nil {
			t := *rec.LastUsedAt
			rec.LastUsedAt = &t
		}
		out[name] = rec
	}
	return out
}

// Bounds limits scores and defines the selection exclusion threshold.
type Bounds struct {
	MinScore         float64
	MaxScore         float64
	ExcludeThreshold float64
}

// DefaultBounds returns the standard score range and exclusion threshold.
func DefaultBounds() Bounds {
	return Bounds{
		MinScore:         -10.0,
		MaxScore:         10.0,
		ExcludeThreshold: -5.0,
	}
}

// Clamp limits score to the configured range.
func (b Bounds) Clamp(score float64) float64 {
	return min(max(score, b.MinScore), b.MaxScore)
}

// IsSentinel reports whether name is one of the reserved unscored names.
func IsSentinel(name string) bool {
	switch name {
	case SentinelCustom, SentinelFallback, SentinelUnknown:
		return true
	}
	return false
}
