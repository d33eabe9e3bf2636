// Package reward turns a human reaction to a rewritten chapter into a scalar
// feedback signal. The computation is pure: no state, no I/O.
package reward

// Action is the human decision a reward is computed for.
type Action string

const (
	ActionEdit     Action = "edit"
	ActionFinalize Action = "finalize"
	ActionRespin   Action = "respin"
)

const (
	finalizeBase       = 10.0
	finalizeEditWeight = 5.0

	editBase   = 3.0
	editWeight = 10.0
	editFloor  = -5.0

	respinReward = -5.0

	ratingNeutral = 3
	ratingWeight  = 2.0
	MinRating     = 1
	MaxRating     = 5

	iterationPenalty = 0.1
)

// Signal carries the inputs of a reward computation. Rating and EditRatio are
// optional; a nil value skips the corresponding term.
type Signal struct {
	Action    Action
	Iteration int
	Rating    *int
	EditRatio *float64
}

// Breakdown lists every term that contributed to a reward.
type Breakdown struct {
	Base             float64
	EditImpact       float64
	RatingImpact     float64
	IterationPenalty float64
	Total            float64
}

// Compute returns the reward for s.
func Compute(s Signal) float64 {
	return Explain(s).Total
}

// Explain computes the reward for s and reports each term separately.
func Explain(s Signal) Breakdown {
	var b Breakdown
	running := 0.0

	switch s.Action {
	case ActionFinalize:
		b.Base = finalizeBase
		running = finalizeBase
		if s.EditRatio != nil {
			b.EditImpact = -(*s.EditRatio * finalizeEditWeight)
			running += b.EditImpact
		}
	case ActionEdit:
		b.Base = editBase
		running = editBase
		if s.EditRatio != nil {
			b.EditImpact = -(*s.EditRatio * editWeight)
			running += b.EditImpact
		}
		if running < editFloor {
			// floor applies to the edit term only
			b.EditImpact = editFloor - editBase
			running = editFloor
		}
	case ActionRespin:
		b.Base = respinReward
		running = respinReward
	}

	if s.Rating != nil && ValidRating(*s.Rating) {
		b.RatingImpact = RatingImpact(*s.Rating)
		running += b.RatingImpact
	}

	if s.Iteration > 0 {
		b.IterationPenalty = float64(s.Iteration) * iterationPenalty
	}
	b.Total = running - b.IterationPenalty
	return b
}

// RatingImpact maps a 1-5 rating onto -4..+4, neutral at 3.
func RatingImpact(rating int) float64 {
	return float64(rating-ratingNeutral) * ratingWeight
}

// ValidRating reports whether rating is within the accepted star range.
func ValidRating(rating int) bool {
	return rating >= MinRating && rating <= MaxRating
}

// Rating returns a pointer suitable for Signal.Rating.
func Rating(r int) *int {
	return &r
}

// Ratio returns a pointer suitable for Signal.EditRatio.
func Ratio(r float64) *float64 {
	return &r
}
