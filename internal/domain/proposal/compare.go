package proposal

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Comparison pairs a pending proposal with the doctor attributes patients
// rank on. It is a read model only; building one never mutates state.
type Comparison struct {
	Proposal         *Proposal
	DoctorRating     decimal.Decimal
	DoctorExperience int // years
}

// Rank orders comparisons best-first: lowest cost, then highest rating, then
// most experience, then earliest submission.
func Rank(comparisons []Comparison) []Comparison {
	ranked := make([]Comparison, len(comparisons))
	copy(ranked, comparisons)

	sort.SliceStable(ranked, func(i, j int) bool {
		a, b := ranked[i], ranked[j]
		if !a.Proposal.Cost.Equal(b.Proposal.Cost) {
			return a.Proposal.Cost.LessThan(b.Proposal.Cost)
		}
		if !a.DoctorRating.Equal(b.DoctorRating) {
			return a.DoctorRating.GreaterThan(b.DoctorRating)
		}
		if a.DoctorExperience != b.DoctorExperience {
			return a.DoctorExperience > b.DoctorExperience
		}
		return a.Proposal.CreatedAt.Before(b.Proposal.CreatedAt)
	})

	return ranked
}
