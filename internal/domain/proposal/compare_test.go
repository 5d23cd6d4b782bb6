package proposal

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func comparison(cost, rating string, experience int, createdAt time.Time) Comparison {
	return Comparison{
		Proposal: &Proposal{
			ID:        uuid.New(),
			Cost:      decimal.RequireFromString(cost),
			CreatedAt: createdAt,
			Status:    StatusPending,
		},
		DoctorRating:     decimal.RequireFromString(rating),
		DoctorExperience: experience,
	}
}

func TestRank(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	cheap := comparison("4500", "4.2", 5, base)
	pricey := comparison("5000", "4.9", 12, base)
	ranked := Rank([]Comparison{pricey, cheap})

	if !ranked[0].Proposal.Cost.Equal(cheap.Proposal.Cost) {
		t.Errorf("lowest cost should rank first, got %s", ranked[0].Proposal.Cost)
	}
}

func TestRankTieBreakers(t *testing.T) {
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	// same cost: higher rating wins
	lowRated := comparison("4500", "3.5", 10, base)
	highRated := comparison("4500", "4.8", 3, base)
	ranked := Rank([]Comparison{lowRated, highRated})
	if !ranked[0].DoctorRating.Equal(highRated.DoctorRating) {
		t.Errorf("higher rating should win on equal cost")
	}

	// same cost and rating: more experience wins
	junior := comparison("4500", "4.0", 2, base)
	senior := comparison("4500", "4.0", 15, base)
	ranked = Rank([]Comparison{junior, senior})
	if ranked[0].DoctorExperience != 15 {
		t.Errorf("more experience should win on equal cost and rating")
	}

	// full tie: earliest submission wins
	late := comparison("4500", "4.0", 5, base.Add(time.Hour))
	early := comparison("4500", "4.0", 5, base)
	ranked = Rank([]Comparison{late, early})
	if !ranked[0].Proposal.CreatedAt.Equal(base) {
		t.Errorf("earliest submission should win a full tie")
	}
}

func TestRankDoesNotMutateInput(t *testing.T) {
	base := time.Now()
	input := []Comparison{
		comparison("5000", "4.0", 5, base),
		comparison("4500", "4.0", 5, base),
	}
	first := input[0].Proposal.ID

	Rank(input)

	if input[0].Proposal.ID != first {
		t.Errorf("Rank must not reorder its input slice")
	}
}
