// Package scoring computes weighted suitability scores for technician /
// request pairs. Scoring is a pure function: identical inputs always yield
// identical scores, with no clock reads or randomness, so assignment
// decisions stay reproducible and auditable.
package scoring

import (
	"math"
	"strings"

	"github.com/okian/pitstop/internal/domain/model"
)

// Scoring weights, fixed by design. The five factors sum to at most 100.
const (
	maxSkillsScore        = 40.0
	maxWorkloadScore      = 30.0
	workloadPenaltyPerJob = 3.0
	maxRatingScore        = 15.0
	ratingScale           = 5.0
	brandMatchScore       = 10.0
	brandNeutralScore     = 5.0
	maxRotationScore      = 5.0
	rotationDivisorHours  = 24.0

	// NoPriorAssignmentHours is the rotation input used for technicians
	// with no assignment history: one week, which caps the factor.
	NoPriorAssignmentHours = 168.0
)

// Input carries everything one scoring decision needs. ActiveAssignments
// and HoursSinceLastAssignment are gathered by the caller, which owns the
// degradation policy when those reads fail.
type Input struct {
	Technician               model.Technician
	RequiredSkills           []string
	Vehicle                  model.VehicleContext
	ActiveAssignments        int
	HoursSinceLastAssignment float64
}

// Score produces the five-factor suitability score for one technician.
// The total is the exact sum of the breakdown and always lies in [0, 100].
func Score(in Input) model.TechnicianScore {
	breakdown := model.ScoreBreakdown{
		Skills:   skillsScore(in.Technician.Skills, in.RequiredSkills),
		Workload: workloadScore(in.ActiveAssignments),
		Rating:   ratingScore(in.Technician.Rating),
		Brand:    brandScore(in.Technician.Skills, in.Vehicle.Brand),
		Rotation: rotationScore(in.HoursSinceLastAssignment),
	}
	return model.TechnicianScore{
		TechnicianID: in.Technician.ID,
		Total:        breakdown.Sum(),
		Breakdown:    breakdown,
	}
}

// skillsScore is (matched / required) x 40. No required skills means the
// request constrains nothing, which counts as a full match.
func skillsScore(technicianSkills, requiredSkills []string) float64 {
	if len(requiredSkills) == 0 {
		return maxSkillsScore
	}

	have := make(map[string]struct{}, len(technicianSkills))
	for _, s := range technicianSkills {
		have[strings.ToLower(s)] = struct{}{}
	}

	matched := 0
	for _, s := range requiredSkills {
		if _, ok := have[strings.ToLower(s)]; ok {
			matched++
		}
	}
	return float64(matched) / float64(len(requiredSkills)) * maxSkillsScore
}

// workloadScore is max(0, 30 - active x 3): each active assignment costs
// three points so loaded technicians fall behind idle ones.
func workloadScore(activeAssignments int) float64 {
	return math.Max(0, maxWorkloadScore-float64(activeAssignments)*workloadPenaltyPerJob)
}

// ratingScore maps the 0-5 rating onto 0-15.
func ratingScore(rating float64) float64 {
	r := math.Max(0, math.Min(ratingScale, rating))
	return r / ratingScale * maxRatingScore
}

// brandScore gives 10 when any skill case-insensitively contains the
// vehicle brand, 5 otherwise. An unknown brand is neutral, not a penalty.
func brandScore(technicianSkills []string, brand string) float64 {
	brand = strings.ToLower(strings.TrimSpace(brand))
	if brand == "" {
		return brandNeutralScore
	}
	for _, s := range technicianSkills {
		if strings.Contains(strings.ToLower(s), brand) {
			return brandMatchScore
		}
	}
	return brandNeutralScore
}

// rotationScore is min(5, hoursSince / 24): a full week idle (or no
// history, passed as NoPriorAssignmentHours) caps the factor.
func rotationScore(hoursSinceLastAssignment float64) float64 {
	if hoursSinceLastAssignment < 0 {
		hoursSinceLastAssignment = NoPriorAssignmentHours
	}
	return math.Min(maxRotationScore, hoursSinceLastAssignment/rotationDivisorHours)
}
