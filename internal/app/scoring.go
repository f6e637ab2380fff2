package app

import "math"

const (
	basePoints     = 100
	streakBonus    = 10
	streakBonusCap = 50

	// QuestionsPerModule is the denominator used for the overall grade
	// across modules.
	QuestionsPerModule = 10
)

// ComputePoints returns the points awarded for one answer. streak is the
// consecutive-correct count including this answer. The streak bonus caps at
// +50, reached from streak 5 onward.
func ComputePoints(isCorrect bool, streak int) int {
	if !isCorrect {
		return 0
	}
	bonus := streak * streakBonus
	if bonus > streakBonusCap {
		bonus = streakBonusCap
	}
	return basePoints + bonus
}

// ComputeNota grades a finished session on a 0-10 scale from the ratio of
// correct answers to the module's current active question count.
func ComputeNota(correct, totalQuestions int) float64 {
	if totalQuestions == 0 {
		return 0
	}
	return Round3(float64(correct) / float64(totalQuestions) * 10)
}

// ComputeOverallNota aggregates best-session correct counts across all
// active modules into a 0-10 grade. The result is deliberately not clamped.
func ComputeOverallNota(totalCorrect, totalModules, questionsPerModule int) float64 {
	denominator := totalModules * questionsPerModule
	if denominator == 0 {
		return 0
	}
	return Round3(float64(totalCorrect) / float64(denominator) * 10)
}

// Round3 rounds half away from zero to 3 decimal places.
func Round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
