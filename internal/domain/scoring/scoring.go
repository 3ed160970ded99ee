// Package scoring computes assessment scores from submitted answers.
package scoring

import (
	"math"

	"github.com/target/intake-pipeline/internal/domain/model"
)

const (
	// MinScore is the lowest score a question may carry.
	MinScore = 0.0
	// MaxScore is the highest score a question may carry.
	MaxScore = 100.0
)

// Result holds the computed scores of one submission.
type Result struct {
	Overall    float64
	Categories model.CategoryScores
}

// Compute scores each category as the mean of its question scores and the
// overall score as the mean of the category scores. Questions without a score
// contribute zero. Out-of-range scores are clamped. Results are rounded to two
// decimals after averaging so the output does not depend on evaluation order.
func Compute(responses []model.CategoryResponses) Result {
	res := Result{Categories: make(model.CategoryScores, 0, len(responses))}
	if len(responses) == 0 {
		return res
	}

	var sum float64
	for _, block := range responses {
		cat := categoryMean(block.Responses)
		sum += cat
		res.Categories = append(res.Categories, model.CategoryScore{
			Category: block.Category,
			Score:    Round2(cat),
		})
	}
	res.Overall = Round2(sum / float64(len(responses)))
	return res
}

func categoryMean(qs []model.QuestionResponse) float64 {
	if len(qs) == 0 {
		return 0
	}
	var sum float64
	for _, q := range qs {
		if q.Score == nil {
			continue
		}
		sum += clamp(*q.Score)
	}
	return sum / float64(len(qs))
}

func clamp(v float64) float64 {
	if math.IsNaN(v) {
		return MinScore
	}
	return math.Max(MinScore, math.Min(MaxScore, v))
}

// Round2 rounds half away from zero to two decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}
