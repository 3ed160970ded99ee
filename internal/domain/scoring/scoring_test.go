package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/target/intake-pipeline/internal/domain/model"
)

func score(v float64) *float64 { return &v }

func TestCompute_SingleCategory(t *testing.T) {
	res := Compute([]model.CategoryResponses{{
		Category: "Strategy",
		Responses: []model.QuestionResponse{
			{QuestionID: "q1", Answer: "a", Score: score(80)},
			{QuestionID: "q2", Answer: "b", Score: score(60)},
		},
	}})

	require.Len(t, res.Categories, 1)
	got, ok := res.Categories.Get("Strategy")
	require.True(t, ok)
	assert.InDelta(t, 70, got, 1e-9)
	assert.InDelta(t, 70, res.Overall, 1e-9)
}

func TestCompute_OverallIsMeanOfCategoryMeans(t *testing.T) {
	responses := []model.CategoryResponses{
		{Category: "Strategy", Responses: []model.QuestionResponse{
			{QuestionID: "q1", Score: score(100)},
			{QuestionID: "q2", Score: score(50)},
			{QuestionID: "q3", Score: score(0)},
		}},
		{Category: "Data", Responses: []model.QuestionResponse{
			{QuestionID: "q4", Score: score(40)},
		}},
	}

	res := Compute(responses)

	assert.Equal(t, model.CategoryScores{
		{Category: "Strategy", Score: 50},
		{Category: "Data", Score: 40},
	}, res.Categories)
	assert.InDelta(t, 45, res.Overall, 1e-9)
}

func TestCompute_UnansweredCountsAsZero(t *testing.T) {
	res := Compute([]model.CategoryResponses{{
		Category: "Adoption",
		Responses: []model.QuestionResponse{
			{QuestionID: "q1", Score: score(90)},
			{QuestionID: "q2", Answer: ""},
		},
	}})

	assert.InDelta(t, 45, res.Overall, 1e-9)
}

func TestCompute_RoundsToTwoDecimals(t *testing.T) {
	res := Compute([]model.CategoryResponses{{
		Category: "Ops",
		Responses: []model.QuestionResponse{
			{QuestionID: "q1", Score: score(100)},
			{QuestionID: "q2", Score: score(0)},
			{QuestionID: "q3", Score: score(0)},
		},
	}})

	assert.InDelta(t, 33.33, res.Overall, 1e-9)
}

func TestCompute_ClampsOutOfRange(t *testing.T) {
	res := Compute([]model.CategoryResponses{{
		Category: "Ops",
		Responses: []model.QuestionResponse{
			{QuestionID: "q1", Score: score(150)},
			{QuestionID: "q2", Score: score(-20)},
		},
	}})

	assert.InDelta(t, 50, res.Overall, 1e-9)
}

func TestCompute_Deterministic(t *testing.T) {
	responses := []model.CategoryResponses{
		{Category: "A", Responses: []model.QuestionResponse{{QuestionID: "1", Score: score(12.345)}, {QuestionID: "2", Score: score(67.891)}}},
		{Category: "B", Responses: []model.QuestionResponse{{QuestionID: "3", Score: score(99.999)}}},
	}
	first := Compute(responses)
	for range 50 {
		assert.Equal(t, first, Compute(responses))
	}
}

func TestCompute_Empty(t *testing.T) {
	res := Compute(nil)
	assert.Empty(t, res.Categories)
	assert.Zero(t, res.Overall)
}
