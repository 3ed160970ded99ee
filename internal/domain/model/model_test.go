package model

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJobKind_Valid(t *testing.T) {
	assert.True(t, JobKindNewsletterSync.Valid())
	assert.True(t, JobKindAssessmentScore.Valid())
	assert.False(t, JobKind("browser").Valid())
}

func TestJobKind_UnmarshalText(t *testing.T) {
	var jk JobKind
	require.NoError(t, jk.UnmarshalText([]byte(" Assessment_Score ")))
	assert.Equal(t, JobKindAssessmentScore, jk)

	err := jk.UnmarshalText([]byte("nope"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid JobKind")
}

func TestEnqueueRequest_Validate(t *testing.T) {
	tests := []struct {
		name    string
		req     EnqueueRequest
		wantErr string
	}{
		{
			name: "valid",
			req:  EnqueueRequest{Kind: JobKindNewsletterSync, SubjectID: "s1", Payload: NewsletterSyncPayload{SubscriptionID: "s1"}},
		},
		{
			name:    "invalid kind",
			req:     EnqueueRequest{Kind: "x", SubjectID: "s1", Payload: 1},
			wantErr: "invalid job kind",
		},
		{
			name:    "missing subject",
			req:     EnqueueRequest{Kind: JobKindNewsletterSync, Payload: 1},
			wantErr: "subject id is required",
		},
		{
			name:    "missing payload",
			req:     EnqueueRequest{Kind: JobKindNewsletterSync, SubjectID: "s1"},
			wantErr: "payload is required",
		},
		{
			name:    "negative delay",
			req:     EnqueueRequest{Kind: JobKindNewsletterSync, SubjectID: "s1", Payload: 1, Delay: -time.Second},
			wantErr: "delay must be >= 0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.req.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestJob_FinalAttempt(t *testing.T) {
	j := &Job{Attempt: 3, MaxAttempts: 5}
	assert.False(t, j.FinalAttempt())
	j.Attempt = 4
	assert.True(t, j.FinalAttempt())
}

func TestCategoryScores_JSONKeepsOrder(t *testing.T) {
	scores := CategoryScores{
		{Category: "Strategy", Score: 70},
		{Category: "Data", Score: 42.5},
		{Category: "Adoption", Score: 0},
	}

	raw, err := json.Marshal(scores)
	require.NoError(t, err)
	assert.Equal(t, `{"Strategy":70,"Data":42.5,"Adoption":0}`, string(raw))

	var decoded CategoryScores
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, scores, decoded)

	v, ok := decoded.Get("Data")
	assert.True(t, ok)
	assert.InDelta(t, 42.5, v, 0.0001)
}

func TestCategoryScores_UnmarshalRejectsArray(t *testing.T) {
	var decoded CategoryScores
	err := json.Unmarshal([]byte(`[1,2]`), &decoded)
	require.Error(t, err)
}

func TestAssessmentStatusView(t *testing.T) {
	created := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	sub := &AssessmentSubmission{
		ID:        "a1",
		Status:    AssessmentSubmitted,
		CreatedAt: created,
	}

	view := AssessmentStatusView(sub)
	require.NotNil(t, view)
	assert.Equal(t, "SUBMITTED", view.Status)
	assert.Nil(t, view.OverallScore)
	assert.False(t, *view.ReportSent)
	assert.False(t, view.Terminal())

	sent := created.Add(time.Minute)
	sub.Status = AssessmentCompleted
	sub.OverallScore = 70
	sub.CategoryScores = CategoryScores{{Category: "Strategy", Score: 70}}
	sub.ReportGenerated = true
	sub.ReportSentAt = &sent

	view = AssessmentStatusView(sub)
	require.NotNil(t, view.OverallScore)
	assert.InDelta(t, 70, *view.OverallScore, 0.0001)
	assert.True(t, *view.ReportGenerated)
	assert.True(t, *view.ReportSent)
	assert.True(t, view.Terminal())
}

func TestListRecentOptions_Normalize(t *testing.T) {
	assert.Equal(t, DefaultRecentLimit, ListRecentOptions{}.Normalize().Limit)
	assert.Equal(t, MaxRecentLimit, ListRecentOptions{Limit: 10_000}.Normalize().Limit)
	assert.Equal(t, 5, ListRecentOptions{Limit: 5}.Normalize().Limit)
}
