package email

import (
	"context"
	"errors"
	"testing"
	"testing/fstest"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/intake-pipeline/config"
	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

type fakeSES struct {
	inputs []*sesv2.SendEmailInput
	err    error
}

func (f *fakeSES) SendEmail(_ context.Context, in *sesv2.SendEmailInput, _ ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error) {
	f.inputs = append(f.inputs, in)
	if f.err != nil {
		return nil, f.err
	}
	return &sesv2.SendEmailOutput{MessageId: aws.String("msg-1")}, nil
}

func reportData() map[string]any {
	return map[string]any{
		"assessment_id": "a1",
		"contact_name":  "Dana",
		"company_name":  "Acme & Co",
		"overall_score": 72.5,
		"categories": []map[string]any{
			{"name": "Strategy", "score": 80.0},
			{"name": "Data", "score": 65.0},
		},
		"report_url": "https://reports.example.com/a1.html",
	}
}

func newRenderer(t *testing.T) *Renderer {
	t.Helper()
	r, err := NewRenderer(RendererOptions{})
	require.NoError(t, err)
	return r
}

func TestRenderer_AssessmentReport(t *testing.T) {
	msg, err := newRenderer(t).Render(core.TemplateAssessmentReport, reportData())
	require.NoError(t, err)

	assert.Equal(t, "Your AI readiness report: 72.5/100", msg.Subject)
	assert.Contains(t, msg.HTML, "Acme &amp; Co")
	assert.Contains(t, msg.HTML, "https://reports.example.com/a1.html")
	assert.Contains(t, msg.Text, "- Strategy: 80")
	assert.Contains(t, msg.Text, "Acme & Co")
}

func TestRenderer_AssessmentReceived(t *testing.T) {
	msg, err := newRenderer(t).Render(core.TemplateAssessmentReceived, map[string]any{
		"assessment_id": "a1",
		"contact_name":  "",
		"company_name":  "",
	})
	require.NoError(t, err)

	assert.Equal(t, "We received your AI readiness assessment", msg.Subject)
	assert.Contains(t, msg.Text, "Hi there,")
	assert.Contains(t, msg.HTML, "Reference: a1")
}

func TestRenderer_UnknownTemplateIsTerminal(t *testing.T) {
	_, err := newRenderer(t).Render(core.EmailTemplate("nope"), nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsTerminal(err))
}

func TestRenderer_TextPartIsOptional(t *testing.T) {
	r, err := NewRenderer(RendererOptions{
		Templates: fstest.MapFS{
			"welcome.subject.liquid": {Data: []byte("Hello {{ name }}")},
			"welcome.html.liquid":    {Data: []byte("<p>{{ name }}</p>")},
		},
		CacheSize: 1,
	})
	require.NoError(t, err)

	for range 2 {
		msg, err := r.Render("welcome", map[string]any{"name": "Kai"})
		require.NoError(t, err)
		assert.Equal(t, "Hello Kai", msg.Subject)
		assert.Empty(t, msg.Text)
	}
}

func TestRenderer_ParseErrorIsTerminal(t *testing.T) {
	r, err := NewRenderer(RendererOptions{Templates: fstest.MapFS{
		"broken.subject.liquid": {Data: []byte("{% if %}")},
	}})
	require.NoError(t, err)

	_, err = r.Render("broken", nil)
	assert.True(t, apperrors.IsTerminal(err))
}

func newTestSESSender(t *testing.T, client SESAPI) *SESSender {
	t.Helper()
	s, err := NewSESSender(context.Background(), SESSenderOptions{
		Config:   config.EmailConfig{Enabled: true, From: "team@example.com", ConfigurationSet: "intake"},
		Renderer: newRenderer(t),
		Client:   client,
	})
	require.NoError(t, err)
	return s
}

func TestSESSender_Send(t *testing.T) {
	fake := &fakeSES{}
	s := newTestSESSender(t, fake)

	require.NoError(t, s.Send(context.Background(), core.TemplateAssessmentReport, "dana@example.com", reportData()))
	require.Len(t, fake.inputs, 1)

	in := fake.inputs[0]
	assert.Equal(t, "team@example.com", aws.ToString(in.FromEmailAddress))
	assert.Equal(t, []string{"dana@example.com"}, in.Destination.ToAddresses)
	assert.Equal(t, "intake", aws.ToString(in.ConfigurationSetName))
	assert.Equal(t, "Your AI readiness report: 72.5/100", aws.ToString(in.Content.Simple.Subject.Data))
	require.NotNil(t, in.Content.Simple.Body.Text)
}

func TestSESSender_ClassifiesErrors(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		terminal bool
	}{
		{name: "rejected", err: &types.MessageRejected{Message: aws.String("bad address")}, terminal: true},
		{name: "bad request", err: &types.BadRequestException{Message: aws.String("nope")}, terminal: true},
		{name: "throttled", err: &types.TooManyRequestsException{Message: aws.String("slow down")}},
		{name: "timeout", err: context.DeadlineExceeded},
		{name: "network", err: errors.New("connection reset")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSESSender(t, &fakeSES{err: tt.err})
			err := s.Send(context.Background(), core.TemplateAssessmentReceived, "dana@example.com", reportData())
			require.Error(t, err)
			assert.Equal(t, tt.terminal, apperrors.IsTerminal(err))
			assert.Equal(t, !tt.terminal, apperrors.IsTransient(err))
		})
	}
}

func TestNewSESSender_Validation(t *testing.T) {
	_, err := NewSESSender(context.Background(), SESSenderOptions{Renderer: newRenderer(t), Client: &fakeSES{}})
	require.Error(t, err)

	_, err = NewSESSender(context.Background(), SESSenderOptions{Config: config.EmailConfig{From: "a@example.com"}, Client: &fakeSES{}})
	require.Error(t, err)
}

func TestLogSender(t *testing.T) {
	s, err := NewLogSender(newRenderer(t), nil)
	require.NoError(t, err)
	require.NoError(t, s.Send(context.Background(), core.TemplateAssessmentReport, "dana@example.com", reportData()))

	err = s.Send(context.Background(), core.EmailTemplate("missing"), "dana@example.com", nil)
	assert.True(t, apperrors.IsTerminal(err))
}
