// Package report renders assessment reports and stores them as HTML documents.
package report

import (
	"bytes"
	"context"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/osteele/liquid"

	"github.com/target/intake-pipeline/internal/core"
	"github.com/target/intake-pipeline/internal/domain/model"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

//go:embed report.liquid
var reportTemplate string

const contentType = "text/html; charset=utf-8"

// Readiness bands by score.
const (
	BandAdvanced   = "Advanced"
	BandDeveloping = "Developing"
	BandEarly      = "Early"
)

// Document is the structured report embedded in the HTML.
type Document struct {
	AssessmentID string            `json:"assessment_id"`
	CompanyName  string            `json:"company_name"`
	ContactName  string            `json:"contact_name"`
	SubmittedAt  string            `json:"submitted_at"`
	OverallScore float64           `json:"overall_score"`
	Band         string            `json:"band"`
	Categories   []CategorySummary `json:"categories"`
}

// CategorySummary is one scored category in a Document.
type CategorySummary struct {
	Name  string  `json:"name"`
	Score float64 `json:"score"`
	Band  string  `json:"band"`
}

// GeneratorOptions groups dependencies for Generator.
type GeneratorOptions struct {
	Store   core.ObjectStore // Required
	Timeout time.Duration    // Optional: bounds rendering plus upload, defaults to 30s
	Logger  *slog.Logger     // Optional
}

// Generator builds reports and uploads them through an ObjectStore.
type Generator struct {
	store   core.ObjectStore
	tpl     *liquid.Template
	timeout time.Duration
	logger  *slog.Logger
}

var _ core.ReportGenerator = (*Generator)(nil)

// NewGenerator creates a Generator.
func NewGenerator(opts GeneratorOptions) (*Generator, error) {
	if opts.Store == nil {
		return nil, errors.New("object store is required")
	}
	tpl, err := liquid.NewEngine().ParseString(reportTemplate)
	if err != nil {
		return nil, fmt.Errorf("parse report template: %w", err)
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{
		store:   opts.Store,
		tpl:     tpl,
		timeout: opts.Timeout,
		logger:  logger.With("component", "report"),
	}, nil
}

// Generate implements core.ReportGenerator. The same submission always
// renders to the same bytes and key.
func (g *Generator) Generate(ctx context.Context, sub *model.AssessmentSubmission) (string, error) {
	if sub == nil || sub.ID == "" {
		return "", apperrors.Terminal(nil, "report requires a stored submission")
	}
	if len(sub.CategoryScores) == 0 {
		return "", apperrors.Terminal(nil, "report requires scored categories")
	}

	body, err := g.Render(sub)
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	url, err := g.store.Store(ctx, Key(sub.ID), body, contentType)
	if err != nil {
		return "", fmt.Errorf("store report: %w", err)
	}
	g.logger.InfoContext(ctx, "report generated", "submission_id", sub.ID, "bytes", len(body))
	return url, nil
}

// Render produces the HTML report for sub.
func (g *Generator) Render(sub *model.AssessmentSubmission) ([]byte, error) {
	doc := BuildDocument(sub)
	raw, err := json.Marshal(doc)
	if err != nil {
		return nil, apperrors.Terminal(err, "encode report document")
	}
	out, rerr := g.tpl.Render(liquid.Bindings{
		"doc":  documentBindings(doc),
		"json": string(raw), // json.Marshal escapes <, > and &
	})
	if rerr != nil {
		return nil, apperrors.Terminal(rerr, "render report")
	}
	return bytes.TrimSpace(out), nil
}

// Key is the object key of a submission's report.
func Key(submissionID string) string {
	return "reports/" + submissionID + ".html"
}

// BuildDocument summarizes a scored submission.
func BuildDocument(sub *model.AssessmentSubmission) Document {
	doc := Document{
		AssessmentID: sub.ID,
		CompanyName:  sub.CompanyName,
		ContactName:  sub.ContactName,
		SubmittedAt:  sub.CreatedAt.UTC().Format("2006-01-02"),
		OverallScore: round1(sub.OverallScore),
		Band:         Band(sub.OverallScore),
		Categories:   make([]CategorySummary, 0, len(sub.CategoryScores)),
	}
	for _, cs := range sub.CategoryScores {
		doc.Categories = append(doc.Categories, CategorySummary{
			Name:  cs.Category,
			Score: round1(cs.Score),
			Band:  Band(cs.Score),
		})
	}
	return doc
}

// Band maps a 0-100 score to a readiness band.
func Band(score float64) string {
	switch {
	case score >= 75:
		return BandAdvanced
	case score >= 50:
		return BandDeveloping
	default:
		return BandEarly
	}
}

func documentBindings(doc Document) map[string]any {
	categories := make([]map[string]any, 0, len(doc.Categories))
	for _, c := range doc.Categories {
		categories = append(categories, map[string]any{"name": c.Name, "score": c.Score, "band": c.Band})
	}
	return map[string]any{
		"assessment_id": doc.AssessmentID,
		"company_name":  doc.CompanyName,
		"contact_name":  doc.ContactName,
		"submitted_at":  doc.SubmittedAt,
		"overall_score": doc.OverallScore,
		"band":          doc.Band,
		"categories":    categories,
	}
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
