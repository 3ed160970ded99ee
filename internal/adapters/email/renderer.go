// Package email renders and delivers transactional email.
package email

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/osteele/liquid"

	"github.com/target/intake-pipeline/internal/core"
	apperrors "github.com/target/intake-pipeline/internal/errors"
)

//go:embed templates/*.liquid
var defaultTemplates embed.FS

// Message is a rendered email.
type Message struct {
	Subject string
	HTML    string
	Text    string
}

// RendererOptions configures a Renderer.
type RendererOptions struct {
	// Templates holds <name>.subject.liquid, <name>.html.liquid and
	// <name>.txt.liquid files. Defaults to the embedded set.
	Templates fs.FS
	CacheSize int // Optional: defaults to 32
}

// Renderer renders liquid email templates and caches the parsed form.
type Renderer struct {
	engine    *liquid.Engine
	templates fs.FS
	cache     *lru.Cache[string, *liquid.Template]
}

// NewRenderer creates a Renderer.
func NewRenderer(opts RendererOptions) (*Renderer, error) {
	templates := opts.Templates
	if templates == nil {
		sub, err := fs.Sub(defaultTemplates, "templates")
		if err != nil {
			return nil, fmt.Errorf("open embedded templates: %w", err)
		}
		templates = sub
	}
	size := opts.CacheSize
	if size < 1 {
		size = 32
	}
	cache, err := lru.New[string, *liquid.Template](size)
	if err != nil {
		return nil, fmt.Errorf("create template cache: %w", err)
	}
	return &Renderer{engine: liquid.NewEngine(), templates: templates, cache: cache}, nil
}

// Render produces the subject and bodies of template. A missing template or a
// render failure is terminal; retrying cannot fix either.
func (r *Renderer) Render(template core.EmailTemplate, data map[string]any) (*Message, error) {
	subject, err := r.renderPart(template, "subject", data)
	if err != nil {
		return nil, err
	}
	html, err := r.renderPart(template, "html", data)
	if err != nil {
		return nil, err
	}
	text, err := r.renderPart(template, "txt", data)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, err
	}
	return &Message{
		Subject: strings.Join(strings.Fields(subject), " "),
		HTML:    html,
		Text:    strings.TrimSpace(text),
	}, nil
}

func (r *Renderer) renderPart(template core.EmailTemplate, part string, data map[string]any) (string, error) {
	name := fmt.Sprintf("%s.%s.liquid", template, part)

	tpl, ok := r.cache.Get(name)
	if !ok {
		src, err := fs.ReadFile(r.templates, name)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) && part == "txt" {
				return "", err
			}
			return "", apperrors.Terminal(err, fmt.Sprintf("email template %s not found", name))
		}
		parsed, perr := r.engine.ParseString(string(src))
		if perr != nil {
			return "", apperrors.Terminal(perr, fmt.Sprintf("parse email template %s", name))
		}
		tpl = parsed
		r.cache.Add(name, tpl)
	}

	out, rerr := tpl.RenderString(data)
	if rerr != nil {
		return "", apperrors.Terminal(rerr, fmt.Sprintf("render email template %s", name))
	}
	return out, nil
}
