package view

import (
	"bytes"
	"io"
	"net/http"
)

const DefaultContentType = "text/html; charset=utf-8"

// Renderer resolves the first existing template among names and renders it.
type Renderer interface {
	Render(w io.Writer, names []string, data map[string]any) (string, error)
}

// TemplateResponse renders a named template into a response.
type TemplateResponse struct {
	TemplateName string
	ContentType  string
	Renderer     Renderer
	// Names overrides the candidate template names for a request.
	Names func(r *http.Request) ([]string, error)
}

// TemplateNames returns the candidate templates for r.
func (t *TemplateResponse) TemplateNames(r *http.Request) ([]string, error) {
	if t.Names != nil {
		return t.Names(r)
	}
	if t.TemplateName == "" {
		return nil, ErrNoTemplateName
	}
	return []string{t.TemplateName}, nil
}

// RenderToResponse renders data into a buffered result. A render failure
// returns an error and no partial body.
func (t *TemplateResponse) RenderToResponse(r *http.Request, data Context, status int) (*TemplateResult, error) {
	names, err := t.TemplateNames(r)
	if err != nil {
		return nil, err
	}
	if t.Renderer == nil {
		return nil, ErrNoRenderer
	}

	var buf bytes.Buffer
	name, err := t.Renderer.Render(&buf, names, data)
	if err != nil {
		return nil, err
	}

	contentType := t.ContentType
	if contentType == "" {
		contentType = DefaultContentType
	}
	return &TemplateResult{
		Status:       status,
		ContentType:  contentType,
		TemplateName: name,
		Context:      data,
		Body:         buf.Bytes(),
	}, nil
}
