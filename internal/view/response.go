package view

import (
	"net/http"
	"strconv"
)

// Context is the data handed to a template.
type Context map[string]any

// Response is a fully computed result that only needs writing.
type Response interface {
	Write(w http.ResponseWriter, r *http.Request) error
}

// TemplateResult is a rendered page.
type TemplateResult struct {
	Status       int
	ContentType  string
	TemplateName string
	Context      Context
	Body         []byte
}

func (t *TemplateResult) Write(w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", t.ContentType)
	w.Header().Set("Content-Length", strconv.Itoa(len(t.Body)))
	w.WriteHeader(t.Status)
	if r.Method == http.MethodHead {
		return nil
	}
	_, err := w.Write(t.Body)
	return err
}

// RedirectResult sends the client to URL.
type RedirectResult struct {
	URL    string
	Status int
}

// Redirect returns a 302 redirect to url.
func Redirect(url string) *RedirectResult {
	return &RedirectResult{URL: url, Status: http.StatusFound}
}

func (rr *RedirectResult) Write(w http.ResponseWriter, r *http.Request) error {
	http.Redirect(w, r, rr.URL, rr.Status)
	return nil
}
