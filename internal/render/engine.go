// Package render resolves page templates by name and renders them with pongo2.
package render

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"path"
	"strings"
	"sync"

	"github.com/flosch/pongo2/v6"
)

// ErrTemplateNotFound is returned when none of the candidate names exists.
var ErrTemplateNotFound = errors.New("render: template not found")

// Option configures an Engine.
type Option func(*Engine)

// WithDebug disables the compiled-template cache so edits on disk show up
// without a restart.
func WithDebug(debug bool) Option {
	return func(e *Engine) {
		e.debug = debug
	}
}

// WithGlobals seeds values available to every template.
func WithGlobals(data map[string]any) Option {
	return func(e *Engine) {
		for key, value := range data {
			e.set.Globals[strings.TrimSpace(key)] = value
		}
	}
}

// Engine is a pongo2 template set over an fs.FS with a cache of compiled
// templates.
type Engine struct {
	mu sync.RWMutex

	files     fs.FS
	set       *pongo2.TemplateSet
	templates map[string]*pongo2.Template
	debug     bool
}

// New builds an Engine that loads templates from files.
func New(files fs.FS, options ...Option) (*Engine, error) {
	if files == nil {
		return nil, errors.New("render: template fs is required")
	}
	e := &Engine{
		files:     files,
		set:       pongo2.NewSet("enrollment", &rootLoader{files: files}),
		templates: make(map[string]*pongo2.Template),
	}
	e.set.Globals = make(pongo2.Context)
	for _, opt := range options {
		if opt != nil {
			opt(e)
		}
	}
	return e, nil
}

// Render executes the first existing template among names with data and
// writes the output to w. Nothing is written when rendering fails. It returns
// the name of the template used.
func (e *Engine) Render(w io.Writer, names []string, data map[string]any) (string, error) {
	name, tmpl, err := e.resolve(names)
	if err != nil {
		return "", err
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteWriter(pongo2.Context(data), &buf); err != nil {
		return "", fmt.Errorf("render: execute %q: %w", name, err)
	}
	if _, err := buf.WriteTo(w); err != nil {
		return "", err
	}
	return name, nil
}

func (e *Engine) resolve(names []string) (string, *pongo2.Template, error) {
	for _, name := range names {
		if _, err := fs.Stat(e.files, name); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return "", nil, fmt.Errorf("render: stat %q: %w", name, err)
		}
		tmpl, err := e.template(name)
		if err != nil {
			return "", nil, err
		}
		return name, tmpl, nil
	}
	return "", nil, fmt.Errorf("%w: %s", ErrTemplateNotFound, strings.Join(names, ", "))
}

func (e *Engine) template(name string) (*pongo2.Template, error) {
	if !e.debug {
		e.mu.RLock()
		tmpl, ok := e.templates[name]
		e.mu.RUnlock()
		if ok {
			return tmpl, nil
		}
	}

	tmpl, err := e.set.FromFile(name)
	if err != nil {
		return nil, fmt.Errorf("render: parse %q: %w", name, err)
	}
	if !e.debug {
		e.mu.Lock()
		e.templates[name] = tmpl
		e.mu.Unlock()
	}
	return tmpl, nil
}

// rootLoader resolves extends and include names against the root of the FS,
// so "base.html" means the same file from every directory. Names starting
// with "./" or "../" stay relative to the including template.
type rootLoader struct {
	files fs.FS
}

func (l *rootLoader) Abs(base, name string) string {
	if base != "" && (strings.HasPrefix(name, "./") || strings.HasPrefix(name, "../")) {
		return path.Join(path.Dir(base), name)
	}
	return path.Clean(strings.TrimPrefix(name, "/"))
}

func (l *rootLoader) Get(name string) (io.Reader, error) {
	data, err := fs.ReadFile(l.files, name)
	if err != nil {
		return nil, err
	}
	return bytes.NewReader(data), nil
}
