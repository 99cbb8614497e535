package render

import (
	"bytes"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenNSW/enrollment/web"
)

func testFS() fstest.MapFS {
	return fstest.MapFS{
		"base.html":              {Data: []byte(`<title>{{ site }}</title>{% block content %}{% endblock %}`)},
		"pages/hello.html":       {Data: []byte(`{% extends "base.html" %}{% block content %}Hello {{ name }}{% endblock %}`)},
		"pages/escape.html":      {Data: []byte(`{{ value }}`)},
		"pages/broken.html":      {Data: []byte(`{% if %}`)},
		"partials/name.html":     {Data: []byte(`<b>{{ name }}</b>`)},
		"pages/deep/nested.html": {Data: []byte(`{% extends "base.html" %}{% block content %}{% include "partials/name.html" %}{% include "../sibling.html" %}{% endblock %}`)},
		"pages/sibling.html":     {Data: []byte(`!`)},
	}
}

func TestEngine_RenderFirstExisting(t *testing.T) {
	engine, err := New(testFS(), WithGlobals(map[string]any{"site": "Enrollment"}))
	require.NoError(t, err)

	var out bytes.Buffer
	name, err := engine.Render(&out, []string{"pages/missing.html", "pages/hello.html"}, map[string]any{"name": "Ada"})
	require.NoError(t, err)

	assert.Equal(t, "pages/hello.html", name)
	assert.Equal(t, "<title>Enrollment</title>Hello Ada", out.String())
}

func TestEngine_Autoescape(t *testing.T) {
	engine, err := New(testFS())
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = engine.Render(&out, []string{"pages/escape.html"}, map[string]any{"value": "<script>"})
	require.NoError(t, err)
	assert.Equal(t, "&lt;script&gt;", out.String())
}

func TestEngine_Errors(t *testing.T) {
	engine, err := New(testFS(), WithDebug(true))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = engine.Render(&out, []string{"nope.html"}, nil)
	assert.ErrorIs(t, err, ErrTemplateNotFound)

	_, err = engine.Render(&out, []string{"pages/broken.html"}, nil)
	assert.Error(t, err)
	assert.Zero(t, out.Len())

	_, err = New(nil)
	assert.Error(t, err)
}

func TestEngine_ResolvesNamesFromRoot(t *testing.T) {
	engine, err := New(testFS(), WithGlobals(map[string]any{"site": "Enrollment"}))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = engine.Render(&out, []string{"pages/deep/nested.html"}, map[string]any{"name": "Ada"})
	require.NoError(t, err)
	assert.Equal(t, "<title>Enrollment</title><b>Ada</b>!", out.String())
}

func TestEngine_ShippedPageExtendsBase(t *testing.T) {
	engine, err := New(web.Templates(), WithGlobals(map[string]any{"site_name": "Acme benefits"}))
	require.NoError(t, err)

	var out bytes.Buffer
	_, err = engine.Render(&out, []string{"enrollment/done.html"}, map[string]any{"menu_url": "/enroll/"})
	require.NoError(t, err)
	assert.Contains(t, out.String(), "Acme benefits")
	assert.Contains(t, out.String(), `<a href="/enroll/">`)
}

func TestRootLoader_Abs(t *testing.T) {
	l := &rootLoader{}
	assert.Equal(t, "base.html", l.Abs("enrollment/menu.html", "base.html"))
	assert.Equal(t, "errors.html", l.Abs("enrollment/menu.html", "/errors.html"))
	assert.Equal(t, "enrollment/menu.html", l.Abs("", "enrollment/menu.html"))
	assert.Equal(t, "enrollment/part.html", l.Abs("enrollment/menu.html", "./part.html"))
	assert.Equal(t, "base.html", l.Abs("enrollment/menu.html", "../base.html"))
}
