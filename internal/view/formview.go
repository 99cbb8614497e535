package view

import (
	"errors"
	"log/slog"
	"maps"
	"mime"
	"mime/multipart"
	"net/http"
	"net/url"

	"github.com/OpenNSW/enrollment/internal/form"
)

const defaultMaxMemory = 32 << 20

// Stage names a step of the form pipeline.
type Stage string

const (
	StageBuildForm   Stage = "build_form"
	StageValidate    Stage = "validate"
	StageFormValid   Stage = "form_valid"
	StageFormInvalid Stage = "form_invalid"
	StageRender      Stage = "render"
)

// FormHooks are the per-view customisation points. Each hook is optional and
// replaces or extends exactly one default step; the defaults stay callable
// as FormView methods.
type FormHooks[F form.Form] struct {
	// BeforeGet may short-circuit a GET with its own response, e.g. a
	// redirect when there is nothing to show.
	BeforeGet func(r *http.Request) (Response, error)
	// FormKwargs amends the construction arguments.
	FormKwargs func(r *http.Request, kw form.Kwargs) (form.Kwargs, error)
	// GetForm builds the form instead of NewForm, typically after loading
	// the instance or queryset it edits.
	GetForm func(r *http.Request, kw form.Kwargs) (F, error)
	// ContextData adds template data after the form has been inserted.
	ContextData func(r *http.Request, data Context) (Context, error)
	// FormValid runs the side effects of a valid submission before the
	// redirect.
	FormValid func(r *http.Request, f F) error
	// FormInvalid replaces the default re-render of an invalid form.
	FormInvalid func(r *http.Request, f F) (Response, error)
	// SuccessURL computes the redirect target from the request and form.
	SuccessURL func(r *http.Request, f F) (string, error)
}

// FormView displays a form on GET and processes it on POST and PUT. The
// stages run in a fixed order: GET builds the form and renders it; POST
// builds, validates, then takes exactly one of form_valid or form_invalid.
type FormView[F form.Form] struct {
	TemplateResponse

	Initial    map[string]any
	Prefix     string
	SuccessURL string
	NewForm    func(r *http.Request, kw form.Kwargs) (F, error)
	Hooks      FormHooks[F]
	// Observe is told about every stage as it starts.
	Observe func(r *http.Request, stage Stage)
	// MaxMemory bounds the in-memory part of multipart parsing.
	MaxMemory int64
}

func (v *FormView[F]) observe(r *http.Request, stage Stage) {
	if v.Observe != nil {
		v.Observe(r, stage)
		return
	}
	slog.DebugContext(r.Context(), "form view stage", "stage", stage, "method", r.Method, "path", r.URL.Path)
}

// FormKwargs assembles the form construction arguments. Submitted data and
// files are only included for POST and PUT.
func (v *FormView[F]) FormKwargs(r *http.Request) (form.Kwargs, error) {
	kw := form.Kwargs{
		Initial: maps.Clone(v.Initial),
		Prefix:  v.Prefix,
	}
	if kw.Initial == nil {
		kw.Initial = map[string]any{}
	}

	if r.Method == http.MethodPost || r.Method == http.MethodPut {
		data, files, err := v.parseBody(r)
		if err != nil {
			return form.Kwargs{}, err
		}
		kw.Data = data
		kw.Files = files
	}

	if v.Hooks.FormKwargs != nil {
		return v.Hooks.FormKwargs(r, kw)
	}
	return kw, nil
}

func (v *FormView[F]) parseBody(r *http.Request) (url.Values, map[string][]*multipart.FileHeader, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "multipart/form-data" {
		maxMemory := v.MaxMemory
		if maxMemory <= 0 {
			maxMemory = defaultMaxMemory
		}
		if err := r.ParseMultipartForm(maxMemory); err != nil {
			return nil, nil, errors.Join(ErrMalformedBody, err)
		}
	} else if err := r.ParseForm(); err != nil {
		return nil, nil, errors.Join(ErrMalformedBody, err)
	}

	data := r.PostForm
	if data == nil {
		data = url.Values{}
	}
	var files map[string][]*multipart.FileHeader
	if r.MultipartForm != nil {
		files = r.MultipartForm.File
	}
	return data, files, nil
}

// GetForm builds the form for r.
func (v *FormView[F]) GetForm(r *http.Request) (F, error) {
	v.observe(r, StageBuildForm)

	var zero F
	kw, err := v.FormKwargs(r)
	if err != nil {
		return zero, err
	}
	switch {
	case v.Hooks.GetForm != nil:
		return v.Hooks.GetForm(r, kw)
	case v.NewForm != nil:
		return v.NewForm(r, kw)
	default:
		return zero, ErrNoFormConstructor
	}
}

// ContextData inserts the form when the caller did not supply one, then
// applies the ContextData hook.
func (v *FormView[F]) ContextData(r *http.Request, data Context) (Context, error) {
	if data == nil {
		data = Context{}
	}
	if _, ok := data["form"]; !ok {
		f, err := v.GetForm(r)
		if err != nil {
			return nil, err
		}
		data["form"] = f
	}
	if v.Hooks.ContextData != nil {
		return v.Hooks.ContextData(r, data)
	}
	return data, nil
}

// GetSuccessURL returns where to send the client after a valid submission.
func (v *FormView[F]) GetSuccessURL(r *http.Request, f F) (string, error) {
	if v.Hooks.SuccessURL != nil {
		return v.Hooks.SuccessURL(r, f)
	}
	if v.SuccessURL == "" {
		return "", ErrNoSuccessURL
	}
	return v.SuccessURL, nil
}

// FormValid runs the FormValid hook and redirects to the success URL.
func (v *FormView[F]) FormValid(r *http.Request, f F) (Response, error) {
	v.observe(r, StageFormValid)
	if v.Hooks.FormValid != nil {
		if err := v.Hooks.FormValid(r, f); err != nil {
			return nil, err
		}
	}
	target, err := v.GetSuccessURL(r, f)
	if err != nil {
		return nil, err
	}
	return Redirect(target), nil
}

// FormInvalid re-renders the bound form with its errors.
func (v *FormView[F]) FormInvalid(r *http.Request, f F) (Response, error) {
	v.observe(r, StageFormInvalid)
	if v.Hooks.FormInvalid != nil {
		return v.Hooks.FormInvalid(r, f)
	}
	data, err := v.ContextData(r, Context{"form": f})
	if err != nil {
		return nil, err
	}
	return v.render(r, data, http.StatusOK)
}

// Get renders a blank or prefilled form. It never validates.
func (v *FormView[F]) Get(r *http.Request) (Response, error) {
	if v.Hooks.BeforeGet != nil {
		resp, err := v.Hooks.BeforeGet(r)
		if err != nil || resp != nil {
			return resp, err
		}
	}
	data, err := v.ContextData(r, nil)
	if err != nil {
		return nil, err
	}
	return v.render(r, data, http.StatusOK)
}

// Post builds the form from the submitted data and takes exactly one of the
// valid and invalid outcomes.
func (v *FormView[F]) Post(r *http.Request) (Response, error) {
	f, err := v.GetForm(r)
	if err != nil {
		return nil, err
	}
	v.observe(r, StageValidate)
	if f.IsValid() {
		return v.FormValid(r, f)
	}
	return v.FormInvalid(r, f)
}

// Put is handled as Post.
func (v *FormView[F]) Put(r *http.Request) (Response, error) {
	return v.Post(r)
}

func (v *FormView[F]) render(r *http.Request, data Context, status int) (Response, error) {
	v.observe(r, StageRender)
	return v.RenderToResponse(r, data, status)
}

func (v *FormView[F]) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		resp Response
		err  error
	)
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		resp, err = v.Get(r)
	case http.MethodPost:
		resp, err = v.Post(r)
	case http.MethodPut:
		resp, err = v.Put(r)
	default:
		w.Header().Set("Allow", "GET, HEAD, POST, PUT")
		err = ErrMethodNotAllowed
	}
	write(w, r, resp, err)
}

func write(w http.ResponseWriter, r *http.Request, resp Response, err error) {
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if err := resp.Write(w, r); err != nil {
		slog.ErrorContext(r.Context(), "failed to write response", "path", r.URL.Path, "error", err)
	}
}
