package view

import "net/http"

// TemplateView renders a template on GET.
type TemplateView struct {
	TemplateResponse
	ContextData func(r *http.Request) (Context, error)
}

func (v *TemplateView) Get(r *http.Request) (Response, error) {
	data := Context{}
	if v.ContextData != nil {
		var err error
		if data, err = v.ContextData(r); err != nil {
			return nil, err
		}
	}
	return v.RenderToResponse(r, data, http.StatusOK)
}

func (v *TemplateView) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var (
		resp Response
		err  error
	)
	switch r.Method {
	case http.MethodGet, http.MethodHead:
		resp, err = v.Get(r)
	default:
		w.Header().Set("Allow", "GET, HEAD")
		err = ErrMethodNotAllowed
	}
	write(w, r, resp, err)
}
