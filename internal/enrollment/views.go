// Package enrollment implements the benefits-enrollment pages on top of the
// generic form views.
package enrollment

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/OpenNSW/enrollment/internal/apperror"
	"github.com/OpenNSW/enrollment/internal/auth"
	"github.com/OpenNSW/enrollment/internal/form"
	"github.com/OpenNSW/enrollment/internal/model"
	"github.com/OpenNSW/enrollment/internal/policy"
	"github.com/OpenNSW/enrollment/internal/session"
	"github.com/OpenNSW/enrollment/internal/submission"
	"github.com/OpenNSW/enrollment/internal/uploads"
	"github.com/OpenNSW/enrollment/internal/urls"
	"github.com/OpenNSW/enrollment/internal/view"
	"github.com/OpenNSW/enrollment/utils"
)

const (
	RouteMenu          = "enrollment_menu"
	RouteEmployeeInfo  = "employee_info"
	RouteEmployeesInfo = "employees_info"
	RouteChangeMenu    = "change_menu"
	RouteReview        = "form_review"
	RouteDone          = "enrollment_done"
)

// Route binds a named path to its view.
type Route struct {
	Name    string
	Path    string
	Handler http.Handler
}

// Deps are the collaborators shared by the enrollment views.
type Deps struct {
	Renderer    view.Renderer
	URLs        *urls.Reverser
	Submissions *submission.Service
	Store       *Store
	// Uploads is optional; without it proof documents are ignored.
	Uploads  *uploads.UploadService
	Policies *policy.Registry
}

// Paths are the route table. Register them with the Reverser before serving.
var Paths = []struct{ Name, Path string }{
	{RouteMenu, "/enroll/"},
	{RouteEmployeeInfo, "/enroll/employee/"},
	{RouteEmployeesInfo, "/enroll/employees/"},
	{RouteChangeMenu, "/enroll/change/"},
	{RouteReview, "/enroll/review/"},
	{RouteDone, "/enroll/done/"},
}

// RegisterPaths adds the route table to r.
func RegisterPaths(r *urls.Reverser) error {
	for _, p := range Paths {
		if err := r.Register(p.Name, p.Path); err != nil {
			return err
		}
	}
	return nil
}

// Routes builds the enrollment views.
func Routes(d *Deps) []Route {
	handlers := map[string]http.Handler{
		RouteMenu:          MenuView(d),
		RouteEmployeeInfo:  EmployeeInfoView(d),
		RouteEmployeesInfo: EmployeesInfoView(d),
		RouteChangeMenu:    ChangeMenuView(d),
		RouteReview:        ReviewView(d),
		RouteDone:          DoneView(d),
	}
	routes := make([]Route, 0, len(Paths))
	for _, p := range Paths {
		routes = append(routes, Route{Name: p.Name, Path: p.Path, Handler: handlers[p.Name]})
	}
	return routes
}

// reverse builds a success-URL hook that resolves name at request time.
func reverse[F form.Form](d *Deps, name string) func(*http.Request, F) (string, error) {
	return func(*http.Request, F) (string, error) {
		return d.URLs.Reverse(name)
	}
}

func requestActor(r *http.Request) (*auth.Actor, session.State, error) {
	actor := auth.ActorFromContext(r.Context())
	if actor == nil {
		return nil, nil, apperror.New(apperror.CodeUnauthorized, "authentication required")
	}
	state := session.FromContext(r.Context())
	if state == nil {
		return nil, nil, apperror.New(apperror.CodeImproperlyConfigured, "enrollment views require the session middleware")
	}
	return actor, state, nil
}

// draftFor returns the actor's current draft. HEAD only looks one up and may
// return nil; every other method creates the draft when there is none.
func draftFor(r *http.Request, d *Deps, state session.State, actorID string) (*model.Submission, error) {
	if r.Method == http.MethodHead {
		return d.Submissions.Find(r.Context(), state, actorID)
	}
	return d.Submissions.Current(r.Context(), state, actorID)
}

// skipWithoutDraft short-circuits GET to target when the actor has no draft.
func skipWithoutDraft(d *Deps, target string) func(r *http.Request) (view.Response, error) {
	return func(r *http.Request) (view.Response, error) {
		actor, state, err := requestActor(r)
		if err != nil {
			return nil, err
		}
		sub, err := d.Submissions.Find(r.Context(), state, actor.ID)
		if err != nil {
			return nil, err
		}
		if sub != nil {
			return nil, nil
		}
		url, err := d.URLs.Reverse(target)
		if err != nil {
			return nil, err
		}
		slog.DebugContext(r.Context(), "no draft submission, skipping view", "path", r.URL.Path, "redirect", url)
		return view.Redirect(url), nil
	}
}

// MenuView offers new and change enrollment. The success URL follows the
// button that was pressed.
func MenuView(d *Deps) *view.FormView[*MenuForm] {
	return &view.FormView[*MenuForm]{
		TemplateResponse: view.TemplateResponse{TemplateName: "enrollment/menu.html", Renderer: d.Renderer},
		NewForm: func(_ *http.Request, kw form.Kwargs) (*MenuForm, error) {
			return NewMenuForm(kw), nil
		},
		Hooks: view.FormHooks[*MenuForm]{
			SuccessURL: func(_ *http.Request, f *MenuForm) (string, error) {
				return d.URLs.Reverse(f.Route())
			},
			ContextData: func(_ *http.Request, data view.Context) (view.Context, error) {
				data["choices"] = []string{ChoiceNewEnrollment, ChoiceChangeEnrollment}
				return data, nil
			},
		},
	}
}

// EmployeeInfoView edits the enrollment record of the current draft.
func EmployeeInfoView(d *Deps) *view.FormView[*EmployeeInfoForm] {
	return &view.FormView[*EmployeeInfoForm]{
		TemplateResponse: view.TemplateResponse{TemplateName: "enrollment/employee_info.html", Renderer: d.Renderer},
		Hooks: view.FormHooks[*EmployeeInfoForm]{
			GetForm: func(r *http.Request, kw form.Kwargs) (*EmployeeInfoForm, error) {
				actor, state, err := requestActor(r)
				if err != nil {
					return nil, err
				}
				sub, err := draftFor(r, d, state, actor.ID)
				if err != nil {
					return nil, err
				}
				instance := &model.EmployeeEnrollment{CreateBy: actor.ID, LastUpdateBy: actor.ID}
				if sub != nil {
					existing, err := d.Store.FirstBySubmission(r.Context(), sub.ID)
					if err == nil {
						instance = existing
					} else if !errors.Is(err, ErrEnrollmentNotFound) {
						return nil, err
					}
				}
				return NewEmployeeInfoForm(kw, EmployeeInfoOptions{
					MaxHSAContribution: d.Policies.MaxHSAContribution(actor.Company),
					Instance:           instance,
					Submission:         sub,
				}), nil
			},
			ContextData: func(_ *http.Request, data view.Context) (view.Context, error) {
				if f, ok := data["form"].(*EmployeeInfoForm); ok {
					if f.Submission != nil {
						data["submission"] = f.Submission
					}
					data["max_hsa_contribution"] = f.MaxHSAContribution
				}
				return data, nil
			},
			FormValid: func(r *http.Request, f *EmployeeInfoForm) error {
				return saveEmployeeInfo(r, d, f)
			},
			SuccessURL: reverse[*EmployeeInfoForm](d, RouteEmployeesInfo),
		},
	}
}

func saveEmployeeInfo(r *http.Request, d *Deps, f *EmployeeInfoForm) error {
	ctx := r.Context()
	actor, _, err := requestActor(r)
	if err != nil {
		return err
	}

	record := f.Instance
	previousKey := record.DocumentKey
	if f.Cleaned.Document != nil && d.Uploads != nil {
		doc, err := d.Uploads.UploadHeader(ctx, f.Cleaned.Document)
		if err != nil {
			return err
		}
		record.DocumentKey = doc.Key
	}

	f.Apply(record)
	record.LastUpdateBy = actor.ID
	record.SubmissionID = &f.Submission.ID
	if err := d.Store.Save(ctx, record); err != nil {
		if record.DocumentKey != previousKey {
			if rmErr := d.Uploads.Remove(ctx, record.DocumentKey); rmErr != nil {
				slog.WarnContext(ctx, "failed to cleanup orphaned document", "key", record.DocumentKey, "error", rmErr)
			}
		}
		return err
	}

	if err := d.Submissions.Touch(ctx, f.Submission, actor.ID, model.SubmissionType(f.Cleaned.SubmissionType)); err != nil {
		return err
	}

	if previousKey != "" && previousKey != record.DocumentKey {
		if err := d.Uploads.Remove(ctx, previousKey); err != nil {
			slog.WarnContext(ctx, "failed to remove replaced document", "key", previousKey, "error", err)
		}
	}
	slog.InfoContext(ctx, "employee info saved", "enrollment_id", record.ID, "submission_id", f.Submission.ID)
	return nil
}

// EmployeesInfoView edits every enrollment of the current draft through a
// formset. GET skips to the review page when there is no draft.
func EmployeesInfoView(d *Deps) *view.FormView[*EmployeeFormSet] {
	return &view.FormView[*EmployeeFormSet]{
		TemplateResponse: view.TemplateResponse{TemplateName: "enrollment/employees_info.html", Renderer: d.Renderer},
		Hooks: view.FormHooks[*EmployeeFormSet]{
			BeforeGet: skipWithoutDraft(d, RouteReview),
			GetForm: func(r *http.Request, kw form.Kwargs) (*EmployeeFormSet, error) {
				actor, state, err := requestActor(r)
				if err != nil {
					return nil, err
				}
				sub, err := draftFor(r, d, state, actor.ID)
				if err != nil {
					return nil, err
				}
				var rows []model.EmployeeEnrollment
				if sub != nil {
					if rows, err = d.Store.ListBySubmission(r.Context(), sub.ID); err != nil {
						return nil, err
					}
				}
				plans, err := d.Store.ListPlans(r.Context())
				if err != nil {
					return nil, err
				}
				return NewEmployeeFormSet(kw, sub, rows, plans)
			},
			ContextData: func(_ *http.Request, data view.Context) (view.Context, error) {
				if fs, ok := data["form"].(*EmployeeFormSet); ok {
					data["formset"] = fs
					if fs.Submission != nil {
						data["submission"] = fs.Submission
					}
				}
				return data, nil
			},
			FormValid: func(r *http.Request, fs *EmployeeFormSet) error {
				return saveEmployees(r, d, fs)
			},
			SuccessURL: reverse[*EmployeeFormSet](d, RouteReview),
		},
	}
}

func saveEmployees(r *http.Request, d *Deps, fs *EmployeeFormSet) error {
	ctx := r.Context()
	actor, _, err := requestActor(r)
	if err != nil {
		return err
	}

	forms := fs.Forms()
	err = d.Store.Transaction(ctx, func(tx *Store) error {
		var saved []*model.EmployeeEnrollment
		for _, i := range fs.ChangedForms() {
			record := fs.Row(i)
			if record == nil {
				record = &model.EmployeeEnrollment{CreateBy: actor.ID, SubmissionID: &fs.Submission.ID}
			}
			forms[i].Apply(record)
			record.LastUpdateBy = actor.ID
			if err := tx.Save(ctx, record); err != nil {
				return err
			}
			saved = append(saved, record)
		}

		// Plan links need every record to have its id first.
		for n, i := range fs.ChangedForms() {
			plans, err := tx.PlansByCodes(ctx, forms[i].Cleaned.Plans)
			if err != nil {
				return err
			}
			if err := tx.ReplacePlans(ctx, saved[n], plans); err != nil {
				return err
			}
		}

		for _, i := range fs.DeletedForms() {
			record := fs.Row(i)
			if record == nil {
				continue
			}
			if err := tx.Delete(ctx, record); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save employees: %w", err)
	}

	if err := d.Submissions.Touch(ctx, fs.Submission, actor.ID, ""); err != nil {
		return err
	}
	slog.InfoContext(ctx, "employees saved",
		"submission_id", fs.Submission.ID,
		"changed", len(fs.ChangedForms()),
		"deleted", len(fs.DeletedForms()),
	)
	return nil
}

// ChangeMenuView lists the actor's submitted enrollments and reopens the
// chosen one as the current draft.
func ChangeMenuView(d *Deps) *view.FormView[*ChangeMenuForm] {
	return &view.FormView[*ChangeMenuForm]{
		TemplateResponse: view.TemplateResponse{TemplateName: "enrollment/change_menu.html", Renderer: d.Renderer},
		Hooks: view.FormHooks[*ChangeMenuForm]{
			GetForm: func(r *http.Request, kw form.Kwargs) (*ChangeMenuForm, error) {
				actor, state, err := requestActor(r)
				if err != nil {
					return nil, err
				}
				offset, limit := utils.ParsePagination(r.URL.Query())
				subs, total, err := d.Submissions.ListSubmitted(r.Context(), actor.ID, offset, limit)
				if err != nil {
					return nil, err
				}
				draft, err := d.Submissions.Find(r.Context(), state, actor.ID)
				if err != nil {
					return nil, err
				}
				return NewChangeMenuForm(kw, ChangeMenuOptions{
					Choices:  subs,
					Total:    total,
					Offset:   offset,
					Limit:    limit,
					HasDraft: draft != nil,
				}), nil
			},
			FormValid: func(r *http.Request, f *ChangeMenuForm) error {
				actor, state, err := requestActor(r)
				if err != nil {
					return err
				}
				id, err := uuid.Parse(f.Cleaned.SubmissionID)
				if err != nil {
					return apperror.New(apperror.CodeValidation, "invalid submission id")
				}
				_, err = d.Submissions.Reopen(r.Context(), state, id, actor.ID)
				return err
			},
			SuccessURL: reverse[*ChangeMenuForm](d, RouteEmployeeInfo),
		},
	}
}

// ReviewView shows the draft for confirmation and finalizes it. GET skips to
// the menu when there is no draft.
func ReviewView(d *Deps) *view.FormView[*ReviewForm] {
	return &view.FormView[*ReviewForm]{
		TemplateResponse: view.TemplateResponse{TemplateName: "enrollment/review.html", Renderer: d.Renderer},
		Hooks: view.FormHooks[*ReviewForm]{
			BeforeGet: skipWithoutDraft(d, RouteMenu),
			GetForm: func(r *http.Request, kw form.Kwargs) (*ReviewForm, error) {
				actor, state, err := requestActor(r)
				if err != nil {
					return nil, err
				}
				sub, err := d.Submissions.Find(r.Context(), state, actor.ID)
				if err != nil {
					return nil, err
				}
				if sub == nil {
					return NewReviewForm(kw, nil, nil), nil
				}
				enrollments, err := d.Store.ListBySubmission(r.Context(), sub.ID)
				if err != nil {
					return nil, err
				}
				return NewReviewForm(kw, sub, enrollments), nil
			},
			ContextData: func(_ *http.Request, data view.Context) (view.Context, error) {
				if f, ok := data["form"].(*ReviewForm); ok {
					data["submission"] = f.Submission
					data["enrollments"] = f.Enrollments
				}
				return data, nil
			},
			FormValid: func(r *http.Request, f *ReviewForm) error {
				actor, state, err := requestActor(r)
				if err != nil {
					return err
				}
				return d.Submissions.Finalize(r.Context(), state, f.Submission, actor.ID)
			},
			SuccessURL: reverse[*ReviewForm](d, RouteDone),
		},
	}
}

// DoneView confirms a finished enrollment.
func DoneView(d *Deps) *view.TemplateView {
	return &view.TemplateView{
		TemplateResponse: view.TemplateResponse{TemplateName: "enrollment/done.html", Renderer: d.Renderer},
		ContextData: func(*http.Request) (view.Context, error) {
			menu, err := d.URLs.Reverse(RouteMenu)
			if err != nil {
				return nil, err
			}
			return view.Context{"menu_url": menu}, nil
		},
	}
}
