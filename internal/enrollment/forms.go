package enrollment

import (
	"fmt"
	"mime/multipart"
	"slices"
	"time"

	"github.com/OpenNSW/enrollment/internal/apperror"
	"github.com/OpenNSW/enrollment/internal/form"
	"github.com/OpenNSW/enrollment/internal/model"
	"github.com/OpenNSW/enrollment/internal/uploads"
)

const (
	ChoiceNewEnrollment    = "New Enrollment"
	ChoiceChangeEnrollment = "Change Enrollment"
)

// menuChoices maps the menu buttons to the route each one continues to.
var menuChoices = map[string]string{
	ChoiceNewEnrollment:    RouteEmployeeInfo,
	ChoiceChangeEnrollment: RouteChangeMenu,
}

// MenuForm carries the button pressed on the enrollment menu in a hidden
// choice field.
type MenuForm struct {
	form.Base
	Cleaned struct {
		Choice string `form:"choice" validate:"required"`
	}
}

func NewMenuForm(kw form.Kwargs) *MenuForm {
	return &MenuForm{Base: form.NewBase(kw)}
}

func (f *MenuForm) IsValid() bool {
	return f.Validate(&f.Cleaned, func(errs form.Errors) {
		if errs.Has("choice") {
			return
		}
		if _, ok := menuChoices[f.Cleaned.Choice]; !ok {
			errs.Add("choice", "Select a valid choice.")
		}
	})
}

// Route returns the route name the chosen button leads to.
func (f *MenuForm) Route() string {
	return menuChoices[f.Cleaned.Choice]
}

// EmployeeInfoOptions are the extra construction arguments of
// EmployeeInfoForm.
type EmployeeInfoOptions struct {
	// MaxHSAContribution is the company's yearly HSA limit.
	MaxHSAContribution int64
	// Instance is the record being edited; nil starts a new one.
	Instance *model.EmployeeEnrollment
	// Submission is the draft the record belongs to.
	Submission *model.Submission
}

type EmployeeInfoData struct {
	FirstName       string                `form:"first_name" validate:"required,max=100"`
	LastName        string                `form:"last_name" validate:"required,max=100"`
	Email           string                `form:"email" validate:"required,email,max=255"`
	DateOfBirth     time.Time             `form:"date_of_birth" time_format:"2006-01-02" time_utc:"1"`
	HSAContribution int64                 `form:"hsa_contribution" validate:"gte=0"`
	SubmissionType  string                `form:"submission_type" validate:"required,oneof=new_enrollment change_enrollment"`
	Document        *multipart.FileHeader `form:"document"`
}

// EmployeeInfoForm edits a single enrollment record in place.
type EmployeeInfoForm struct {
	form.Base
	Cleaned EmployeeInfoData

	MaxHSAContribution int64
	Instance           *model.EmployeeEnrollment
	Submission         *model.Submission
	// DocumentType is the sniffed content type of an accepted upload.
	DocumentType string
}

// NewEmployeeInfoForm builds the form, prefilling it from opts.Instance.
func NewEmployeeInfoForm(kw form.Kwargs, opts EmployeeInfoOptions) *EmployeeInfoForm {
	if kw.Initial == nil {
		kw.Initial = map[string]any{}
	}
	if e := opts.Instance; e != nil {
		setDefault(kw.Initial, "first_name", e.FirstName)
		setDefault(kw.Initial, "last_name", e.LastName)
		setDefault(kw.Initial, "email", e.Email)
		if e.DateOfBirth != nil {
			setDefault(kw.Initial, "date_of_birth", *e.DateOfBirth)
		}
		setDefault(kw.Initial, "hsa_contribution", e.HSAContribution)
	}
	if opts.Submission != nil {
		setDefault(kw.Initial, "submission_type", string(opts.Submission.SubmissionType))
	}
	return &EmployeeInfoForm{
		Base:               form.NewBase(kw),
		MaxHSAContribution: opts.MaxHSAContribution,
		Instance:           opts.Instance,
		Submission:         opts.Submission,
	}
}

func setDefault(m map[string]any, key string, value any) {
	if _, ok := m[key]; !ok {
		m[key] = value
	}
}

func (f *EmployeeInfoForm) IsValid() bool {
	return f.Validate(&f.Cleaned, f.cleanHSA, f.cleanDateOfBirth, f.cleanDocument)
}

func (f *EmployeeInfoForm) cleanHSA(errs form.Errors) {
	if errs.Has("hsa_contribution") || f.MaxHSAContribution <= 0 {
		return
	}
	if f.Cleaned.HSAContribution > f.MaxHSAContribution {
		errs.Add("hsa_contribution", fmt.Sprintf("Ensure this value is less than or equal to %d.", f.MaxHSAContribution))
	}
}

func (f *EmployeeInfoForm) cleanDateOfBirth(errs form.Errors) {
	if errs.Has("date_of_birth") || f.Cleaned.DateOfBirth.IsZero() {
		return
	}
	if f.Cleaned.DateOfBirth.After(time.Now()) {
		errs.Add("date_of_birth", "Date of birth cannot be in the future.")
	}
}

func (f *EmployeeInfoForm) cleanDocument(errs form.Errors) {
	if f.Cleaned.Document == nil {
		return
	}
	contentType, err := uploads.CheckDocument(f.Cleaned.Document)
	if err != nil {
		errs.Add("document", apperror.Message(err))
		return
	}
	f.DocumentType = contentType
}

// Apply copies the cleaned data onto e.
func (f *EmployeeInfoForm) Apply(e *model.EmployeeEnrollment) {
	e.FirstName = f.Cleaned.FirstName
	e.LastName = f.Cleaned.LastName
	e.Email = f.Cleaned.Email
	e.HSAContribution = f.Cleaned.HSAContribution
	if f.Cleaned.DateOfBirth.IsZero() {
		e.DateOfBirth = nil
	} else {
		dob := f.Cleaned.DateOfBirth
		e.DateOfBirth = &dob
	}
}

// SubmissionTypes lists the choices of the submission_type field.
func (f *EmployeeInfoForm) SubmissionTypes() []string {
	return []string{string(model.SubmissionTypeNew), string(model.SubmissionTypeChange)}
}

type EmployeeRowData struct {
	ID        string   `form:"id" validate:"omitempty,uuid"`
	FirstName string   `form:"first_name" validate:"required,max=100"`
	LastName  string   `form:"last_name" validate:"required,max=100"`
	Email     string   `form:"email" validate:"required,email,max=255"`
	Plans     []string `form:"plans"`
}

// EmployeeRowForm is one row of the employees formset.
type EmployeeRowForm struct {
	form.Base
	Cleaned EmployeeRowData

	planCodes []string
	rowIDs    []string
}

func (f *EmployeeRowForm) IsValid() bool {
	return f.Validate(&f.Cleaned, func(errs form.Errors) {
		if f.Cleaned.ID != "" && !errs.Has("id") && !slices.Contains(f.rowIDs, f.Cleaned.ID) {
			errs.Add(form.NonFieldErrors, "This employee was removed in another window. Reload the page and try again.")
		}
		for _, code := range f.Cleaned.Plans {
			if !slices.Contains(f.planCodes, code) {
				errs.Add("plans", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", code))
				return
			}
		}
		slices.Sort(f.Cleaned.Plans)
		f.Cleaned.Plans = slices.Compact(f.Cleaned.Plans)
	})
}

// Apply copies the cleaned data onto e. Plans are saved separately.
func (f *EmployeeRowForm) Apply(e *model.EmployeeEnrollment) {
	e.FirstName = f.Cleaned.FirstName
	e.LastName = f.Cleaned.LastName
	e.Email = f.Cleaned.Email
}

const (
	employeesPrefix  = "employees"
	employeesExtra   = 1
	employeesMaxRows = 20
)

// EmployeeFormSet edits all enrollments of a submission at once.
type EmployeeFormSet struct {
	*form.FormSet[*EmployeeRowForm]

	Submission *model.Submission
	// Rows are the existing records, one per initial form.
	Rows  []model.EmployeeEnrollment
	Plans []model.BenefitPlan
}

// NewEmployeeFormSet builds one form per row plus a blank one.
func NewEmployeeFormSet(kw form.Kwargs, sub *model.Submission, rows []model.EmployeeEnrollment, plans []model.BenefitPlan) (*EmployeeFormSet, error) {
	if kw.Prefix == "" {
		kw.Prefix = employeesPrefix
	}
	codes := make([]string, 0, len(plans))
	for _, p := range plans {
		codes = append(codes, p.Code)
	}

	initial := make([]map[string]any, 0, len(rows))
	rowIDs := make([]string, 0, len(rows))
	for i := range rows {
		rowIDs = append(rowIDs, rows[i].ID.String())
		initial = append(initial, map[string]any{
			"id":         rows[i].ID.String(),
			"first_name": rows[i].FirstName,
			"last_name":  rows[i].LastName,
			"email":      rows[i].Email,
			"plans":      rows[i].PlanCodes(),
		})
	}

	cfg := form.FormSetConfig{Extra: employeesExtra, MaxNum: employeesMaxRows, CanDelete: true}
	fs, err := form.NewFormSet(kw, cfg, initial, func(_ int, kw form.Kwargs) (*EmployeeRowForm, error) {
		return &EmployeeRowForm{Base: form.NewBase(kw), planCodes: codes, rowIDs: rowIDs}, nil
	})
	if err != nil {
		return nil, err
	}
	return &EmployeeFormSet{FormSet: fs, Submission: sub, Rows: rows, Plans: plans}, nil
}

// IsValid also rejects two kept forms that claim the same record.
func (fs *EmployeeFormSet) IsValid() bool {
	if !fs.FormSet.IsValid() {
		return false
	}
	seen := make(map[string]bool, len(fs.Rows))
	for i, f := range fs.Forms() {
		id := f.Value("id")
		if id == "" || fs.ShouldDelete(i) {
			continue
		}
		if seen[id] {
			fs.AddNonFormError("Each employee can only appear once.")
			return false
		}
		seen[id] = true
	}
	return true
}

// Row returns the existing record behind form i, or nil for an extra form.
// A submitted row is matched by its hidden id; position is only used when the
// id is missing.
func (fs *EmployeeFormSet) Row(i int) *model.EmployeeEnrollment {
	if i < 0 || i >= fs.InitialFormCount() {
		return nil
	}
	if forms := fs.Forms(); i < len(forms) && forms[i].IsBound() {
		if id := forms[i].Value("id"); id != "" {
			for j := range fs.Rows {
				if fs.Rows[j].ID.String() == id {
					return &fs.Rows[j]
				}
			}
			return nil
		}
	}
	if i >= len(fs.Rows) {
		return nil
	}
	return &fs.Rows[i]
}

// ChangeMenuOptions are the extra construction arguments of ChangeMenuForm.
type ChangeMenuOptions struct {
	// Choices are the submitted submissions on the current page.
	Choices []model.Submission
	Total   int64
	Offset  int
	Limit   int
	// HasDraft is set when the actor already has an open draft.
	HasDraft bool
}

// ChangeMenuForm picks a submitted enrollment to change.
type ChangeMenuForm struct {
	form.Base
	Cleaned struct {
		SubmissionID string `form:"submission_id" validate:"required,uuid"`
	}
	ChangeMenuOptions
}

func NewChangeMenuForm(kw form.Kwargs, opts ChangeMenuOptions) *ChangeMenuForm {
	return &ChangeMenuForm{Base: form.NewBase(kw), ChangeMenuOptions: opts}
}

func (f *ChangeMenuForm) IsValid() bool {
	return f.Validate(&f.Cleaned, func(errs form.Errors) {
		if f.HasDraft {
			errs.Add(form.NonFieldErrors, "Finish or submit your open enrollment before changing another one.")
		}
	})
}

// HasPrevious and HasNext drive the pager.
func (f *ChangeMenuForm) HasPrevious() bool {
	return f.Offset > 0
}

func (f *ChangeMenuForm) HasNext() bool {
	return int64(f.Offset+f.Limit) < f.Total
}

func (f *ChangeMenuForm) PreviousOffset() int {
	return max(f.Offset-f.Limit, 0)
}

func (f *ChangeMenuForm) NextOffset() int {
	return f.Offset + f.Limit
}

// ReviewForm confirms the draft for submission.
type ReviewForm struct {
	form.Base
	Cleaned struct {
		Confirm bool `form:"confirm"`
	}
	Submission  *model.Submission
	Enrollments []model.EmployeeEnrollment
}

func NewReviewForm(kw form.Kwargs, sub *model.Submission, enrollments []model.EmployeeEnrollment) *ReviewForm {
	return &ReviewForm{Base: form.NewBase(kw), Submission: sub, Enrollments: enrollments}
}

func (f *ReviewForm) IsValid() bool {
	return f.Validate(&f.Cleaned, func(errs form.Errors) {
		switch {
		case f.Submission == nil:
			errs.Add(form.NonFieldErrors, "There is no enrollment to submit.")
		case len(f.Enrollments) == 0:
			errs.Add(form.NonFieldErrors, "Add at least one employee before submitting.")
		case !f.Cleaned.Confirm:
			errs.Add("confirm", "Please confirm the enrollment is correct.")
		}
	})
}
