package form

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errManagementForm = errors.New("ManagementForm data is missing or has been tampered with.")

const (
	totalFormsField   = "TOTAL_FORMS"
	initialFormsField = "INITIAL_FORMS"
	deleteField       = "DELETE"

	defaultFormSetPrefix = "form"
	defaultAbsoluteMax   = 1000
)

// FormSetConfig describes the shape of a formset.
type FormSetConfig struct {
	// Extra is the number of blank forms appended after the initial ones.
	Extra int
	// MaxNum caps the number of forms a submission may keep. Zero means no cap.
	MaxNum int
	// CanDelete renders and honours a DELETE checkbox per form.
	CanDelete bool
}

// FormSet validates a collection of forms of the same kind. The submitted
// management values TOTAL_FORMS and INITIAL_FORMS decide how many child forms
// are bound; child i uses the prefix "prefix-i".
type FormSet[F Form] struct {
	kw      Kwargs
	cfg     FormSetConfig
	forms   []F
	initial int

	errs      Errors
	validated bool
	valid     bool
}

// NewFormSet builds the child forms. initial holds one initial-data map per
// existing record; build constructs a single child form.
func NewFormSet[F Form](kw Kwargs, cfg FormSetConfig, initial []map[string]any, build func(i int, kw Kwargs) (F, error)) (*FormSet[F], error) {
	if kw.Prefix == "" {
		kw.Prefix = defaultFormSetPrefix
	}
	fs := &FormSet[F]{kw: kw, cfg: cfg, errs: Errors{}}

	total := 0
	if kw.IsBound() {
		submittedTotal, submittedInitial, err := fs.management()
		if err != nil {
			fs.errs.Add(NonFieldErrors, err.Error())
		} else {
			total = min(submittedTotal, fs.absoluteMax())
			fs.initial = min(submittedInitial, total)
		}
	} else {
		fs.initial = len(initial)
		total = fs.initial + max(cfg.Extra, 0)
		if cfg.MaxNum > 0 && fs.initial <= cfg.MaxNum {
			total = min(total, cfg.MaxNum)
		}
	}

	fs.forms = make([]F, 0, total)
	for i := 0; i < total; i++ {
		childKw := Kwargs{
			Prefix: fmt.Sprintf("%s-%d", kw.Prefix, i),
			Data:   kw.Data,
			Files:  kw.Files,
		}
		if i < len(initial) {
			childKw.Initial = initial[i]
		}
		f, err := build(i, childKw)
		if err != nil {
			return nil, fmt.Errorf("build form %d: %w", i, err)
		}
		fs.forms = append(fs.forms, f)
	}
	return fs, nil
}

func (fs *FormSet[F]) management() (int, int, error) {
	total, err := strconv.Atoi(fs.kw.Data.Get(fs.kw.AddPrefix(totalFormsField)))
	if err != nil || total < 0 {
		return 0, 0, errManagementForm
	}
	initial, err := strconv.Atoi(fs.kw.Data.Get(fs.kw.AddPrefix(initialFormsField)))
	if err != nil || initial < 0 {
		return 0, 0, errManagementForm
	}
	return total, initial, nil
}

func (fs *FormSet[F]) absoluteMax() int {
	if fs.cfg.MaxNum > 0 {
		return fs.cfg.MaxNum + defaultAbsoluteMax
	}
	return defaultAbsoluteMax
}

// Prefix returns the formset prefix.
func (fs *FormSet[F]) Prefix() string {
	return fs.kw.Prefix
}

// Forms returns the child forms in order.
func (fs *FormSet[F]) Forms() []F {
	return fs.forms
}

// TotalFormCount is the number of child forms.
func (fs *FormSet[F]) TotalFormCount() int {
	return len(fs.forms)
}

// InitialFormCount is the number of child forms backed by existing records.
func (fs *FormSet[F]) InitialFormCount() int {
	return fs.initial
}

// TotalFormsName and InitialFormsName are the management field names.
func (fs *FormSet[F]) TotalFormsName() string {
	return fs.kw.AddPrefix(totalFormsField)
}

func (fs *FormSet[F]) InitialFormsName() string {
	return fs.kw.AddPrefix(initialFormsField)
}

// CanDelete reports whether the formset renders delete checkboxes.
func (fs *FormSet[F]) CanDelete() bool {
	return fs.cfg.CanDelete
}

// DeleteName is the checkbox name for child i.
func (fs *FormSet[F]) DeleteName(i int) string {
	return fmt.Sprintf("%s-%d-%s", fs.kw.Prefix, i, deleteField)
}

// ShouldDelete reports whether child i was marked for deletion.
func (fs *FormSet[F]) ShouldDelete(i int) bool {
	if !fs.cfg.CanDelete || !fs.IsBound() {
		return false
	}
	switch strings.ToLower(fs.kw.Data.Get(fs.DeleteName(i))) {
	case "on", "true", "1":
		return true
	}
	return false
}

// IsBound reports whether submitted data is present.
func (fs *FormSet[F]) IsBound() bool {
	return fs.kw.IsBound()
}

// HasChanged reports whether any child form changed.
func (fs *FormSet[F]) HasChanged() bool {
	for _, f := range fs.forms {
		if f.HasChanged() {
			return true
		}
	}
	return false
}

// skip reports whether child i takes no part in validation: deleted forms
// and extra forms the user left untouched.
func (fs *FormSet[F]) skip(i int) bool {
	if fs.ShouldDelete(i) {
		return true
	}
	return i >= fs.initial && !fs.forms[i].HasChanged()
}

// IsValid validates every participating child form and the formset-wide
// constraints. The result is memoised.
func (fs *FormSet[F]) IsValid() bool {
	if fs.validated {
		return fs.valid
	}
	fs.validated = true
	if !fs.IsBound() {
		return false
	}

	valid := len(fs.errs) == 0
	kept := 0
	for i, f := range fs.forms {
		if fs.skip(i) {
			continue
		}
		kept++
		if !f.IsValid() {
			valid = false
		}
	}
	if fs.cfg.MaxNum > 0 && kept > fs.cfg.MaxNum {
		fs.errs.Add(NonFieldErrors, fmt.Sprintf("Please submit at most %d forms.", fs.cfg.MaxNum))
		valid = false
	}

	fs.valid = valid
	return valid
}

// NonFormErrors returns the errors that belong to the formset itself.
func (fs *FormSet[F]) NonFormErrors() []string {
	return fs.errs.NonField()
}

// AddNonFormError attaches a formset-wide error and marks the formset invalid.
func (fs *FormSet[F]) AddNonFormError(msg string) {
	fs.errs.Add(NonFieldErrors, msg)
	fs.valid = false
}

// Errors flattens formset and child errors; child fields are keyed by their
// prefixed names.
func (fs *FormSet[F]) Errors() Errors {
	all := Errors{}
	for _, msg := range fs.errs.NonField() {
		all.Add(NonFieldErrors, msg)
	}
	for i, f := range fs.forms {
		if !fs.validated || fs.skip(i) {
			continue
		}
		prefix := fmt.Sprintf("%s-%d-", fs.kw.Prefix, i)
		for field, msgs := range f.Errors() {
			for _, msg := range msgs {
				all.Add(prefix+field, msg)
			}
		}
	}
	return all
}

// ChangedForms returns the indexes of the child forms to save: changed and
// not deleted.
func (fs *FormSet[F]) ChangedForms() []int {
	var out []int
	for i, f := range fs.forms {
		if fs.ShouldDelete(i) || !f.HasChanged() {
			continue
		}
		out = append(out, i)
	}
	return out
}

// DeletedForms returns the indexes of initial child forms marked for deletion.
func (fs *FormSet[F]) DeletedForms() []int {
	var out []int
	for i := 0; i < fs.initial && i < len(fs.forms); i++ {
		if fs.ShouldDelete(i) {
			out = append(out, i)
		}
	}
	return out
}
