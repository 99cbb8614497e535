package form

import (
	"errors"
	"fmt"
	"html"
	"mime/multipart"
	"reflect"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/microcosm-cc/bluemonday"
)

const bindTag = "form"

var (
	fileHeaderType  = reflect.TypeOf((*multipart.FileHeader)(nil))
	fileHeadersType = reflect.TypeOf([]*multipart.FileHeader(nil))
	timeType        = reflect.TypeOf(time.Time{})

	sanitizerOnce sync.Once
	sanitizer     *bluemonday.Policy

	validatorOnce   sync.Once
	structValidator *validator.Validate
)

// Base carries the bound data of a form and implements binding, validation
// and the template helpers. Concrete forms embed it and define IsValid by
// calling Validate with their cleaned-data struct.
type Base struct {
	Kwargs

	errs      Errors
	validated bool
	valid     bool
}

// NewBase returns a Base for kw.
func NewBase(kw Kwargs) Base {
	return Base{Kwargs: kw}
}

// Errors returns the collected errors. It is empty until the form has been
// validated.
func (b *Base) Errors() Errors {
	if b.errs == nil {
		b.errs = Errors{}
	}
	return b.errs
}

// AddError attaches msg to field (or NonFieldErrors) and marks the form invalid.
func (b *Base) AddError(field, msg string) {
	if field == "" {
		field = NonFieldErrors
	}
	b.Errors().Add(field, msg)
	b.valid = false
}

// Validate binds the submitted values onto dst, a pointer to a struct whose
// fields carry `form` and `validate` tags, then runs cleaners. The result is
// memoised; an unbound form is never valid.
func (b *Base) Validate(dst any, cleaners ...Cleaner) bool {
	if b.validated {
		return b.valid
	}
	b.validated = true

	errs := b.Errors()
	if !b.IsBound() {
		b.valid = false
		return false
	}

	b.bind(dst, errs)
	check(dst, errs)
	for _, clean := range cleaners {
		clean(errs)
	}

	b.valid = len(errs) == 0
	return b.valid
}

func (b *Base) bind(dst any, errs Errors) {
	rv := reflect.ValueOf(dst)
	if rv.Kind() != reflect.Pointer || rv.Elem().Kind() != reflect.Struct {
		errs.Add(NonFieldErrors, fmt.Sprintf("form: cannot bind into %T", dst))
		return
	}

	elem := rv.Elem()
	typ := elem.Type()
	var fileFields []int

	for i := 0; i < typ.NumField(); i++ {
		sf := typ.Field(i)
		name := fieldName(sf)
		if name == "" {
			continue
		}
		if sf.Type == fileHeaderType || sf.Type == fileHeadersType {
			fileFields = append(fileFields, i)
			continue
		}

		values, ok := b.Data[b.AddPrefix(name)]
		if !ok {
			continue
		}
		cleaned := make([]string, len(values))
		for j, v := range values {
			cleaned[j] = cleanValue(v, sf.Type)
		}
		// One field at a time so a conversion failure is reported against
		// the field that caused it.
		if err := binding.MapFormWithTag(dst, map[string][]string{name: cleaned}, bindTag); err != nil {
			errs.Add(name, bindMessage(sf.Type))
		}
	}

	for _, i := range fileFields {
		sf := typ.Field(i)
		name := fieldName(sf)
		headers := b.Files[b.AddPrefix(name)]
		if len(headers) == 0 {
			continue
		}
		if sf.Type == fileHeaderType {
			elem.Field(i).Set(reflect.ValueOf(headers[0]))
		} else {
			elem.Field(i).Set(reflect.ValueOf(headers))
		}
	}
}

func check(dst any, errs Errors) {
	err := fieldValidator().Struct(dst)
	if err == nil {
		return
	}

	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		errs.Add(NonFieldErrors, err.Error())
		return
	}
	for _, fe := range verrs {
		name := fe.Field()
		if errs.Has(name) {
			continue
		}
		errs.Add(name, validationMessage(fe))
	}
}

// File returns the first file uploaded for field, or nil.
func (b *Base) File(field string) *multipart.FileHeader {
	headers := b.Files[b.AddPrefix(field)]
	if len(headers) == 0 {
		return nil
	}
	return headers[0]
}

// HTMLName is the name attribute to render for field.
func (b *Base) HTMLName(field string) string {
	return b.AddPrefix(field)
}

// Value is the value to render for field: the submitted value when bound,
// the initial value otherwise.
func (b *Base) Value(field string) string {
	if b.IsBound() {
		return b.Data.Get(b.AddPrefix(field))
	}
	return formatInitial(b.Initial[field])
}

// Values is Value for multi-valued fields.
func (b *Base) Values(field string) []string {
	if b.IsBound() {
		return b.Data[b.AddPrefix(field)]
	}
	switch v := b.Initial[field].(type) {
	case nil:
		return nil
	case []string:
		return v
	default:
		return []string{formatInitial(v)}
	}
}

// Selected reports whether option is among the values of field.
func (b *Base) Selected(field, option string) bool {
	for _, v := range b.Values(field) {
		if v == option {
			return true
		}
	}
	return false
}

// FieldErrors returns the messages for field.
func (b *Base) FieldErrors(field string) []string {
	return b.Errors().Get(field)
}

// NonFieldErrors returns the errors not attached to a single field.
func (b *Base) NonFieldErrors() []string {
	return b.Errors().NonField()
}

// HasChanged reports whether any field under this form's prefix differs from
// its initial value. Fields with an initial value but nothing submitted count
// as empty, since browsers omit unticked checkboxes and empty multi-selects.
func (b *Base) HasChanged() bool {
	if !b.IsBound() {
		return false
	}
	prefix := ""
	if b.Prefix != "" {
		prefix = b.Prefix + "-"
	}

	names := make(map[string]struct{}, len(b.Initial))
	for name := range b.Initial {
		names[name] = struct{}{}
	}
	for key := range b.Data {
		name, ok := strings.CutPrefix(key, prefix)
		if !ok || name == "" || name == deleteField || strings.Contains(name, "-") {
			continue
		}
		names[name] = struct{}{}
	}

	for name := range names {
		submitted := strings.TrimSpace(strings.Join(b.Data[prefix+name], ","))
		initial := strings.Join(b.initialValues(name), ",")
		if submitted != initial {
			return true
		}
	}
	for key, headers := range b.Files {
		if strings.HasPrefix(key, prefix) && len(headers) > 0 {
			return true
		}
	}
	return false
}

func (b *Base) initialValues(name string) []string {
	switch v := b.Initial[name].(type) {
	case nil:
		return nil
	case []string:
		return v
	case bool:
		// Checkboxes submit "on" when ticked and nothing otherwise.
		if v {
			return []string{"on"}
		}
		return nil
	default:
		return []string{formatInitial(v)}
	}
}

func fieldName(sf reflect.StructField) string {
	if !sf.IsExported() {
		return ""
	}
	name, _, _ := strings.Cut(sf.Tag.Get(bindTag), ",")
	if name == "-" {
		return ""
	}
	if name == "" {
		return sf.Name
	}
	return name
}

func fieldValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New()
		v.RegisterTagNameFunc(fieldName)
		structValidator = v
	})
	return structValidator
}

func textSanitizer() *bluemonday.Policy {
	sanitizerOnce.Do(func() {
		sanitizer = bluemonday.StrictPolicy()
	})
	return sanitizer
}

// cleanValue trims input and strips any markup before conversion. Checkbox
// "on" values are accepted for bool fields.
func cleanValue(v string, typ reflect.Type) string {
	v = strings.TrimSpace(v)
	if strings.ContainsRune(v, '<') {
		v = strings.TrimSpace(html.UnescapeString(textSanitizer().Sanitize(v)))
	}
	if typ.Kind() == reflect.Bool && strings.EqualFold(v, "on") {
		return "true"
	}
	return v
}

func formatInitial(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case time.Time:
		if t.IsZero() {
			return ""
		}
		return t.Format(time.DateOnly)
	case *time.Time:
		if t == nil || t.IsZero() {
			return ""
		}
		return t.Format(time.DateOnly)
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func bindMessage(typ reflect.Type) string {
	if typ.Kind() == reflect.Slice || typ.Kind() == reflect.Pointer {
		typ = typ.Elem()
	}
	if typ == timeType {
		return "Enter a valid date."
	}
	switch typ.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return "Enter a whole number."
	case reflect.Float32, reflect.Float64:
		return "Enter a number."
	default:
		return "Enter a valid value."
	}
}

func validationMessage(fe validator.FieldError) string {
	text := fe.Kind() == reflect.String
	switch fe.Tag() {
	case "required":
		return "This field is required."
	case "email":
		return "Enter a valid email address."
	case "oneof":
		return "Select a valid choice."
	case "uuid", "uuid4":
		return "Enter a valid identifier."
	case "max", "lte":
		if text {
			return fmt.Sprintf("Ensure this value has at most %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is less than or equal to %s.", fe.Param())
	case "min", "gte":
		if text {
			return fmt.Sprintf("Ensure this value has at least %s characters.", fe.Param())
		}
		return fmt.Sprintf("Ensure this value is greater than or equal to %s.", fe.Param())
	default:
		return "Enter a valid value."
	}
}
