package enrollment

import (
	"net/url"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OpenNSW/enrollment/internal/form"
	"github.com/OpenNSW/enrollment/internal/model"
)

func TestMenuForm(t *testing.T) {
	f := NewMenuForm(form.Kwargs{Data: url.Values{"choice": {ChoiceChangeEnrollment}}})
	require.True(t, f.IsValid())
	assert.Equal(t, RouteChangeMenu, f.Route())

	f = NewMenuForm(form.Kwargs{Data: url.Values{}})
	assert.False(t, f.IsValid())
	assert.Equal(t, []string{"This field is required."}, f.FieldErrors("choice"))
}

func TestEmployeeInfoForm_InitialFromInstance(t *testing.T) {
	dob := time.Date(1906, 12, 9, 0, 0, 0, 0, time.UTC)
	instance := &model.EmployeeEnrollment{FirstName: "Grace", LastName: "Hopper", DateOfBirth: &dob, HSAContribution: 300}
	sub := &model.Submission{SubmissionType: model.SubmissionTypeChange}

	f := NewEmployeeInfoForm(form.Kwargs{Initial: map[string]any{"first_name": "Amazing Grace"}}, EmployeeInfoOptions{
		MaxHSAContribution: 4300,
		Instance:           instance,
		Submission:         sub,
	})

	assert.Equal(t, "Amazing Grace", f.Value("first_name"))
	assert.Equal(t, "Hopper", f.Value("last_name"))
	assert.Equal(t, "1906-12-09", f.Value("date_of_birth"))
	assert.Equal(t, "300", f.Value("hsa_contribution"))
	assert.True(t, f.Selected("submission_type", "change_enrollment"))
	assert.Same(t, instance, f.Instance)
}

func TestEmployeeInfoForm_Validation(t *testing.T) {
	tests := []struct {
		name   string
		change func(url.Values)
		field  string
		msg    string
	}{
		{
			name:   "over company limit",
			change: func(v url.Values) { v.Set("hsa_contribution", "4301") },
			field:  "hsa_contribution",
			msg:    "Ensure this value is less than or equal to 4300.",
		},
		{
			name:   "negative contribution",
			change: func(v url.Values) { v.Set("hsa_contribution", "-1") },
			field:  "hsa_contribution",
			msg:    "Ensure this value is greater than or equal to 0.",
		},
		{
			name:   "future birth date",
			change: func(v url.Values) { v.Set("date_of_birth", time.Now().AddDate(1, 0, 0).Format("2006-01-02")) },
			field:  "date_of_birth",
			msg:    "Date of birth cannot be in the future.",
		},
		{
			name:   "unknown submission type",
			change: func(v url.Values) { v.Set("submission_type", "cancel_enrollment") },
			field:  "submission_type",
			msg:    "Select a valid choice.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values := employeeValues()
			tt.change(values)
			f := NewEmployeeInfoForm(form.Kwargs{Data: values}, EmployeeInfoOptions{MaxHSAContribution: 4300})
			assert.False(t, f.IsValid())
			assert.Equal(t, []string{tt.msg}, f.FieldErrors(tt.field))
		})
	}
}

func TestEmployeeInfoForm_Apply(t *testing.T) {
	values := employeeValues()
	values.Set("date_of_birth", "")
	f := NewEmployeeInfoForm(form.Kwargs{Data: values}, EmployeeInfoOptions{MaxHSAContribution: 4300})
	require.True(t, f.IsValid(), f.Errors())

	dob := time.Now()
	record := &model.EmployeeEnrollment{DateOfBirth: &dob}
	f.Apply(record)
	assert.Equal(t, "Ada", record.FirstName)
	assert.Equal(t, int64(1200), record.HSAContribution)
	assert.Nil(t, record.DateOfBirth)
}

func TestEmployeeFormSet_Row(t *testing.T) {
	rows := []model.EmployeeEnrollment{{FirstName: "Ada", Plans: []model.BenefitPlan{{Code: "dental"}}}}
	fs, err := NewEmployeeFormSet(form.Kwargs{}, nil, rows, DefaultPlans)
	require.NoError(t, err)

	assert.Equal(t, 2, fs.TotalFormCount())
	assert.Equal(t, "employees", fs.Prefix())
	assert.Same(t, &fs.Rows[0], fs.Row(0))
	assert.Nil(t, fs.Row(1))
	assert.True(t, fs.Forms()[0].Selected("plans", "dental"))
}

func TestEmployeeFormSet_RowMatchesSubmittedID(t *testing.T) {
	ada := model.EmployeeEnrollment{FirstName: "Ada"}
	ada.ID = uuid.New()
	grace := model.EmployeeEnrollment{FirstName: "Grace"}
	grace.ID = uuid.New()
	rows := []model.EmployeeEnrollment{ada, grace}

	data := url.Values{
		"employees-TOTAL_FORMS":   {"3"},
		"employees-INITIAL_FORMS": {"2"},
		"employees-0-id":          {grace.ID.String()},
		"employees-0-first_name":  {"Grace"},
		"employees-0-last_name":   {"Hopper"},
		"employees-0-email":       {"grace@example.com"},
		"employees-1-id":          {ada.ID.String()},
		"employees-1-first_name":  {"Ada"},
		"employees-1-last_name":   {"Lovelace"},
		"employees-1-email":       {"ada@example.com"},
		"employees-1-plans":       {"dental", "dental"},
	}
	fs, err := NewEmployeeFormSet(form.Kwargs{Data: data}, nil, rows, DefaultPlans)
	require.NoError(t, err)
	require.True(t, fs.IsValid(), fs.Errors())

	assert.Same(t, &fs.Rows[1], fs.Row(0))
	assert.Same(t, &fs.Rows[0], fs.Row(1))
	assert.Nil(t, fs.Row(2))
	assert.Equal(t, []string{"dental"}, fs.Forms()[1].Cleaned.Plans)
}

func TestEmployeeFormSet_RowFallsBackToPosition(t *testing.T) {
	ada := model.EmployeeEnrollment{FirstName: "Ada"}
	ada.ID = uuid.New()
	data := url.Values{
		"employees-TOTAL_FORMS":   {"1"},
		"employees-INITIAL_FORMS": {"1"},
		"employees-0-first_name":  {"Ada"},
		"employees-0-last_name":   {"Lovelace"},
		"employees-0-email":       {"ada@example.com"},
	}
	fs, err := NewEmployeeFormSet(form.Kwargs{Data: data}, nil, []model.EmployeeEnrollment{ada}, DefaultPlans)
	require.NoError(t, err)
	require.True(t, fs.IsValid(), fs.Errors())
	assert.Same(t, &fs.Rows[0], fs.Row(0))
}

func TestEmployeeFormSet_RejectsUnknownAndRepeatedIDs(t *testing.T) {
	ada := model.EmployeeEnrollment{FirstName: "Ada"}
	ada.ID = uuid.New()
	rows := []model.EmployeeEnrollment{ada}
	row := func(id string) url.Values {
		return url.Values{
			"employees-TOTAL_FORMS":   {"2"},
			"employees-INITIAL_FORMS": {"1"},
			"employees-0-id":          {id},
			"employees-0-first_name":  {"Ada"},
			"employees-0-last_name":   {"Lovelace"},
			"employees-0-email":       {"ada@example.com"},
		}
	}

	fs, err := NewEmployeeFormSet(form.Kwargs{Data: row(uuid.NewString())}, nil, rows, DefaultPlans)
	require.NoError(t, err)
	assert.False(t, fs.IsValid())
	assert.Contains(t, fs.Forms()[0].NonFieldErrors(), "This employee was removed in another window. Reload the page and try again.")
	assert.Nil(t, fs.Row(0))

	data := row(ada.ID.String())
	data.Set("employees-1-id", ada.ID.String())
	data.Set("employees-1-first_name", "Ada")
	data.Set("employees-1-last_name", "Again")
	data.Set("employees-1-email", "again@example.com")
	fs, err = NewEmployeeFormSet(form.Kwargs{Data: data}, nil, rows, DefaultPlans)
	require.NoError(t, err)
	assert.False(t, fs.IsValid())
	assert.Equal(t, []string{"Each employee can only appear once."}, fs.NonFormErrors())
}

func TestChangeMenuForm_Pager(t *testing.T) {
	f := NewChangeMenuForm(form.Kwargs{}, ChangeMenuOptions{Total: 45, Offset: 20, Limit: 20})
	assert.True(t, f.HasPrevious())
	assert.True(t, f.HasNext())
	assert.Equal(t, 0, f.PreviousOffset())
	assert.Equal(t, 40, f.NextOffset())

	f = NewChangeMenuForm(form.Kwargs{}, ChangeMenuOptions{Total: 45, Offset: 40, Limit: 20})
	assert.False(t, f.HasNext())
}

func TestReviewForm(t *testing.T) {
	data := url.Values{"confirm": {"on"}}

	f := NewReviewForm(form.Kwargs{Data: data}, nil, nil)
	assert.False(t, f.IsValid())
	assert.Equal(t, []string{"There is no enrollment to submit."}, f.NonFieldErrors())

	f = NewReviewForm(form.Kwargs{Data: data}, &model.Submission{}, nil)
	assert.False(t, f.IsValid())
	assert.Equal(t, []string{"Add at least one employee before submitting."}, f.NonFieldErrors())

	f = NewReviewForm(form.Kwargs{Data: data}, &model.Submission{}, []model.EmployeeEnrollment{{}})
	assert.True(t, f.IsValid())
}
