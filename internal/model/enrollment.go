package model

import (
	"time"

	"github.com/google/uuid"
)

// BenefitPlan is a plan an employee can be enrolled into.
type BenefitPlan struct {
	BaseModel
	Code string `gorm:"type:varchar(50);column:code;not null;uniqueIndex" json:"code"`
	Name string `gorm:"type:varchar(255);column:name;not null" json:"name"`
}

func (p *BenefitPlan) TableName() string {
	return "benefit_plans"
}

// EmployeeEnrollment is a form-backed record belonging to one Submission.
// The association is set by the views after validation; no foreign key
// constraint is declared.
type EmployeeEnrollment struct {
	BaseModel
	SubmissionID    *uuid.UUID    `gorm:"type:uuid;column:submission_id;index" json:"submissionId"`
	FirstName       string        `gorm:"type:varchar(100);column:first_name;not null" json:"firstName"`
	LastName        string        `gorm:"type:varchar(100);column:last_name;not null" json:"lastName"`
	Email           string        `gorm:"type:varchar(255);column:email;not null" json:"email"`
	DateOfBirth     *time.Time    `gorm:"column:date_of_birth" json:"dateOfBirth,omitempty"`
	HSAContribution int64         `gorm:"column:hsa_contribution;not null" json:"hsaContribution"`
	DocumentKey     string        `gorm:"type:varchar(255);column:document_key" json:"documentKey,omitempty"`
	CreateBy        string        `gorm:"type:varchar(100);column:create_by;not null" json:"createBy"`
	LastUpdateBy    string        `gorm:"type:varchar(100);column:last_update_by;not null" json:"lastUpdateBy"`
	Plans           []BenefitPlan `gorm:"many2many:enrollment_plans;" json:"plans,omitempty"`
}

func (e *EmployeeEnrollment) TableName() string {
	return "employee_enrollments"
}

// FullName joins the first and last name for display.
func (e *EmployeeEnrollment) FullName() string {
	if e.LastName == "" {
		return e.FirstName
	}
	return e.FirstName + " " + e.LastName
}

// PlanCodes returns the codes of the associated plans.
func (e *EmployeeEnrollment) PlanCodes() []string {
	codes := make([]string, 0, len(e.Plans))
	for _, p := range e.Plans {
		codes = append(codes, p.Code)
	}
	return codes
}
