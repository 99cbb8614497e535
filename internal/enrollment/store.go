package enrollment

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/OpenNSW/enrollment/internal/apperror"
	"github.com/OpenNSW/enrollment/internal/database"
	"github.com/OpenNSW/enrollment/internal/model"
)

var ErrEnrollmentNotFound = apperror.New(apperror.CodeNotFound, "enrollment not found")

// DefaultPlans are seeded at startup when the plan table is empty.
var DefaultPlans = []model.BenefitPlan{
	{Code: "dental", Name: "Dental"},
	{Code: "hsa", Name: "Health Savings Account"},
	{Code: "medical", Name: "Medical"},
	{Code: "vision", Name: "Vision"},
}

// Store persists employee enrollments and their plan associations.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// Transaction runs fn with a Store bound to a single database transaction.
func (s *Store) Transaction(ctx context.Context, fn func(tx *Store) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{db: tx})
	})
}

// FirstBySubmission returns the earliest enrollment of a submission.
func (s *Store) FirstBySubmission(ctx context.Context, submissionID uuid.UUID) (*model.EmployeeEnrollment, error) {
	var e model.EmployeeEnrollment
	err := s.db.WithContext(ctx).
		Preload("Plans").
		Where("submission_id = ?", submissionID).
		Order("created_at ASC").
		First(&e).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEnrollmentNotFound
		}
		return nil, fmt.Errorf("failed to retrieve enrollment: %w", err)
	}
	return &e, nil
}

// ListBySubmission returns the enrollments of a submission in creation order,
// ties broken by id.
func (s *Store) ListBySubmission(ctx context.Context, submissionID uuid.UUID) ([]model.EmployeeEnrollment, error) {
	var out []model.EmployeeEnrollment
	err := s.db.WithContext(ctx).
		Preload("Plans", func(db *gorm.DB) *gorm.DB { return db.Order("code ASC") }).
		Where("submission_id = ?", submissionID).
		Order("created_at ASC").
		Order("id ASC").
		Find(&out).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list enrollments: %w", err)
	}
	return out, nil
}

// Save inserts or updates the enrollment columns. Plan associations are
// written separately with ReplacePlans.
func (s *Store) Save(ctx context.Context, e *model.EmployeeEnrollment) error {
	if err := s.db.WithContext(ctx).Omit(clause.Associations).Save(e).Error; err != nil {
		return fmt.Errorf("failed to save enrollment: %w", database.MapError(err))
	}
	return nil
}

// Delete removes an enrollment and its plan links.
func (s *Store) Delete(ctx context.Context, e *model.EmployeeEnrollment) error {
	db := s.db.WithContext(ctx)
	if err := db.Model(e).Association("Plans").Clear(); err != nil {
		return fmt.Errorf("failed to clear enrollment plans: %w", err)
	}
	if err := db.Delete(&model.EmployeeEnrollment{}, "id = ?", e.ID).Error; err != nil {
		return fmt.Errorf("failed to delete enrollment: %w", database.MapError(err))
	}
	return nil
}

// ReplacePlans makes plans the complete set of plans of e.
func (s *Store) ReplacePlans(ctx context.Context, e *model.EmployeeEnrollment, plans []model.BenefitPlan) error {
	assoc := s.db.WithContext(ctx).Model(e).Association("Plans")
	var err error
	if len(plans) == 0 {
		err = assoc.Clear()
	} else {
		err = assoc.Replace(plans)
	}
	if err != nil {
		return fmt.Errorf("failed to replace enrollment plans: %w", database.MapError(err))
	}
	e.Plans = plans
	return nil
}

// PlansByCodes loads the plans with the given codes, ignoring repeats.
// Unknown codes are an error.
func (s *Store) PlansByCodes(ctx context.Context, codes []string) ([]model.BenefitPlan, error) {
	if len(codes) == 0 {
		return nil, nil
	}
	unique := slices.Clone(codes)
	slices.Sort(unique)
	unique = slices.Compact(unique)

	var plans []model.BenefitPlan
	if err := s.db.WithContext(ctx).Where("code IN ?", unique).Order("code ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to load plans: %w", err)
	}
	if len(plans) != len(unique) {
		return nil, apperror.New(apperror.CodeValidation, "unknown benefit plan")
	}
	return plans, nil
}

// ListPlans returns every plan ordered by code.
func (s *Store) ListPlans(ctx context.Context) ([]model.BenefitPlan, error) {
	var plans []model.BenefitPlan
	if err := s.db.WithContext(ctx).Order("code ASC").Find(&plans).Error; err != nil {
		return nil, fmt.Errorf("failed to list plans: %w", err)
	}
	return plans, nil
}

// SeedPlans inserts plans whose code is not present yet.
func (s *Store) SeedPlans(ctx context.Context, plans []model.BenefitPlan) error {
	if len(plans) == 0 {
		return nil
	}
	seed := make([]model.BenefitPlan, len(plans))
	copy(seed, plans)
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "code"}}, DoNothing: true}).
		Create(&seed).Error
	if err != nil {
		return fmt.Errorf("failed to seed plans: %w", err)
	}
	return nil
}

// DocumentOwnedBy reports whether key is the proof document of an enrollment
// in one of userID's submissions.
func (s *Store) DocumentOwnedBy(ctx context.Context, key, userID string) (bool, error) {
	var count int64
	err := s.db.WithContext(ctx).
		Model(&model.EmployeeEnrollment{}).
		Joins("JOIN submissions ON submissions.id = employee_enrollments.submission_id").
		Where("employee_enrollments.document_key = ? AND submissions.user_id = ?", key, userID).
		Count(&count).Error
	if err != nil {
		return false, fmt.Errorf("failed to check document owner: %w", err)
	}
	return count > 0, nil
}
