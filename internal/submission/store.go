package submission

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/OpenNSW/enrollment/internal/database"
	"github.com/OpenNSW/enrollment/internal/model"
)

// Repository is the persistence the Service needs.
type Repository interface {
	Create(ctx context.Context, sub *model.Submission) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error)
	// FindDraftsByUser returns the user's drafts, most recently updated first.
	FindDraftsByUser(ctx context.Context, userID string) ([]model.Submission, error)
	Save(ctx context.Context, sub *model.Submission) error
	ListByUser(ctx context.Context, userID string, status model.SubmissionStatus, offset, limit int) ([]model.Submission, int64, error)
}

// Store is the gorm Repository.
type Store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) Create(ctx context.Context, sub *model.Submission) error {
	if err := s.db.WithContext(ctx).Create(sub).Error; err != nil {
		return fmt.Errorf("failed to create submission: %w", database.MapError(err))
	}
	return nil
}

func (s *Store) GetByID(ctx context.Context, id uuid.UUID) (*model.Submission, error) {
	var sub model.Submission
	if err := s.db.WithContext(ctx).First(&sub, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrSubmissionNotFound
		}
		return nil, fmt.Errorf("failed to retrieve submission: %w", err)
	}
	return &sub, nil
}

func (s *Store) FindDraftsByUser(ctx context.Context, userID string) ([]model.Submission, error) {
	var subs []model.Submission
	err := s.db.WithContext(ctx).
		Where("user_id = ? AND status = ?", userID, model.SubmissionStatusDraft).
		Order("updated_at DESC").
		Find(&subs).Error
	if err != nil {
		return nil, fmt.Errorf("failed to find drafts: %w", err)
	}
	return subs, nil
}

func (s *Store) Save(ctx context.Context, sub *model.Submission) error {
	if err := s.db.WithContext(ctx).Save(sub).Error; err != nil {
		return fmt.Errorf("failed to save submission: %w", database.MapError(err))
	}
	return nil
}

func (s *Store) ListByUser(ctx context.Context, userID string, status model.SubmissionStatus, offset, limit int) ([]model.Submission, int64, error) {
	query := s.db.WithContext(ctx).Model(&model.Submission{}).Where("user_id = ?", userID)
	if status != "" {
		query = query.Where("status = ?", status)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to count submissions: %w", err)
	}

	var subs []model.Submission
	if err := query.Order("updated_at DESC").Offset(offset).Limit(limit).Find(&subs).Error; err != nil {
		return nil, 0, fmt.Errorf("failed to list submissions: %w", err)
	}
	return subs, total, nil
}
