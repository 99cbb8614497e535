// Package submission owns the draft record that ties the steps of an
// enrollment together and resolves it from the session.
package submission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/OpenNSW/enrollment/internal/apperror"
	"github.com/OpenNSW/enrollment/internal/model"
	"github.com/OpenNSW/enrollment/internal/session"
)

var (
	ErrSubmissionNotFound = apperror.New(apperror.CodeNotFound, "submission not found")
	ErrMultipleDrafts     = apperror.New(apperror.CodeConflict, "more than one draft submission exists for this user")
	ErrAnotherDraftOpen   = apperror.New(apperror.CodeConflict, "finish or discard the open draft before changing another enrollment")
	ErrNotDraft           = apperror.New(apperror.CodeConflict, "submission is no longer a draft")
)

// DraftPolicy decides what Current does when a user has several drafts.
type DraftPolicy string

const (
	// DraftPolicyLatest uses the most recently updated draft.
	DraftPolicyLatest DraftPolicy = "latest"
	// DraftPolicyStrict refuses to pick and returns ErrMultipleDrafts.
	DraftPolicyStrict DraftPolicy = "strict"
)

// Service resolves and advances the draft submission of a session.
type Service struct {
	repo   Repository
	policy DraftPolicy
}

func NewService(repo Repository, policy DraftPolicy) *Service {
	if policy == "" {
		policy = DraftPolicyLatest
	}
	return &Service{repo: repo, policy: policy}
}

// Current returns the draft the session refers to, creating one for the
// actor when none exists. The resolved id is always written back to the
// session before returning.
func (s *Service) Current(ctx context.Context, state session.State, actorID string) (*model.Submission, error) {
	sub, err := s.lookup(ctx, state, actorID)
	if err != nil {
		return nil, err
	}

	if sub == nil {
		sub = &model.Submission{
			UserID:         actorID,
			CreateBy:       actorID,
			LastUpdateBy:   actorID,
			SubmissionType: model.SubmissionTypeNew,
			Status:         model.SubmissionStatusDraft,
		}
		if err := s.repo.Create(ctx, sub); err != nil {
			return nil, err
		}
		slog.InfoContext(ctx, "draft submission created", "submission_id", sub.ID, "user_id", actorID)
	}

	if err := state.SetSubmissionID(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("failed to store submission in session: %w", err)
	}
	return sub, nil
}

// Find is Current without the create step. It returns nil when the actor
// has no draft.
func (s *Service) Find(ctx context.Context, state session.State, actorID string) (*model.Submission, error) {
	sub, err := s.lookup(ctx, state, actorID)
	if err != nil || sub == nil {
		return nil, err
	}
	if err := state.SetSubmissionID(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("failed to store submission in session: %w", err)
	}
	return sub, nil
}

func (s *Service) lookup(ctx context.Context, state session.State, actorID string) (*model.Submission, error) {
	if state == nil {
		return nil, apperror.New(apperror.CodeImproperlyConfigured, "request has no session")
	}
	if actorID == "" {
		return nil, apperror.New(apperror.CodeUnauthorized, "authentication required")
	}

	if id, ok := state.SubmissionID(); ok {
		sub, err := s.repo.GetByID(ctx, id)
		switch {
		case errors.Is(err, ErrSubmissionNotFound):
			slog.WarnContext(ctx, "session refers to a missing submission", "submission_id", id)
		case err != nil:
			return nil, err
		case sub.UserID != actorID || !sub.IsDraft():
			slog.DebugContext(ctx, "session submission not usable", "submission_id", id, "status", sub.Status)
		default:
			return sub, nil
		}
	}

	drafts, err := s.repo.FindDraftsByUser(ctx, actorID)
	if err != nil {
		return nil, err
	}
	switch {
	case len(drafts) == 0:
		return nil, nil
	case len(drafts) == 1:
		return &drafts[0], nil
	case s.policy == DraftPolicyStrict:
		return nil, ErrMultipleDrafts
	default:
		slog.WarnContext(ctx, "multiple drafts found, using the most recent",
			"user_id", actorID,
			"drafts", len(drafts),
			"submission_id", drafts[0].ID,
		)
		return &drafts[0], nil
	}
}

// Touch stamps the actor as last updater, sets the type when given and saves.
func (s *Service) Touch(ctx context.Context, sub *model.Submission, actorID string, subType model.SubmissionType) error {
	if !sub.Transition(model.SubmissionActionSave) {
		return ErrNotDraft
	}
	sub.LastUpdateBy = actorID
	if subType != "" {
		sub.SubmissionType = subType
	}
	return s.repo.Save(ctx, sub)
}

// Finalize marks the draft submitted and removes it from the session.
func (s *Service) Finalize(ctx context.Context, state session.State, sub *model.Submission, actorID string) error {
	if !sub.Transition(model.SubmissionActionSubmit) {
		return ErrNotDraft
	}
	now := time.Now().UTC()
	sub.SubmittedAt = &now
	sub.LastUpdateBy = actorID
	if err := s.repo.Save(ctx, sub); err != nil {
		return err
	}
	if err := state.ClearSubmissionID(ctx); err != nil {
		return fmt.Errorf("failed to clear session submission: %w", err)
	}
	slog.InfoContext(ctx, "submission finalized", "submission_id", sub.ID, "user_id", actorID)
	return nil
}

// Reopen turns one of the actor's submitted submissions back into the
// current draft for a change of enrollment.
func (s *Service) Reopen(ctx context.Context, state session.State, id uuid.UUID, actorID string) (*model.Submission, error) {
	sub, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.UserID != actorID {
		return nil, ErrSubmissionNotFound
	}

	if sub.CanTransition(model.SubmissionActionReopen) {
		drafts, err := s.repo.FindDraftsByUser(ctx, actorID)
		if err != nil {
			return nil, err
		}
		if len(drafts) > 0 {
			return nil, ErrAnotherDraftOpen
		}
		sub.Transition(model.SubmissionActionReopen)
		sub.SubmittedAt = nil
	}
	sub.SubmissionType = model.SubmissionTypeChange
	sub.LastUpdateBy = actorID
	if err := s.repo.Save(ctx, sub); err != nil {
		return nil, err
	}
	if err := state.SetSubmissionID(ctx, sub.ID); err != nil {
		return nil, fmt.Errorf("failed to store submission in session: %w", err)
	}
	slog.InfoContext(ctx, "submission reopened", "submission_id", sub.ID, "user_id", actorID)
	return sub, nil
}

// ListSubmitted pages through the actor's finished submissions.
func (s *Service) ListSubmitted(ctx context.Context, actorID string, offset, limit int) ([]model.Submission, int64, error) {
	return s.repo.ListByUser(ctx, actorID, model.SubmissionStatusSubmitted, offset, limit)
}
