package model

import "time"

// SubmissionType discriminates the workflow a draft belongs to.
type SubmissionType string

const (
	SubmissionTypeNew    SubmissionType = "new_enrollment"
	SubmissionTypeChange SubmissionType = "change_enrollment"
)

// SubmissionStatus is the lifecycle state of a Submission.
type SubmissionStatus string

const (
	SubmissionStatusDraft     SubmissionStatus = "draft"
	SubmissionStatusSubmitted SubmissionStatus = "submitted"
)

// Submission is the draft record that ties the steps of one enrollment
// workflow together. The session carries its ID between requests.
type Submission struct {
	BaseModel
	UserID         string           `gorm:"type:varchar(100);column:user_id;not null;index" json:"userId"`
	CreateBy       string           `gorm:"type:varchar(100);column:create_by;not null" json:"createBy"`
	LastUpdateBy   string           `gorm:"type:varchar(100);column:last_update_by;not null" json:"lastUpdateBy"`
	SubmissionType SubmissionType   `gorm:"type:varchar(50);column:submission_type;not null" json:"submissionType"`
	Status         SubmissionStatus `gorm:"type:varchar(20);column:status;not null;index" json:"status"`
	SubmittedAt    *time.Time       `gorm:"column:submitted_at" json:"submittedAt,omitempty"`
}

func (s *Submission) TableName() string {
	return "submissions"
}

// SubmissionAction moves a Submission between statuses.
type SubmissionAction string

const (
	SubmissionActionSave   SubmissionAction = "SAVE_AS_DRAFT"
	SubmissionActionSubmit SubmissionAction = "SUBMIT"
	SubmissionActionReopen SubmissionAction = "REOPEN"
)

type transitionKey struct {
	From   SubmissionStatus
	Action SubmissionAction
}

// submissionTransitions is the state graph of a Submission:
//
//	draft     ──SAVE_AS_DRAFT──► draft
//	draft     ──SUBMIT─────────► submitted
//	submitted ──REOPEN─────────► draft
var submissionTransitions = map[transitionKey]SubmissionStatus{
	{SubmissionStatusDraft, SubmissionActionSave}:       SubmissionStatusDraft,
	{SubmissionStatusDraft, SubmissionActionSubmit}:     SubmissionStatusSubmitted,
	{SubmissionStatusSubmitted, SubmissionActionReopen}: SubmissionStatusDraft,
}

// CanTransition reports whether action is allowed from the current status.
func (s *Submission) CanTransition(action SubmissionAction) bool {
	_, ok := submissionTransitions[transitionKey{s.Status, action}]
	return ok
}

// Transition applies action and reports whether it was allowed. The status is
// left unchanged when it was not.
func (s *Submission) Transition(action SubmissionAction) bool {
	next, ok := submissionTransitions[transitionKey{s.Status, action}]
	if ok {
		s.Status = next
	}
	return ok
}

// IsDraft reports whether the submission can still be edited.
func (s *Submission) IsDraft() bool {
	return s.Status == SubmissionStatusDraft
}
