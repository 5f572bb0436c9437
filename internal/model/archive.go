package model

import (
	"encoding/json"
	"fmt"
)

// SubmissionRecord 提交记录的本地归档，answers 以 JSON 文本保存
type SubmissionRecord struct {
	BaseModel
	ReviewedAt   *string `gorm:"type:varchar(64)" json:"reviewed_at,omitempty"`
	ReviewerNote *string `gorm:"type:text" json:"reviewer_note,omitempty"`
	SubmissionID string  `gorm:"type:varchar(64);not null;uniqueIndex" json:"submission_id"`
	CheckInType  string  `gorm:"type:varchar(32);not null;index" json:"checkin_type"`
	Status       string  `gorm:"type:varchar(32);not null" json:"status"`
	SubmittedAt  string  `gorm:"type:varchar(64);not null;index" json:"submitted_at"`
	AnswersJSON  string  `gorm:"type:text;not null;default:'{}'" json:"answers"`
}

// TableName 指定表名
func (SubmissionRecord) TableName() string {
	return "submission_archive"
}

// NewSubmissionRecord 把远端提交记录转为归档行
func NewSubmissionRecord(s Submission) (*SubmissionRecord, error) {
	answers := s.Answers
	if answers == nil {
		answers = map[string]any{}
	}
	raw, err := json.Marshal(answers)
	if err != nil {
		return nil, fmt.Errorf("failed to encode answers of submission %s: %w", s.ID, err)
	}

	return &SubmissionRecord{
		SubmissionID: string(s.ID),
		CheckInType:  s.CheckInType,
		Status:       s.Status,
		SubmittedAt:  s.SubmittedAt,
		ReviewedAt:   s.ReviewedAt,
		ReviewerNote: s.ReviewerNote,
		AnswersJSON:  string(raw),
	}, nil
}

// Submission 从归档行还原提交记录
func (r *SubmissionRecord) Submission() (Submission, error) {
	answers := map[string]any{}
	if r.AnswersJSON != "" {
		if err := json.Unmarshal([]byte(r.AnswersJSON), &answers); err != nil {
			return Submission{}, fmt.Errorf("failed to decode answers of submission %s: %w", r.SubmissionID, err)
		}
	}

	return Submission{
		ID:           SubmissionID(r.SubmissionID),
		CheckInType:  r.CheckInType,
		Status:       r.Status,
		SubmittedAt:  r.SubmittedAt,
		ReviewedAt:   r.ReviewedAt,
		ReviewerNote: r.ReviewerNote,
		Answers:      answers,
	}, nil
}
