package model

import "time"

// QuestionAnswer 对账后的单条答案
type QuestionAnswer struct {
	Subtitle     *string      `json:"subtitle,omitempty"`
	Title        string       `json:"title"`
	AnswerText   string       `json:"answer_text"`
	QuestionType QuestionType `json:"question_type"`
	QuestionID   int          `json:"question_id"`
}

// ReconciledHistoryEntry 历史记录视图，构建后只读
type ReconciledHistoryEntry struct {
	SubmittedAt  time.Time        `json:"submitted_at"`
	ReviewedAt   *time.Time       `json:"reviewed_at,omitempty"`
	ReviewerNote *string          `json:"reviewer_note,omitempty"`
	SubmissionID SubmissionID     `json:"submission_id"`
	CheckInType  CheckInType      `json:"checkin_type"`
	Status       SubmissionStatus `json:"status"`
	Answers      []QuestionAnswer `json:"answers"`
}
