package model

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// CheckInType 打卡类型枚举
type CheckInType string

const (
	CheckInTypeDaily   CheckInType = "daily"
	CheckInTypeWeekly  CheckInType = "weekly"
	CheckInTypeMonthly CheckInType = "monthly"
	CheckInTypeOneTime CheckInType = "one_time"
)

// CheckInTypes 全部规范类型，顺序即展示顺序
var CheckInTypes = []CheckInType{CheckInTypeDaily, CheckInTypeWeekly, CheckInTypeMonthly, CheckInTypeOneTime}

// SubmissionStatus 提交状态枚举
type SubmissionStatus string

const (
	SubmissionStatusCompleted  SubmissionStatus = "completed"
	SubmissionStatusPending    SubmissionStatus = "pending"
	SubmissionStatusInProgress SubmissionStatus = "inProgress"
	SubmissionStatusFailed     SubmissionStatus = "failed"
)

// QuestionType 问题类型，由远端 schema 决定，未知类型原样保留
type QuestionType string

const (
	QuestionTypeScale       QuestionType = "scale"
	QuestionTypeText        QuestionType = "text"
	QuestionTypeBoolean     QuestionType = "boolean"
	QuestionTypeChoice      QuestionType = "choice"
	QuestionTypeMultiChoice QuestionType = "multi_choice"
	QuestionTypeNumber      QuestionType = "number"
)

// QuestionSchema 单个问题定义，在一次评估/历史视图中不可变
type QuestionSchema struct {
	Subtitle *string      `json:"subtitle,omitempty"`
	Key      string       `json:"key"`
	Title    string       `json:"title"`
	Type     QuestionType `json:"type"`
	ID       int          `json:"id"`
}

// SubmissionID 远端有时返回数字 id，有时返回字符串
type SubmissionID string

func (id *SubmissionID) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*id = ""
		return nil
	}

	if data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = SubmissionID(s)
		return nil
	}

	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("submission id must be a string or number: %w", err)
	}
	*id = SubmissionID(n.String())
	return nil
}

// Submission 远端返回的原始提交记录，客户端只读
// CheckInType / Status / 时间字段保留原始字符串，由对账器宽松解析
type Submission struct {
	Answers      map[string]any `json:"answers"`
	ReviewedAt   *string        `json:"reviewed_at,omitempty"`
	ReviewerNote *string        `json:"reviewer_note,omitempty"`
	ID           SubmissionID   `json:"id"`
	CheckInType  string         `json:"checkin_type"`
	Status       string         `json:"status"`
	SubmittedAt  string         `json:"submitted_at"`
}
