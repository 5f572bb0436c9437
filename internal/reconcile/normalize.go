package reconcile

import (
	"strings"

	"HealthCheckIn/internal/model"
)

// NormalizeType 宽松识别打卡类型（忽略大小写，"-" 和空格视为 "_"）
// 无法识别时归为 one_time，与统计里默认 daily 的规则不同，两者有意保持独立
func NormalizeType(raw string) model.CheckInType {
	key := strings.ToLower(strings.TrimSpace(raw))
	key = strings.NewReplacer("-", "_", " ", "_").Replace(key)

	switch key {
	case "daily":
		return model.CheckInTypeDaily
	case "weekly":
		return model.CheckInTypeWeekly
	case "monthly":
		return model.CheckInTypeMonthly
	case "one_time", "onetime":
		return model.CheckInTypeOneTime
	default:
		return model.CheckInTypeOneTime
	}
}

// NormalizeStatus 宽松识别提交状态，无法识别时归为 completed
func NormalizeStatus(raw string) model.SubmissionStatus {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "completed", "submitted":
		return model.SubmissionStatusCompleted
	case "pending", "pending_review":
		return model.SubmissionStatusPending
	case "in_progress", "in progress", "inprogress":
		return model.SubmissionStatusInProgress
	case "failed", "error":
		return model.SubmissionStatusFailed
	default:
		return model.SubmissionStatusCompleted
	}
}
