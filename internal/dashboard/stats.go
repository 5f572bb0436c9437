package dashboard

import (
	"strings"

	"HealthCheckIn/internal/model"
)

// 用药相关的答案 key
var medicationKeys = []string{"medication", "medications", "medication_taken"}

// ComputeStats 从完整提交列表整体重算统计
// 类型按大小写不敏感精确匹配；无法识别的类型计入 daily；one_time 不计入任何桶和总数
func ComputeStats(subs []model.Submission) model.DashboardStats {
	var stats model.DashboardStats
	for _, s := range subs {
		switch classify(s.CheckInType) {
		case model.CheckInTypeOneTime:
			continue
		case model.CheckInTypeWeekly:
			stats.WeeklyCount++
		case model.CheckInTypeMonthly:
			stats.MonthlyCount++
		default:
			stats.DailyCount++
		}
		stats.TotalCheckIns++

		if tookMedication(s.Answers) {
			stats.MedicationCount++
		}
	}
	return stats
}

func classify(raw string) model.CheckInType {
	for _, t := range model.CheckInTypes {
		if strings.EqualFold(raw, string(t)) {
			return t
		}
	}
	return model.CheckInTypeDaily
}

func tookMedication(answers map[string]any) bool {
	for _, key := range medicationKeys {
		if v, ok := answers[key]; ok && truthy(v) {
			return true
		}
	}
	return false
}

func truthy(v any) bool {
	switch val := v.(type) {
	case bool:
		return val
	case float64:
		return val != 0
	case int:
		return val != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(val)) {
		case "yes", "y", "true", "1", "taken":
			return true
		}
		return false
	case []any:
		return len(val) > 0
	default:
		return false
	}
}
