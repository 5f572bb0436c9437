package dashboard

import (
	"time"

	"HealthCheckIn/internal/model"
)

// State 仪表盘可观察状态，对外只提供副本
type State struct {
	UpdatedAt           time.Time              `json:"updated_at"`
	Weather             *model.WeatherSnapshot `json:"weather"`
	ErrorMessage        string                 `json:"error_message,omitempty"`
	Stats               model.DashboardStats   `json:"stats"`
	PointsTotal         int                    `json:"points_total"`
	EarnedDelta         int                    `json:"earned_delta"`
	Loading             bool                   `json:"loading"`
	CelebrationActive   bool                   `json:"celebration_active"`
	PointsPopupActive   bool                   `json:"points_popup_active"`
	InitialLoadComplete bool                   `json:"initial_load_complete"`
}

// clone 天气快照只整体替换，复制指针目标即可避免外部修改
func (s State) clone() State {
	if s.Weather != nil {
		w := *s.Weather
		s.Weather = &w
	}
	return s
}
