package model

import "time"

// DashboardStats 由完整提交列表整体重算，从不增量修改
// 约束：TotalCheckIns = DailyCount + WeeklyCount + MonthlyCount
type DashboardStats struct {
	TotalCheckIns   int `json:"total_check_ins"`
	DailyCount      int `json:"daily_count"`
	WeeklyCount     int `json:"weekly_count"`
	MonthlyCount    int `json:"monthly_count"`
	MedicationCount int `json:"medication_count"`
}

// PointsState 积分总数，只通过远端读取整体替换
type PointsState struct {
	Total int `json:"total"`
}

// Coordinate 经纬度
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// WeatherSnapshot 外部天气数据，只整体替换
type WeatherSnapshot struct {
	ObservedAt   time.Time  `json:"observed_at"`
	Location     string     `json:"location"`
	Condition    string     `json:"condition"`
	Icon         string     `json:"icon,omitempty"`
	Coordinate   Coordinate `json:"coordinate"`
	TemperatureC float64    `json:"temperature_c"`
	Humidity     float64    `json:"humidity,omitempty"`
}
