package model

// StateChangedEvent 用户完成了改变状态的操作（如提交评估）
// 订阅方只关心事件发生，不关心内容；其余字段用于去重和排查
type StateChangedEvent struct {
	MessageID  string `json:"message_id"`
	Origin     string `json:"origin"`      // 发布进程的实例 ID，AMQP 桥接用于跳过自身消息
	Reason     string `json:"reason"`      // 例如 "submission"
	OccurredAt string `json:"occurred_at"` // RFC3339
}
