package tasks

import "aiwriter/internal/usage"

// Task Types
const (
	TypeRecordUsage = "usage:record"
)

// 队列名称
const (
	QueueUsage = "usage"
)

// RecordUsagePayload 用量记录任务载荷
type RecordUsagePayload struct {
	Record *usage.Record `json:"record"`
}
