package types

import "time"

// ActorView 审计记录里的操作者投影
// 只暴露身份三元组，不泄露用户其他字段
type ActorView struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Role  string `json:"role"`
}

// AuditEntryView 审计记录纯数据模型
// 不依赖任何internal包
type AuditEntryView struct {
	ID        string         `json:"id"`
	Action    string         `json:"action"`
	TableName string         `json:"table_name,omitempty"`
	RecordID  string         `json:"record_id,omitempty"`
	OldValues map[string]any `json:"old_values,omitempty"`
	NewValues map[string]any `json:"new_values,omitempty"`
	Actor     *ActorView     `json:"actor"`
	IPAddress string         `json:"ip_address,omitempty"`
	UserAgent string         `json:"user_agent,omitempty"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditEntryPage 审计记录分页结果
type AuditEntryPage struct {
	Entries    []AuditEntryView   `json:"entries"`
	Pagination PaginationResponse `json:"pagination"`
}

// ActionCount 按事件名聚合的计数
type ActionCount struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// TableCount 按表名聚合的计数
type TableCount struct {
	Table string `json:"table"`
	Count int64  `json:"count"`
}

// AuditStatistics 审计统计结果
type AuditStatistics struct {
	Total          int64            `json:"total"`
	ByAction       []ActionCount    `json:"by_action"`
	ByTable        []TableCount     `json:"by_table"`
	RecentActivity []AuditEntryView `json:"recent_activity"`
}
