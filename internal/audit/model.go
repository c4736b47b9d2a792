package audit

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"campusperks/pkg/types"
)

// RecordIDUnknown 无法解析记录标识时的占位值
const RecordIDUnknown = "unknown"

// AuditEntry 审计日志条目
// 只追加，不提供更新和删除路径
type AuditEntry struct {
	ID        string            `gorm:"type:uuid;primaryKey" json:"id"`
	Action    string            `gorm:"type:varchar(100);not null;index:idx_audit_entries_action" json:"action"`
	Table     string            `gorm:"column:table_name;type:varchar(100);index:idx_audit_entries_table" json:"table_name,omitempty"`
	RecordID  string            `gorm:"type:varchar(255);index:idx_audit_entries_record" json:"record_id,omitempty"`
	OldValues datatypes.JSONMap `gorm:"column:old_values" json:"old_values,omitempty"`
	NewValues datatypes.JSONMap `gorm:"column:new_values" json:"new_values,omitempty"`
	ActorID   *string           `gorm:"type:uuid;index:idx_audit_entries_actor" json:"actor_id,omitempty"`
	IPAddress string            `gorm:"type:varchar(100)" json:"ip_address,omitempty"`
	UserAgent string            `gorm:"type:text" json:"user_agent,omitempty"`
	CreatedAt time.Time         `gorm:"not null;index:idx_audit_entries_created_at" json:"created_at"`
}

// TableName 指定表名
func (AuditEntry) TableName() string {
	return "audit_entries"
}

// BeforeCreate 创建前生成 ID 和时间戳
func (e *AuditEntry) BeforeCreate(tx *gorm.DB) error {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	return nil
}

// ToView 转换为对外视图，actor 为空时保留 null
func (e *AuditEntry) ToView(actor *types.ActorView) types.AuditEntryView {
	view := types.AuditEntryView{
		ID:        e.ID,
		Action:    e.Action,
		TableName: e.Table,
		RecordID:  e.RecordID,
		Actor:     actor,
		IPAddress: e.IPAddress,
		UserAgent: e.UserAgent,
		CreatedAt: e.CreatedAt,
	}
	if len(e.OldValues) > 0 {
		view.OldValues = map[string]any(e.OldValues)
	}
	if len(e.NewValues) > 0 {
		view.NewValues = map[string]any(e.NewValues)
	}
	return view
}
