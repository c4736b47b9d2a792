package audit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"campusperks/internal/common"
)

// ErrEntryNotFound 审计条目不存在
var ErrEntryNotFound = errors.New("审计记录不存在")

// 排序令牌
const (
	SortNewest = "newest"
	SortOldest = "oldest"
)

// Filter 审计日志筛选条件，全部可选，同时给出时取交集
type Filter struct {
	ActorID  string     // 操作者，精确匹配
	Action   string     // 事件名，子串匹配，不区分大小写
	Table    string     // 业务表名，子串匹配，不区分大小写
	RecordID string     // 业务记录标识，精确匹配
	From     *time.Time // 起始时间，含边界
	To       *time.Time // 结束时间，含边界
	Search   string     // 自由文本，匹配事件名/表名/操作者邮箱任一
}

// ListQuery 分页查询参数
type ListQuery struct {
	Filter
	Page      int
	PageSize  int
	Ascending bool // 默认 false，最新在前
}

// Store 审计条目存储，只提供追加和读取
type Store struct {
	*common.BaseService
}

// NewStore 创建审计存储
func NewStore(db *gorm.DB) *Store {
	return &Store{BaseService: common.NewBaseService(db)}
}

// Append 追加一条审计记录
func (s *Store) Append(ctx context.Context, entry *AuditEntry) error {
	if err := s.GetDBWithContext(ctx).Create(entry).Error; err != nil {
		return fmt.Errorf("写入审计记录失败: %w", err)
	}
	return nil
}

// applyFilter 把筛选条件拼到查询上
func (s *Store) applyFilter(query *gorm.DB, filter Filter) *gorm.DB {
	if filter.ActorID != "" {
		query = query.Where("audit_entries.actor_id = ?", filter.ActorID)
	}
	if filter.Action != "" {
		query = query.Where("LOWER(audit_entries.action) LIKE ?", common.LikePattern(filter.Action))
	}
	if filter.Table != "" {
		query = query.Where("LOWER(audit_entries.table_name) LIKE ?", common.LikePattern(filter.Table))
	}
	if filter.RecordID != "" {
		query = query.Where("audit_entries.record_id = ?", filter.RecordID)
	}
	query = s.ApplyDateRangeFilter(query, "audit_entries.created_at", filter.From, filter.To)
	if filter.Search != "" {
		pattern := common.LikePattern(filter.Search)
		query = query.
			Joins("LEFT JOIN users ON users.id = audit_entries.actor_id").
			Where("LOWER(audit_entries.action) LIKE ? OR LOWER(COALESCE(audit_entries.table_name, '')) LIKE ? OR LOWER(COALESCE(users.email, '')) LIKE ?",
				pattern, pattern, pattern)
	}
	return query
}

// List 按条件分页查询审计条目，返回当前页和总数
func (s *Store) List(ctx context.Context, q ListQuery) ([]AuditEntry, int64, error) {
	query := s.applyFilter(s.GetDBWithContext(ctx).Model(&AuditEntry{}), q.Filter)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, fmt.Errorf("统计审计记录失败: %w", err)
	}

	// created_at 相同时按 id 兜底，保证翻页顺序稳定
	order := "audit_entries.created_at DESC, audit_entries.id DESC"
	if q.Ascending {
		order = "audit_entries.created_at ASC, audit_entries.id ASC"
	}

	page := q.Page
	if page < 1 {
		page = 1
	}
	pageSize := q.PageSize
	if pageSize < 1 {
		pageSize = common.DefaultPageSize
	}

	var entries []AuditEntry
	err := query.
		Order(order).
		Offset((page - 1) * pageSize).
		Limit(pageSize).
		Find(&entries).Error
	if err != nil {
		return nil, 0, fmt.Errorf("查询审计记录失败: %w", err)
	}

	return entries, total, nil
}

// GetByID 按 ID 查询单条记录
func (s *Store) GetByID(ctx context.Context, id string) (*AuditEntry, error) {
	var entry AuditEntry
	err := s.GetDBWithContext(ctx).Where("id = ?", id).First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrEntryNotFound
		}
		return nil, fmt.Errorf("查询审计记录失败: %w", err)
	}
	return &entry, nil
}

// CountAll 统计时间范围内的记录总数
func (s *Store) CountAll(ctx context.Context, from, to *time.Time) (int64, error) {
	query := s.GetDBWithContext(ctx).Model(&AuditEntry{})
	query = s.ApplyDateRangeFilter(query, "created_at", from, to)

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return 0, fmt.Errorf("统计审计记录失败: %w", err)
	}
	return total, nil
}

// GroupByAction 按事件名聚合计数，按次数降序取前 limit 个
func (s *Store) GroupByAction(ctx context.Context, from, to *time.Time, limit int) ([]ActionCountRow, error) {
	query := s.GetDBWithContext(ctx).Model(&AuditEntry{})
	query = s.ApplyDateRangeFilter(query, "created_at", from, to)

	var rows []ActionCountRow
	err := query.
		Select("action, COUNT(*) as count").
		Group("action").
		Order("count DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按事件聚合失败: %w", err)
	}
	return rows, nil
}

// GroupByTable 按业务表聚合计数，忽略没有表名的记录
func (s *Store) GroupByTable(ctx context.Context, from, to *time.Time, limit int) ([]TableCountRow, error) {
	query := s.GetDBWithContext(ctx).Model(&AuditEntry{}).
		Where("table_name IS NOT NULL AND table_name <> ''")
	query = s.ApplyDateRangeFilter(query, "created_at", from, to)

	var rows []TableCountRow
	err := query.
		Select("table_name, COUNT(*) as count").
		Group("table_name").
		Order("count DESC").
		Limit(limit).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("按业务表聚合失败: %w", err)
	}
	return rows, nil
}

// ListRecent 取时间范围内最新的 limit 条记录
func (s *Store) ListRecent(ctx context.Context, from, to *time.Time, limit int) ([]AuditEntry, error) {
	query := s.GetDBWithContext(ctx).Model(&AuditEntry{})
	query = s.ApplyDateRangeFilter(query, "created_at", from, to)

	var entries []AuditEntry
	err := query.
		Order("created_at DESC, id DESC").
		Limit(limit).
		Find(&entries).Error
	if err != nil {
		return nil, fmt.Errorf("查询最近记录失败: %w", err)
	}
	return entries, nil
}

// ListByActor 查询某个操作者自己的记录，最新在前
func (s *Store) ListByActor(ctx context.Context, actorID string, page, pageSize int) ([]AuditEntry, int64, error) {
	return s.List(ctx, ListQuery{
		Filter:   Filter{ActorID: actorID},
		Page:     page,
		PageSize: pageSize,
	})
}

// ActionCountRow 事件聚合行
type ActionCountRow struct {
	Action string `json:"action"`
	Count  int64  `json:"count"`
}

// TableCountRow 业务表聚合行
type TableCountRow struct {
	TableName string `json:"table_name"`
	Count     int64  `json:"count"`
}
