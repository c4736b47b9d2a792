package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"campusperks/internal/common"
	"campusperks/internal/metrics"
	"campusperks/pkg/types"
)

// 查询参数错误
var (
	ErrInvalidSort = errors.New("排序参数无效，仅支持 newest 或 oldest")
	ErrInvalidPage = errors.New("分页参数超出允许范围")
)

// 统计口径
const (
	statsTopN        = 10 // byAction/byTable 各取前 10
	statsRecentCount = 5  // recentActivity 取最近 5 条

	statsCacheKeyPrefix  = "audit:stats:"
	defaultStatsCacheTTL = 60 * time.Second
)

// ActorDirectory 操作者目录，把 actor_id 批量换成展示用投影
type ActorDirectory interface {
	FetchActors(ctx context.Context, ids []string) (map[string]types.ActorView, error)
}

// Query 管理端审计查询参数
type Query struct {
	Filter
	Sort     string // newest | oldest，空值按 newest
	Page     int
	PageSize int
}

// normalize 补默认值并校验，越界直接拒绝而不是悄悄修正
func (q *Query) normalize() error {
	if q.Page == 0 {
		q.Page = 1
	}
	if q.PageSize == 0 {
		q.PageSize = common.DefaultPageSize
	}
	if q.Page < 1 {
		return ErrInvalidPage
	}
	if q.PageSize < 1 || q.PageSize > common.MaxPageSize {
		return ErrInvalidPage
	}
	switch q.Sort {
	case "", SortNewest, SortOldest:
		return nil
	default:
		return ErrInvalidSort
	}
}

// Service 审计查询服务
type Service struct {
	store    *Store
	actors   ActorDirectory
	cache    redis.UniversalClient
	cacheTTL time.Duration
	logger   *zap.Logger
}

// NewService 创建查询服务
// cache 可以为 nil，此时统计不走缓存；logger 为空时静默
func NewService(store *Store, actors ActorDirectory, cache redis.UniversalClient, cacheTTL time.Duration, log *zap.Logger) *Service {
	if cacheTTL <= 0 {
		cacheTTL = defaultStatsCacheTTL
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Service{
		store:    store,
		actors:   actors,
		cache:    cache,
		cacheTTL: cacheTTL,
		logger:   log,
	}
}

// ListEntries 分页查询审计日志，带操作者投影
func (s *Service) ListEntries(ctx context.Context, q Query) (*types.AuditEntryPage, error) {
	if err := q.normalize(); err != nil {
		return nil, err
	}

	entries, total, err := s.store.List(ctx, ListQuery{
		Filter:    q.Filter,
		Page:      q.Page,
		PageSize:  q.PageSize,
		Ascending: q.Sort == SortOldest,
	})
	if err != nil {
		return nil, err
	}

	views, err := s.projectViews(ctx, entries)
	if err != nil {
		return nil, err
	}

	return &types.AuditEntryPage{
		Entries:    views,
		Pagination: types.NewPaginationResponse(q.Page, q.PageSize, total),
	}, nil
}

// GetEntry 查询单条审计日志
func (s *Service) GetEntry(ctx context.Context, id string) (*types.AuditEntryView, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	views, err := s.projectViews(ctx, []AuditEntry{*entry})
	if err != nil {
		return nil, err
	}
	return &views[0], nil
}

// MyActivity 查询当前用户自己的操作记录
func (s *Service) MyActivity(ctx context.Context, actorID string, page common.PaginationRequest) (*types.AuditEntryPage, error) {
	pageNum := page.Page
	if pageNum < 1 {
		pageNum = 1
	}
	pageSize := page.GetPageSize()

	entries, total, err := s.store.ListByActor(ctx, actorID, pageNum, pageSize)
	if err != nil {
		return nil, err
	}

	views, err := s.projectViews(ctx, entries)
	if err != nil {
		return nil, err
	}

	return &types.AuditEntryPage{
		Entries:    views,
		Pagination: types.NewPaginationResponse(pageNum, pageSize, total),
	}, nil
}

// Statistics 统计时间范围内的审计活动，结果短暂缓存
func (s *Service) Statistics(ctx context.Context, from, to *time.Time) (*types.AuditStatistics, error) {
	cacheKey := statsCacheKey(from, to)

	if s.cache != nil {
		if cached, err := s.cache.Get(ctx, cacheKey).Bytes(); err == nil {
			var stats types.AuditStatistics
			if err := json.Unmarshal(cached, &stats); err == nil {
				metrics.CacheHitsTotal.WithLabelValues("audit_stats").Inc()
				return &stats, nil
			}
		}
		metrics.CacheMissesTotal.WithLabelValues("audit_stats").Inc()
	}

	stats, err := s.computeStatistics(ctx, from, to)
	if err != nil {
		return nil, err
	}

	if s.cache != nil {
		if data, err := json.Marshal(stats); err == nil {
			if err := s.cache.Set(ctx, cacheKey, data, s.cacheTTL).Err(); err != nil {
				s.logger.Debug("统计结果写缓存失败", zap.Error(err))
			}
		}
	}

	return stats, nil
}

func (s *Service) computeStatistics(ctx context.Context, from, to *time.Time) (*types.AuditStatistics, error) {
	total, err := s.store.CountAll(ctx, from, to)
	if err != nil {
		return nil, err
	}

	actionRows, err := s.store.GroupByAction(ctx, from, to, statsTopN)
	if err != nil {
		return nil, err
	}
	byAction := make([]types.ActionCount, 0, len(actionRows))
	for _, row := range actionRows {
		byAction = append(byAction, types.ActionCount{Action: row.Action, Count: row.Count})
	}

	tableRows, err := s.store.GroupByTable(ctx, from, to, statsTopN)
	if err != nil {
		return nil, err
	}
	byTable := make([]types.TableCount, 0, len(tableRows))
	for _, row := range tableRows {
		byTable = append(byTable, types.TableCount{Table: row.TableName, Count: row.Count})
	}

	recent, err := s.store.ListRecent(ctx, from, to, statsRecentCount)
	if err != nil {
		return nil, err
	}
	recentViews, err := s.projectViews(ctx, recent)
	if err != nil {
		return nil, err
	}

	return &types.AuditStatistics{
		Total:          total,
		ByAction:       byAction,
		ByTable:        byTable,
		RecentActivity: recentViews,
	}, nil
}

// projectViews 批量转换为视图并补上操作者投影
// 目录查询失败只降级为空 actor，不影响日志本身的返回
func (s *Service) projectViews(ctx context.Context, entries []AuditEntry) ([]types.AuditEntryView, error) {
	ids := make([]string, 0, len(entries))
	seen := make(map[string]struct{}, len(entries))
	for _, entry := range entries {
		if entry.ActorID == nil || *entry.ActorID == "" {
			continue
		}
		if _, ok := seen[*entry.ActorID]; ok {
			continue
		}
		seen[*entry.ActorID] = struct{}{}
		ids = append(ids, *entry.ActorID)
	}

	var actors map[string]types.ActorView
	if len(ids) > 0 && s.actors != nil {
		fetched, err := s.actors.FetchActors(ctx, ids)
		if err != nil {
			s.logger.Warn("查询操作者信息失败，降级为空", zap.Error(err))
		} else {
			actors = fetched
		}
	}

	views := make([]types.AuditEntryView, 0, len(entries))
	for i := range entries {
		var actor *types.ActorView
		if entries[i].ActorID != nil {
			if av, ok := actors[*entries[i].ActorID]; ok {
				actorCopy := av
				actor = &actorCopy
			}
		}
		views = append(views, entries[i].ToView(actor))
	}

	return views, nil
}

// statsCacheKey 统计缓存键，按时间范围区分
func statsCacheKey(from, to *time.Time) string {
	fromPart, toPart := "0", "0"
	if from != nil {
		fromPart = from.UTC().Format("20060102150405")
	}
	if to != nil {
		toPart = to.UTC().Format("20060102150405")
	}
	return statsCacheKeyPrefix + fromPart + ":" + toPart
}
