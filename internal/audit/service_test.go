package audit

import (
	"context"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"campusperks/internal/common"
	"campusperks/internal/identity"
	"campusperks/pkg/types"
)

func newTestService(t *testing.T) (*Service, *Store) {
	t.Helper()
	db := setupAuditDB(t)
	seedUsers(t, db)
	store := NewStore(db)
	seedEntries(t, store)
	svc := NewService(store, identity.NewService(db), nil, 0, nil)
	return svc, store
}

func TestServiceListEntries(t *testing.T) {
	svc, store := newTestService(t)
	ctx := context.Background()

	t.Run("默认最新在前并带操作者投影", func(t *testing.T) {
		page, err := svc.ListEntries(ctx, Query{Page: 1, PageSize: 4})
		assert.NoError(t, err)
		assert.Equal(t, int64(6), page.Pagination.Total)
		assert.Equal(t, 2, page.Pagination.TotalPages)
		assert.Len(t, page.Entries, 4)

		first := page.Entries[0]
		assert.Equal(t, "LOGIN", first.Action)
		if assert.NotNil(t, first.Actor) {
			assert.Equal(t, merchantID, first.Actor.ID)
			assert.Equal(t, "latte@coffeeshop.cn", first.Actor.Email)
			assert.Equal(t, "merchant", first.Actor.Role)
		}
	})

	t.Run("升序排列", func(t *testing.T) {
		page, err := svc.ListEntries(ctx, Query{Sort: SortOldest, Page: 1, PageSize: 2})
		assert.NoError(t, err)
		assert.Equal(t, "CREATE_OFFER", page.Entries[0].Action)
	})

	t.Run("操作者已注销时投影为空", func(t *testing.T) {
		ghost := "99999999-9999-9999-9999-999999999999"
		err := store.Append(ctx, &AuditEntry{
			Action: "DELETE_OFFER", Table: "offers", RecordID: "off-x",
			ActorID: &ghost, CreatedAt: seedBase.Add(10 * time.Hour),
		})
		assert.NoError(t, err)

		page, err := svc.ListEntries(ctx, Query{Page: 1, PageSize: 1})
		assert.NoError(t, err)
		assert.Equal(t, "DELETE_OFFER", page.Entries[0].Action)
		assert.Nil(t, page.Entries[0].Actor)
	})

	t.Run("筛选条件透传到存储层", func(t *testing.T) {
		page, err := svc.ListEntries(ctx, Query{
			Filter: Filter{Search: "admin@campus"},
			Page:   1, PageSize: 20,
		})
		assert.NoError(t, err)
		assert.Equal(t, int64(2), page.Pagination.Total)
	})

	t.Run("非法排序令牌被拒绝", func(t *testing.T) {
		_, err := svc.ListEntries(ctx, Query{Sort: "hottest", Page: 1, PageSize: 10})
		assert.ErrorIs(t, err, ErrInvalidSort)
	})

	t.Run("分页越界被拒绝而不是修正", func(t *testing.T) {
		_, err := svc.ListEntries(ctx, Query{Page: -1, PageSize: 10})
		assert.ErrorIs(t, err, ErrInvalidPage)

		_, err = svc.ListEntries(ctx, Query{Page: 1, PageSize: 101})
		assert.ErrorIs(t, err, ErrInvalidPage)
	})
}

func TestServiceGetEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("单条查询带投影", func(t *testing.T) {
		view, err := svc.GetEntry(ctx, "aaaaaaaa-0000-0000-0000-000000000002")
		assert.NoError(t, err)
		assert.Equal(t, "UPDATE_OFFER", view.Action)
		assert.Equal(t, float64(50), view.OldValues["discount"])
		assert.Equal(t, float64(40), view.NewValues["discount"])
		if assert.NotNil(t, view.Actor) {
			assert.Equal(t, "latte@coffeeshop.cn", view.Actor.Email)
		}
	})

	t.Run("不存在透传专用错误", func(t *testing.T) {
		_, err := svc.GetEntry(ctx, "ffffffff-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})
}

func TestServiceMyActivity(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	page, err := svc.MyActivity(ctx, merchantID, common.PaginationRequest{Page: 1, PageSize: 10})
	assert.NoError(t, err)
	assert.Equal(t, int64(4), page.Pagination.Total)
	for _, entry := range page.Entries {
		if assert.NotNil(t, entry.Actor) {
			assert.Equal(t, merchantID, entry.Actor.ID)
		}
	}
}

func TestServiceStatistics(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("全量统计", func(t *testing.T) {
		stats, err := svc.Statistics(ctx, nil, nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(6), stats.Total)

		assert.Len(t, stats.ByAction, 5)
		assert.Equal(t, "LOGIN", stats.ByAction[0].Action)
		assert.Equal(t, int64(2), stats.ByAction[0].Count)

		// 没有表名的登录事件不进表维度
		assert.Len(t, stats.ByTable, 2)
		assert.Equal(t, "offers", stats.ByTable[0].Table)
		assert.Equal(t, int64(3), stats.ByTable[0].Count)

		assert.Len(t, stats.RecentActivity, 5)
		assert.Equal(t, "LOGIN", stats.RecentActivity[0].Action)
		if assert.NotNil(t, stats.RecentActivity[0].Actor) {
			assert.Equal(t, "latte@coffeeshop.cn", stats.RecentActivity[0].Actor.Email)
		}
	})

	t.Run("时间范围统计", func(t *testing.T) {
		from := seedBase.Add(3*time.Hour + 30*time.Minute)
		stats, err := svc.Statistics(ctx, &from, nil)
		assert.NoError(t, err)
		assert.Equal(t, int64(2), stats.Total)
		assert.Len(t, stats.ByAction, 1)
		assert.Equal(t, "LOGIN", stats.ByAction[0].Action)
		assert.Empty(t, stats.ByTable)
	})
}

func TestServiceDiffEntry(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("更新记录能生成差异", func(t *testing.T) {
		diff, err := svc.DiffEntry(ctx, "aaaaaaaa-0000-0000-0000-000000000002")
		assert.NoError(t, err)
		assert.Equal(t, "UPDATE_OFFER", diff.Action)
		assert.Contains(t, diff.Diff, "--- old_values")
		assert.Contains(t, diff.Diff, "+++ new_values")
		assert.Contains(t, diff.Diff, `-  "discount": 50`)
		assert.Contains(t, diff.Diff, `+  "discount": 40`)
	})

	t.Run("无快照的记录拒绝比对", func(t *testing.T) {
		_, err := svc.DiffEntry(ctx, "aaaaaaaa-0000-0000-0000-000000000003")
		assert.ErrorIs(t, err, ErrDiffUnavailable)
	})

	t.Run("记录不存在透传错误", func(t *testing.T) {
		_, err := svc.DiffEntry(ctx, "ffffffff-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, ErrEntryNotFound)
	})
}

func TestParseExportFormat(t *testing.T) {
	tests := []struct {
		input   string
		want    ExportFormat
		wantErr bool
	}{
		{input: "", want: FormatJSON},
		{input: "json", want: FormatJSON},
		{input: "CSV", want: FormatCSV},
		{input: " csv ", want: FormatCSV},
		{input: "xml", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseExportFormat(tt.input)
		if tt.wantErr {
			assert.ErrorIs(t, err, ErrInvalidExportFormat)
			continue
		}
		assert.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestExporter(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	t.Run("CSV带表头和操作者邮箱", func(t *testing.T) {
		exporter := NewExporter(svc, 100)
		result, err := exporter.Export(ctx, Filter{Action: "OFFER"}, FormatCSV)
		assert.NoError(t, err)
		assert.Equal(t, 3, result.TotalCount)
		assert.Equal(t, "text/csv; charset=utf-8", result.ContentType)
		assert.True(t, strings.HasPrefix(result.Filename, "audit_entries_"))

		lines := strings.Split(strings.TrimSpace(string(result.Data)), "\n")
		assert.Len(t, lines, 4)
		assert.Contains(t, lines[0], "操作者邮箱")
		assert.Contains(t, string(result.Data), "admin@campus.edu")
	})

	t.Run("JSON导出可回读", func(t *testing.T) {
		exporter := NewExporter(svc, 100)
		result, err := exporter.Export(ctx, Filter{}, FormatJSON)
		assert.NoError(t, err)
		assert.Equal(t, 6, result.TotalCount)

		var wrapper struct {
			TotalCount int                    `json:"total_count"`
			Entries    []types.AuditEntryView `json:"entries"`
		}
		assert.NoError(t, json.Unmarshal(result.Data, &wrapper))
		assert.Equal(t, 6, wrapper.TotalCount)
		assert.Len(t, wrapper.Entries, 6)
	})

	t.Run("超出上限截断", func(t *testing.T) {
		exporter := NewExporter(svc, 2)
		result, err := exporter.Export(ctx, Filter{}, FormatJSON)
		assert.NoError(t, err)
		assert.Equal(t, 2, result.TotalCount)
	})

	t.Run("不支持的格式", func(t *testing.T) {
		exporter := NewExporter(svc, 100)
		_, err := exporter.Export(ctx, Filter{}, ExportFormat("xml"))
		assert.ErrorIs(t, err, ErrInvalidExportFormat)
	})
}
