package audit

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"campusperks/pkg/types"
)

func newTestComposer(t *testing.T) (*Composer, *Store) {
	t.Helper()
	store := NewStore(setupAuditDB(t))
	return NewComposer(store, nil), store
}

// lastEntry 读取唯一一条已写入的记录
func lastEntry(t *testing.T, store *Store) *AuditEntry {
	t.Helper()
	var entries []AuditEntry
	if err := store.GetDB().Order("created_at DESC, id DESC").Find(&entries).Error; err != nil {
		t.Fatalf("读取记录失败: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("没有写入任何记录")
	}
	return &entries[0]
}

func countEntries(t *testing.T, store *Store) int64 {
	t.Helper()
	var count int64
	if err := store.GetDB().Model(&AuditEntry{}).Count(&count).Error; err != nil {
		t.Fatalf("统计记录失败: %v", err)
	}
	return count
}

func TestComposePopulationRules(t *testing.T) {
	ctx := context.Background()
	oldValues := map[string]any{"discount": 50}
	newValues := map[string]any{"discount": 40}

	tests := []struct {
		name    string
		kind    OperationKind
		action  Action
		wantOld bool
		wantNew bool
	}{
		{name: "创建只记新值", kind: KindCreate, action: ActionCreateOffer, wantOld: false, wantNew: true},
		{name: "更新两边都记", kind: KindUpdate, action: ActionUpdateOffer, wantOld: true, wantNew: true},
		{name: "删除只记旧值", kind: KindDelete, action: ActionDeleteOffer, wantOld: true, wantNew: false},
		{name: "通用操作只记新值", kind: KindGeneric, action: ActionExportAuditLogs, wantOld: false, wantNew: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			composer, store := newTestComposer(t)
			composer.Compose(ctx, tt.kind, Metadata{Action: tt.action, Table: "offers"},
				nil, RequestInfo{}, "off-1", oldValues, newValues)

			entry := lastEntry(t, store)
			assert.Equal(t, string(tt.action), entry.Action)
			if tt.wantOld {
				assert.Equal(t, float64(50), entry.OldValues["discount"])
			} else {
				assert.Empty(t, entry.OldValues)
			}
			if tt.wantNew {
				assert.Equal(t, float64(40), entry.NewValues["discount"])
			} else {
				assert.Empty(t, entry.NewValues)
			}
		})
	}
}

func TestComposePrivilegedEnrichment(t *testing.T) {
	ctx := context.Background()
	reviewer := &types.ActorView{ID: adminID, Email: "admin@campus.edu", Role: "admin"}

	t.Run("审核通过补决定和审核人", func(t *testing.T) {
		composer, store := newTestComposer(t)
		composer.Compose(ctx, KindUpdate, Metadata{Action: ActionApproveOffer, Table: "offers"},
			reviewer, RequestInfo{}, "off-1", nil, nil)

		entry := lastEntry(t, store)
		assert.Equal(t, "approve", entry.NewValues["decision"])
		assert.Equal(t, adminID, entry.NewValues["reviewer_id"])
		assert.Equal(t, "admin@campus.edu", entry.NewValues["reviewer_email"])
		// note 没给也要显式为空
		note, ok := entry.NewValues["note"]
		assert.True(t, ok)
		assert.Nil(t, note)
	})

	t.Run("驳回保留请求里的备注", func(t *testing.T) {
		composer, store := newTestComposer(t)
		composer.Compose(ctx, KindUpdate, Metadata{Action: ActionRejectRedemption, Table: "redemptions"},
			reviewer, RequestInfo{}, "red-1", nil, map[string]any{"note": "凭证已过期"})

		entry := lastEntry(t, store)
		assert.Equal(t, "reject", entry.NewValues["decision"])
		assert.Equal(t, "凭证已过期", entry.NewValues["note"])
	})

	t.Run("匿名审核人字段置空", func(t *testing.T) {
		composer, store := newTestComposer(t)
		composer.Compose(ctx, KindUpdate, Metadata{Action: ActionApproveRedemption, Table: "redemptions"},
			nil, RequestInfo{}, "red-2", nil, nil)

		entry := lastEntry(t, store)
		assert.Equal(t, "approve", entry.NewValues["decision"])
		assert.Nil(t, entry.NewValues["reviewer_id"])
		assert.Nil(t, entry.NewValues["reviewer_email"])
	})

	t.Run("普通更新不做补充", func(t *testing.T) {
		composer, store := newTestComposer(t)
		composer.Compose(ctx, KindUpdate, Metadata{Action: ActionUpdateOffer, Table: "offers"},
			reviewer, RequestInfo{}, "off-1", nil, map[string]any{"discount": 30})

		entry := lastEntry(t, store)
		_, hasDecision := entry.NewValues["decision"]
		assert.False(t, hasDecision)
	})

	t.Run("特权动作的创建记录不做补充", func(t *testing.T) {
		composer, store := newTestComposer(t)
		composer.Compose(ctx, KindCreate, Metadata{Action: ActionApproveOffer, Table: "offers"},
			reviewer, RequestInfo{}, "off-1", nil, map[string]any{"title": "x"})

		entry := lastEntry(t, store)
		_, hasDecision := entry.NewValues["decision"]
		assert.False(t, hasDecision)
	})
}

func TestComposeDetachedCopies(t *testing.T) {
	ctx := context.Background()
	composer, store := newTestComposer(t)

	newValues := map[string]any{
		"title":  "早鸟特惠",
		"nested": map[string]any{"limit": 10},
	}
	composer.Compose(ctx, KindCreate, Metadata{Action: ActionCreateOffer, Table: "offers"},
		nil, RequestInfo{}, "off-1", nil, newValues)

	// 事后改动原对象不应影响已写入的快照
	newValues["title"] = "被篡改"
	newValues["nested"].(map[string]any)["limit"] = 999

	entry := lastEntry(t, store)
	assert.Equal(t, "早鸟特惠", entry.NewValues["title"])
	nested := entry.NewValues["nested"].(map[string]any)
	assert.Equal(t, float64(10), nested["limit"])
}

func TestComposeActorAndRequest(t *testing.T) {
	ctx := context.Background()

	t.Run("记录操作者和请求来源", func(t *testing.T) {
		composer, store := newTestComposer(t)
		actor := &types.ActorView{ID: merchantID, Email: "latte@coffeeshop.cn", Role: "merchant"}
		composer.Compose(ctx, KindCreate, Metadata{Action: ActionCreateOffer, Table: "offers"},
			actor, RequestInfo{IPAddress: "10.1.2.3", UserAgent: "campus-app/2.1"}, "off-1",
			nil, map[string]any{"title": "x"})

		entry := lastEntry(t, store)
		assert.NotNil(t, entry.ActorID)
		assert.Equal(t, merchantID, *entry.ActorID)
		assert.Equal(t, "10.1.2.3", entry.IPAddress)
		assert.Equal(t, "campus-app/2.1", entry.UserAgent)
	})

	t.Run("匿名操作者不写ID", func(t *testing.T) {
		composer, store := newTestComposer(t)
		composer.Compose(ctx, KindCreate, Metadata{Action: ActionCreateOffer, Table: "offers"},
			nil, RequestInfo{}, "off-1", nil, map[string]any{"title": "x"})

		entry := lastEntry(t, store)
		assert.Nil(t, entry.ActorID)
	})
}

func TestComposeNeverThrows(t *testing.T) {
	ctx := context.Background()

	t.Run("事件名为空只计失败不写库", func(t *testing.T) {
		composer, store := newTestComposer(t)
		assert.NotPanics(t, func() {
			composer.Compose(ctx, KindCreate, Metadata{Action: "  ", Table: "offers"},
				nil, RequestInfo{}, "off-1", nil, map[string]any{"title": "x"})
		})
		assert.Equal(t, int64(0), countEntries(t, store))
	})

	t.Run("快照无法序列化不写库", func(t *testing.T) {
		composer, store := newTestComposer(t)
		assert.NotPanics(t, func() {
			composer.Compose(ctx, KindCreate, Metadata{Action: ActionCreateOffer, Table: "offers"},
				nil, RequestInfo{}, "off-1", nil, map[string]any{"bad": func() {}})
		})
		assert.Equal(t, int64(0), countEntries(t, store))
	})

	t.Run("数据库不可用也不抛错", func(t *testing.T) {
		composer, store := newTestComposer(t)
		sqlDB, err := store.GetDB().DB()
		assert.NoError(t, err)
		assert.NoError(t, sqlDB.Close())

		assert.NotPanics(t, func() {
			composer.Compose(ctx, KindCreate, Metadata{Action: ActionCreateOffer, Table: "offers"},
				nil, RequestInfo{}, "off-1", nil, map[string]any{"title": "x"})
		})
	})
}
