package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/datatypes"

	"campusperks/internal/metrics"
	"campusperks/pkg/types"
)

// RequestInfo 请求来源信息
type RequestInfo struct {
	IPAddress string
	UserAgent string
}

// Composer 审计条目组装器
// 组装或写入失败只记日志和指标，绝不向业务调用方抛错
type Composer struct {
	store  *Store
	logger *zap.Logger
}

// NewComposer 创建组装器，logger 为空时静默
func NewComposer(store *Store, log *zap.Logger) *Composer {
	if log == nil {
		log = zap.NewNop()
	}
	return &Composer{store: store, logger: log}
}

// Compose 组装并写入一条审计记录
// 任何失败都在内部消化，调用方的业务结果不受影响
func (cp *Composer) Compose(ctx context.Context, kind OperationKind, meta Metadata, actor *types.ActorView, req RequestInfo, recordID string, oldValues, newValues map[string]any) {
	defer func() {
		if r := recover(); r != nil {
			cp.logger.Error("审计组装发生 panic",
				zap.String("action", string(meta.Action)),
				zap.Any("panic", r))
			metrics.AuditEventsTotal.WithLabelValues(string(meta.Action), "failed").Inc()
		}
	}()

	if err := cp.compose(ctx, kind, meta, actor, req, recordID, oldValues, newValues); err != nil {
		cp.logger.Error("审计记录写入失败",
			zap.String("action", string(meta.Action)),
			zap.String("record_id", recordID),
			zap.Error(err))
		metrics.AuditEventsTotal.WithLabelValues(string(meta.Action), "failed").Inc()
		return
	}

	metrics.AuditEventsTotal.WithLabelValues(string(meta.Action), "composed").Inc()
}

func (cp *Composer) compose(ctx context.Context, kind OperationKind, meta Metadata, actor *types.ActorView, req RequestInfo, recordID string, oldValues, newValues map[string]any) error {
	if err := meta.Validate(); err != nil {
		metrics.AuditComposeFailures.WithLabelValues("validate").Inc()
		return err
	}

	// 按操作动词裁剪快照：创建没有旧值，删除没有新值，
	// 通用操作只保留显式声明的新值
	switch kind {
	case KindCreate, KindGeneric:
		oldValues = nil
	case KindDelete:
		newValues = nil
	}

	if kind == KindUpdate && meta.Action.Privileged() {
		newValues = enrichPrivileged(meta.Action, actor, newValues)
	}

	oldCopy, err := detachValues(oldValues)
	if err != nil {
		metrics.AuditComposeFailures.WithLabelValues("marshal").Inc()
		return fmt.Errorf("序列化旧值失败: %w", err)
	}
	newCopy, err := detachValues(newValues)
	if err != nil {
		metrics.AuditComposeFailures.WithLabelValues("marshal").Inc()
		return fmt.Errorf("序列化新值失败: %w", err)
	}

	entry := &AuditEntry{
		Action:    string(meta.Action),
		Table:     meta.Table,
		RecordID:  recordID,
		OldValues: oldCopy,
		NewValues: newCopy,
		IPAddress: req.IPAddress,
		UserAgent: req.UserAgent,
	}
	if actor != nil && actor.ID != "" {
		actorID := actor.ID
		entry.ActorID = &actorID
	}

	start := time.Now()
	err = cp.store.Append(ctx, entry)
	metrics.AuditWriteDuration.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.AuditComposeFailures.WithLabelValues("store").Inc()
		return err
	}

	return nil
}

// enrichPrivileged 给特权动作的更新记录补充审核上下文
// decision 从事件名推导，note 缺省时显式置空
func enrichPrivileged(action Action, actor *types.ActorView, newValues map[string]any) map[string]any {
	enriched := make(map[string]any, len(newValues)+4)
	for k, v := range newValues {
		enriched[k] = v
	}
	enriched["decision"] = action.Decision()
	if actor != nil {
		enriched["reviewer_id"] = actor.ID
		enriched["reviewer_email"] = actor.Email
	} else {
		enriched["reviewer_id"] = nil
		enriched["reviewer_email"] = nil
	}
	if _, ok := enriched["note"]; !ok {
		enriched["note"] = nil
	}
	return enriched
}

// detachValues 通过 JSON 往返做一次深拷贝，切断与业务对象的引用
func detachValues(values map[string]any) (datatypes.JSONMap, error) {
	if len(values) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(values)
	if err != nil {
		return nil, err
	}
	var detached map[string]any
	if err := json.Unmarshal(raw, &detached); err != nil {
		return nil, err
	}
	return datatypes.JSONMap(detached), nil
}

// toMap 把任意可序列化对象转成 map，供快照提取使用
func toMap(v any) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	if m, ok := v.(map[string]any); ok {
		return m, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(raw, &m); err != nil {
		return nil, err
	}
	return m, nil
}
