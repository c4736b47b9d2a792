package audit

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// Action 审计事件名
// 自由字符串，唯一硬性约束是非空
type Action string

// 平台内置事件名
const (
	ActionLogin        Action = "LOGIN"
	ActionRegisterUser Action = "REGISTER_USER"

	ActionCreateOffer Action = "CREATE_OFFER"
	ActionUpdateOffer Action = "UPDATE_OFFER"
	ActionDeleteOffer Action = "DELETE_OFFER"

	ActionApproveOffer Action = "APPROVE_OFFER"
	ActionRejectOffer  Action = "REJECT_OFFER"

	ActionCreateRedemption  Action = "CREATE_REDEMPTION"
	ActionApproveRedemption Action = "APPROVE_REDEMPTION"
	ActionRejectRedemption  Action = "REJECT_REDEMPTION"

	ActionExportAuditLogs Action = "EXPORT_AUDIT_LOGS"
)

// ErrEmptyAction 事件名为空
var ErrEmptyAction = errors.New("审计事件名不能为空")

// Validate 校验事件名
func (a Action) Validate() error {
	if strings.TrimSpace(string(a)) == "" {
		return ErrEmptyAction
	}
	return nil
}

// privilegedActions 特权动作集合
// 这些动作组装 UPDATE 记录时会补充 decision/reviewer/note 字段
var privilegedActions = map[Action]struct{}{
	ActionApproveOffer:      {},
	ActionRejectOffer:       {},
	ActionApproveRedemption: {},
	ActionRejectRedemption:  {},
}

// Privileged 是否属于特权动作
func (a Action) Privileged() bool {
	_, ok := privilegedActions[a]
	return ok
}

// Decision 从特权动作名推导审核决定
func (a Action) Decision() string {
	switch {
	case strings.HasPrefix(string(a), "APPROVE_"):
		return "approve"
	case strings.HasPrefix(string(a), "REJECT_"):
		return "reject"
	default:
		return ""
	}
}

// builtinDescriptions 内置事件描述
var builtinDescriptions = map[Action]string{
	ActionLogin:             "用户登录",
	ActionRegisterUser:      "注册新用户",
	ActionCreateOffer:       "商家创建优惠",
	ActionUpdateOffer:       "商家修改优惠",
	ActionDeleteOffer:       "商家下架并删除优惠",
	ActionApproveOffer:      "管理员审核通过优惠",
	ActionRejectOffer:       "管理员驳回优惠",
	ActionCreateRedemption:  "学生发起兑换",
	ActionApproveRedemption: "管理员审核通过兑换",
	ActionRejectRedemption:  "管理员驳回兑换",
	ActionExportAuditLogs:   "导出审计日志",
}

// ActionInfo 事件注册表条目
type ActionInfo struct {
	Action      string `json:"action"`
	Description string `json:"description"`
	Privileged  bool   `json:"privileged"`
}

// Registry 事件描述注册表
// 给运维提供一份"平台会记哪些事件"的文档，不参与写入路径
type Registry struct {
	mu           sync.RWMutex
	descriptions map[Action]string
}

// NewRegistry 创建注册表，预置内置事件描述
func NewRegistry() *Registry {
	descs := make(map[Action]string, len(builtinDescriptions))
	for action, desc := range builtinDescriptions {
		descs[action] = desc
	}
	return &Registry{descriptions: descs}
}

// actionsFile 描述文件格式
type actionsFile struct {
	Actions map[string]string `yaml:"actions"`
}

// LoadDescriptions 从 YAML 文件合并事件描述，同名覆盖内置描述
func (r *Registry) LoadDescriptions(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("读取事件描述文件失败: %w", err)
	}

	var file actionsFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("解析事件描述文件失败: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for name, desc := range file.Actions {
		action := Action(name)
		if action.Validate() != nil {
			continue
		}
		r.descriptions[action] = desc
	}

	return nil
}

// Describe 查询事件描述，未注册的事件返回空串
func (r *Registry) Describe(a Action) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.descriptions[a]
}

// List 列出全部已注册事件，按事件名排序
func (r *Registry) List() []ActionInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()

	infos := make([]ActionInfo, 0, len(r.descriptions))
	for action, desc := range r.descriptions {
		infos = append(infos, ActionInfo{
			Action:      string(action),
			Description: desc,
			Privileged:  action.Privileged(),
		})
	}

	sort.Slice(infos, func(i, j int) bool {
		return infos[i].Action < infos[j].Action
	})

	return infos
}
