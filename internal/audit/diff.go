package audit

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pmezard/go-difflib/difflib"
)

// ErrDiffUnavailable 记录没有可比对的快照
var ErrDiffUnavailable = errors.New("该记录没有可比对的变更内容")

// EntryDiff 单条记录的变更对比
type EntryDiff struct {
	EntryID string `json:"entry_id"`
	Action  string `json:"action"`
	Diff    string `json:"diff"`
}

// DiffEntry 生成某条记录新旧快照的统一差异文本
func (s *Service) DiffEntry(ctx context.Context, id string) (*EntryDiff, error) {
	view, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(view.OldValues) == 0 && len(view.NewValues) == 0 {
		return nil, ErrDiffUnavailable
	}

	diff := difflib.UnifiedDiff{
		A:        difflib.SplitLines(canonicalJSON(view.OldValues)),
		B:        difflib.SplitLines(canonicalJSON(view.NewValues)),
		FromFile: "old_values",
		ToFile:   "new_values",
		Context:  3,
	}
	text, err := difflib.GetUnifiedDiffString(diff)
	if err != nil {
		return nil, fmt.Errorf("生成差异失败: %w", err)
	}

	return &EntryDiff{
		EntryID: view.ID,
		Action:  view.Action,
		Diff:    text,
	}, nil
}

// canonicalJSON 把快照转成键序稳定的缩进 JSON，空快照视为空对象
func canonicalJSON(values map[string]any) string {
	if len(values) == 0 {
		return "{}\n"
	}
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return "{}\n"
	}
	return string(data) + "\n"
}
