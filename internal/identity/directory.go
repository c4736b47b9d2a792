package identity

import (
	"context"
	"fmt"

	"campusperks/pkg/types"
)

// FetchActors 按 ID 批量查询用户并投影为审计操作者视图
// 缺失的 ID 不报错，结果里没有对应键即可
func (s *Service) FetchActors(ctx context.Context, ids []string) (map[string]types.ActorView, error) {
	result := make(map[string]types.ActorView, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	var users []User
	if err := s.FindByIDs(ctx, &users, ids); err != nil {
		return nil, fmt.Errorf("批量查询用户失败: %w", err)
	}

	for _, u := range users {
		result[u.ID] = types.ActorView{
			ID:    u.ID,
			Email: u.Email,
			Role:  u.Role,
		}
	}

	return result, nil
}
