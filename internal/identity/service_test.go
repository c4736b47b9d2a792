package identity

import (
	"context"
	"testing"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	if err != nil {
		t.Fatalf("打开测试数据库失败: %v", err)
	}
	if err := db.AutoMigrate(&User{}); err != nil {
		t.Fatalf("迁移失败: %v", err)
	}
	return db
}

func TestRegister(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	t.Run("正常注册默认学生角色", func(t *testing.T) {
		user, err := svc.Register(ctx, RegisterInput{
			Email:    "alice@campus.edu",
			Password: "s3cret-pass",
			FullName: "Alice Zhang",
		})
		assert.NoError(t, err)
		assert.NotEmpty(t, user.ID)
		assert.Equal(t, "student", user.Role)
		assert.Equal(t, StatusActive, user.Status)
		// 密码不落明文
		assert.NotEqual(t, "s3cret-pass", user.PasswordHash)
	})

	t.Run("重复邮箱被拒绝", func(t *testing.T) {
		_, err := svc.Register(ctx, RegisterInput{
			Email:    "alice@campus.edu",
			Password: "another-pass",
		})
		assert.ErrorIs(t, err, ErrEmailTaken)
	})
}

func TestAuthenticate(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	user, err := svc.Register(ctx, RegisterInput{
		Email:    "bob@campus.edu",
		Password: "bob-password",
		Role:     "merchant",
	})
	assert.NoError(t, err)

	t.Run("密码正确", func(t *testing.T) {
		got, err := svc.Authenticate(ctx, "bob@campus.edu", "bob-password", "10.0.0.8")
		assert.NoError(t, err)
		assert.Equal(t, user.ID, got.ID)
		assert.NotNil(t, got.LastLoginAt)
		assert.Equal(t, "10.0.0.8", got.LastLoginIP)
	})

	t.Run("密码错误", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "bob@campus.edu", "wrong", "10.0.0.8")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("用户不存在", func(t *testing.T) {
		_, err := svc.Authenticate(ctx, "nobody@campus.edu", "x", "10.0.0.8")
		assert.ErrorIs(t, err, ErrInvalidCredentials)
	})

	t.Run("禁用用户拒绝登录", func(t *testing.T) {
		assert.NoError(t, svc.GetDB().Model(&User{}).
			Where("id = ?", user.ID).Update("status", StatusSuspended).Error)

		_, err := svc.Authenticate(ctx, "bob@campus.edu", "bob-password", "10.0.0.8")
		assert.ErrorIs(t, err, ErrUserDisabled)
	})
}

func TestFetchActors(t *testing.T) {
	svc := NewService(setupTestDB(t))
	ctx := context.Background()

	u1, _ := svc.Register(ctx, RegisterInput{Email: "a@campus.edu", Password: "p1"})
	u2, _ := svc.Register(ctx, RegisterInput{Email: "b@campus.edu", Password: "p2", Role: "admin"})

	t.Run("批量投影", func(t *testing.T) {
		actors, err := svc.FetchActors(ctx, []string{u1.ID, u2.ID, "missing-id"})
		assert.NoError(t, err)
		assert.Len(t, actors, 2)
		assert.Equal(t, "a@campus.edu", actors[u1.ID].Email)
		assert.Equal(t, "admin", actors[u2.ID].Role)
		_, ok := actors["missing-id"]
		assert.False(t, ok)
	})

	t.Run("空ID列表", func(t *testing.T) {
		actors, err := svc.FetchActors(ctx, nil)
		assert.NoError(t, err)
		assert.Empty(t, actors)
	})
}
