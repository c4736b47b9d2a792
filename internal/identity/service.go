package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"campusperks/internal/common"
)

// 业务错误
var (
	ErrUserNotFound       = errors.New("用户不存在")
	ErrEmailTaken         = errors.New("邮箱已被注册")
	ErrInvalidCredentials = errors.New("邮箱或密码错误")
	ErrUserDisabled       = errors.New("用户已禁用")
)

// Service 用户服务
type Service struct {
	*common.BaseService
}

// NewService 创建用户服务
func NewService(db *gorm.DB) *Service {
	return &Service{BaseService: common.NewBaseService(db)}
}

// RegisterInput 注册参数
type RegisterInput struct {
	Email    string
	Password string
	FullName string
	Campus   string
	Role     string
}

// Register 注册新用户
func (s *Service) Register(ctx context.Context, input RegisterInput) (*User, error) {
	// 检查邮箱占用
	taken, err := s.Exists(ctx, &User{}, "email = ?", input.Email)
	if err != nil {
		return nil, fmt.Errorf("检查邮箱失败: %w", err)
	}
	if taken {
		return nil, ErrEmailTaken
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("密码加密失败: %w", err)
	}

	role := input.Role
	if role == "" {
		role = "student"
	}

	user := &User{
		Email:        input.Email,
		PasswordHash: string(hash),
		FullName:     input.FullName,
		Campus:       input.Campus,
		Role:         role,
		Status:       StatusActive,
	}

	if err := s.Create(ctx, user); err != nil {
		return nil, fmt.Errorf("创建用户失败: %w", err)
	}

	return user, nil
}

// Authenticate 校验邮箱密码，成功时更新最近登录信息
func (s *Service) Authenticate(ctx context.Context, email, password, loginIP string) (*User, error) {
	var user User
	err := s.GetDBWithContext(ctx).Where("email = ?", email).First(&user).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrInvalidCredentials
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidCredentials
	}

	if user.Status != StatusActive {
		return nil, ErrUserDisabled
	}

	now := time.Now()
	user.LastLoginAt = &now
	user.LastLoginIP = loginIP
	// 登录信息更新失败不影响登录本身
	_ = s.GetDBWithContext(ctx).Model(&user).
		Updates(map[string]any{"last_login_at": now, "last_login_ip": loginIP}).Error

	return &user, nil
}

// GetByID 根据 ID 查询用户
func (s *Service) GetByID(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.FindByID(ctx, &user, id)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("查询用户失败: %w", err)
	}
	return &user, nil
}
