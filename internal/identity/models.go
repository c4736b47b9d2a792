package identity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campusperks/internal/common"
)

// 用户状态
const (
	StatusActive    = "active"
	StatusSuspended = "suspended"
)

// User 平台用户（学生、商家、管理员）
type User struct {
	ID string `json:"id" gorm:"primaryKey;type:uuid"`

	// 认证信息
	Email        string `json:"email" gorm:"size:255;uniqueIndex;not null"`
	PasswordHash string `json:"-" gorm:"size:255;not null"`

	// 个人信息
	FullName string `json:"full_name" gorm:"size:255"`
	Campus   string `json:"campus,omitempty" gorm:"size:255"` // 所属校区，学生可选

	// 角色与状态
	Role   string `json:"role" gorm:"size:50;not null;index"`
	Status string `json:"status" gorm:"size:50;not null;default:active"`

	// 安全相关
	LastLoginAt *time.Time `json:"last_login_at,omitempty"`
	LastLoginIP string     `json:"last_login_ip,omitempty" gorm:"size:50"`

	common.TimestampModel
}

// TableName 指定表名
func (User) TableName() string {
	return "users"
}

// BeforeCreate 创建前生成 UUID
func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.New().String()
	}
	return nil
}
