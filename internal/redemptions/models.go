package redemptions

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campusperks/internal/common"
)

// RedemptionStatus 兑换状态
type RedemptionStatus string

const (
	StatusPending  RedemptionStatus = "pending"  // 待审核
	StatusApproved RedemptionStatus = "approved" // 已通过
	StatusRejected RedemptionStatus = "rejected" // 已驳回
)

// Redemption 学生兑换申请
type Redemption struct {
	ID         string           `json:"id" gorm:"primaryKey;type:uuid"`
	OfferID    string           `json:"offer_id" gorm:"type:uuid;not null;index"`
	StudentID  string           `json:"student_id" gorm:"type:uuid;not null;index"`
	Code       string           `json:"code" gorm:"size:40;uniqueIndex"` // 核销凭证码
	Note       string           `json:"note" gorm:"size:500"`
	Status     RedemptionStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	ReviewedAt *time.Time       `json:"reviewed_at"`
	ReviewedBy string           `json:"reviewed_by" gorm:"type:uuid"`
	ReviewNote string           `json:"review_note" gorm:"size:500"`
	common.TimestampModel
}

func (Redemption) TableName() string {
	return "redemptions"
}

// BeforeCreate 创建前生成 ID
func (r *Redemption) BeforeCreate(tx *gorm.DB) error {
	if r.ID == "" {
		r.ID = uuid.New().String()
	}
	return nil
}
