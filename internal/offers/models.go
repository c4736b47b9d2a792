package offers

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campusperks/internal/common"
)

// OfferStatus 优惠状态
type OfferStatus string

const (
	StatusPending  OfferStatus = "pending"  // 待审核
	StatusActive   OfferStatus = "active"   // 已上架
	StatusRejected OfferStatus = "rejected" // 已驳回
)

// Offer 校园优惠
type Offer struct {
	ID          string      `json:"id" gorm:"primaryKey;type:uuid"`
	MerchantID  string      `json:"merchant_id" gorm:"type:uuid;not null;index"`
	Title       string      `json:"title" gorm:"size:200;not null"`
	Description string      `json:"description" gorm:"type:text"`
	Category    string      `json:"category" gorm:"size:50;index"`
	Campus      string      `json:"campus" gorm:"size:100;index"`
	DiscountPct int         `json:"discount_pct" gorm:"default:0"`
	RedeemLimit int         `json:"redeem_limit" gorm:"default:0"` // 0 表示不限量
	StartsAt    *time.Time  `json:"starts_at"`
	EndsAt      *time.Time  `json:"ends_at"`
	Status      OfferStatus `json:"status" gorm:"size:20;not null;default:pending;index"`
	ReviewedAt  *time.Time  `json:"reviewed_at"`
	ReviewedBy  string      `json:"reviewed_by" gorm:"type:uuid"`
	ReviewNote  string      `json:"review_note" gorm:"size:500"`
	common.TimestampModel
}

func (Offer) TableName() string {
	return "offers"
}

// BeforeCreate 创建前生成 ID
func (o *Offer) BeforeCreate(tx *gorm.DB) error {
	if o.ID == "" {
		o.ID = uuid.New().String()
	}
	return nil
}
