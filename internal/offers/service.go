package offers

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"campusperks/internal/common"
)

var (
	ErrOfferNotFound   = errors.New("优惠不存在")
	ErrNotOfferOwner   = errors.New("无权操作他人的优惠")
	ErrOfferNotPending = errors.New("优惠不在待审核状态")
	ErrInvalidDecision = errors.New("无效的审核决定")
)

// Service 优惠管理服务
type Service struct {
	*common.BaseService
}

// NewService 创建服务
func NewService(db *gorm.DB) *Service {
	return &Service{BaseService: common.NewBaseService(db)}
}

// CreateOfferInput 创建优惠
type CreateOfferInput struct {
	Title       string     `json:"title" binding:"required,max=200"`
	Description string     `json:"description" binding:"omitempty,max=2000"`
	Category    string     `json:"category" binding:"omitempty,max=50"`
	Campus      string     `json:"campus" binding:"omitempty,max=100"`
	DiscountPct int        `json:"discount_pct" binding:"required,min=1,max=100"`
	RedeemLimit int        `json:"redeem_limit" binding:"omitempty,min=0"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

// Create 商家创建优惠，进入待审核状态
func (s *Service) Create(ctx context.Context, merchantID string, input CreateOfferInput) (*Offer, error) {
	offer := &Offer{
		MerchantID:  merchantID,
		Title:       input.Title,
		Description: input.Description,
		Category:    input.Category,
		Campus:      input.Campus,
		DiscountPct: input.DiscountPct,
		RedeemLimit: input.RedeemLimit,
		StartsAt:    input.StartsAt,
		EndsAt:      input.EndsAt,
		Status:      StatusPending,
	}
	if err := s.GetDBWithContext(ctx).Create(offer).Error; err != nil {
		return nil, err
	}
	return offer, nil
}

// Get 查询单个优惠
func (s *Service) Get(ctx context.Context, id string) (*Offer, error) {
	var offer Offer
	err := s.GetDBWithContext(ctx).Where("id = ?", id).First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrOfferNotFound
		}
		return nil, err
	}
	return &offer, nil
}

// ListQuery 优惠列表查询
type ListQuery struct {
	common.PaginationRequest
	Keyword    string `form:"keyword"`
	Category   string `form:"category"`
	Campus     string `form:"campus"`
	Status     string `form:"status" binding:"omitempty,oneof=pending active rejected"`
	MerchantID string `form:"merchant_id" binding:"omitempty,uuid"`
}

// List 按条件分页查询优惠
func (s *Service) List(ctx context.Context, q ListQuery) ([]Offer, int64, error) {
	query := s.GetDBWithContext(ctx).Model(&Offer{})
	query = s.ApplyKeywordSearch(query, q.Keyword, []string{"title", "description"})
	query = s.ApplyStatusFilter(query, q.Status)
	if q.Category != "" {
		query = query.Where("category = ?", q.Category)
	}
	if q.Campus != "" {
		query = query.Where("campus = ?", q.Campus)
	}
	if q.MerchantID != "" {
		query = query.Where("merchant_id = ?", q.MerchantID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []Offer
	err := s.ApplyPaginationRequest(query.Order("created_at DESC"), q.PaginationRequest).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// ListActive 学生侧只看已上架的优惠
func (s *Service) ListActive(ctx context.Context, q ListQuery) ([]Offer, int64, error) {
	q.Status = string(StatusActive)
	return s.List(ctx, q)
}

// UpdateOfferInput 更新优惠，字段为空指针表示不修改
type UpdateOfferInput struct {
	Title       *string    `json:"title" binding:"omitempty,max=200"`
	Description *string    `json:"description" binding:"omitempty,max=2000"`
	Category    *string    `json:"category" binding:"omitempty,max=50"`
	Campus      *string    `json:"campus" binding:"omitempty,max=100"`
	DiscountPct *int       `json:"discount_pct" binding:"omitempty,min=1,max=100"`
	RedeemLimit *int       `json:"redeem_limit" binding:"omitempty,min=0"`
	StartsAt    *time.Time `json:"starts_at"`
	EndsAt      *time.Time `json:"ends_at"`
}

// Update 商家修改自己的优惠，修改后回到待审核状态
func (s *Service) Update(ctx context.Context, id, merchantID string, input UpdateOfferInput) (*Offer, error) {
	offer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if offer.MerchantID != merchantID {
		return nil, ErrNotOfferOwner
	}

	updates := map[string]interface{}{
		"status": StatusPending,
	}
	if input.Title != nil {
		updates["title"] = *input.Title
	}
	if input.Description != nil {
		updates["description"] = *input.Description
	}
	if input.Category != nil {
		updates["category"] = *input.Category
	}
	if input.Campus != nil {
		updates["campus"] = *input.Campus
	}
	if input.DiscountPct != nil {
		updates["discount_pct"] = *input.DiscountPct
	}
	if input.RedeemLimit != nil {
		updates["redeem_limit"] = *input.RedeemLimit
	}
	if input.StartsAt != nil {
		updates["starts_at"] = *input.StartsAt
	}
	if input.EndsAt != nil {
		updates["ends_at"] = *input.EndsAt
	}

	err = s.GetDBWithContext(ctx).Model(&Offer{}).
		Where("id = ?", id).
		Updates(updates).Error
	if err != nil {
		return nil, err
	}

	return s.Get(ctx, id)
}

// Delete 删除优惠，商家只能删自己的，管理员不受限
func (s *Service) Delete(ctx context.Context, id, actorID string, isAdmin bool) (*Offer, error) {
	offer, err := s.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if !isAdmin && offer.MerchantID != actorID {
		return nil, ErrNotOfferOwner
	}

	if err := s.GetDBWithContext(ctx).Delete(&Offer{}, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return offer, nil
}

// Review 管理员审核优惠
// 只有待审核状态可以流转，重复审核直接报错
func (s *Service) Review(ctx context.Context, id, reviewerID, decision, note string) (*Offer, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"reviewed_at": now,
		"reviewed_by": reviewerID,
		"review_note": note,
	}
	switch decision {
	case "approve":
		updates["status"] = StatusActive
	case "reject":
		updates["status"] = StatusRejected
	default:
		return nil, ErrInvalidDecision
	}

	result := s.GetDBWithContext(ctx).Model(&Offer{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrOfferNotPending
	}

	return s.Get(ctx, id)
}
