package redemptions

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"campusperks/internal/common"
	"campusperks/internal/metrics"
	"campusperks/internal/offers"
)

var (
	ErrRedemptionNotFound  = errors.New("兑换记录不存在")
	ErrOfferNotActive      = errors.New("优惠未上架，无法兑换")
	ErrOfferNotStarted     = errors.New("优惠尚未开始，无法兑换")
	ErrOfferExpired        = errors.New("优惠已过结束时间，无法兑换")
	ErrDuplicateRedemption = errors.New("已申请过该优惠的兑换")
	ErrRedeemLimitReached  = errors.New("优惠兑换名额已满")
	ErrRedemptionReviewed  = errors.New("兑换已审核，不能重复处理")
	ErrInvalidDecision     = errors.New("无效的审核决定")
)

// Service 兑换管理服务
type Service struct {
	*common.BaseService
	offers *offers.Service
}

// NewService 创建服务
func NewService(db *gorm.DB, offerService *offers.Service) *Service {
	return &Service{
		BaseService: common.NewBaseService(db),
		offers:      offerService,
	}
}

// CreateInput 发起兑换
type CreateInput struct {
	OfferID string `json:"offer_id" binding:"required,uuid"`
	Note    string `json:"note" binding:"omitempty,max=500"`
}

// Create 学生发起兑换申请
// 优惠必须已上架且在有效期内；同一学生同一优惠只允许一笔未驳回的申请；
// 限量优惠额度用完后拒绝
func (s *Service) Create(ctx context.Context, studentID string, input CreateInput) (*Redemption, error) {
	offer, err := s.offers.Get(ctx, input.OfferID)
	if err != nil {
		return nil, err
	}
	if offer.Status != offers.StatusActive {
		return nil, ErrOfferNotActive
	}

	now := time.Now()
	if offer.StartsAt != nil && now.Before(*offer.StartsAt) {
		return nil, ErrOfferNotStarted
	}
	if offer.EndsAt != nil && now.After(*offer.EndsAt) {
		return nil, ErrOfferExpired
	}

	exists, err := s.Exists(ctx, &Redemption{},
		"offer_id = ? AND student_id = ? AND status <> ?",
		input.OfferID, studentID, StatusRejected)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrDuplicateRedemption
	}

	if offer.RedeemLimit > 0 {
		taken, err := s.Count(ctx, &Redemption{},
			"offer_id = ? AND status <> ?", input.OfferID, StatusRejected)
		if err != nil {
			return nil, err
		}
		if taken >= int64(offer.RedeemLimit) {
			return nil, ErrRedeemLimitReached
		}
	}

	redemption := &Redemption{
		OfferID:   input.OfferID,
		StudentID: studentID,
		Code:      newVoucherCode(),
		Note:      input.Note,
		Status:    StatusPending,
	}
	if err := s.GetDBWithContext(ctx).Create(redemption).Error; err != nil {
		return nil, err
	}

	metrics.RedemptionsTotal.WithLabelValues(string(StatusPending)).Inc()
	return redemption, nil
}

// Get 查询单笔兑换
func (s *Service) Get(ctx context.Context, id string) (*Redemption, error) {
	var redemption Redemption
	err := s.GetDBWithContext(ctx).Where("id = ?", id).First(&redemption).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrRedemptionNotFound
		}
		return nil, err
	}
	return &redemption, nil
}

// ListQuery 兑换列表查询
type ListQuery struct {
	common.PaginationRequest
	StudentID string `form:"student_id" binding:"omitempty,uuid"`
	OfferID   string `form:"offer_id" binding:"omitempty,uuid"`
	Status    string `form:"status" binding:"omitempty,oneof=pending approved rejected"`
}

// List 按条件分页查询兑换
func (s *Service) List(ctx context.Context, q ListQuery) ([]Redemption, int64, error) {
	query := s.GetDBWithContext(ctx).Model(&Redemption{})
	query = s.ApplyStatusFilter(query, q.Status)
	if q.StudentID != "" {
		query = query.Where("student_id = ?", q.StudentID)
	}
	if q.OfferID != "" {
		query = query.Where("offer_id = ?", q.OfferID)
	}

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var items []Redemption
	err := s.ApplyPaginationRequest(query.Order("created_at DESC"), q.PaginationRequest).
		Find(&items).Error
	if err != nil {
		return nil, 0, err
	}
	return items, total, nil
}

// Review 管理员审核兑换，只处理待审核状态
func (s *Service) Review(ctx context.Context, id, reviewerID, decision, note string) (*Redemption, error) {
	if _, err := s.Get(ctx, id); err != nil {
		return nil, err
	}

	now := time.Now()
	updates := map[string]interface{}{
		"reviewed_at": now,
		"reviewed_by": reviewerID,
		"review_note": note,
	}
	var reviewed RedemptionStatus
	switch decision {
	case "approve":
		reviewed = StatusApproved
	case "reject":
		reviewed = StatusRejected
	default:
		return nil, ErrInvalidDecision
	}
	updates["status"] = reviewed

	result := s.GetDBWithContext(ctx).Model(&Redemption{}).
		Where("id = ? AND status = ?", id, StatusPending).
		Updates(updates)
	if result.Error != nil {
		return nil, result.Error
	}
	if result.RowsAffected == 0 {
		return nil, ErrRedemptionReviewed
	}

	metrics.RedemptionsTotal.WithLabelValues(string(reviewed)).Inc()
	return s.Get(ctx, id)
}

// newVoucherCode 生成核销凭证码
func newVoucherCode() string {
	return "RED-" + strings.ToUpper(strings.ReplaceAll(uuid.New().String(), "-", "")[:12])
}
