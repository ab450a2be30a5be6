package repository

import (
	"context"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"atlaswd/internal/model"
)

// FlowRepository 认证流程完成记录与推荐归属
type FlowRepository struct {
	db *gorm.DB
}

func NewFlowRepository(db *gorm.DB) *FlowRepository {
	return &FlowRepository{db: db}
}

// RecordCompletion message_id 已存在时返回 false
func (r *FlowRepository) RecordCompletion(ctx context.Context, c *model.FlowCompletion) (bool, error) {
	res := insertOnce(r.db.WithContext(ctx), "message_id", c)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert flow completion: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// AttributeReferral 同一邮箱只记录第一次推荐归属，已存在时返回 false
func (r *FlowRepository) AttributeReferral(ctx context.Context, a *model.ReferralAttribution) (bool, error) {
	res := insertOnce(r.db.WithContext(ctx), "email_hash", a)
	if res.Error != nil {
		return false, fmt.Errorf("failed to insert referral attribution: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// insertOnce INSERT ... ON CONFLICT (column) DO NOTHING，先写入者生效
func insertOnce(db *gorm.DB, column string, value any) *gorm.DB {
	return db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: column}},
		DoNothing: true,
	}).Create(value)
}

// CountReferrals 某个推荐码带来的注册数，读请求在配置副本时走副本
func (r *FlowRepository) CountReferrals(ctx context.Context, code string) (int64, error) {
	var n int64
	err := r.db.WithContext(ctx).
		Model(&model.ReferralAttribution{}).
		Where("referral_code = ?", code).
		Count(&n).Error
	if err != nil {
		return 0, fmt.Errorf("failed to count referrals: %w", err)
	}
	return n, nil
}
