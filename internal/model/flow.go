package model

import "time"

// FlowCompletion 每条 auth.flow.completed 消息落一行，message_id 唯一保证幂等
type FlowCompletion struct {
	OccurredAt   time.Time `gorm:"not null" json:"occurred_at"`
	MessageID    string    `gorm:"type:varchar(32);not null;uniqueIndex" json:"message_id"`
	FlowID       string    `gorm:"type:varchar(64);not null;index" json:"flow_id"`
	Outcome      string    `gorm:"type:varchar(32);not null;index" json:"outcome"`
	EmailHash    string    `gorm:"type:char(64);index" json:"email_hash,omitempty"`
	ReferralCode string    `gorm:"type:varchar(64)" json:"referral_code,omitempty"`
	BaseModel
}

func (FlowCompletion) TableName() string {
	return "flow_completions"
}

// ReferralAttribution 带推荐码完成注册的账号，同一邮箱只归属第一次
type ReferralAttribution struct {
	RegisteredAt time.Time `gorm:"not null" json:"registered_at"`
	EmailHash    string    `gorm:"type:char(64);not null;uniqueIndex" json:"email_hash"`
	ReferralCode string    `gorm:"type:varchar(64);not null;index" json:"referral_code"`
	FlowID       string    `gorm:"type:varchar(64);not null" json:"flow_id"`
	MessageID    string    `gorm:"type:varchar(32);not null" json:"message_id"`
	BaseModel
}

func (ReferralAttribution) TableName() string {
	return "referral_attributions"
}
