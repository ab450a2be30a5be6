package model

// FlowCompletedMessage 认证流程进入终态后投递的事件
type FlowCompletedMessage struct {
	MessageID    string `json:"message_id"` // 消息唯一ID，用于幂等性检查
	FlowID       string `json:"flow_id"`
	Outcome      string `json:"outcome"`
	EmailHash    string `json:"email_hash,omitempty"`
	ReferralCode string `json:"referral_code,omitempty"`
	OccurredAt   string `json:"occurred_at"` // RFC3339
	// 欢迎短信用，只在注册且填写了手机号时携带
	Phone     string `json:"phone,omitempty"`
	FirstName string `json:"first_name,omitempty"`
}
