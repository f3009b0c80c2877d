package model

import "time"

// RiskProfile 每个用户的风控配置。余额由外部账务服务维护，
// 管道侧只在决策时读取一致快照。
type RiskProfile struct {
	UserID              int64     `gorm:"column:user_id;primary_key" json:"user_id"`
	Exchange            string    `gorm:"column:exchange" json:"exchange"`
	Balance             float64   `gorm:"column:balance;type:decimal(20,8)" json:"balance"`
	MaxConcurrentOps    int       `gorm:"column:max_concurrent_ops" json:"max_concurrent_ops"`
	MaxPositionFraction float64   `gorm:"column:max_position_fraction" json:"max_position_fraction"`
	RequestedLeverage   int       `gorm:"column:requested_leverage" json:"requested_leverage"`
	Active              bool      `gorm:"column:active" json:"active"`
	DeviceToken         string    `gorm:"column:device_token" json:"-"` // APNs推送用，可为空
	UpdatedAt           time.Time `gorm:"column:updated_at" json:"updated_at"`
}

func (RiskProfile) TableName() string { return "risk_profiles" }
