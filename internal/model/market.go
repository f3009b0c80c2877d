package model

import "time"

type Kline struct {
	Timestamp time.Time `json:"time"`
	Open      float64   `json:"open"`
	Close     float64   `json:"close"`
	High      float64   `json:"high"`
	Low       float64   `json:"low"`
	Vol       float64   `json:"vol"` // 成交量 以币为单位
}

// MarketContext 决策时刻的市场环境快照
type MarketContext struct {
	FearGreed     float64   // 恐惧贪婪指数 0~100
	DominanceDiff float64   // BTC主导率相对短期均值的偏离
	FetchedAt     time.Time
}
