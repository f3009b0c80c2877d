package consts

import "time"

const (
	// RequestId 请求id名称
	RequestId = "request_id"
	UserID    = "user_id"

	// webhook共享密钥的请求头和query参数名
	WebhookTokenHeader = "X-Token"
	WebhookTokenQuery  = "token"
	WebhookSignHeader  = "X-Signature"

	// redis key前缀
	SignalDedupPrefix   = "signal:dedup:"
	MarketFearGreedKey  = "market:feargreed"
	MarketDominanceKey  = "market:dominance"
	DeviceTokenPrefix   = "user:device:"
	SignalDedupExpiry   = time.Hour * 24
	MarketCacheFallback = time.Minute * 5

	DateLayout = "2006-01-02"
	TimeLayout = "2006-01-02 15:04:05"
)

// 平仓原因
const (
	CloseReasonTakeProfit = "tp-hit"
	CloseReasonStopLoss   = "sl-hit"
	CloseReasonManual     = "manual"
)
