package model

/*
来源于外部数据

	{
	  "id": "tv-20250901-0001",
	  "source": "tradingview",
	  "symbol": "BTCUSDT",
	  "timeframe": "15m",
	  "timestamp": 1756700000,
	  "close": 45123.45,
	  "indicators": {
	    "ema9": 44987.12,
	    "rsi_fast": 68,
	    "rsi_slow": 70,
	    "momentum": 0.02,
	    "crossed_above_ema9": 1,
	    "fear_greed": 55,
	    "dominance_diff": 0.5
	  }
	}
*/
type WebhookRequest struct {
	ID        string  `json:"id" binding:"required"` // 信号指纹，全管道去重键
	Source    string  `json:"source"`
	Symbol    string  `json:"symbol" binding:"required"`
	Timeframe string  `json:"timeframe"`
	Timestamp int64   `json:"timestamp"` // 信号源自带时间戳，仅记录，不参与时效判断
	Close     float64 `json:"close" binding:"required,gt=0"`
	// 指标和K线至少给一个：指标齐全直接用，
	// 只有K线时服务端现算指标兜底
	Indicators map[string]any `json:"indicators"`
	Klines     []Kline        `json:"klines"`
}
