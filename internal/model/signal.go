package model

import (
	"fmt"
	"time"

	"github.com/goccy/go-json"
	"github.com/spf13/cast"
)

// 指标快照：入站信号携带的命名指标值。
// 统一转成float64，布尔型字段（如ema上穿）用0/1表示。
type IndicatorSnapshot map[string]float64

// 入站快照的必备键，缺失则在入口处直接拒绝，
// 避免undefined一路传进计算
var RequiredIndicatorKeys = []string{
	KeyClose, KeyEMAFast, KeyRSIFast, KeyRSISlow, KeyMomentum,
}

const (
	KeyClose          = "close"
	KeyEMAFast        = "ema9"
	KeyEMADiffPct     = "ema_diff_pct"
	KeyRSIFast        = "rsi_fast"
	KeyRSISlow        = "rsi_slow"
	KeyMomentum       = "momentum"
	KeyCrossedAbove   = "crossed_above_ema9"
	KeyCrossedBelow   = "crossed_below_ema9"
	KeyFearGreed      = "fear_greed"
	KeyDominanceDiff  = "dominance_diff"
	KeyATRPct         = "atr_pct"
	KeyVolumeRatio    = "volume_ratio"
	KeyRequestedLever = "leverage"
)

// ParseIndicatorSnapshot 把来自webhook的松散map转换为快照。
// 来源可能把数值编码为字符串，这里统一用cast兜底。
func ParseIndicatorSnapshot(raw map[string]any) (IndicatorSnapshot, error) {
	snap := make(IndicatorSnapshot, len(raw))
	for k, v := range raw {
		f, err := cast.ToFloat64E(v)
		if err != nil {
			return nil, fmt.Errorf("indicator %q is not numeric: %v", k, v)
		}
		snap[k] = f
	}
	for _, key := range RequiredIndicatorKeys {
		if _, ok := snap[key]; !ok {
			return nil, fmt.Errorf("missing required indicator %q", key)
		}
	}
	return snap, nil
}

func (s IndicatorSnapshot) Get(key string) float64 { return s[key] }

func (s IndicatorSnapshot) Has(key string) bool {
	_, ok := s[key]
	return ok
}

// GetOr 取值，不存在时返回默认值
func (s IndicatorSnapshot) GetOr(key string, def float64) float64 {
	if v, ok := s[key]; ok {
		return v
	}
	return def
}

func (s IndicatorSnapshot) Bool(key string) bool { return s[key] != 0 }

// EMADiffPct 优先使用快照里的值，没有则用close和ema9现算（百分比）
func (s IndicatorSnapshot) EMADiffPct() float64 {
	if v, ok := s[KeyEMADiffPct]; ok {
		return v
	}
	ema := s[KeyEMAFast]
	if ema == 0 {
		return 0
	}
	return (s[KeyClose] - ema) / ema * 100
}

// RawSignal 入站原始信号，落库后不再变更，保留用于审计和重放。
// ID即信号指纹，来自信号源，是全管道的去重键。
type RawSignal struct {
	ID         string    `gorm:"column:id;primary_key" json:"id"`
	Source     string    `gorm:"column:source" json:"source"`
	Symbol     string    `gorm:"column:symbol" json:"symbol"`
	Timeframe  string    `gorm:"column:timeframe" json:"timeframe"`
	ReceivedAt time.Time `gorm:"column:received_at" json:"received_at"` // 服务端收到时间，不信任信号内嵌时间戳
	Indicators string    `gorm:"column:indicators_json;type:json" json:"indicators_json"`
	RawPayload string    `gorm:"column:raw_payload;type:text" json:"raw_payload"`
}

func (RawSignal) TableName() string { return "raw_signals" }

// Snapshot 反序列化指标快照
func (r *RawSignal) Snapshot() (IndicatorSnapshot, error) {
	var snap IndicatorSnapshot
	if err := json.Unmarshal([]byte(r.Indicators), &snap); err != nil {
		return nil, err
	}
	return snap, nil
}

func (r *RawSignal) SetSnapshot(snap IndicatorSnapshot) error {
	data, err := json.Marshal(snap)
	if err != nil {
		return err
	}
	r.Indicators = string(data)
	return nil
}

// Decision 方向决策
type Decision string

const (
	DecisionLong  Decision = "long"
	DecisionShort Decision = "short"
	DecisionNone  Decision = "none"
)

// FilteredSignal 由入口的过滤+评估阶段产生，一个RawSignal按用户绑定扇出。
// 不变式：decision != none 时所有进场条件都已通过。
type FilteredSignal struct {
	ID            int64     `gorm:"column:id;primary_key" json:"id"` // snowflake
	RawSignalID   string    `gorm:"column:raw_signal_id;index" json:"raw_signal_id"`
	UserID        int64     `gorm:"column:user_id;index" json:"user_id"`
	Symbol        string    `gorm:"column:symbol" json:"symbol"`
	Decision      Decision  `gorm:"column:decision" json:"decision"`
	Reason        string    `gorm:"column:reason" json:"reason"`
	EntryPrice    float64   `gorm:"column:entry_price;type:decimal(20,8)" json:"entry_price"`
	TakeProfitPct float64   `gorm:"column:take_profit_pct" json:"take_profit_pct"`
	StopLossPct   float64   `gorm:"column:stop_loss_pct" json:"stop_loss_pct"`
	SizeFraction  float64   `gorm:"column:size_fraction" json:"size_fraction"`
	Leverage      int       `gorm:"column:leverage" json:"leverage"`
	FilteredAt    time.Time `gorm:"column:filtered_at" json:"filtered_at"`
}

func (FilteredSignal) TableName() string { return "filtered_signals" }

// QueueMessage 信号队列上的消息体，只带id，消费端按id回表取全量记录
type QueueMessage struct {
	FilteredSignalID int64 `json:"filtered_signal_id"`
}

func (m QueueMessage) Encode() []byte {
	data, _ := json.Marshal(m)
	return data
}

func DecodeQueueMessage(data []byte) (QueueMessage, error) {
	var m QueueMessage
	err := json.Unmarshal(data, &m)
	return m, err
}
