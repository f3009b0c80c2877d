package filter

import (
	"fmt"
	"time"

	"signalflow/conf"
	"signalflow/internal/model"
)

// 无状态的信号过滤谓词。全部是纯函数，不产生副作用，
// 持久化和入队发生在所有过滤器通过之后。

// WithinTimeWindow 信号是否还在时效窗口内（闭区间，恰好等于窗口也算通过）。
// 用服务端的接收时间判断，不信任信号内嵌时间戳，防止伪造。
func WithinTimeWindow(receivedAt time.Time, windowMinutes int, now time.Time) bool {
	return now.Sub(receivedAt) <= time.Duration(windowMinutes)*time.Minute
}

// FearGreedInRange 恐惧贪婪指数是否在[min, max]区间内（闭区间）
func FearGreedInRange(value, min, max float64) bool {
	return value >= min && value <= max
}

// DominanceDivergenceAboveThreshold 主导率偏离绝对值是否达到阈值，
// 低于阈值的视为噪音
func DominanceDivergenceAboveThreshold(diff, threshold float64) bool {
	if diff < 0 {
		diff = -diff
	}
	return diff >= threshold
}

// 拦下信号的过滤器枚举，喂给metrics的label用，
// 动态的拒绝详情只进日志和响应
const (
	CodeStale     = "stale"
	CodeFearGreed = "fear-greed"
	CodeDominance = "dominance"
)

// Result 过滤结论。Pass为false时Code标识哪个过滤器拦下，
// Reason带具体数值
type Result struct {
	Pass   bool
	Code   string
	Reason string
}

func pass() Result { return Result{Pass: true} }

func reject(code, format string, args ...any) Result {
	return Result{Code: code, Reason: fmt.Sprintf(format, args...)}
}

// Chain 按配置组合所有激活的过滤器，信号必须全部通过
type Chain struct {
	cfg conf.FilterConfig
}

func NewChain(cfg conf.FilterConfig) *Chain {
	return &Chain{cfg: cfg}
}

// Evaluate 对一条原始信号跑完整的过滤链
func (c *Chain) Evaluate(sig *model.RawSignal, mkt model.MarketContext, now time.Time) Result {
	if !WithinTimeWindow(sig.ReceivedAt, c.cfg.WindowMinutes, now) {
		return reject(CodeStale, "signal stale: received %s ago, window %dm",
			now.Sub(sig.ReceivedAt).Truncate(time.Second), c.cfg.WindowMinutes)
	}
	if !FearGreedInRange(mkt.FearGreed, c.cfg.FearGreedMin, c.cfg.FearGreedMax) {
		return reject(CodeFearGreed, "fear&greed %.0f outside [%.0f, %.0f]",
			mkt.FearGreed, c.cfg.FearGreedMin, c.cfg.FearGreedMax)
	}
	if !DominanceDivergenceAboveThreshold(mkt.DominanceDiff, c.cfg.DominanceThreshold) {
		return reject(CodeDominance, "dominance divergence %.3f below threshold %.3f",
			mkt.DominanceDiff, c.cfg.DominanceThreshold)
	}
	return pass()
}
