package evaluator

import (
	"fmt"

	"signalflow/conf"
	"signalflow/internal/model"
)

// 进场评估器：把指标快照和市场环境合成方向决策与数值策略。
// 给定相同输入输出完全确定，方便回测和单测。

type Input struct {
	Snapshot    model.IndicatorSnapshot
	Market      model.MarketContext
	ATRPct      float64 // 波动率（百分比），0表示未知
	VolumeRatio float64 // 流动性（最新量/均量），0表示未知
	// 用户请求的杠杆倍数，0表示使用默认值
	RequestedLeverage int
}

// 无操作决策的原因枚举，喂给metrics的label用
const (
	CodeLowVolatility = "volatility"
	CodeLowLiquidity  = "liquidity"
	CodeNoEntry       = "no-entry"
)

type Evaluation struct {
	Decision      model.Decision
	Code          string // Decision为none时的原因枚举
	Reason        string
	Leverage      int
	TakeProfitPct float64
	StopLossPct   float64
	SizeFraction  float64
}

type Evaluator struct {
	cfg conf.RiskConfig
}

func New(cfg conf.RiskConfig) *Evaluator {
	return &Evaluator{cfg: cfg}
}

// 进场条件阈值
const (
	longFearGreedMax  = 75.0
	shortFearGreedMin = 30.0
	emaDiffPctGate    = 0.3
	longRSICeiling    = 75.0
	shortRSIFloor     = 35.0
)

// Evaluate 先跑一票否决项，再按多空条件给出方向。
// 任何一项不满足都返回 none，不抛错误（无交易不是异常）。
func (e *Evaluator) Evaluate(in Input) Evaluation {
	none := func(code, format string, args ...any) Evaluation {
		return Evaluation{Decision: model.DecisionNone, Code: code, Reason: fmt.Sprintf(format, args...)}
	}

	// 否决项，短路返回
	if in.ATRPct > 0 && in.ATRPct < e.cfg.ATRPctFloor {
		return none(CodeLowVolatility, "volatility too low: atr %.3f%% < floor %.3f%%", in.ATRPct, e.cfg.ATRPctFloor)
	}
	if in.VolumeRatio > 0 && in.VolumeRatio < e.cfg.VolumeRatioFloor {
		return none(CodeLowLiquidity, "liquidity too low: volume ratio %.2f < floor %.2f", in.VolumeRatio, e.cfg.VolumeRatioFloor)
	}

	snap := in.Snapshot
	fearGreed := in.Market.FearGreed
	emaDiff := snap.EMADiffPct()
	rsiFast := snap.Get(model.KeyRSIFast)
	rsiSlow := snap.Get(model.KeyRSISlow)
	momentum := snap.Get(model.KeyMomentum)

	switch {
	case fearGreed < longFearGreedMax &&
		emaDiff > emaDiffPctGate &&
		snap.Bool(model.KeyCrossedAbove) &&
		rsiFast < longRSICeiling && rsiSlow < longRSICeiling &&
		momentum > 0:
		return e.sized(model.DecisionLong, in.RequestedLeverage,
			fmt.Sprintf("long: emaDiff=%.3f%% rsi=(%.0f,%.0f) momentum=%.4f fg=%.0f",
				emaDiff, rsiFast, rsiSlow, momentum, fearGreed))

	case fearGreed > shortFearGreedMin &&
		emaDiff < -emaDiffPctGate &&
		snap.Bool(model.KeyCrossedBelow) &&
		rsiFast > shortRSIFloor && rsiSlow > shortRSIFloor &&
		momentum < 0:
		return e.sized(model.DecisionShort, in.RequestedLeverage,
			fmt.Sprintf("short: emaDiff=%.3f%% rsi=(%.0f,%.0f) momentum=%.4f fg=%.0f",
				emaDiff, rsiFast, rsiSlow, momentum, fearGreed))
	}

	return none(CodeNoEntry, "no entry condition met: emaDiff=%.3f%% fg=%.0f", emaDiff, fearGreed)
}

// sized 填充数值策略。
// 止盈随杠杆缩放（0.5×lev），止损固定为3×默认杠杆，与实际杠杆无关。
func (e *Evaluator) sized(decision model.Decision, requestedLeverage int, reason string) Evaluation {
	leverage := requestedLeverage
	if leverage <= 0 {
		leverage = e.cfg.DefaultLeverage
	}
	if leverage > e.cfg.MaxLeverage {
		leverage = e.cfg.MaxLeverage
	}
	return Evaluation{
		Decision:      decision,
		Reason:        reason,
		Leverage:      leverage,
		TakeProfitPct: 0.5 * float64(leverage),
		StopLossPct:   3 * float64(e.cfg.DefaultLeverage),
		SizeFraction:  e.cfg.SizeFraction,
	}
}
