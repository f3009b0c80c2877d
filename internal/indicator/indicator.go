package indicator

import (
	"github.com/markcheno/go-talib"

	"signalflow/internal/model"
)

// 纯函数指标库，无状态。底层计算交给go-talib，
// 这里只做长度保护和最新值提取。

// RSI 返回最新的RSI值，数据不足时返回0
func RSI(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	vals := talib.Rsi(closes, period)
	return vals[len(vals)-1]
}

// EMA 返回最新的EMA值
func EMA(closes []float64, period int) float64 {
	if len(closes) < period {
		return 0
	}
	vals := talib.Ema(closes, period)
	return vals[len(vals)-1]
}

// EMASeries 返回完整EMA序列，供交叉判断使用
func EMASeries(closes []float64, period int) []float64 {
	if len(closes) < period {
		return nil
	}
	return talib.Ema(closes, period)
}

// ATRPct 最新ATR占最新收盘价的百分比，衡量波动率
func ATRPct(highs, lows, closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	last := closes[len(closes)-1]
	if last == 0 {
		return 0
	}
	vals := talib.Atr(highs, lows, closes, period)
	return vals[len(vals)-1] / last * 100
}

// Momentum 最新动量值（当前收盘与period根之前的差）
func Momentum(closes []float64, period int) float64 {
	if len(closes) <= period {
		return 0
	}
	vals := talib.Mom(closes, period)
	return vals[len(vals)-1]
}

// EMADiffPct 收盘价相对EMA的偏离百分比
func EMADiffPct(close, ema float64) float64 {
	if ema == 0 {
		return 0
	}
	return (close - ema) / ema * 100
}

// CrossedAbove 最近一根K线是否从下方上穿EMA
func CrossedAbove(closes, emas []float64) bool {
	n := len(closes)
	if n < 2 || len(emas) < 2 || len(emas) != n {
		return false
	}
	return closes[n-2] <= emas[n-2] && closes[n-1] > emas[n-1]
}

// CrossedBelow 最近一根K线是否从上方下穿EMA
func CrossedBelow(closes, emas []float64) bool {
	n := len(closes)
	if n < 2 || len(emas) < 2 || len(emas) != n {
		return false
	}
	return closes[n-2] >= emas[n-2] && closes[n-1] < emas[n-1]
}

// VolumeRatio 最新成交量相对近period根均量的倍数，衡量流动性
func VolumeRatio(vols []float64, period int) float64 {
	n := len(vols)
	if n <= period || period <= 0 {
		return 0
	}
	var sum float64
	for _, v := range vols[n-1-period : n-1] {
		sum += v
	}
	avg := sum / float64(period)
	if avg == 0 {
		return 0
	}
	return vols[n-1] / avg
}

// FromKlines 从K线序列现算一份指标快照，用于信号源没有
// 自带指标时的兜底路径
func FromKlines(klines []model.Kline) model.IndicatorSnapshot {
	closes := make([]float64, len(klines))
	highs := make([]float64, len(klines))
	lows := make([]float64, len(klines))
	vols := make([]float64, len(klines))
	for i, k := range klines {
		closes[i] = k.Close
		highs[i] = k.High
		lows[i] = k.Low
		vols[i] = k.Vol
	}

	snap := make(model.IndicatorSnapshot)
	if len(closes) == 0 {
		return snap
	}
	close := closes[len(closes)-1]
	ema9s := EMASeries(closes, 9)
	var ema9 float64
	if len(ema9s) > 0 {
		ema9 = ema9s[len(ema9s)-1]
	}

	snap[model.KeyClose] = close
	snap[model.KeyEMAFast] = ema9
	snap[model.KeyEMADiffPct] = EMADiffPct(close, ema9)
	snap[model.KeyRSIFast] = RSI(closes, 6)
	snap[model.KeyRSISlow] = RSI(closes, 12)
	snap[model.KeyMomentum] = Momentum(closes, 10)
	snap[model.KeyATRPct] = ATRPct(highs, lows, closes, 14)
	snap[model.KeyVolumeRatio] = VolumeRatio(vols, 20)
	if CrossedAbove(closes, ema9s) {
		snap[model.KeyCrossedAbove] = 1
	}
	if CrossedBelow(closes, ema9s) {
		snap[model.KeyCrossedBelow] = 1
	}
	return snap
}
