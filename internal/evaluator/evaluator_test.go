package evaluator

import (
	"strings"
	"testing"

	"signalflow/conf"
	"signalflow/internal/model"
)

func testConfig() conf.RiskConfig {
	return conf.RiskConfig{
		MaxLeverage:      10,
		DefaultLeverage:  6,
		SizeFraction:     0.3,
		ATRPctFloor:      0.1,
		VolumeRatioFloor: 0.5,
	}
}

// 满足全部做多条件的快照
func longSnapshot() model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		model.KeyClose:        45123.45,
		model.KeyEMAFast:      44900.00, // emaDiff约+0.498%，高于0.3%门槛
		model.KeyRSIFast:      68,
		model.KeyRSISlow:      70,
		model.KeyMomentum:     0.02,
		model.KeyCrossedAbove: 1,
	}
}

func shortSnapshot() model.IndicatorSnapshot {
	return model.IndicatorSnapshot{
		model.KeyClose:        45123.45,
		model.KeyEMAFast:      45350.00, // emaDiff约-0.5%
		model.KeyRSIFast:      42,
		model.KeyRSISlow:      45,
		model.KeyMomentum:     -0.015,
		model.KeyCrossedBelow: 1,
	}
}

func TestEvaluateLongEntry(t *testing.T) {
	e := New(testConfig())
	ev := e.Evaluate(Input{
		Snapshot:    longSnapshot(),
		Market:      model.MarketContext{FearGreed: 55},
		ATRPct:      0.4,
		VolumeRatio: 1.2,
	})

	if ev.Decision != model.DecisionLong {
		t.Fatalf("expected long, got %s (%s)", ev.Decision, ev.Reason)
	}
	if ev.Leverage != 6 {
		t.Errorf("expected default leverage 6, got %d", ev.Leverage)
	}
	if ev.TakeProfitPct != 3.0 {
		t.Errorf("expected tp 3.0 (0.5x6), got %v", ev.TakeProfitPct)
	}
	if ev.StopLossPct != 18.0 {
		t.Errorf("expected sl 18.0 (3x default 6), got %v", ev.StopLossPct)
	}
	if ev.SizeFraction != 0.3 {
		t.Errorf("expected size fraction 0.3, got %v", ev.SizeFraction)
	}
}

func TestEvaluateShortEntry(t *testing.T) {
	e := New(testConfig())
	ev := e.Evaluate(Input{
		Snapshot:    shortSnapshot(),
		Market:      model.MarketContext{FearGreed: 55},
		ATRPct:      0.4,
		VolumeRatio: 1.2,
	})
	if ev.Decision != model.DecisionShort {
		t.Fatalf("expected short, got %s (%s)", ev.Decision, ev.Reason)
	}
}

// 止损不随杠杆变化，止盈随杠杆缩放
func TestEvaluateLeveragePolicy(t *testing.T) {
	e := New(testConfig())
	base := Input{
		Snapshot:    longSnapshot(),
		Market:      model.MarketContext{FearGreed: 55},
		ATRPct:      0.4,
		VolumeRatio: 1.2,
	}

	base.RequestedLeverage = 8
	ev := e.Evaluate(base)
	if ev.Leverage != 8 || ev.TakeProfitPct != 4.0 {
		t.Errorf("requested 8: got leverage %d tp %v, want 8 / 4.0", ev.Leverage, ev.TakeProfitPct)
	}
	if ev.StopLossPct != 18.0 {
		t.Errorf("sl must stay 18.0 regardless of leverage, got %v", ev.StopLossPct)
	}

	base.RequestedLeverage = 20 // 超过上限，截断到10
	ev = e.Evaluate(base)
	if ev.Leverage != 10 || ev.TakeProfitPct != 5.0 {
		t.Errorf("requested 20: got leverage %d tp %v, want 10 / 5.0", ev.Leverage, ev.TakeProfitPct)
	}
}

func TestEvaluateVetoes(t *testing.T) {
	e := New(testConfig())
	good := Input{
		Snapshot:    longSnapshot(),
		Market:      model.MarketContext{FearGreed: 55},
		ATRPct:      0.4,
		VolumeRatio: 1.2,
	}

	lowVol := good
	lowVol.ATRPct = 0.05
	if ev := e.Evaluate(lowVol); ev.Decision != model.DecisionNone {
		t.Errorf("low volatility must veto, got %s", ev.Decision)
	} else if ev.Code != CodeLowVolatility {
		t.Errorf("code = %q, want %q", ev.Code, CodeLowVolatility)
	} else if !strings.Contains(ev.Reason, "volatility") {
		t.Errorf("unexpected veto reason: %s", ev.Reason)
	}

	thin := good
	thin.VolumeRatio = 0.4
	if ev := e.Evaluate(thin); ev.Decision != model.DecisionNone {
		t.Errorf("thin liquidity must veto, got %s", ev.Decision)
	} else if ev.Code != CodeLowLiquidity {
		t.Errorf("code = %q, want %q", ev.Code, CodeLowLiquidity)
	}

	// 0值表示指标未知，不触发否决
	unknown := good
	unknown.ATRPct = 0
	unknown.VolumeRatio = 0
	if ev := e.Evaluate(unknown); ev.Decision != model.DecisionLong {
		t.Errorf("unknown atr/volume must not veto, got %s (%s)", ev.Decision, ev.Reason)
	}
}

func TestEvaluateEntryGates(t *testing.T) {
	e := New(testConfig())
	mkt := model.MarketContext{FearGreed: 55}

	// 贪婪过头：fg >= 75 不做多
	greedy := Input{Snapshot: longSnapshot(), Market: model.MarketContext{FearGreed: 76}, ATRPct: 0.4, VolumeRatio: 1.2}
	if ev := e.Evaluate(greedy); ev.Decision != model.DecisionNone {
		t.Errorf("fg 76 must block long, got %s", ev.Decision)
	} else if ev.Code != CodeNoEntry {
		t.Errorf("code = %q, want %q", ev.Code, CodeNoEntry)
	}

	// 没有上穿确认不做多
	noCross := longSnapshot()
	noCross[model.KeyCrossedAbove] = 0
	if ev := e.Evaluate(Input{Snapshot: noCross, Market: mkt, ATRPct: 0.4, VolumeRatio: 1.2}); ev.Decision != model.DecisionNone {
		t.Errorf("missing cross must block long, got %s", ev.Decision)
	}

	// RSI过热不做多
	hot := longSnapshot()
	hot[model.KeyRSIFast] = 80
	if ev := e.Evaluate(Input{Snapshot: hot, Market: mkt, ATRPct: 0.4, VolumeRatio: 1.2}); ev.Decision != model.DecisionNone {
		t.Errorf("rsi 80 must block long, got %s", ev.Decision)
	}

	// 偏离不足不做多
	flat := longSnapshot()
	flat[model.KeyEMAFast] = 45100.00 // emaDiff约+0.05%
	if ev := e.Evaluate(Input{Snapshot: flat, Market: mkt, ATRPct: 0.4, VolumeRatio: 1.2}); ev.Decision != model.DecisionNone {
		t.Errorf("flat emaDiff must block long, got %s", ev.Decision)
	}

	// 动量为负不做多
	fading := longSnapshot()
	fading[model.KeyMomentum] = -0.01
	if ev := e.Evaluate(Input{Snapshot: fading, Market: mkt, ATRPct: 0.4, VolumeRatio: 1.2}); ev.Decision != model.DecisionNone {
		t.Errorf("negative momentum must block long, got %s", ev.Decision)
	}
}
