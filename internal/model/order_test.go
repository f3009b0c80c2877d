package model

import "testing"

func TestOrderStateTransitions(t *testing.T) {
	allowed := []struct {
		from, to OrderState
	}{
		{OrderPending, OrderSubmitted},
		{OrderPending, OrderRejected},
		{OrderSubmitted, OrderFilled},
		{OrderSubmitted, OrderRejected},
		{OrderSubmitted, OrderCancelled},
		{OrderFilled, OrderClosed},
	}
	for _, c := range allowed {
		if !c.from.CanTransition(c.to) {
			t.Errorf("%s -> %s should be allowed", c.from, c.to)
		}
	}

	forbidden := []struct {
		from, to OrderState
	}{
		{OrderPending, OrderFilled}, // 不能跳过SUBMITTED
		{OrderPending, OrderClosed},
		{OrderFilled, OrderRejected}, // 成交后不能回退
		{OrderFilled, OrderCancelled},
		{OrderRejected, OrderSubmitted}, // 终态不能复活
		{OrderCancelled, OrderFilled},
		{OrderClosed, OrderFilled},
		{OrderSubmitted, OrderPending},
	}
	for _, c := range forbidden {
		if c.from.CanTransition(c.to) {
			t.Errorf("%s -> %s must be forbidden", c.from, c.to)
		}
	}
}

func TestOrderStateTerminal(t *testing.T) {
	terminals := []OrderState{OrderRejected, OrderCancelled, OrderClosed}
	for _, s := range terminals {
		if !s.Terminal() {
			t.Errorf("%s should be terminal", s)
		}
	}
	for _, s := range []OrderState{OrderPending, OrderSubmitted, OrderFilled} {
		if s.Terminal() {
			t.Errorf("%s should not be terminal", s)
		}
	}
}

func TestPositionBreachLong(t *testing.T) {
	p := &Position{
		Side:            Buy,
		EntryPrice:      100,
		TakeProfitPrice: 103,
		StopLossPrice:   82,
	}
	if p.TPBreached(102.99) || p.SLBreached(82.01) {
		t.Error("price inside the band must not trigger")
	}
	if !p.TPBreached(103) {
		t.Error("tp must trigger at exact threshold")
	}
	if !p.SLBreached(82) {
		t.Error("sl must trigger at exact threshold")
	}
	if !p.TPBreached(110) || !p.SLBreached(70) {
		t.Error("prices beyond thresholds must trigger")
	}
}

func TestPositionBreachShort(t *testing.T) {
	p := &Position{
		Side:            Sell,
		EntryPrice:      100,
		TakeProfitPrice: 97,
		StopLossPrice:   118,
	}
	if !p.TPBreached(96) {
		t.Error("short tp triggers when price falls below threshold")
	}
	if !p.SLBreached(119) {
		t.Error("short sl triggers when price rises above threshold")
	}
	if p.TPBreached(98) || p.SLBreached(117) {
		t.Error("price inside the band must not trigger")
	}
}

// 缺口行情下两个阈值可能同时满足，两个谓词各自为真，
// 先查SL的约定由调用方保证
func TestPositionBreachGap(t *testing.T) {
	wild := &Position{Side: Buy, TakeProfitPrice: 90, StopLossPrice: 95}
	if !wild.TPBreached(92) {
		t.Error("tp breached in gap scenario")
	}
	if !wild.SLBreached(92) {
		t.Error("sl breached in gap scenario")
	}

	// 未设置阈值时永不触发
	bare := &Position{Side: Buy}
	if bare.TPBreached(1e9) || bare.SLBreached(0.0001) {
		t.Error("zero thresholds must never trigger")
	}
}
