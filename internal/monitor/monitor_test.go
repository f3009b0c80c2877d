package monitor

import (
	"testing"

	"signalflow/internal/consts"
	"signalflow/internal/model"
)

func openLong(entry, tp, sl float64) *model.Position {
	return &model.Position{
		OrderID:         1,
		Symbol:          "BTC/USDT",
		Side:            model.Buy,
		EntryPrice:      entry,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		Status:          model.PositionOpen,
	}
}

func openShort(entry, tp, sl float64) *model.Position {
	return &model.Position{
		OrderID:         2,
		Symbol:          "BTC/USDT",
		Side:            model.Sell,
		EntryPrice:      entry,
		TakeProfitPrice: tp,
		StopLossPrice:   sl,
		Status:          model.PositionOpen,
	}
}

func TestCloseReason(t *testing.T) {
	cases := []struct {
		name      string
		pos       *model.Position
		price     float64
		want      string
		triggered bool
	}{
		{"long in range", openLong(45000, 46350, 36900), 45100, "", false},
		{"long take profit", openLong(45000, 46350, 36900), 46500, consts.CloseReasonTakeProfit, true},
		{"long stop loss", openLong(45000, 46350, 36900), 36000, consts.CloseReasonStopLoss, true},
		{"short take profit", openShort(45000, 43650, 53100), 43000, consts.CloseReasonTakeProfit, true},
		{"short stop loss", openShort(45000, 43650, 53100), 54000, consts.CloseReasonStopLoss, true},
		{"threshold exactly hit", openLong(45000, 46350, 36900), 46350, consts.CloseReasonTakeProfit, true},
		// 阈值未设置的一侧永不触发
		{"no sl configured", openLong(45000, 46350, 0), 100, "", false},
		{"no tp configured", openLong(45000, 0, 36900), 99999, "", false},
	}
	for _, c := range cases {
		reason, triggered := closeReason(c.pos, c.price)
		if triggered != c.triggered || reason != c.want {
			t.Errorf("%s: closeReason(price=%v) = (%q, %v), want (%q, %v)",
				c.name, c.price, reason, triggered, c.want, c.triggered)
		}
	}
}

// 两个阈值同时满足时必须按止损处理，不能报成止盈
func TestCloseReasonStopLossWins(t *testing.T) {
	// 缺口行情：开盘直接跳过两个阈值之间的区间
	pos := openLong(45000, 45200, 45500)
	reason, triggered := closeReason(pos, 45300)
	if !triggered {
		t.Fatal("price inside both thresholds must trigger")
	}
	if reason != consts.CloseReasonStopLoss {
		t.Errorf("reason = %q, want stop loss to take precedence", reason)
	}
}
