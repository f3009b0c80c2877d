package monitor

import (
	"context"
	"time"

	"signalflow/conf"
	"signalflow/internal/consts"
	"signalflow/internal/dao"
	"signalflow/internal/exchange"
	"signalflow/internal/executor"
	"signalflow/internal/model"
	"signalflow/pkg/logger"
	"signalflow/pkg/metrics"
)

// PriceListener 每次取到最新价回调一次，给行情广播用
type PriceListener func(symbol string, price float64)

// Monitor 仓位监控。定时扫描所有open仓位，
// 同一交易所同一交易对只取一次最新价。
type Monitor struct {
	cfg       conf.MonitorConfig
	positions *dao.PositionDao
	orders    *dao.OrderDao
	exchanges map[string]exchange.Exchange
	exec      *executor.Executor
	rec       *metrics.Recorder
	listeners []PriceListener
}

func NewMonitor(
	cfg conf.MonitorConfig,
	positions *dao.PositionDao,
	orders *dao.OrderDao,
	exchanges map[string]exchange.Exchange,
	exec *executor.Executor,
	rec *metrics.Recorder,
) *Monitor {
	return &Monitor{
		cfg:       cfg,
		positions: positions,
		orders:    orders,
		exchanges: exchanges,
		exec:      exec,
		rec:       rec,
	}
}

// OnPrice 注册行情回调，必须在Run之前调用
func (m *Monitor) OnPrice(fn PriceListener) {
	m.listeners = append(m.listeners, fn)
}

func (m *Monitor) Run(ctx context.Context) {
	ticker := time.NewTicker(m.cfg.Interval)
	defer ticker.Stop()

	logger.Info("position monitor started", logger.Pair("interval", m.cfg.Interval.String()))
	for {
		select {
		case <-ctx.Done():
			logger.Info("position monitor stopped")
			return
		case <-ticker.C:
			m.scan(ctx)
		}
	}
}

type priceKey struct {
	exchange string
	symbol   string
}

func (m *Monitor) scan(ctx context.Context) {
	open, err := m.positions.ListOpen(ctx)
	if err != nil {
		logger.Error("list open positions", logger.Pair("error", err.Error()))
		return
	}
	if len(open) == 0 {
		return
	}

	prices := make(map[priceKey]float64)
	for i := range open {
		pos := &open[i]

		exName, err := m.exchangeName(ctx, pos)
		if err != nil {
			logger.Warn("resolve position exchange",
				logger.Pair("orderId", pos.OrderID),
				logger.Pair("error", err.Error()))
			continue
		}

		key := priceKey{exName, pos.Symbol}
		price, ok := prices[key]
		if !ok {
			price, err = m.lastPrice(ctx, exName, pos.Symbol)
			if err != nil {
				logger.Warn("fetch last price",
					logger.Pair("symbol", pos.Symbol),
					logger.Pair("error", err.Error()))
				continue
			}
			prices[key] = price
			m.rec.LastPrice(pos.Symbol, price)
			for _, fn := range m.listeners {
				fn(pos.Symbol, price)
			}
		}

		m.check(ctx, pos, price)
	}
}

func (m *Monitor) exchangeName(ctx context.Context, pos *model.Position) (string, error) {
	order, err := m.orders.Get(ctx, pos.OrderID)
	if err != nil {
		return "", err
	}
	return order.Exchange, nil
}

func (m *Monitor) lastPrice(ctx context.Context, exName, symbol string) (float64, error) {
	ex, ok := m.exchanges[exName]
	if !ok {
		return 0, exchange.ErrTransient
	}
	callCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return ex.GetLastPrice(callCtx, symbol)
}

// closeReason 当前价触发的平仓原因，没触发返回false。
// 止损先于止盈：缺口行情下两边可能同时触发，保守按止损处理。
func closeReason(pos *model.Position, price float64) (string, bool) {
	switch {
	case pos.SLBreached(price):
		return consts.CloseReasonStopLoss, true
	case pos.TPBreached(price):
		return consts.CloseReasonTakeProfit, true
	default:
		return "", false
	}
}

func (m *Monitor) check(ctx context.Context, pos *model.Position, price float64) {
	reason, triggered := closeReason(pos, price)
	if !triggered {
		return
	}

	logger.Info("position trigger",
		logger.Pair("orderId", pos.OrderID),
		logger.Pair("symbol", pos.Symbol),
		logger.Pair("price", price),
		logger.Pair("reason", reason))

	// 平仓失败下个周期会重扫，仓位仍是open状态
	if err := m.exec.SubmitClose(ctx, pos, reason); err != nil {
		logger.Error("submit close",
			logger.Pair("orderId", pos.OrderID),
			logger.Pair("error", err.Error()))
	}
}
