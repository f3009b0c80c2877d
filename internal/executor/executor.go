package executor

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"signalflow/conf"
	"signalflow/internal/exchange"
	"signalflow/internal/model"
	"signalflow/pkg/logger"
	"signalflow/pkg/metrics"
	"signalflow/pkg/push/apns"
	"signalflow/pkg/recorder"
)

// Notifier 平仓结果推送
type Notifier interface {
	Push(msg *apns.PushMessage, deviceToken string) (*apns.PushResponse, error)
}

// 执行器依赖的最小读写能力，具体实现是dao层
type OrderStore interface {
	Get(ctx context.Context, id int64) (*model.Order, error)
	Transition(ctx context.Context, order *model.Order, to model.OrderState, reason string) error
	TransitionTx(tx *gorm.DB, order *model.Order, to model.OrderState, reason string) error
	SetExchangeOrderID(ctx context.Context, orderID int64, exchangeOrderID string) error
	ListUnresolved(ctx context.Context) ([]model.Order, error)
	ListFilledWithoutPosition(ctx context.Context) ([]model.Order, error)
}

type PositionStore interface {
	Create(ctx context.Context, pos *model.Position) error
	CreateTx(tx *gorm.DB, pos *model.Position) error
	Close(ctx context.Context, orderID int64, reason string, closedAt time.Time) error
}

type ProfileGetter interface {
	Get(ctx context.Context, userID int64) (*model.RiskProfile, error)
}

// TxRunner 把成交落库（状态迁移+开仓）包进一个数据库事务
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// Executor 订单执行器，订单状态机的唯一写入方。
// 提交、轮询成交、撤单超时、平仓、启动对账都走这里。
type Executor struct {
	cfg       conf.ExecutorConfig
	exchanges map[string]exchange.Exchange
	tx        TxRunner
	orders    OrderStore
	positions PositionStore
	risks     ProfileGetter
	rec       *metrics.Recorder
	journal   recorder.Recorder
	notifier  Notifier // 可以为nil
}

func NewExecutor(
	cfg conf.ExecutorConfig,
	db *gorm.DB,
	exchanges map[string]exchange.Exchange,
	orders OrderStore,
	positions PositionStore,
	risks ProfileGetter,
	rec *metrics.Recorder,
	journal recorder.Recorder,
	notifier Notifier,
) *Executor {
	if journal == nil {
		journal = recorder.NopRecorder{}
	}
	var tx TxRunner
	if db != nil {
		tx = gormTxRunner{db: db}
	}
	return &Executor{
		cfg:       cfg,
		exchanges: exchanges,
		tx:        tx,
		orders:    orders,
		positions: positions,
		risks:     risks,
		rec:       rec,
		journal:   journal,
		notifier:  notifier,
	}
}

func (e *Executor) exchangeFor(name string) (exchange.Exchange, error) {
	ex, ok := e.exchanges[name]
	if !ok {
		return nil, fmt.Errorf("unknown exchange: %s", name)
	}
	return ex, nil
}

// Execute 驱动一笔PENDING订单走完状态机：提交、轮询、终态落库
func (e *Executor) Execute(ctx context.Context, order *model.Order) error {
	ex, err := e.exchangeFor(order.Exchange)
	if err != nil {
		e.reject(ctx, order, err.Error())
		return err
	}

	if err := e.submit(ctx, ex, order); err != nil {
		return err
	}
	return e.awaitFill(ctx, ex, order)
}

// submit PENDING -> SUBMITTED。
// 瞬时错误指数退避重试，交易所拒单直接终态，重试耗尽也按拒单处理。
// exchange_order_id必须先落库再迁移状态，崩溃后对账才找得到这笔单。
func (e *Executor) submit(ctx context.Context, ex exchange.Exchange, order *model.Order) error {
	if order.ClientOrderID == "" {
		order.ClientOrderID = uuid.NewString()
	}

	var lastErr error
	for attempt := 0; attempt <= e.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		start := time.Now()
		res, err := ex.PlaceOrder(callCtx, order)
		cancel()
		e.rec.ExchangeLatency("place_order", time.Since(start).Seconds())

		if err == nil {
			if err = e.orders.SetExchangeOrderID(ctx, order.ID, res.OrderId); err != nil {
				return err
			}
			order.ExchangeOrderID = res.OrderId
			return e.orders.Transition(ctx, order, model.OrderSubmitted, "submitted")
		}

		if exchange.IsRejected(err) {
			e.reject(ctx, order, err.Error())
			return err
		}

		lastErr = err
		logger.Warn("place order transient failure",
			logger.Pair("orderId", order.ID),
			logger.Pair("attempt", attempt),
			logger.Pair("error", err.Error()))
	}

	e.reject(ctx, order, fmt.Sprintf("submit retries exhausted: %v", lastErr))
	return lastErr
}

// awaitFill 轮询直到成交或超时。超时先撤单，撤单后再查一次，
// 撤单和成交可能在交易所侧竞争，成交优先。
func (e *Executor) awaitFill(ctx context.Context, ex exchange.Exchange, order *model.Order) error {
	deadline := time.Now().Add(e.cfg.FillTimeout)
	ticker := time.NewTicker(e.cfg.PollInterval)
	defer ticker.Stop()

	for {
		st, err := e.orderStatus(ctx, ex, order)
		if err == nil {
			done, err := e.resolve(ctx, order, st)
			if done || err != nil {
				return err
			}
		} else if !exchange.IsTransient(err) {
			return err
		}

		if time.Now().After(deadline) {
			return e.cancelUnfilled(ctx, ex, order)
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (e *Executor) orderStatus(ctx context.Context, ex exchange.Exchange, order *model.Order) (*model.OrderStatus, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	defer cancel()
	start := time.Now()
	st, err := ex.GetOrderStatus(callCtx, order.ExchangeOrderID, order.Symbol)
	e.rec.ExchangeLatency("get_order_status", time.Since(start).Seconds())
	return st, err
}

// resolve 根据交易所侧状态推进状态机，返回是否到达终态
func (e *Executor) resolve(ctx context.Context, order *model.Order, st *model.OrderStatus) (bool, error) {
	switch st.Status {
	case "filled":
		return true, e.fill(ctx, order, st)
	case "canceled":
		if err := e.orders.Transition(ctx, order, model.OrderCancelled, "canceled by exchange"); err != nil {
			return true, err
		}
		e.finalize(order, model.OrderCancelled, "canceled by exchange", st)
		return true, nil
	case "rejected":
		if err := e.orders.Transition(ctx, order, model.OrderRejected, "rejected by exchange"); err != nil {
			return true, err
		}
		e.finalize(order, model.OrderRejected, "rejected by exchange", st)
		return true, nil
	default:
		return false, nil
	}
}

func (e *Executor) cancelUnfilled(ctx context.Context, ex exchange.Exchange, order *model.Order) error {
	callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
	err := ex.CancelOrder(callCtx, order.ExchangeOrderID, order.Symbol)
	cancel()
	if err != nil {
		logger.Warn("cancel after fill timeout",
			logger.Pair("orderId", order.ID),
			logger.Pair("error", err.Error()))
	}

	// 撤单请求发出后再确认一次，可能恰好在窗口边缘成交了
	if st, serr := e.orderStatus(ctx, ex, order); serr == nil && st.Status == "filled" {
		return e.fill(ctx, order, st)
	}

	if err := e.orders.Transition(ctx, order, model.OrderCancelled, "fill timeout"); err != nil {
		return err
	}
	e.finalize(order, model.OrderCancelled, "fill timeout", nil)
	return nil
}

// fill SUBMITTED -> FILLED，同时开仓。
// 状态迁移和仓位插入在一个事务里，不会出现FILLED却没有仓位的半截状态。
// 仓位主键就是订单id，重复fill不会造成第二个仓位。
func (e *Executor) fill(ctx context.Context, order *model.Order, st *model.OrderStatus) error {
	pos := positionFromFill(order, st)
	err := e.tx.InTx(ctx, func(tx *gorm.DB) error {
		if err := e.orders.TransitionTx(tx, order, model.OrderFilled, "filled"); err != nil {
			return err
		}
		return e.positions.CreateTx(tx, pos)
	})
	if err != nil {
		return err
	}

	e.finalize(order, model.OrderFilled, "filled", st)
	logger.Info("order filled",
		logger.Pair("orderId", order.ID),
		logger.Pair("symbol", order.Symbol),
		logger.Pair("entry", pos.EntryPrice),
		logger.Pair("qty", pos.Quantity))
	return nil
}

// positionFromFill 从订单和交易所侧成交快照构造仓位，
// 快照缺字段时退回订单里的委托价和数量
func positionFromFill(order *model.Order, st *model.OrderStatus) *model.Position {
	entry := order.Price
	qty := order.Quantity
	if st != nil {
		if st.AvgPrice > 0 {
			entry = st.AvgPrice
		}
		if st.Filled > 0 {
			qty = st.Filled
		}
	}
	return &model.Position{
		OrderID:         order.ID,
		UserID:          order.UserID,
		Symbol:          order.Symbol,
		Side:            order.Side,
		EntryPrice:      entry,
		Quantity:        qty,
		Leverage:        order.Leverage,
		TakeProfitPrice: order.TPPrice,
		StopLossPrice:   order.SLPrice,
		Status:          model.PositionOpen,
		CreatedAt:       time.Now(),
	}
}

func (e *Executor) reject(ctx context.Context, order *model.Order, reason string) {
	if err := e.orders.Transition(ctx, order, model.OrderRejected, reason); err != nil {
		logger.Error("mark order rejected",
			logger.Pair("orderId", order.ID),
			logger.Pair("error", err.Error()))
		return
	}
	e.finalize(order, model.OrderRejected, reason, nil)
}

// finalize 终态统一出口：指标加审计流水
func (e *Executor) finalize(order *model.Order, state model.OrderState, reason string, st *model.OrderStatus) {
	e.rec.OrderFinal(string(state))
	entry := recorder.AuditEntry{
		Time:    time.Now(),
		OrderID: order.ID,
		UserID:  order.UserID,
		Symbol:  order.Symbol,
		Status:  string(state),
		Reason:  reason,
	}
	if st != nil {
		entry.AvgPrice = st.AvgPrice
		entry.FilledQty = st.Filled
	}
	if err := e.journal.Record(entry); err != nil {
		logger.Warn("audit record", logger.Pair("error", err.Error()))
	}
}

// SubmitClose 市价平仓：反向单提交成交后关闭仓位，原订单FILLED -> CLOSED
func (e *Executor) SubmitClose(ctx context.Context, pos *model.Position, reason string) error {
	order, err := e.orders.Get(ctx, pos.OrderID)
	if err != nil {
		return err
	}
	ex, err := e.exchangeFor(order.Exchange)
	if err != nil {
		return err
	}

	side := model.Sell
	if pos.Side == model.Sell {
		side = model.Buy
	}
	closeOrder := &model.Order{
		ID:            pos.OrderID,
		UserID:        pos.UserID,
		Exchange:      order.Exchange,
		Symbol:        pos.Symbol,
		Side:          side,
		Quantity:      pos.Quantity,
		OrderType:     model.Market,
		Leverage:      pos.Leverage,
		ClientOrderID: uuid.NewString(),
		ReduceOnly:    true,
	}

	if err := e.placeClose(ctx, ex, closeOrder); err != nil {
		return err
	}

	now := time.Now()
	if err := e.positions.Close(ctx, pos.OrderID, reason, now); err != nil {
		return err
	}
	if err := e.orders.Transition(ctx, order, model.OrderClosed, reason); err != nil {
		return err
	}
	e.rec.PositionClosed(reason)
	e.journal.Record(recorder.AuditEntry{
		Time:    now,
		OrderID: pos.OrderID,
		UserID:  pos.UserID,
		Symbol:  pos.Symbol,
		Status:  string(model.OrderClosed),
		Reason:  reason,
	})
	e.notifyClose(ctx, pos, reason)
	return nil
}

// placeClose 平仓单同样做瞬时重试，但不入订单表
func (e *Executor) placeClose(ctx context.Context, ex exchange.Exchange, order *model.Order) error {
	var lastErr error
	for attempt := 0; attempt <= e.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			delay := e.cfg.RetryBaseDelay << (attempt - 1)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		callCtx, cancel := context.WithTimeout(ctx, e.cfg.CallTimeout)
		_, err := ex.PlaceOrder(callCtx, order)
		cancel()
		if err == nil {
			return nil
		}
		if exchange.IsRejected(err) {
			return err
		}
		lastErr = err
	}
	return fmt.Errorf("close order retries exhausted: %w", lastErr)
}

func (e *Executor) notifyClose(ctx context.Context, pos *model.Position, reason string) {
	if e.notifier == nil {
		return
	}
	profile, err := e.risks.Get(ctx, pos.UserID)
	if err != nil || profile.DeviceToken == "" {
		return
	}
	msg := &apns.PushMessage{
		Category: "position",
		Title:    fmt.Sprintf("%s 已平仓", pos.Symbol),
		Body:     fmt.Sprintf("方向 %s 数量 %v 原因 %s", pos.Side, pos.Quantity, reason),
		Sound:    "default",
	}
	if _, err := e.notifier.Push(msg, profile.DeviceToken); err != nil {
		logger.Warn("close push", logger.Pair("userId", pos.UserID), logger.Pair("error", err.Error()))
	}
}

// Reconcile 启动对账：数据库里的PENDING/SUBMITTED订单和交易所侧对齐，
// 再补齐FILLED却缺仓位的历史数据。
// 没拿到exchange_order_id且超过宽限期的订单视为从未提交成功。
func (e *Executor) Reconcile(ctx context.Context) error {
	unresolved, err := e.orders.ListUnresolved(ctx)
	if err != nil {
		return err
	}

	var errs error
	for i := range unresolved {
		order := &unresolved[i]

		if order.ExchangeOrderID == "" {
			if time.Since(order.CreatedAt) >= e.cfg.ReconcileGrace {
				e.reject(ctx, order, "reconcile: no exchange order id after grace period")
			}
			continue
		}

		ex, err := e.exchangeFor(order.Exchange)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}

		st, err := e.orderStatus(ctx, ex, order)
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("reconcile order %d: %w", order.ID, err))
			continue
		}

		// PENDING但交易所已受理，先补一次SUBMITTED再推进
		if order.Status == model.OrderPending {
			if err := e.orders.Transition(ctx, order, model.OrderSubmitted, "reconcile: found on exchange"); err != nil {
				errs = multierr.Append(errs, err)
				continue
			}
		}
		if _, err := e.resolve(ctx, order, st); err != nil {
			errs = multierr.Append(errs, err)
		}
	}

	errs = multierr.Append(errs, e.rebuildPositions(ctx))
	return errs
}

// rebuildPositions FILLED但仓位缺失的订单，补建仓位。
// 能问到交易所就用实际成交价建，问不到退回订单字段。
func (e *Executor) rebuildPositions(ctx context.Context) error {
	orphans, err := e.orders.ListFilledWithoutPosition(ctx)
	if err != nil {
		return err
	}

	var errs error
	for i := range orphans {
		order := &orphans[i]

		var st *model.OrderStatus
		if order.ExchangeOrderID != "" {
			if ex, err := e.exchangeFor(order.Exchange); err == nil {
				if s, serr := e.orderStatus(ctx, ex, order); serr == nil {
					st = s
				}
			}
		}

		pos := positionFromFill(order, st)
		if err := e.positions.Create(ctx, pos); err != nil {
			errs = multierr.Append(errs, fmt.Errorf("rebuild position for order %d: %w", order.ID, err))
			continue
		}
		logger.Warn("rebuilt missing position",
			logger.Pair("orderId", order.ID),
			logger.Pair("symbol", order.Symbol))
	}
	return errs
}
