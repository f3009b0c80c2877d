package exchange

import (
	"context"
	"errors"
	"fmt"

	"signalflow/internal/model"
)

// Exchange 多交易所统一能力集。每个交易所实现一个变体，
// 管道只依赖这一个接口。
type Exchange interface {
	Name() string
	// 下单，返回交易所分配的订单id
	PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error)
	// 获取订单状态
	GetOrderStatus(ctx context.Context, exchangeOrderID, symbol string) (*model.OrderStatus, error)
	// 获取当前持仓数量（对账用）
	GetPosition(ctx context.Context, symbol string) (float64, error)
	// 撤销订单
	CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error
	// 获取最新价格
	GetLastPrice(ctx context.Context, symbol string) (float64, error)
	// 最小下单精度取整，规则由各交易所自己维护
	RoundLot(symbol string, quantity float64) float64
	// 列出当前挂单的交易所订单id（启动对账用）
	ListOpenOrderIDs(ctx context.Context, symbol string) ([]string, error)
}

// ErrTransient 瞬时错误（网络超时等），调用方可以有界重试
var ErrTransient = errors.New("exchange: transient error")

// RejectedError 交易所明确拒单（精度错误、保证金不足等），终态
type RejectedError struct {
	Reason string
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("exchange rejected order: %s", e.Reason)
}

// IsRejected 是否是交易所拒单
func IsRejected(err error) bool {
	var re *RejectedError
	return errors.As(err, &re)
}

// IsTransient 是否可重试
func IsTransient(err error) bool {
	return errors.Is(err, ErrTransient)
}
