package model

import "time"

type OrderSide string

const (
	Buy  OrderSide = "buy"
	Sell OrderSide = "sell"
)

type OrderType string

const (
	// 市价购买
	Market OrderType = "market"
	// 限价购买
	Limit OrderType = "limit"
)

// OrderState 订单状态机：
// PENDING -> SUBMITTED -> {FILLED, REJECTED, CANCELLED}
// FILLED -> CLOSED（仓位监控或手动平仓）
type OrderState string

const (
	OrderPending   OrderState = "PENDING"
	OrderSubmitted OrderState = "SUBMITTED"
	OrderFilled    OrderState = "FILLED"
	OrderRejected  OrderState = "REJECTED"
	OrderCancelled OrderState = "CANCELLED"
	OrderClosed    OrderState = "CLOSED"
)

// 合法迁移表，执行器是唯一写入方
var orderTransitions = map[OrderState][]OrderState{
	OrderPending:   {OrderSubmitted, OrderRejected},
	OrderSubmitted: {OrderFilled, OrderRejected, OrderCancelled},
	OrderFilled:    {OrderClosed},
}

// CanTransition 判断状态迁移是否合法
func (s OrderState) CanTransition(to OrderState) bool {
	for _, next := range orderTransitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal 是否终态（CLOSED之外FILLED还会继续流转）
func (s OrderState) Terminal() bool {
	return s == OrderRejected || s == OrderCancelled || s == OrderClosed
}

// Order 交易订单。filtered_signal_id 上有唯一索引，
// 同一个信号指纹最多产生一笔订单。
type Order struct {
	ID               int64      `gorm:"column:id;primary_key" json:"id"` // snowflake
	FilteredSignalID int64      `gorm:"column:filtered_signal_id;uniqueIndex" json:"filtered_signal_id"`
	UserID           int64      `gorm:"column:user_id;index:idx_user_status" json:"user_id"`
	Exchange         string     `gorm:"column:exchange" json:"exchange"`
	Symbol           string     `gorm:"column:symbol" json:"symbol"`
	Side             OrderSide  `gorm:"column:side" json:"side"`
	Quantity         float64    `gorm:"column:quantity;type:decimal(20,8)" json:"quantity"`
	Price            float64    `gorm:"column:price;type:decimal(20,8)" json:"price"`
	OrderType        OrderType  `gorm:"column:order_type" json:"order_type"`
	Status           OrderState `gorm:"column:status;index:idx_user_status" json:"status"`
	ExchangeOrderID  string     `gorm:"column:exchange_order_id" json:"exchange_order_id"`
	ClientOrderID    string     `gorm:"column:client_order_id" json:"client_order_id"`
	Leverage         int        `gorm:"column:leverage" json:"leverage"`
	TPPrice          float64    `gorm:"column:tp_price;type:decimal(20,8)" json:"tp_price"`
	SLPrice          float64    `gorm:"column:sl_price;type:decimal(20,8)" json:"sl_price"`
	ReduceOnly       bool       `gorm:"-" json:"-"` // 平仓单标记，只减仓不反向开仓，不落库
	CreatedAt        time.Time  `gorm:"column:created_at" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"column:updated_at" json:"updated_at"`
}

func (Order) TableName() string { return "orders" }

// OrderEvent 状态迁移的append-only记录，并发轮询下不会丢更新
type OrderEvent struct {
	ID        uint       `gorm:"column:id;primary_key" json:"id"`
	OrderID   int64      `gorm:"column:order_id;index" json:"order_id"`
	From      OrderState `gorm:"column:from_status" json:"from_status"`
	To        OrderState `gorm:"column:to_status" json:"to_status"`
	Reason    string     `gorm:"column:reason" json:"reason"`
	CreatedAt time.Time  `gorm:"column:created_at" json:"created_at"`
}

func (OrderEvent) TableName() string { return "order_events" }

// OrderResponse 交易所下单应答
type OrderResponse struct {
	OrderId string
	Status  int
	Message string
}

// OrderStatus 交易所侧的订单状态
type OrderStatus struct {
	OrderID   string
	Status    string // new / filled / canceled / rejected
	Filled    float64
	AvgPrice  float64
	Remaining float64
}

type PositionStatus string

const (
	PositionOpen   PositionStatus = "open"
	PositionClosed PositionStatus = "closed"
)

// Position 持仓，订单成交时创建。一笔订单至多映射一个仓位，
// 只能由仓位监控或显式的手动操作平掉。
type Position struct {
	OrderID         int64          `gorm:"column:order_id;primary_key" json:"order_id"`
	UserID          int64          `gorm:"column:user_id;index:idx_pos_user_status" json:"user_id"`
	Symbol          string         `gorm:"column:symbol;index:idx_pos_symbol_status" json:"symbol"`
	Side            OrderSide      `gorm:"column:side" json:"side"`
	EntryPrice      float64        `gorm:"column:entry_price;type:decimal(20,8)" json:"entry_price"`
	Quantity        float64        `gorm:"column:quantity;type:decimal(20,8)" json:"quantity"`
	Leverage        int            `gorm:"column:leverage" json:"leverage"`
	TakeProfitPrice float64        `gorm:"column:take_profit_price;type:decimal(20,8)" json:"take_profit_price"`
	StopLossPrice   float64        `gorm:"column:stop_loss_price;type:decimal(20,8)" json:"stop_loss_price"`
	Status          PositionStatus `gorm:"column:status;index:idx_pos_user_status;index:idx_pos_symbol_status" json:"status"`
	CloseReason     string         `gorm:"column:close_reason" json:"close_reason"`
	ClosedAt        *time.Time     `gorm:"column:closed_at" json:"closed_at"`
	CreatedAt       time.Time      `gorm:"column:created_at" json:"created_at"`
}

func (Position) TableName() string { return "positions" }

// Breached 判断价格是否触发TP/SL。
// 缺口行情下两个阈值可能同时满足，调用方必须先查SL再查TP。
func (p *Position) SLBreached(price float64) bool {
	if p.StopLossPrice <= 0 {
		return false
	}
	if p.Side == Buy {
		return price <= p.StopLossPrice
	}
	return price >= p.StopLossPrice
}

func (p *Position) TPBreached(price float64) bool {
	if p.TakeProfitPrice <= 0 {
		return false
	}
	if p.Side == Buy {
		return price >= p.TakeProfitPrice
	}
	return price <= p.TakeProfitPrice
}
