package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalflow/internal/model"
)

type OrderDao struct {
	db *gorm.DB
}

func NewOrderDao(db *gorm.DB) *OrderDao {
	return &OrderDao{db: db}
}

// Create 插入订单。filtered_signal_id唯一索引兜底：
// 重复的信号指纹写不进第二条订单，返回false。
func (d *OrderDao) Create(ctx context.Context, order *model.Order) (bool, error) {
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// CreateTx 在既有事务内插入订单（风控gate的check-and-reserve用）
func (d *OrderDao) CreateTx(tx *gorm.DB, order *model.Order) (bool, error) {
	res := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(order)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *OrderDao) Get(ctx context.Context, id int64) (*model.Order, error) {
	var order model.Order
	err := d.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &order, nil
}

// Transition 原子更新状态并追加事件记录。
// WHERE带上旧状态，并发下只有一个写入方能赢。
func (d *OrderDao) Transition(ctx context.Context, order *model.Order, to model.OrderState, reason string) error {
	return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return d.TransitionTx(tx, order, to, reason)
	})
}

// TransitionTx 在既有事务内迁移状态，成交开仓要把状态迁移和
// 仓位插入捆进同一个事务时用
func (d *OrderDao) TransitionTx(tx *gorm.DB, order *model.Order, to model.OrderState, reason string) error {
	from := order.Status
	res := tx.Model(&model.Order{}).
		Where("id = ? AND status = ?", order.ID, from).
		Updates(map[string]any{
			"status":     to,
			"updated_at": time.Now(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	event := &model.OrderEvent{
		OrderID:   order.ID,
		From:      from,
		To:        to,
		Reason:    reason,
		CreatedAt: time.Now(),
	}
	if err := tx.Create(event).Error; err != nil {
		return err
	}
	order.Status = to
	return nil
}

// SetExchangeOrderID 记录交易所返回的订单id，必须在视为提交完成之前落库
func (d *OrderDao) SetExchangeOrderID(ctx context.Context, orderID int64, exchangeOrderID string) error {
	return d.db.WithContext(ctx).Model(&model.Order{}).
		Where("id = ?", orderID).
		Update("exchange_order_id", exchangeOrderID).Error
}

// ListUnresolved 启动对账用：找出所有未终结的订单
func (d *OrderDao) ListUnresolved(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := d.db.WithContext(ctx).
		Where("status IN ?", []model.OrderState{model.OrderPending, model.OrderSubmitted}).
		Find(&orders).Error
	return orders, err
}

// ListFilledWithoutPosition 已成交但仓位缺失的订单，
// 对账时补建仓位用
func (d *OrderDao) ListFilledWithoutPosition(ctx context.Context) ([]model.Order, error) {
	var orders []model.Order
	err := d.db.WithContext(ctx).Model(&model.Order{}).
		Joins("LEFT JOIN positions ON positions.order_id = orders.id").
		Where("orders.status = ? AND positions.order_id IS NULL", model.OrderFilled).
		Find(&orders).Error
	return orders, err
}

// Events 某笔订单的状态迁移历史（审计用）
func (d *OrderDao) Events(ctx context.Context, orderID int64) ([]model.OrderEvent, error) {
	var events []model.OrderEvent
	err := d.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("id ASC").
		Find(&events).Error
	return events, err
}
