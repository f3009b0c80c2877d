package dao

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalflow/internal/model"
)

type PositionDao struct {
	db *gorm.DB
}

func NewPositionDao(db *gorm.DB) *PositionDao {
	return &PositionDao{db: db}
}

func (d *PositionDao) Create(ctx context.Context, pos *model.Position) error {
	return d.db.WithContext(ctx).Create(pos).Error
}

// CreateTx 在既有事务内开仓（和订单FILLED迁移同事务）
func (d *PositionDao) CreateTx(tx *gorm.DB, pos *model.Position) error {
	return tx.Create(pos).Error
}

func (d *PositionDao) Get(ctx context.Context, orderID int64) (*model.Position, error) {
	var pos model.Position
	err := d.db.WithContext(ctx).First(&pos, "order_id = ?", orderID).Error
	if err != nil {
		return nil, err
	}
	return &pos, nil
}

// ListOpen 所有未平仓位
func (d *PositionDao) ListOpen(ctx context.Context) ([]model.Position, error) {
	var positions []model.Position
	err := d.db.WithContext(ctx).
		Where("status = ?", model.PositionOpen).
		Find(&positions).Error
	return positions, err
}

// CountOpenByUser 用户当前未平仓位数
func (d *PositionDao) CountOpenByUser(ctx context.Context, userID int64) (int64, error) {
	var count int64
	err := d.db.WithContext(ctx).Model(&model.Position{}).
		Where("user_id = ? AND status = ?", userID, model.PositionOpen).
		Count(&count).Error
	return count, err
}

// CountInFlightTx 事务内统计用户占用的并发额度：
// 未平仓位 + 还在途的订单（PENDING/SUBMITTED/FILLED未平）。
// 配合风控事务里的行锁，两个并发信号不会同时通过计数检查。
func (d *PositionDao) CountInFlightTx(tx *gorm.DB, userID int64) (int64, error) {
	var open int64
	err := tx.Model(&model.Position{}).
		Where("user_id = ? AND status = ?", userID, model.PositionOpen).
		Count(&open).Error
	if err != nil {
		return 0, err
	}
	var inflight int64
	err = tx.Model(&model.Order{}).
		Where("user_id = ? AND status IN ?", userID,
			[]model.OrderState{model.OrderPending, model.OrderSubmitted}).
		Count(&inflight).Error
	if err != nil {
		return 0, err
	}
	return open + inflight, nil
}

// Close 平仓落库，只有还open的行会被更新
func (d *PositionDao) Close(ctx context.Context, orderID int64, reason string, closedAt time.Time) error {
	res := d.db.WithContext(ctx).Model(&model.Position{}).
		Where("order_id = ? AND status = ?", orderID, model.PositionOpen).
		Updates(map[string]any{
			"status":       model.PositionClosed,
			"close_reason": reason,
			"closed_at":    closedAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type RiskDao struct {
	db *gorm.DB
}

func NewRiskDao(db *gorm.DB) *RiskDao {
	return &RiskDao{db: db}
}

func (d *RiskDao) Get(ctx context.Context, userID int64) (*model.RiskProfile, error) {
	var profile model.RiskProfile
	err := d.db.WithContext(ctx).First(&profile, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// GetForUpdateTx 行锁读取，风控的check-and-reserve序列必须持有该锁
func (d *RiskDao) GetForUpdateTx(tx *gorm.DB, userID int64) (*model.RiskProfile, error) {
	var profile model.RiskProfile
	err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&profile, "user_id = ?", userID).Error
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// ListActive 所有启用的用户绑定，入口扇出用
func (d *RiskDao) ListActive(ctx context.Context) ([]model.RiskProfile, error) {
	var profiles []model.RiskProfile
	err := d.db.WithContext(ctx).
		Where("active = ?", true).
		Find(&profiles).Error
	return profiles, err
}
