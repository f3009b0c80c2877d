package dao

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"signalflow/internal/model"
)

type SignalDao struct {
	db *gorm.DB
}

func NewSignalDao(db *gorm.DB) *SignalDao {
	return &SignalDao{db: db}
}

// RawCreate 幂等写入原始信号。主键冲突说明同一指纹已投递过，
// 返回false表示重复投递。
func (d *SignalDao) RawCreate(ctx context.Context, sig *model.RawSignal) (bool, error) {
	res := d.db.WithContext(ctx).
		Clauses(clause.OnConflict{DoNothing: true}).
		Create(sig)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (d *SignalDao) RawGet(ctx context.Context, id string) (*model.RawSignal, error) {
	var sig model.RawSignal
	err := d.db.WithContext(ctx).First(&sig, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &sig, nil
}

func (d *SignalDao) FilteredCreate(ctx context.Context, fs *model.FilteredSignal) error {
	return d.db.WithContext(ctx).Create(fs).Error
}

func (d *SignalDao) FilteredGet(ctx context.Context, id int64) (*model.FilteredSignal, error) {
	var fs model.FilteredSignal
	err := d.db.WithContext(ctx).First(&fs, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &fs, nil
}
