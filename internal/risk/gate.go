package risk

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"

	"signalflow/internal/model"
)

// 风控gate错误，策略性拒绝是终态：只记录，不重试
var (
	ErrInsufficientBalance = errors.New("risk: insufficient balance")
	ErrConcurrentOpsLimit  = errors.New("risk: concurrent operations limit reached")
	ErrProfileNotFound     = errors.New("risk: profile not found")
	ErrQuantityTooSmall    = errors.New("risk: computed quantity below lot size")
	ErrDuplicateSignal     = errors.New("risk: order already reserved for this signal")
)

// LotRounder 按用户所在交易所的最小下单精度取整，
// 精度由交易所适配层注入，不在这里写死
type LotRounder func(exchange, symbol string, quantity float64) float64

// gate依赖的最小读写能力，具体实现是dao层
type ProfileStore interface {
	Get(ctx context.Context, userID int64) (*model.RiskProfile, error)
	GetForUpdateTx(tx *gorm.DB, userID int64) (*model.RiskProfile, error)
}

type PositionCounter interface {
	CountOpenByUser(ctx context.Context, userID int64) (int64, error)
	CountInFlightTx(tx *gorm.DB, userID int64) (int64, error)
}

type OrderReserver interface {
	CreateTx(tx *gorm.DB, order *model.Order) (bool, error)
}

// TxRunner 把check-and-reserve包进一个数据库事务
type TxRunner interface {
	InTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type gormTxRunner struct {
	db *gorm.DB
}

func (r gormTxRunner) InTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.db.WithContext(ctx).Transaction(fn)
}

// Gate 下单前的每用户风控检查。
// 计数检查和订单预占在同一个数据库事务内完成，外面再套一把
// 按用户分段的进程内锁，避免两个并发信号都用过期的余额快照通过检查。
type Gate struct {
	tx        TxRunner
	risks     ProfileStore
	positions PositionCounter
	orders    OrderReserver
	node      *snowflake.Node
	round     LotRounder

	mu    sync.Mutex
	lanes map[int64]*sync.Mutex // userId -> lane lock
}

func NewGate(db *gorm.DB, risks ProfileStore, positions PositionCounter, orders OrderReserver, node *snowflake.Node, round LotRounder) *Gate {
	if round == nil {
		round = func(_, _ string, q float64) float64 { return q }
	}
	var tx TxRunner
	if db != nil {
		tx = gormTxRunner{db: db}
	}
	return &Gate{
		tx:        tx,
		risks:     risks,
		positions: positions,
		orders:    orders,
		node:      node,
		round:     round,
		lanes:     make(map[int64]*sync.Mutex),
	}
}

// userLane 取出（或创建）该用户的串行化锁
func (g *Gate) userLane(userID int64) *sync.Mutex {
	g.mu.Lock()
	defer g.mu.Unlock()
	lane, ok := g.lanes[userID]
	if !ok {
		lane = &sync.Mutex{}
		g.lanes[userID] = lane
	}
	return lane
}

// ValidateBalance 余额是否足够。读取出错时fail closed，
// 绝不在状态不明的情况下放行。
func (g *Gate) ValidateBalance(ctx context.Context, userID int64, requiredAmount float64) bool {
	profile, err := g.risks.Get(ctx, userID)
	if err != nil {
		return false
	}
	return profile.Balance >= requiredAmount
}

// ValidateConcurrentOps 用户未平仓位数是否低于上限
func (g *Gate) ValidateConcurrentOps(ctx context.Context, userID int64, maxOps int) bool {
	count, err := g.positions.CountOpenByUser(ctx, userID)
	if err != nil {
		return false
	}
	return count < int64(maxOps)
}

// CalculateQuantity 余额×仓位比例，按该交易所最小精度取整
func (g *Gate) CalculateQuantity(exchange, symbol string, balance, sizeFraction float64) float64 {
	if balance <= 0 || sizeFraction <= 0 {
		return 0
	}
	return g.round(exchange, symbol, balance*sizeFraction)
}

// Admit 对一条过滤后的信号做完整gate检查，全部通过则在同一事务内
// 创建PENDING订单作为额度预占。任何一项不过都返回风控错误，终态。
func (g *Gate) Admit(ctx context.Context, fs *model.FilteredSignal) (*model.Order, error) {
	lane := g.userLane(fs.UserID)
	lane.Lock()
	defer lane.Unlock()

	var order *model.Order
	err := g.tx.InTx(ctx, func(tx *gorm.DB) error {
		// 行锁住风控配置，串行化本用户的check-and-reserve
		profile, err := g.risks.GetForUpdateTx(tx, fs.UserID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrProfileNotFound
			}
			return err
		}

		inFlight, err := g.positions.CountInFlightTx(tx, fs.UserID)
		if err != nil {
			return err
		}
		if inFlight >= int64(profile.MaxConcurrentOps) {
			return fmt.Errorf("%w: %d in flight, max %d",
				ErrConcurrentOpsLimit, inFlight, profile.MaxConcurrentOps)
		}

		fraction := fs.SizeFraction
		if profile.MaxPositionFraction > 0 && fraction > profile.MaxPositionFraction {
			fraction = profile.MaxPositionFraction
		}
		required := profile.Balance * fraction
		if required <= 0 {
			return fmt.Errorf("%w: balance %.2f, fraction %.4f",
				ErrInsufficientBalance, profile.Balance, fraction)
		}

		// 按该用户绑定的交易所精度取整
		quantity := g.round(profile.Exchange, fs.Symbol, required)
		if quantity <= 0 {
			return fmt.Errorf("%w: %.8f", ErrQuantityTooSmall, quantity)
		}

		side := model.Buy
		if fs.Decision == model.DecisionShort {
			side = model.Sell
		}
		order = &model.Order{
			ID:               g.node.Generate().Int64(),
			FilteredSignalID: fs.ID,
			UserID:           fs.UserID,
			Exchange:         profile.Exchange,
			Symbol:           fs.Symbol,
			Side:             side,
			Quantity:         quantity,
			Price:            fs.EntryPrice,
			OrderType:        model.Market,
			Status:           model.OrderPending,
			Leverage:         fs.Leverage,
			TPPrice:          computeTP(side, fs.EntryPrice, fs.TakeProfitPct),
			SLPrice:          computeSL(side, fs.EntryPrice, fs.StopLossPct),
			CreatedAt:        time.Now(),
			UpdatedAt:        time.Now(),
		}
		inserted, err := g.orders.CreateTx(tx, order)
		if err != nil {
			return err
		}
		if !inserted {
			// 同一个信号指纹已经预占过订单（重复投递）
			return ErrDuplicateSignal
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return order, nil
}

// IsPolicyRejection 是否是策略性风控拒绝（区别于基础设施错误）
func IsPolicyRejection(err error) bool {
	return errors.Is(err, ErrInsufficientBalance) ||
		errors.Is(err, ErrConcurrentOpsLimit) ||
		errors.Is(err, ErrProfileNotFound) ||
		errors.Is(err, ErrQuantityTooSmall) ||
		errors.Is(err, ErrDuplicateSignal)
}

// RejectionCode 拒绝原因的固定枚举，喂给metrics的label用。
// 动态的错误详情进日志，label只收这几个值，防止时间序列爆炸
func RejectionCode(err error) string {
	switch {
	case errors.Is(err, ErrInsufficientBalance):
		return "balance"
	case errors.Is(err, ErrConcurrentOpsLimit):
		return "concurrent-ops"
	case errors.Is(err, ErrProfileNotFound):
		return "profile"
	case errors.Is(err, ErrQuantityTooSmall):
		return "lot-size"
	case errors.Is(err, ErrDuplicateSignal):
		return "duplicate"
	default:
		return "other"
	}
}

// 计算止盈价
func computeTP(side model.OrderSide, price float64, tpPercent float64) float64 {
	if side == model.Buy {
		return round2(price * (1 + tpPercent/100))
	}
	return round2(price * (1 - tpPercent/100))
}

// 计算止损价
func computeSL(side model.OrderSide, price float64, slPercent float64) float64 {
	if side == model.Buy {
		return round2(price * (1 - slPercent/100))
	}
	return round2(price * (1 + slPercent/100))
}

func round2(val float64) float64 {
	return math.Round(val*100) / 100
}
