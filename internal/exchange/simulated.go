package exchange

import (
	"context"
	"fmt"
	"math"
	"sync"

	"github.com/google/uuid"

	"signalflow/internal/model"
)

// 模拟交易所，本地联调和测试用。下单即成交。
type Simulated struct {
	mu     sync.Mutex
	orders map[string]*model.OrderStatus
	prices map[string]float64
	// 可注入的故障：按先进先出顺序弹出
	failures []error
	lotStep  float64
}

func NewSimulated() *Simulated {
	return &Simulated{
		orders:  make(map[string]*model.OrderStatus),
		prices:  make(map[string]float64),
		lotStep: 0.0001,
	}
}

func (s *Simulated) Name() string { return "simulated" }

// SetPrice 设置标的价格
func (s *Simulated) SetPrice(symbol string, price float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.prices[symbol] = price
}

// FailNext 注入一次失败，下一次PlaceOrder返回该错误
func (s *Simulated) FailNext(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, err)
}

// SetLotStep 设置最小下单步长
func (s *Simulated) SetLotStep(step float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.lotStep = step
}

func (s *Simulated) PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.failures) > 0 {
		err := s.failures[0]
		s.failures = s.failures[1:]
		return nil, err
	}

	price := order.Price
	if p, ok := s.prices[order.Symbol]; ok && order.OrderType == model.Market {
		price = p
	}

	orderID := uuid.NewString()
	s.orders[orderID] = &model.OrderStatus{
		OrderID:  orderID,
		Status:   "filled", // 模拟立即成交
		Filled:   order.Quantity,
		AvgPrice: price,
	}
	return &model.OrderResponse{OrderId: orderID, Status: 1, Message: "simulated fill"}, nil
}

func (s *Simulated) GetOrderStatus(ctx context.Context, exchangeOrderID, symbol string) (*model.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.orders[exchangeOrderID]
	if !ok {
		return nil, fmt.Errorf("order not found: %s", exchangeOrderID)
	}
	return status, nil
}

func (s *Simulated) GetPosition(ctx context.Context, symbol string) (float64, error) {
	return 0, nil
}

func (s *Simulated) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	status, ok := s.orders[exchangeOrderID]
	if !ok {
		return fmt.Errorf("order not found: %s", exchangeOrderID)
	}
	status.Status = "canceled"
	return nil
}

func (s *Simulated) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	price, ok := s.prices[symbol]
	if !ok {
		return 0, fmt.Errorf("no price for %s", symbol)
	}
	return price, nil
}

func (s *Simulated) RoundLot(symbol string, quantity float64) float64 {
	s.mu.Lock()
	step := s.lotStep
	s.mu.Unlock()
	if step <= 0 {
		return quantity
	}
	// 向下取整到步长的整数倍，并压掉浮点尾差
	n := math.Floor(quantity/step + 1e-9)
	return math.Round(n*step*1e8) / 1e8
}

func (s *Simulated) ListOpenOrderIDs(ctx context.Context, symbol string) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var ids []string
	for id, st := range s.orders {
		if st.Status == "new" {
			ids = append(ids, id)
		}
	}
	return ids, nil
}
