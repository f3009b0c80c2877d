package exchange

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/adshao/go-binance/v2"
	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"

	"signalflow/internal/model"
	"signalflow/pkg/logger"
)

// Binance USDT本位合约适配
type Binance struct {
	client *futures.Client

	mu    sync.Mutex
	steps map[string]float64 // symbol -> 最小下单步长
}

func NewBinance(apiKey, secretKey string, testnet bool) *Binance {
	if testnet {
		futures.UseTestnet = true
	}
	return &Binance{
		client: binance.NewFuturesClient(apiKey, secretKey),
		steps:  make(map[string]float64),
	}
}

func (b *Binance) Name() string { return "binance" }

// binanceSymbol 把规范形式BASE/QUOTE还原成币安的连写形式
func binanceSymbol(s string) string {
	return strings.ToUpper(strings.ReplaceAll(s, "/", ""))
}

// classify 把SDK错误分成拒单和瞬时两类。
// API明确返回错误码的是拒单（精度、保证金等），其余按网络瞬时错误处理。
func classify(err error) error {
	if err == nil {
		return nil
	}
	if apiErr, ok := err.(*common.APIError); ok {
		return &RejectedError{Reason: fmt.Sprintf("code %d: %s", apiErr.Code, apiErr.Message)}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func (b *Binance) PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error) {
	if order.Leverage > 0 {
		// 杠杆设置失败不阻断下单，交易所会沿用上次的设置
		if _, err := b.client.NewChangeLeverageService().
			Symbol(binanceSymbol(order.Symbol)).
			Leverage(order.Leverage).
			Do(ctx); err != nil {
			logger.Warnf("binance change leverage %s x%d: %v", order.Symbol, order.Leverage, err)
		}
	}

	side := futures.SideTypeBuy
	if order.Side == model.Sell {
		side = futures.SideTypeSell
	}

	svc := b.client.NewCreateOrderService().
		Symbol(binanceSymbol(order.Symbol)).
		Side(side).
		Quantity(formatQty(order.Quantity)).
		NewClientOrderID(order.ClientOrderID)
	if order.ReduceOnly {
		svc = svc.ReduceOnly(true)
	}

	switch order.OrderType {
	case model.Limit:
		svc = svc.Type(futures.OrderTypeLimit).
			TimeInForce(futures.TimeInForceTypeGTC).
			Price(formatQty(order.Price))
	default:
		svc = svc.Type(futures.OrderTypeMarket)
	}

	res, err := svc.Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	return &model.OrderResponse{
		OrderId: strconv.FormatInt(res.OrderID, 10),
		Status:  1,
		Message: string(res.Status),
	}, nil
}

func (b *Binance) GetOrderStatus(ctx context.Context, exchangeOrderID, symbol string) (*model.OrderStatus, error) {
	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid binance order id %q: %w", exchangeOrderID, err)
	}
	o, err := b.client.NewGetOrderService().Symbol(binanceSymbol(symbol)).OrderID(orderID).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	filled, _ := strconv.ParseFloat(o.ExecutedQuantity, 64)
	avg, _ := strconv.ParseFloat(o.AvgPrice, 64)
	qty, _ := strconv.ParseFloat(o.OrigQuantity, 64)
	return &model.OrderStatus{
		OrderID:   exchangeOrderID,
		Status:    mapBinanceStatus(o.Status),
		Filled:    filled,
		AvgPrice:  avg,
		Remaining: qty - filled,
	}, nil
}

func mapBinanceStatus(s futures.OrderStatusType) string {
	switch s {
	case futures.OrderStatusTypeFilled:
		return "filled"
	case futures.OrderStatusTypeCanceled, futures.OrderStatusTypeExpired:
		return "canceled"
	case futures.OrderStatusTypeRejected:
		return "rejected"
	default:
		return "new"
	}
}

func (b *Binance) GetPosition(ctx context.Context, symbol string) (float64, error) {
	risks, err := b.client.NewGetPositionRiskService().Symbol(binanceSymbol(symbol)).Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	var total float64
	for _, r := range risks {
		amt, _ := strconv.ParseFloat(r.PositionAmt, 64)
		total += amt
	}
	return total, nil
}

func (b *Binance) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	orderID, err := strconv.ParseInt(exchangeOrderID, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid binance order id %q: %w", exchangeOrderID, err)
	}
	_, err = b.client.NewCancelOrderService().Symbol(binanceSymbol(symbol)).OrderID(orderID).Do(ctx)
	return classify(err)
}

func (b *Binance) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	prices, err := b.client.NewListPricesService().Symbol(binanceSymbol(symbol)).Do(ctx)
	if err != nil {
		return 0, classify(err)
	}
	if len(prices) == 0 {
		return 0, fmt.Errorf("%w: empty price response for %s", ErrTransient, symbol)
	}
	return strconv.ParseFloat(prices[0].Price, 64)
}

// RoundLot 向下取整到LOT_SIZE步长，避免-1111精度拒单。
// 步长查不到时保守用0.001。
func (b *Binance) RoundLot(symbol string, quantity float64) float64 {
	step := b.lotStep(binanceSymbol(symbol))
	if step <= 0 {
		step = 0.001
	}
	n := math.Floor(quantity/step + 1e-9)
	return math.Round(n*step*1e8) / 1e8
}

func (b *Binance) lotStep(symbol string) float64 {
	b.mu.Lock()
	if step, ok := b.steps[symbol]; ok {
		b.mu.Unlock()
		return step
	}
	b.mu.Unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	info, err := b.client.NewExchangeInfoService().Do(ctx)
	if err != nil {
		logger.Warnf("binance exchange info: %v", err)
		return 0
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	for _, s := range info.Symbols {
		f := s.LotSizeFilter()
		if f == nil {
			continue
		}
		step, err := strconv.ParseFloat(f.StepSize, 64)
		if err != nil {
			continue
		}
		b.steps[strings.ToUpper(s.Symbol)] = step
	}
	return b.steps[strings.ToUpper(symbol)]
}

func (b *Binance) ListOpenOrderIDs(ctx context.Context, symbol string) ([]string, error) {
	orders, err := b.client.NewListOpenOrdersService().Symbol(binanceSymbol(symbol)).Do(ctx)
	if err != nil {
		return nil, classify(err)
	}
	ids := make([]string, 0, len(orders))
	for _, o := range orders {
		ids = append(ids, strconv.FormatInt(o.OrderID, 10))
	}
	return ids, nil
}

func formatQty(q float64) string {
	return strconv.FormatFloat(q, 'f', -1, 64)
}
