package exchange

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"sync"

	json "github.com/goccy/go-json"
	goexv2 "github.com/nntaoli-project/goex/v2"
	goexmodel "github.com/nntaoli-project/goex/v2/model"
	"github.com/nntaoli-project/goex/v2/okx/futures"
	"github.com/nntaoli-project/goex/v2/options"

	"signalflow/internal/model"
	"signalflow/pkg/logger"
)

// Okx 永续合约适配，统一走逐仓模式
type Okx struct {
	prv goexv2.IPrvRest
	pub futures.Swap

	mu     sync.Mutex
	exInfo map[string]goexmodel.CurrencyPair
}

func NewOkx(apiKey, apiSecret, passphrase string) *Okx {
	// okxv5 api 如果要使用模拟交易，需要切换到模拟交易下创建apikey
	opts := []options.ApiOption{
		options.WithApiKey(apiKey),
		options.WithApiSecretKey(apiSecret),
		options.WithPassphrase(passphrase),
	}
	pub := goexv2.OKx.Swap
	return &Okx{
		prv: pub.NewPrvApi(opts...),
		pub: *pub,
	}
}

func (e *Okx) Name() string { return "okx" }

// symbol 格式转换: "BTC/USDT" -> goex 需要的 CurrencyPair
func (e *Okx) toCurrencyPair(symbol string) (goexmodel.CurrencyPair, error) {
	parts := strings.Split(symbol, "/")
	if len(parts) == 1 { // 防止BTC-USDT-SWAP
		parts = strings.Split(symbol, "-")
	}
	if len(parts) > 2 { // 取前两个，防止BTC-USDT-SWAP
		parts = parts[:2]
	}
	if len(parts) < 2 {
		return goexmodel.CurrencyPair{}, fmt.Errorf("invalid symbol format: %s", symbol)
	}
	return e.pub.NewCurrencyPair(parts[0], parts[1])
}

func classifyOkx(err error) error {
	if err == nil {
		return nil
	}
	// okx业务错误会带上v5的错误码，其余按网络瞬时错误处理
	if strings.Contains(err.Error(), "code") {
		return &RejectedError{Reason: err.Error()}
	}
	return fmt.Errorf("%w: %v", ErrTransient, err)
}

func (e *Okx) PlaceOrder(ctx context.Context, order *model.Order) (*model.OrderResponse, error) {
	pair, err := e.toCurrencyPair(order.Symbol)
	if err != nil {
		return nil, err
	}

	var side goexmodel.OrderSide
	var posSide string
	switch order.Side {
	case model.Buy:
		side = goexmodel.Futures_OpenBuy
		posSide = "long"
		if order.ReduceOnly {
			// 买入平仓：平掉空头持仓
			side = goexmodel.Futures_CloseSell
			posSide = "short"
		}
	case model.Sell:
		side = goexmodel.Futures_OpenSell
		posSide = "short"
		if order.ReduceOnly {
			// 卖出平仓：平掉多头持仓
			side = goexmodel.Futures_CloseBuy
			posSide = "long"
		}
	default:
		return nil, errors.New("invalid order side")
	}

	orderType := goexmodel.OrderType_Market
	if order.OrderType == model.Limit {
		orderType = goexmodel.OrderType_Limit
	}

	var opts []goexmodel.OptionParameter

	// okx v5 api要求带有止盈止损的开单必须放在attachAlgoOrds数组map中
	algo := make(map[string]string)
	if order.TPPrice > 0 {
		algo["tpTriggerPx"] = strconv.FormatFloat(order.TPPrice, 'f', -1, 64)
		algo["tpOrdPx"] = "-1" // -1 表示市价止盈
	}
	if order.SLPrice > 0 {
		algo["slTriggerPx"] = strconv.FormatFloat(order.SLPrice, 'f', -1, 64)
		algo["slOrdPx"] = "-1" // 市价止损
	}
	if len(algo) > 0 {
		tpSlJSON, err := jsonMarshalAlgo(algo)
		if err == nil {
			opts = append(opts, goexmodel.OptionParameter{Key: "attachAlgoOrds", Value: tpSlJSON})
		}
	}

	// 合约交易需要设置tdMode，这里统一使用逐仓
	opts = append(opts,
		goexmodel.OptionParameter{Key: "tdMode", Value: "isolated"},
		goexmodel.OptionParameter{Key: "posSide", Value: posSide},
	)

	if !order.ReduceOnly {
		leverage := order.Leverage
		if leverage <= 0 {
			leverage = 6
		}
		if err = e.setLeverage(pair.Symbol, leverage, posSide); err != nil {
			logger.Warnf("okx set leverage %s x%d: %v", pair.Symbol, leverage, err)
		}
	}

	created, _, err := e.prv.CreateOrder(pair, order.Quantity, order.Price, side, orderType, opts...)
	if err != nil {
		return nil, classifyOkx(err)
	}
	return &model.OrderResponse{
		OrderId: created.Id,
		Status:  int(created.Status),
	}, nil
}

// setLeverage 逐仓模式下必须指定posSide
func (e *Okx) setLeverage(instId string, leverage int, posSide string) error {
	okxPrv, ok := e.prv.(*futures.PrvApi)
	if !ok {
		return errors.New("leverage requires futures api")
	}
	opts := []goexmodel.OptionParameter{
		{Key: "mgnMode", Value: "isolated"},
		{Key: "posSide", Value: posSide},
	}
	_, err := okxPrv.SetLeverage(instId, strconv.Itoa(leverage), opts...)
	return err
}

func (e *Okx) GetOrderStatus(ctx context.Context, exchangeOrderID, symbol string) (*model.OrderStatus, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	info, _, err := e.prv.GetOrderInfo(pair, exchangeOrderID)
	if err != nil {
		return nil, classifyOkx(err)
	}
	return &model.OrderStatus{
		OrderID:   info.Id,
		Status:    mapOkxStatus(info.Status),
		Filled:    info.ExecutedQty,
		AvgPrice:  info.PriceAvg,
		Remaining: info.Qty - info.ExecutedQty,
	}, nil
}

func mapOkxStatus(s goexmodel.OrderStatus) string {
	switch s {
	case goexmodel.OrderStatus_Finished:
		return "filled"
	case goexmodel.OrderStatus_Canceled:
		return "canceled"
	default:
		return "new"
	}
}

// 只有合约才可以获取持仓数据
func (e *Okx) GetPosition(ctx context.Context, symbol string) (float64, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return 0, err
	}
	swap, ok := e.prv.(*futures.PrvApi)
	if !ok {
		return 0, errors.New("positions require futures api")
	}
	res, _, err := swap.GetPositions(pair)
	if err != nil {
		return 0, classifyOkx(err)
	}
	var total float64
	for _, re := range res {
		if re.Qty == 0 {
			// 没有张数的仓位忽略
			continue
		}
		switch re.PosSide {
		case goexmodel.Futures_OpenSell, goexmodel.Spot_Sell:
			total -= re.Qty
		default:
			total += re.Qty
		}
	}
	return total, nil
}

func (e *Okx) CancelOrder(ctx context.Context, exchangeOrderID, symbol string) error {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return err
	}
	_, err = e.prv.CancelOrder(pair, exchangeOrderID)
	return classifyOkx(err)
}

func (e *Okx) GetLastPrice(ctx context.Context, symbol string) (float64, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return 0, err
	}
	ticker, _, err := e.pub.GetTicker(pair)
	if err != nil {
		return 0, classifyOkx(err)
	}
	if ticker == nil {
		return 0, fmt.Errorf("%w: empty ticker for %s", ErrTransient, symbol)
	}
	return ticker.Last, nil
}

// RoundLot 按合约最小下单量向下取整
func (e *Okx) RoundLot(symbol string, quantity float64) float64 {
	step := e.minQty(symbol)
	if step <= 0 {
		step = 0.001
	}
	n := math.Floor(quantity/step + 1e-9)
	return math.Round(n*step*1e8) / 1e8
}

func (e *Okx) minQty(symbol string) float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.exInfo == nil {
		info, _, err := e.pub.GetExchangeInfo()
		if err != nil {
			logger.Warnf("okx exchange info: %v", err)
			return 0
		}
		e.exInfo = info
	}
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return 0
	}
	if p, ok := e.exInfo[pair.Symbol]; ok {
		return p.MinQty
	}
	return 0
}

func jsonMarshalAlgo(algo map[string]string) (string, error) {
	data, err := json.Marshal([]map[string]string{algo})
	return string(data), err
}

func (e *Okx) ListOpenOrderIDs(ctx context.Context, symbol string) ([]string, error) {
	pair, err := e.toCurrencyPair(symbol)
	if err != nil {
		return nil, err
	}
	pending, _, err := e.prv.GetPendingOrders(pair)
	if err != nil {
		return nil, classifyOkx(err)
	}
	ids := make([]string, 0, len(pending))
	for _, o := range pending {
		ids = append(ids, o.Id)
	}
	return ids, nil
}
