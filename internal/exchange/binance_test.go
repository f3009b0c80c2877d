package exchange

import (
	"errors"
	"net"
	"testing"

	"github.com/adshao/go-binance/v2/common"
	"github.com/adshao/go-binance/v2/futures"
)

func TestClassify(t *testing.T) {
	if classify(nil) != nil {
		t.Error("nil error stays nil")
	}

	apiErr := &common.APIError{Code: -1111, Message: "Precision is over the maximum defined for this asset."}
	err := classify(apiErr)
	var rej *RejectedError
	if !errors.As(err, &rej) {
		t.Fatalf("api error must classify as rejection, got %v", err)
	}
	if errors.Is(err, ErrTransient) {
		t.Error("rejection must not look transient")
	}

	netErr := classify(&net.OpError{Op: "dial", Err: errors.New("connection refused")})
	if !errors.Is(netErr, ErrTransient) {
		t.Errorf("network error must classify as transient, got %v", netErr)
	}
	if errors.As(netErr, &rej) {
		t.Error("transient must not look like rejection")
	}
}

func TestMapBinanceStatus(t *testing.T) {
	cases := []struct {
		in   futures.OrderStatusType
		want string
	}{
		{futures.OrderStatusTypeFilled, "filled"},
		{futures.OrderStatusTypeCanceled, "canceled"},
		{futures.OrderStatusTypeExpired, "canceled"},
		{futures.OrderStatusTypeRejected, "rejected"},
		{futures.OrderStatusTypeNew, "new"},
		{futures.OrderStatusTypePartiallyFilled, "new"},
	}
	for _, c := range cases {
		if got := mapBinanceStatus(c.in); got != c.want {
			t.Errorf("mapBinanceStatus(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestBinanceSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTC/USDT", "BTCUSDT"},
		{"btc/usdt", "BTCUSDT"},
		{"ETHUSDT", "ETHUSDT"},
	}
	for _, c := range cases {
		if got := binanceSymbol(c.in); got != c.want {
			t.Errorf("binanceSymbol(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}

func TestFormatQty(t *testing.T) {
	cases := []struct {
		in   float64
		want string
	}{
		{0.5, "0.5"},
		{30, "30"},
		{0.001, "0.001"},
	}
	for _, c := range cases {
		if got := formatQty(c.in); got != c.want {
			t.Errorf("formatQty(%v) = %s, want %s", c.in, got, c.want)
		}
	}
}
