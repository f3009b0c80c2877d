package exchange

import (
	"context"
	"errors"
	"testing"

	"signalflow/internal/model"
)

func TestSimulatedPlaceAndStatus(t *testing.T) {
	s := NewSimulated()
	s.SetPrice("BTCUSDT", 45000)

	order := &model.Order{
		Symbol:    "BTCUSDT",
		Side:      model.Buy,
		Quantity:  0.5,
		OrderType: model.Market,
	}
	resp, err := s.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatalf("place order: %v", err)
	}
	if resp.OrderId == "" {
		t.Fatal("empty exchange order id")
	}

	st, err := s.GetOrderStatus(context.Background(), resp.OrderId, "BTCUSDT")
	if err != nil {
		t.Fatal(err)
	}
	if st.Status != "filled" {
		t.Errorf("status = %s, want filled", st.Status)
	}
	if st.AvgPrice != 45000 {
		t.Errorf("market order fills at last price, got %v", st.AvgPrice)
	}
	if st.Filled != 0.5 {
		t.Errorf("filled = %v", st.Filled)
	}
}

func TestSimulatedLimitFillPrice(t *testing.T) {
	s := NewSimulated()
	s.SetPrice("BTCUSDT", 45000)

	order := &model.Order{
		Symbol:    "BTCUSDT",
		Side:      model.Buy,
		Quantity:  1,
		Price:     44800,
		OrderType: model.Limit,
	}
	resp, err := s.PlaceOrder(context.Background(), order)
	if err != nil {
		t.Fatal(err)
	}
	st, _ := s.GetOrderStatus(context.Background(), resp.OrderId, "BTCUSDT")
	if st.AvgPrice != 44800 {
		t.Errorf("limit order fills at limit price, got %v", st.AvgPrice)
	}
}

func TestSimulatedFailNext(t *testing.T) {
	s := NewSimulated()
	injected := errors.New("boom")
	s.FailNext(injected)

	order := &model.Order{Symbol: "ETHUSDT", Quantity: 1, OrderType: model.Market}
	if _, err := s.PlaceOrder(context.Background(), order); !errors.Is(err, injected) {
		t.Errorf("first place = %v, want injected error", err)
	}
	// 故障只消耗一次
	if _, err := s.PlaceOrder(context.Background(), order); err != nil {
		t.Errorf("second place = %v, want nil", err)
	}
}

func TestSimulatedCancelAndLookupMiss(t *testing.T) {
	s := NewSimulated()
	if _, err := s.GetOrderStatus(context.Background(), "missing", "BTCUSDT"); err == nil {
		t.Error("unknown order id must error")
	}
	if err := s.CancelOrder(context.Background(), "missing", "BTCUSDT"); err == nil {
		t.Error("cancel of unknown order must error")
	}

	resp, _ := s.PlaceOrder(context.Background(), &model.Order{Symbol: "BTCUSDT", Quantity: 1, OrderType: model.Market})
	if err := s.CancelOrder(context.Background(), resp.OrderId, "BTCUSDT"); err != nil {
		t.Fatal(err)
	}
	st, _ := s.GetOrderStatus(context.Background(), resp.OrderId, "BTCUSDT")
	if st.Status != "canceled" {
		t.Errorf("status after cancel = %s", st.Status)
	}
}

func TestSimulatedRoundLot(t *testing.T) {
	s := NewSimulated()
	s.SetLotStep(0.001)

	cases := []struct {
		in, want float64
	}{
		{0.12345, 0.123},
		{0.1239999, 0.123},
		// 100*0.3 在浮点里是 30.000000000000004，取整后必须精确回到30
		{100 * 0.3, 30},
		{0.0009, 0},
		{1, 1},
	}
	for _, c := range cases {
		if got := s.RoundLot("BTCUSDT", c.in); got != c.want {
			t.Errorf("RoundLot(%v) = %v, want %v", c.in, got, c.want)
		}
	}

	s.SetLotStep(0)
	if got := s.RoundLot("BTCUSDT", 0.12345); got != 0.12345 {
		t.Errorf("zero step must pass through, got %v", got)
	}
}
