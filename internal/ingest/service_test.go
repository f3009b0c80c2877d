package ingest

import (
	"testing"
	"time"

	"signalflow/internal/model"
)

// 40根缓慢上行的K线，长度足够算出全部快照键
func trendingKlines() []model.Kline {
	base := time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC)
	klines := make([]model.Kline, 40)
	price := 45000.0
	for i := range klines {
		price += 20
		klines[i] = model.Kline{
			Timestamp: base.Add(time.Duration(i) * 15 * time.Minute),
			Open:      price - 10,
			Close:     price,
			High:      price + 15,
			Low:       price - 25,
			Vol:       100,
		}
	}
	return klines
}

func TestBuildSnapshotFromIndicators(t *testing.T) {
	req := &model.WebhookRequest{
		ID:     "sig-1",
		Symbol: "BTCUSDT",
		Close:  45123.45,
		Indicators: map[string]any{
			model.KeyEMAFast:  44987.12,
			model.KeyRSIFast:  68,
			model.KeyRSISlow:  70,
			model.KeyMomentum: 0.02,
		},
	}
	snap, err := buildSnapshot(req)
	if err != nil {
		t.Fatalf("buildSnapshot() error = %v", err)
	}
	// close没在指标里，必须从请求顶层补上
	if got := snap.Get(model.KeyClose); got != 45123.45 {
		t.Errorf("close = %v, want 45123.45", got)
	}
	if got := snap.Get(model.KeyRSIFast); got != 68 {
		t.Errorf("rsi_fast = %v, want 68", got)
	}
}

// 信号源只给K线时服务端现算指标
func TestBuildSnapshotFromKlines(t *testing.T) {
	klines := trendingKlines()
	req := &model.WebhookRequest{
		ID:     "sig-2",
		Symbol: "BTCUSDT",
		Close:  klines[len(klines)-1].Close,
		Klines: klines,
		Indicators: map[string]any{
			// K线推不出来的环境指标透传
			model.KeyFearGreed: 55,
		},
	}
	snap, err := buildSnapshot(req)
	if err != nil {
		t.Fatalf("buildSnapshot() error = %v", err)
	}

	if got := snap.Get(model.KeyClose); got != klines[len(klines)-1].Close {
		t.Errorf("close = %v, want last kline close %v", got, klines[len(klines)-1].Close)
	}
	for _, key := range model.RequiredIndicatorKeys {
		if !snap.Has(key) {
			t.Errorf("computed snapshot missing %q", key)
		}
	}
	if got := snap.Get(model.KeyFearGreed); got != 55 {
		t.Errorf("fear_greed = %v, passthrough lost", got)
	}
	// 持续上行序列RSI必然偏高
	if got := snap.Get(model.KeyRSIFast); got <= 50 {
		t.Errorf("rsi_fast = %v on an uptrend, want > 50", got)
	}
}

// 指标残缺但带了K线，退回K线现算而不是拒绝
func TestBuildSnapshotFallsBackOnPartialIndicators(t *testing.T) {
	klines := trendingKlines()
	req := &model.WebhookRequest{
		ID:     "sig-3",
		Symbol: "BTCUSDT",
		Close:  klines[len(klines)-1].Close,
		Klines: klines,
		Indicators: map[string]any{
			model.KeyRSIFast: 68, // 缺其余必备键
		},
	}
	snap, err := buildSnapshot(req)
	if err != nil {
		t.Fatalf("buildSnapshot() error = %v", err)
	}
	for _, key := range model.RequiredIndicatorKeys {
		if !snap.Has(key) {
			t.Errorf("fallback snapshot missing %q", key)
		}
	}
}

func TestBuildSnapshotRejectsEmptyRequest(t *testing.T) {
	req := &model.WebhookRequest{ID: "sig-4", Symbol: "BTCUSDT", Close: 45000}
	if _, err := buildSnapshot(req); err == nil {
		t.Fatal("request with neither indicators nor klines must be rejected")
	}
}

func TestBuildSnapshotRejectsBadIndicatorsWithoutKlines(t *testing.T) {
	req := &model.WebhookRequest{
		ID:         "sig-5",
		Symbol:     "BTCUSDT",
		Close:      45000,
		Indicators: map[string]any{model.KeyRSIFast: "not-a-number"},
	}
	if _, err := buildSnapshot(req); err == nil {
		t.Fatal("non-numeric indicators without klines must be rejected")
	}
}
