package model

import (
	"math"
	"testing"
)

func validRaw() map[string]any {
	return map[string]any{
		"close":    45123.45,
		"ema9":     "44900.10", // 字符串编码的数值也要能解析
		"rsi_fast": 68.2,
		"rsi_slow": 70.1,
		"momentum": 0.02,
	}
}

func TestParseIndicatorSnapshot(t *testing.T) {
	snap, err := ParseIndicatorSnapshot(validRaw())
	if err != nil {
		t.Fatalf("parse valid snapshot: %v", err)
	}
	if snap.Get(KeyClose) != 45123.45 {
		t.Errorf("close = %v", snap.Get(KeyClose))
	}
	if snap.Get(KeyEMAFast) != 44900.10 {
		t.Errorf("string-encoded ema9 = %v", snap.Get(KeyEMAFast))
	}
}

func TestParseIndicatorSnapshotMissingKey(t *testing.T) {
	for _, key := range RequiredIndicatorKeys {
		raw := validRaw()
		delete(raw, key)
		if _, err := ParseIndicatorSnapshot(raw); err == nil {
			t.Errorf("missing %q must fail", key)
		}
	}
}

func TestParseIndicatorSnapshotNonNumeric(t *testing.T) {
	raw := validRaw()
	raw["rsi_fast"] = "not-a-number"
	if _, err := ParseIndicatorSnapshot(raw); err == nil {
		t.Error("non-numeric value must fail")
	}
}

func TestSnapshotAccessors(t *testing.T) {
	snap := IndicatorSnapshot{"crossed_above_ema9": 1, "atr_pct": 0.012}
	if !snap.Bool(KeyCrossedAbove) {
		t.Error("crossed_above_ema9=1 should be true")
	}
	if snap.Bool(KeyCrossedBelow) {
		t.Error("absent key should be false")
	}
	if got := snap.GetOr("volume_ratio", 0); got != 0 {
		t.Errorf("absent volume_ratio = %v, want default 0", got)
	}
	if got := snap.GetOr("atr_pct", 9); got != 0.012 {
		t.Errorf("atr_pct = %v", got)
	}
}

func TestEMADiffPct(t *testing.T) {
	// 显式值优先
	snap := IndicatorSnapshot{KeyEMADiffPct: -0.42, KeyClose: 100, KeyEMAFast: 90}
	if got := snap.EMADiffPct(); got != -0.42 {
		t.Errorf("explicit ema_diff_pct = %v", got)
	}
	// 没有显式值时现算
	snap = IndicatorSnapshot{KeyClose: 45123.45, KeyEMAFast: 44900}
	want := (45123.45 - 44900) / 44900 * 100
	if got := snap.EMADiffPct(); math.Abs(got-want) > 1e-12 {
		t.Errorf("computed ema_diff_pct = %v, want %v", got, want)
	}
	// ema为0不能除零
	snap = IndicatorSnapshot{KeyClose: 100}
	if got := snap.EMADiffPct(); got != 0 {
		t.Errorf("zero ema diff = %v", got)
	}
}

func TestRawSignalSnapshotRoundTrip(t *testing.T) {
	r := &RawSignal{ID: "fp-1"}
	in := IndicatorSnapshot{"close": 100.5, "rsi_fast": 55}
	if err := r.SetSnapshot(in); err != nil {
		t.Fatal(err)
	}
	out, err := r.Snapshot()
	if err != nil {
		t.Fatal(err)
	}
	if out.Get("close") != 100.5 || out.Get("rsi_fast") != 55 {
		t.Errorf("snapshot round trip: %v", out)
	}
}

func TestDecodeQueueMessage(t *testing.T) {
	msg := QueueMessage{FilteredSignalID: 1234567890123}
	got, err := DecodeQueueMessage(msg.Encode())
	if err != nil {
		t.Fatal(err)
	}
	if got.FilteredSignalID != msg.FilteredSignalID {
		t.Errorf("decoded id = %d", got.FilteredSignalID)
	}

	if _, err := DecodeQueueMessage([]byte("{broken")); err == nil {
		t.Error("malformed payload must fail to decode")
	}
}
