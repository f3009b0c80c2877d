package utils

import "testing"

func TestFormatSymbol(t *testing.T) {
	cases := []struct {
		in, want string
	}{
		{"BTCUSDT", "BTC/USDT"},
		{"ETHUSD", "ETH/USD"},
		{"SOLUSDC", "SOL/USDC"},
		{"BTC/USDT", "BTC/USDT"}, // 已经是规范形式
		{"BTCEUR", "BTCEUR"},     // 未知quote原样返回
	}
	for _, c := range cases {
		if got := FormatSymbol(c.in); got != c.want {
			t.Errorf("FormatSymbol(%s) = %s, want %s", c.in, got, c.want)
		}
	}
}
