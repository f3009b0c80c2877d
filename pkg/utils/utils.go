package utils

import (
	"strings"
)

// FormatSymbol 将 TradingView ticker 转换为服务端统一的 BASE/QUOTE 形式，
// 各交易所适配层再按自己的习惯还原
func FormatSymbol(tvSymbol string) string {
	// 后缀 quote 币种列表
	quotes := []string{"USDT", "USD", "USDC"}

	for _, q := range quotes {
		if strings.HasSuffix(tvSymbol, q) {
			base := strings.TrimSuffix(tvSymbol, q)

			if strings.HasSuffix(base, "/") {
				return base + q
			}
			return base + "/" + q
		}
	}
	// 没匹配到就返回原始值
	return tvSymbol
}
