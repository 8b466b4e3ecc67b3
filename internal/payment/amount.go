package payment

import (
	"strings"

	"github.com/shopspring/decimal"
)

// 零小数位货币（最小单位即主单位）
var zeroDecimalCurrencies = map[string]struct{}{
	"BIF": {},
	"CLP": {},
	"DJF": {},
	"GNF": {},
	"JPY": {},
	"KMF": {},
	"KRW": {},
	"MGA": {},
	"PYG": {},
	"RWF": {},
	"UGX": {},
	"VND": {},
	"VUV": {},
	"XAF": {},
	"XOF": {},
	"XPF": {},
}

// IsZeroDecimalCurrency 货币是否零小数位
func IsZeroDecimalCurrency(currency string) bool {
	_, ok := zeroDecimalCurrencies[strings.ToUpper(strings.TrimSpace(currency))]
	return ok
}

// CurrencyScale 货币小数位数
func CurrencyScale(currency string) int {
	if IsZeroDecimalCurrency(currency) {
		return 0
	}
	return 2
}

// FormatMinorUnits 把最小单位金额格式化为主单位字符串（100 CNY 分 → "1.00"）。
func FormatMinorUnits(amount int64, currency string) string {
	scale := CurrencyScale(currency)
	return decimal.NewFromInt(amount).Shift(int32(-scale)).StringFixed(int32(scale))
}
