package utils

import (
	"strings"

	"github.com/shopspring/decimal"
)

// TinybarsPerHbar 1 HBAR = 10^8 tinybars
const TinybarsPerHbar = 8

// FormatAmount 将链上原始整数金额按 decimals 转换为十进制数值
// 全程基于字符串拼接小数点，不经过 float64，超过 2^53 的余额也不会丢精度
// raw 为空、为 0 或不是合法整数时返回 0
func FormatAmount(raw string, decimals uint32) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}

	negative := false
	switch raw[0] {
	case '-':
		negative = true
		raw = raw[1:]
	case '+':
		raw = raw[1:]
	}
	if raw == "" || !isDigits(raw) {
		return decimal.Zero
	}

	magnitude := strings.TrimLeft(raw, "0")
	if magnitude == "" {
		return decimal.Zero
	}

	d := int(decimals)
	// 补前导零，保证整数部分至少一位
	if len(magnitude) <= d {
		magnitude = strings.Repeat("0", d-len(magnitude)+1) + magnitude
	}

	var sb strings.Builder
	sb.Grow(len(magnitude) + 2)
	if negative {
		sb.WriteByte('-')
	}
	sb.WriteString(magnitude[:len(magnitude)-d])
	if d > 0 {
		sb.WriteByte('.')
		sb.WriteString(magnitude[len(magnitude)-d:])
	}

	value, err := decimal.NewFromString(sb.String())
	if err != nil {
		return decimal.Zero
	}
	return value
}

// TinybarsToHbar 手续费从 tinybar 转为 HBAR
func TinybarsToHbar(fee int64) decimal.Decimal {
	return decimal.New(fee, -TinybarsPerHbar)
}

func isDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
