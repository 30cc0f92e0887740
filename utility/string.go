package utility

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

func NewUUID() string {
	return uuid.New().String()
}

// FormatBRL renders an amount like 10.5 as "R$ 10,50"
func FormatBRL(amount float64) string {
	s := decimal.NewFromFloat(amount).StringFixed(2)
	return "R$ " + strings.Replace(s, ".", ",", 1)
}

// Truncate cuts s to at most n characters
func Truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
