// services/amounts.go
package services

import (
	"math/big"

	"github.com/shopspring/decimal"
)

// FormatAmount renders base units as a decimal string with the token's
// decimals, e.g. 1500000 with 6 decimals is "1.5".
func FormatAmount(amount uint64, decimals int32) string {
	return decimal.NewFromBigInt(new(big.Int).SetUint64(amount), -decimals).String()
}
