package escrow

import (
	"math"
	"math/bits"
)

// MaxAmount is the largest amount or running total the ledger accepts. The
// store keeps amounts as signed 64-bit integers, so anything above it could
// not be persisted once the funds had already moved.
const MaxAmount uint64 = math.MaxInt64

// checkedAdd returns a+b or ErrArithmeticOverflow when the sum wraps or
// exceeds MaxAmount.
func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 || sum > MaxAmount {
		return 0, ErrArithmeticOverflow
	}
	return sum, nil
}

// checkedSub returns a-b or ErrInsufficientBalance when b > a.
func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, ErrInsufficientBalance
	}
	return diff, nil
}

// SumAmounts adds amounts with overflow checking.
func SumAmounts(amounts ...uint64) (uint64, error) {
	var total uint64
	for _, a := range amounts {
		var err error
		if total, err = checkedAdd(total, a); err != nil {
			return 0, err
		}
	}
	return total, nil
}
