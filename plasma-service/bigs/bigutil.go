package bigs

import "math/big"

func Equal(a *big.Int, b *big.Int) bool {
	return a.Cmp(b) == 0
}

func IsZero(val *big.Int) bool {
	return val == nil || val.Sign() == 0
}

func IsPositive(val *big.Int) bool {
	return val != nil && val.Sign() > 0
}

// Add returns a+b without mutating either operand.
func Add(a, b *big.Int) *big.Int {
	return new(big.Int).Add(a, b)
}

// Sub returns a-b without mutating either operand.
func Sub(a, b *big.Int) *big.Int {
	return new(big.Int).Sub(a, b)
}

// Copy returns a fresh copy of v, treating nil as zero.
func Copy(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}
