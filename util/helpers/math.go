package helpers

import "golang.org/x/exp/constraints"

func Min[T constraints.Ordered](numbers ...T) T {
	min := numbers[0]
	for _, n := range numbers {
		if n < min {
			min = n
		}
	}
	return min
}

// CeilDiv returns a/b rounded towards positive infinity.
func CeilDiv[T constraints.Integer](a, b T) T {
	return (a + b - 1) / b
}
