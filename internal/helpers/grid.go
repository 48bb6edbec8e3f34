package helpers

// GetSmartGrid returns a (rows, cols) layout for n display panels. Up to
// nine panels use fixed layouts; beyond that columns are capped at four.
func GetSmartGrid(n int) (rows, cols int) {
	switch {
	case n <= 1:
		return 1, 1
	case n <= 3:
		return 1, n
	case n == 4:
		return 2, 2
	case n <= 6:
		return 2, 3
	case n <= 9:
		return 3, 3
	}
	cols = min(4, max(1, isqrt(n)*3/2))
	return (n + cols - 1) / cols, cols
}

// isqrt returns the integer square root of n.
func isqrt(n int) int {
	if n <= 0 {
		return 0
	}
	x := n
	y := (x + 1) / 2
	for y < x {
		x = y
		y = (x + n/x) / 2
	}
	return x
}
