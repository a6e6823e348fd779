package templating

// add returns a + b.
func add(a, b int) int {
	return a + b
}

// sub returns a - b.
func sub(a, b int) int {
	return a - b
}

// inc returns i + 1. Mostly used for "next page" links.
func inc(i int) int {
	return i + 1
}

// dec returns i - 1.
func dec(i int) int {
	return i - 1
}

// minInt returns the smaller of a and b.
func minInt(a, b int) int {
	return min(a, b)
}

// maxInt returns the larger of a and b.
func maxInt(a, b int) int {
	return max(a, b)
}
