package milestones

import "strconv"

// seqValueLimit bounds every generated sequence; nothing above it fits a unit
// range anyway.
const seqValueLimit int64 = 100_000_000_000

type integerSequence struct {
	name      string
	slug      string
	adjective string
	icon      string
	values    []int64
}

var integerSequences = []integerSequence{
	{name: "Fibonacci", slug: "fibonacci", adjective: "Fibonacci", icon: "🐚", values: fibonacciValues()},
	{name: "Lucas", slug: "lucas", adjective: "Lucas", icon: "🌀", values: lucasValues()},
	{name: "Perfect", slug: "perfect", adjective: "perfect", icon: "💯", values: perfectValues()},
	{name: "Triangular", slug: "triangular", adjective: "triangular", icon: "🔺", values: triangularValues()},
	{name: "Palindrome", slug: "palindrome", adjective: "palindromic", icon: "🪞", values: palindromeValues()},
	{name: "Repunit", slug: "repunit", adjective: "repunit", icon: "1️⃣", values: repunitValues()},
}

func fibonacciValues() []int64 {
	values := []int64{}
	previous, current := int64(1), int64(2)
	for current <= seqValueLimit {
		values = append(values, current)
		previous, current = current, previous+current
	}
	return values
}

func lucasValues() []int64 {
	values := []int64{}
	previous, current := int64(2), int64(1)
	for current <= seqValueLimit {
		if current > 2 {
			values = append(values, current)
		}
		previous, current = current, previous+current
	}
	return values
}

func perfectValues() []int64 {
	return []int64{6, 28, 496, 8128, 33_550_336, 8_589_869_056}
}

// triangularValues keeps the triangular numbers of round indexes; the full
// sequence is far too dense to be interesting past the first few terms.
func triangularValues() []int64 {
	indexes := []int64{10, 20, 50, 100, 200, 500, 1000, 2000, 5000, 10_000, 20_000, 50_000, 100_000}
	values := make([]int64, 0, len(indexes))
	for _, n := range indexes {
		values = append(values, n*(n+1)/2)
	}
	return values
}

// palindromeValues mirrors round half-values (d×10^k), which keeps the family
// sparse while still producing numbers like 1,002,001 and 50,000,005.
func palindromeValues() []int64 {
	var values []int64
	for digit := int64(1); digit <= 9; digit++ {
		half := digit
		for power := 0; power <= 5; power++ {
			for _, value := range []int64{mirror(half, true), mirror(half, false)} {
				if value > 10 && value <= seqValueLimit {
					values = append(values, value)
				}
			}
			half *= 10
		}
	}
	return values
}

// mirror reflects value around its last digit (odd=true) or appends the full
// reversed digits (odd=false).
func mirror(value int64, odd bool) int64 {
	digits := strconv.FormatInt(value, 10)
	result := value
	start := len(digits) - 1
	if odd {
		start = len(digits) - 2
	}
	for i := start; i >= 0; i-- {
		result = result*10 + int64(digits[i]-'0')
	}
	return result
}

func repunitValues() []int64 {
	values := []int64{}
	current := int64(11)
	for current <= seqValueLimit {
		values = append(values, current)
		current = current*10 + 1
	}
	return values
}
