package validate

// ValidCPF reports whether doc is a CPF number with correct check digits.
// Digits may be grouped with the usual mask separators ("123.456.789-09").
// Sequences of a single repeated digit satisfy the checksum but are not issued
// and are rejected.
func ValidCPF(doc string) bool {
	digits := make([]int, 0, 11)
	for _, r := range doc {
		switch {
		case r >= '0' && r <= '9':
			digits = append(digits, int(r-'0'))
		case r == '.' || r == '-':
		default:
			return false
		}
	}
	if len(digits) != 11 {
		return false
	}

	repeated := true
	for _, d := range digits[1:] {
		if d != digits[0] {
			repeated = false
			break
		}
	}
	if repeated {
		return false
	}

	return cpfCheckDigit(digits[:9]) == digits[9] && cpfCheckDigit(digits[:10]) == digits[10]
}

// cpfCheckDigit computes the next check digit: weights run from len+1 down to 2.
func cpfCheckDigit(digits []int) int {
	sum := 0
	weight := len(digits) + 1
	for _, d := range digits {
		sum += d * weight
		weight--
	}
	r := sum * 10 % 11
	if r == 10 {
		return 0
	}
	return r
}
