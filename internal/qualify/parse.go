// Package qualify scores collected interview answers against the qualification criteria.
package qualify

import (
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

// Field is the parse result of one numeric answer.
// Value is 0 whenever the answer is absent or unparseable.
type Field struct {
	Raw     string
	Value   float64
	Present bool // an answer was collected
	Valid   bool // the answer yielded a number
}

// ParseNumber keeps only digits and decimal points and parses the remainder.
func ParseNumber(raw string, present bool) Field {
	f := Field{Raw: raw, Present: present}
	if !present {
		return f
	}
	var b strings.Builder
	for _, r := range raw {
		if (r >= '0' && r <= '9') || r == '.' {
			b.WriteRune(r)
		}
	}
	// "5 yrs." leaves a trailing dot behind
	digits := strings.Trim(b.String(), ".")
	if digits == "" {
		return f
	}
	v, err := strconv.ParseFloat(digits, 64)
	if err != nil {
		return f
	}
	f.Value, f.Valid = v, true
	return f
}

// ParseNotice parses a notice period and converts it to days.
func ParseNotice(raw string, present bool) Field {
	f := ParseNumber(raw, present)
	if !f.Valid {
		return f
	}
	lower := strings.ToLower(raw)
	switch {
	case strings.Contains(lower, "week"):
		f.Value *= 7
	case strings.Contains(lower, "month"):
		f.Value *= 30
	}
	return f
}

var ctcAmountRe = regexp.MustCompile(`(?:(?:rs\.?|inr|₹)\s*)?(\d+(?:\.\d+)?)(?:\s*(lakhs?|lacs?|lpa|l|thousand|k|rupees?|rs|inr)\b)?`)

// CTCAmount extracts the first amount in text and scales it to lakh.
// Thousands are divided by 100, and plain rupee figures of 1000 or more
// by 100000. Lakh units and small bare numbers are taken as lakh.
func CTCAmount(text string) (amount float64, unit string, ok bool) {
	m := ctcAmountRe.FindStringSubmatch(stripDigitGrouping(strings.ToLower(text)))
	if m == nil {
		return 0, "", false
	}
	amount, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, "", false
	}
	unit = m[2]
	switch {
	case unit == "thousand" || unit == "k":
		amount /= 100
	case (unit == "" || strings.HasPrefix(unit, "rupee") || unit == "rs" || unit == "inr") && amount >= 1000:
		amount /= 100000
	}
	return amount, unit, true
}

// ParseCTC parses a compensation answer in lakh, using the same units as
// the in-conversation range check.
func ParseCTC(raw string, present bool) Field {
	f := Field{Raw: raw, Present: present}
	if !present {
		return f
	}
	if v, _, ok := CTCAmount(raw); ok {
		f.Value, f.Valid = v, true
	}
	return f
}

// stripDigitGrouping removes commas used as thousands separators, e.g. 6,50,000.
func stripDigitGrouping(s string) string {
	rs := []rune(s)
	var b strings.Builder
	b.Grow(len(s))
	for i, r := range rs {
		if r == ',' && i > 0 && i+1 < len(rs) && unicode.IsDigit(rs[i-1]) && unicode.IsDigit(rs[i+1]) {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
