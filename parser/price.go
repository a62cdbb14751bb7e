package parser

import (
	"math"
	"regexp"
	"strconv"
	"strings"
)

var (
	priceNumberRe = regexp.MustCompile(`\d(?:[\d.,]*\d)?`)

	// looksLikePriceRe matches a currency symbol on either side of a number.
	looksLikePriceRe = regexp.MustCompile(`[$€£¥₹][\d,]+(?:\.\d{2})?|[\d,]+(?:\.\d{2})?\s*[$€£¥₹]`)

	// Ordered from most to least specific; the first match wins.
	priceTokenPatterns = []*regexp.Regexp{
		regexp.MustCompile(`\$[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`€[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`£[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`¥[\d,]+`),
		regexp.MustCompile(`₹[\d,]+(?:\.\d{2})?`),
		regexp.MustCompile(`[\d,]+(?:\.\d{2})?\s*[$€£¥₹]`),
	}
)

// LooksLikePrice reports whether text carries a currency symbol next to a
// number.
func LooksLikePrice(text string) bool {
	return looksLikePriceRe.MatchString(text)
}

// FirstPriceMatch returns the first currency-marked number in text.
func FirstPriceMatch(text string) string {
	return looksLikePriceRe.FindString(text)
}

// FindPriceToken scans free text for a price using the currency-specific
// patterns in order and returns the first match, or "".
func FindPriceToken(text string) string {
	for _, re := range priceTokenPatterns {
		if m := re.FindString(text); m != "" {
			return strings.TrimSpace(m)
		}
	}
	return ""
}

// ParsePrice extracts the numeric amount of a raw price string. It accepts
// US/UK grouping ("1,299.99"), European grouping ("1.299,99"), Indian
// grouping ("1,29,999") and decimal commas ("12,50"). The second return is
// false when no positive amount can be read.
func ParsePrice(text string) (float64, bool) {
	token := priceNumberRe.FindString(CleanPrice(text))
	if token == "" {
		return 0, false
	}
	value, err := strconv.ParseFloat(normalizeNumber(token), 64)
	if err != nil || value <= 0 || math.IsInf(value, 0) || math.IsNaN(value) {
		return 0, false
	}
	return value, true
}

func normalizeNumber(s string) string {
	lastComma := strings.LastIndex(s, ",")
	lastDot := strings.LastIndex(s, ".")

	switch {
	case lastComma >= 0 && lastDot >= 0:
		if lastComma > lastDot {
			s = strings.ReplaceAll(s, ".", "")
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastComma >= 0:
		if strings.Count(s, ",") == 1 && len(s)-lastComma-1 <= 2 {
			return strings.Replace(s, ",", ".", 1)
		}
		return strings.ReplaceAll(s, ",", "")
	case lastDot >= 0:
		if strings.Count(s, ".") > 1 {
			return strings.ReplaceAll(s, ".", "")
		}
	}
	return s
}

func parseFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
