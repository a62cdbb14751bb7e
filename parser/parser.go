// Package parser holds the text, price, link and rating normalisation shared by
// the site and search-engine extractors.
package parser

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/aluiziolira/go-price-scout/models"
)

const (
	maxNameRunes = 200

	// UnknownAvailability is used when a storefront exposes no stock text.
	UnknownAvailability = "Unknown"
)

var (
	whitespaceRe   = regexp.MustCompile(`\s+`)
	nameStripRe    = regexp.MustCompile(`[^\p{L}\p{N}_\s\-().]`)
	splitDigitsRe  = regexp.MustCompile(`(\d)\s+(\d)`)
	ratingRatioRe  = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(?:out of|/)\s*(\d+(?:\.\d+)?)`)
	ratingNumberRe = regexp.MustCompile(`\d+(?:\.\d+)?`)
)

// ValidateProduct ensures an extractor captured the mandatory fields.
func ValidateProduct(p *models.Product) error {
	if p == nil {
		return fmt.Errorf("product is nil")
	}
	if strings.TrimSpace(p.Name) == "" {
		return fmt.Errorf("product missing name")
	}
	if strings.TrimSpace(p.Price) == "" {
		return fmt.Errorf("product missing price for %s", p.Name)
	}
	if strings.TrimSpace(p.Link) == "" {
		return fmt.Errorf("product missing link for %s", p.Name)
	}
	return nil
}

// CollapseSpace trims text and folds whitespace runs into a single space.
func CollapseSpace(text string) string {
	return strings.TrimSpace(whitespaceRe.ReplaceAllString(text, " "))
}

// CleanName collapses whitespace, drops characters other than letters,
// digits, spaces, hyphens, parentheses and periods, and truncates the result
// to 200 characters.
func CleanName(name string) string {
	name = whitespaceRe.ReplaceAllString(name, " ")
	name = nameStripRe.ReplaceAllString(name, "")
	return Truncate(strings.TrimSpace(name), maxNameRunes)
}

// CleanPrice collapses whitespace and joins digits split by stray spaces, so
// "1 299.00" becomes "1299.00".
func CleanPrice(price string) string {
	price = CollapseSpace(price)
	for {
		next := splitDigitsRe.ReplaceAllString(price, "$1$2")
		if next == price {
			return price
		}
		price = next
	}
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

// NormalizeRating maps rating text onto a 0-5 scale. "X out of Y" and "X/Y"
// are rescaled; a bare number above 5 is read as a 10-point score. Nil means
// no rating could be read.
func NormalizeRating(text string) *float64 {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	if m := ratingRatioRe.FindStringSubmatch(text); m != nil {
		value, scale := parseFloat(m[1]), parseFloat(m[2])
		if scale > 0 {
			return ratingPtr(value * 5 / scale)
		}
	}

	if m := ratingNumberRe.FindString(text); m != "" {
		value := parseFloat(m)
		if value > 5 {
			value /= 2
		}
		return ratingPtr(value)
	}
	return nil
}

func ratingPtr(v float64) *float64 {
	if v < 0 {
		v = 0
	}
	if v > 5 {
		v = 5
	}
	return &v
}

// ResolveLink makes href absolute against baseURL. Absolute URLs pass
// through, protocol-relative ones get https, root-relative ones are joined to
// the base and anything else is treated as relative to the base.
func ResolveLink(baseURL, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	lower := strings.ToLower(href)
	switch {
	case strings.HasPrefix(lower, "http://"), strings.HasPrefix(lower, "https://"):
		return href
	case strings.HasPrefix(href, "//"):
		return "https:" + href
	}
	base := strings.TrimSuffix(baseURL, "/")
	if strings.HasPrefix(href, "/") {
		return base + href
	}
	return base + "/" + href
}

// ResolveImage resolves an image source like ResolveLink but leaves
// inline and relative sources untouched.
func ResolveImage(baseURL, src string) string {
	src = strings.TrimSpace(src)
	if src == "" {
		return ""
	}
	if strings.HasPrefix(src, "//") || (strings.HasPrefix(src, "/") && baseURL != "") {
		return ResolveLink(baseURL, src)
	}
	return src
}

// UnwrapRedirect returns the target of a search-engine "/url?q=" redirect, or
// href unchanged when it is not one.
func UnwrapRedirect(href string) string {
	if !strings.HasPrefix(href, "/url?") {
		return href
	}
	u, err := url.Parse(href)
	if err != nil {
		return href
	}
	if target := u.Query().Get("q"); target != "" {
		return target
	}
	if target := u.Query().Get("url"); target != "" {
		return target
	}
	return href
}

// WebsiteName derives a display name from a product link: the host without
// "www." and the ".com" or ".co.uk" suffix.
func WebsiteName(link string) string {
	u, err := url.Parse(link)
	if err != nil || u.Hostname() == "" {
		return "Unknown Store"
	}
	host := strings.TrimPrefix(strings.ToLower(u.Hostname()), "www.")
	host = strings.TrimSuffix(host, ".co.uk")
	host = strings.TrimSuffix(host, ".com")
	return host
}
