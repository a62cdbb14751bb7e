package serp

import (
	"bytes"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/aluiziolira/go-price-scout/config"
	"github.com/aluiziolira/go-price-scout/models"
	"github.com/aluiziolira/go-price-scout/parser"
	"golang.org/x/net/html"
)

const (
	// CheckWebsite is the availability of every search-engine candidate; the
	// engine does not expose stock state.
	CheckWebsite = "Check website"

	// PriceOnSite marks a generic link whose price was not on the result page.
	PriceOnSite = "Price available on site"
)

// Result containers in the order they are tried. A node matched by an
// earlier selector is not visited again.
var shoppingContainers = []string{
	".sh-dgr__grid-result",
	".sh-pr__product-results",
	".sh-np__click-target",
	".pla-unit",
	".mnr-c",
	".aw5Odc",
	".sh-dlr__list-result",
	"[data-sh-pr]",
}

var shoppingNames = []string{
	".sh-np__product-title",
	".PLla-pc",
	"h3",
	".product-title",
	"[data-sh-p]",
	".sh-dlr__list-result-title",
	".a-size-base-plus",
	".a-size-mini",
	".translate-content",
	"h4",
	".title",
	"[aria-label]",
}

var shoppingPrices = []string{
	".a30cke",
	".g9WBQb",
	".sh-pr__price",
	".price",
	"[data-sh-p-price]",
	".a-price-whole",
	".a-offscreen",
	".notranslate",
	".currency",
	".amount",
}

var (
	priceAttrs     = []string{"data-sh-p-price", "data-price"}
	shoppingSeller = ".sh-np__seller-name, .merchant-name, .seller"
	shoppingRating = ".Rsc7Yb"

	genericLinks = `a[href*="amazon"], a[href*="ebay"], a[href*="walmart"], a[href*="shop"]`

	webBlocks  = ".g, .tF2Cxc"
	webSnippet = ".VwiC3b, .s, .st"
)

var ecommerceKeywords = []string{
	"buy", "price", "shop", "store", "cart", "purchase", "order",
	"sale", "deal", "offer", "discount", "$", "€", "£", "¥", "₹",
}

var marketplaceDomains = []string{
	"amazon", "ebay", "walmart", "target", "bestbuy", "shop", "store",
	"market", "mall", "flipkart", "alibaba", "etsy",
}

var titleNoise = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\s*-\s*Amazon.*$`),
	regexp.MustCompile(`(?i)\s*-\s*eBay.*$`),
	regexp.MustCompile(`\s*\|\s*.*$`),
	regexp.MustCompile(`(?i)Buy\s+`),
	regexp.MustCompile(`(?i)Shop\s+`),
}

func (e *Extractor) parseShopping(body []byte, country string) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	currency := config.CurrencyFor(country)
	now := e.now()
	seen := make(map[*html.Node]bool)
	var products []models.Product

	for _, container := range shoppingContainers {
		doc.Find(container).Each(func(_ int, s *goquery.Selection) {
			node := s.Get(0)
			if seen[node] {
				return
			}
			seen[node] = true

			name := shoppingName(s)
			price := shoppingPrice(s)
			link := e.resolve(hrefOf(s))
			if name == "" || price == "" || link == "" {
				return
			}

			p := models.Product{
				Name:         parser.Truncate(name, 200),
				Price:        parser.CleanPrice(price),
				Currency:     currency,
				Link:         link,
				Source:       parser.WebsiteName(link),
				Availability: CheckWebsite,
				Rating:       parser.NormalizeRating(firstNumber(s.Find(shoppingRating).First().Text())),
				ImageURL:     e.imageOf(s),
				Seller:       parser.CollapseSpace(s.Find(shoppingSeller).First().Text()),
				ExtractedAt:  now,
			}
			if parser.ValidateProduct(&p) == nil {
				products = append(products, p)
			}
		})
	}

	if len(products) > 0 {
		return products, nil
	}
	return e.parseGeneric(doc, currency), nil
}

// parseGeneric collects links to known storefronts when the page carries no
// recognisable shopping containers.
func (e *Extractor) parseGeneric(doc *goquery.Document, currency string) []models.Product {
	now := e.now()
	var products []models.Product

	doc.Find(genericLinks).Each(func(_ int, s *goquery.Selection) {
		text := parser.CollapseSpace(s.Text())
		n := utf8.RuneCountInString(text)
		if n <= 10 || n >= 200 {
			return
		}
		href, _ := s.Attr("href")
		link := e.resolve(href)
		if link == "" {
			return
		}
		products = append(products, models.Product{
			Name:         text,
			Price:        PriceOnSite,
			Currency:     currency,
			Link:         link,
			Source:       parser.WebsiteName(link),
			Availability: CheckWebsite,
			ExtractedAt:  now,
		})
	})
	return products
}

func (e *Extractor) parseWeb(body []byte, query, country string) ([]models.Product, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	currency := config.CurrencyFor(country)
	now := e.now()
	seen := make(map[string]bool)
	var products []models.Product

	doc.Find(webBlocks).Each(func(_ int, s *goquery.Selection) {
		title := parser.CollapseSpace(s.Find("h3").First().Text())
		href, _ := s.Find("a[href]").First().Attr("href")
		link := e.resolve(href)
		if title == "" || link == "" || seen[link] {
			return
		}
		snippet := parser.CollapseSpace(s.Find(webSnippet).First().Text())
		if !isEcommerce(title, snippet, link) {
			return
		}
		price := parser.FindPriceToken(snippet)
		if price == "" {
			return
		}
		seen[link] = true

		products = append(products, models.Product{
			Name:         NameFromTitle(title, query),
			Price:        parser.CleanPrice(price),
			Currency:     currency,
			Link:         link,
			Source:       parser.WebsiteName(link),
			Availability: CheckWebsite,
			ExtractedAt:  now,
		})
	})
	return products, nil
}

// NameFromTitle strips storefront suffixes and buying verbs from a result
// title, falling back to query when nothing is left.
func NameFromTitle(title, query string) string {
	name := title
	for _, re := range titleNoise {
		name = re.ReplaceAllString(name, "")
	}
	name = parser.CollapseSpace(name)
	if name == "" {
		return query
	}
	return parser.Truncate(name, 200)
}

func isEcommerce(title, snippet, link string) bool {
	text := strings.ToLower(title + " " + snippet)
	for _, kw := range ecommerceKeywords {
		if strings.Contains(text, kw) {
			return true
		}
	}
	lowerLink := strings.ToLower(link)
	for _, domain := range marketplaceDomains {
		if strings.Contains(lowerLink, domain) {
			return true
		}
	}
	return false
}

func shoppingName(s *goquery.Selection) string {
	for _, sel := range shoppingNames {
		if text := parser.CollapseSpace(s.Find(sel).First().Text()); utf8.RuneCountInString(text) > 3 {
			return text
		}
	}
	if label, ok := s.Attr("aria-label"); ok {
		if label = parser.CollapseSpace(label); utf8.RuneCountInString(label) > 3 {
			return label
		}
	}
	text := parser.CollapseSpace(s.Text())
	if n := utf8.RuneCountInString(text); n > 10 && n < 300 {
		return parser.Truncate(text, 100)
	}
	return ""
}

func shoppingPrice(s *goquery.Selection) string {
	for _, sel := range shoppingPrices {
		if text := parser.CollapseSpace(s.Find(sel).First().Text()); parser.LooksLikePrice(text) {
			return text
		}
	}
	for _, attr := range priceAttrs {
		if v, ok := s.Attr(attr); ok && parser.LooksLikePrice(v) {
			return strings.TrimSpace(v)
		}
	}
	return parser.FirstPriceMatch(s.Text())
}

// hrefOf returns the container's own href when it is an anchor, else the
// first descendant anchor's.
func hrefOf(s *goquery.Selection) string {
	if s.Is("a") {
		if href, ok := s.Attr("href"); ok {
			return href
		}
	}
	href, _ := s.Find("a[href]").First().Attr("href")
	return href
}

func (e *Extractor) imageOf(s *goquery.Selection) string {
	img := s.Find("img").First()
	for _, attr := range []string{"src", "data-src"} {
		if src, ok := img.Attr(attr); ok && strings.TrimSpace(src) != "" {
			return parser.ResolveImage(e.baseURL, src)
		}
	}
	return ""
}

// resolve unwraps engine redirects and makes the target absolute.
func (e *Extractor) resolve(href string) string {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(strings.ToLower(href), "javascript:") {
		return ""
	}
	return parser.ResolveLink(e.baseURL, parser.UnwrapRedirect(href))
}

var numberRe = regexp.MustCompile(`\d+(?:[.,]\d+)?`)

func firstNumber(text string) string {
	return strings.ReplaceAll(numberRe.FindString(text), ",", ".")
}
