package config

import "strings"

// Country is an entry of the supported-country catalogue.
type Country struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// SupportedCountries is every country a request may target. Countries without
// configured storefronts are served by the search engine or the international
// fallback sites.
var SupportedCountries = []Country{
	{"US", "United States"}, {"IN", "India"}, {"GB", "United Kingdom"},
	{"DE", "Germany"}, {"CA", "Canada"}, {"AU", "Australia"}, {"JP", "Japan"},
	{"FR", "France"}, {"IT", "Italy"}, {"ES", "Spain"}, {"NL", "Netherlands"},
	{"BE", "Belgium"}, {"CH", "Switzerland"}, {"AT", "Austria"}, {"SE", "Sweden"},
	{"NO", "Norway"}, {"DK", "Denmark"}, {"FI", "Finland"}, {"BR", "Brazil"},
	{"MX", "Mexico"}, {"AR", "Argentina"}, {"CN", "China"}, {"KR", "South Korea"},
	{"SG", "Singapore"}, {"MY", "Malaysia"}, {"TH", "Thailand"}, {"ID", "Indonesia"},
	{"PH", "Philippines"}, {"VN", "Vietnam"}, {"AE", "United Arab Emirates"},
	{"SA", "Saudi Arabia"}, {"EG", "Egypt"}, {"ZA", "South Africa"}, {"NG", "Nigeria"},
	{"KE", "Kenya"}, {"NZ", "New Zealand"}, {"RU", "Russia"}, {"PL", "Poland"},
	{"CZ", "Czech Republic"}, {"HU", "Hungary"}, {"RO", "Romania"}, {"GR", "Greece"},
	{"PT", "Portugal"}, {"IE", "Ireland"}, {"IL", "Israel"}, {"TR", "Turkey"},
	{"CL", "Chile"}, {"CO", "Colombia"}, {"PE", "Peru"}, {"UY", "Uruguay"},
	{"EC", "Ecuador"}, {"PY", "Paraguay"}, {"BO", "Bolivia"}, {"VE", "Venezuela"},
}

// IsSupportedCountry reports whether code is in the catalogue.
func IsSupportedCountry(code string) bool {
	code = strings.ToUpper(code)
	for _, c := range SupportedCountries {
		if c.Code == code {
			return true
		}
	}
	return false
}

// Locale is how the search engine is addressed for a country.
type Locale struct {
	EngineCountry string
	Language      string
}

var locales = map[string]Locale{
	"US": {"us", "en"}, "IN": {"in", "en"}, "GB": {"uk", "en"}, "DE": {"de", "de"},
	"FR": {"fr", "fr"}, "CA": {"ca", "en"}, "AU": {"au", "en"}, "JP": {"jp", "ja"},
	"IT": {"it", "it"}, "ES": {"es", "es"}, "NL": {"nl", "nl"}, "BR": {"br", "pt"},
}

// LocaleFor returns the engine locale for country, US English when unmapped.
func LocaleFor(country string) Locale {
	if l, ok := locales[strings.ToUpper(country)]; ok {
		return l
	}
	return locales["US"]
}

var currencies = map[string]string{
	"US": "USD", "CA": "CAD", "GB": "GBP", "DE": "EUR", "FR": "EUR", "IT": "EUR",
	"ES": "EUR", "NL": "EUR", "IN": "INR", "JP": "JPY", "AU": "AUD", "BR": "BRL",
}

// CurrencyFor returns the currency code of country, USD when unmapped.
func CurrencyFor(country string) string {
	if c, ok := currencies[strings.ToUpper(country)]; ok {
		return c
	}
	return "USD"
}

var marketplaces = map[string][]string{
	"US": {"amazon.com", "ebay.com", "walmart.com", "target.com", "bestbuy.com"},
	"IN": {"amazon.in", "flipkart.com", "snapdeal.com", "myntra.com"},
	"GB": {"amazon.co.uk", "ebay.co.uk", "argos.co.uk", "currys.co.uk"},
	"DE": {"amazon.de", "otto.de", "zalando.de", "mediamarkt.de"},
	"FR": {"amazon.fr", "cdiscount.com", "fnac.com", "darty.com"},
	"CA": {"amazon.ca", "bestbuy.ca", "canadiantire.ca"},
	"AU": {"amazon.com.au", "ebay.com.au", "jbhifi.com.au"},
	"JP": {"amazon.co.jp", "rakuten.co.jp", "yahoo.co.jp"},
}

// MarketplacesFor lists the popular storefront domains of country, falling
// back to the US list.
func MarketplacesFor(country string) []string {
	if m, ok := marketplaces[strings.ToUpper(country)]; ok {
		return m
	}
	return marketplaces["US"]
}
