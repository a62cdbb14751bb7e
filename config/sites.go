package config

import (
	_ "embed"
	"fmt"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/aluiziolira/go-price-scout/models"
	"gopkg.in/yaml.v3"
)

// QueryPlaceholder marks where the escaped product name goes in a search URL.
const QueryPlaceholder = "{query}"

//go:embed sites.yaml
var defaultSites []byte

// Registry maps an upper-case country code to its ordered storefronts.
type Registry map[string][]models.Site

// DefaultRegistry parses the embedded site registry.
func DefaultRegistry() (Registry, error) {
	return ParseRegistry(defaultSites)
}

// LoadRegistry reads a registry from path, or the embedded one when path is
// empty.
func LoadRegistry(path string) (Registry, error) {
	if path == "" {
		return DefaultRegistry()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read sites file %s: %w", path, err)
	}
	return ParseRegistry(data)
}

// ParseRegistry decodes and validates YAML registry data.
func ParseRegistry(data []byte) (Registry, error) {
	raw := make(map[string][]models.Site)
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse sites: %w", err)
	}

	reg := make(Registry, len(raw))
	for code, sites := range raw {
		code = strings.ToUpper(strings.TrimSpace(code))
		for i, site := range sites {
			if err := validateSite(site); err != nil {
				return nil, fmt.Errorf("site %s[%d]: %w", code, i, err)
			}
		}
		reg[code] = sites
	}
	return reg, nil
}

// Sites returns a copy of the storefronts configured for country.
func (r Registry) Sites(country string) []models.Site {
	sites := r[strings.ToUpper(country)]
	out := make([]models.Site, len(sites))
	copy(out, sites)
	return out
}

// Countries lists the configured country codes in order.
func (r Registry) Countries() []string {
	out := make([]string, 0, len(r))
	for code := range r {
		out = append(out, code)
	}
	sort.Strings(out)
	return out
}

func validateSite(s models.Site) error {
	if strings.TrimSpace(s.Name) == "" {
		return fmt.Errorf("name cannot be empty")
	}
	base, err := url.Parse(s.BaseURL)
	if err != nil || base.Host == "" {
		return fmt.Errorf("base URL %q must be absolute", s.BaseURL)
	}
	if !strings.Contains(s.SearchURL, QueryPlaceholder) {
		return fmt.Errorf("search URL must contain %s", QueryPlaceholder)
	}
	if s.Currency == "" {
		return fmt.Errorf("currency cannot be empty")
	}
	if s.RateLimitMs < 0 {
		return fmt.Errorf("rate limit cannot be negative")
	}
	sel := s.Selectors
	if sel.Container == "" || sel.Name == "" || sel.Price == "" || sel.Link == "" {
		return fmt.Errorf("container, name, price and link selectors are required")
	}
	return nil
}
