package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "negative parallelism",
			mutate: func(cfg *Config) {
				cfg.Parallelism = -1
			},
			wantErr: "parallelism",
		},
		{
			name: "zero batch concurrency",
			mutate: func(cfg *Config) {
				cfg.BatchConcurrency = 0
			},
			wantErr: "batch concurrency",
		},
		{
			name: "empty search engine url",
			mutate: func(cfg *Config) {
				cfg.SearchEngineURL = ""
			},
			wantErr: "search engine URL",
		},
		{
			name: "invalid url format",
			mutate: func(cfg *Config) {
				cfg.SearchEngineURL = "http://"
			},
			wantErr: "search engine URL",
		},
		{
			name: "negative timeout",
			mutate: func(cfg *Config) {
				cfg.Timeout = -1 * time.Second
			},
			wantErr: "timeout",
		},
		{
			name: "oversample below one",
			mutate: func(cfg *Config) {
				cfg.OversampleFactor = 0.5
			},
			wantErr: "oversample",
		},
		{
			name: "cache without ttl",
			mutate: func(cfg *Config) {
				cfg.CacheSize = 10
				cfg.CacheTTL = 0
			},
			wantErr: "cache TTL",
		},
		{
			name: "api key without model",
			mutate: func(cfg *Config) {
				cfg.LLMAPIKey = "secret"
				cfg.LLMModel = ""
			},
			wantErr: "LLM model",
		},
		{
			name: "unknown output format",
			mutate: func(cfg *Config) {
				cfg.OutputFormat = "xml"
			},
			wantErr: "output format",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate, got %v", err)
	}
	if cfg.LowResultThreshold != 3 || cfg.BatchConcurrency != 5 {
		t.Fatalf("threshold/concurrency = %d/%d, want 3/5", cfg.LowResultThreshold, cfg.BatchConcurrency)
	}
	if cfg.CacheSize != 0 {
		t.Fatalf("result cache enabled by default (size %d)", cfg.CacheSize)
	}
}

func TestEnvHelpers(t *testing.T) {
	t.Setenv("PS_INT", "42")
	t.Setenv("PS_BAD_INT", "four")
	t.Setenv("PS_BOOL", "true")
	t.Setenv("PS_DUR", "1500ms")
	t.Setenv("PS_DUR_MS", "250")
	t.Setenv("PS_BLANK", "   ")

	if v, ok, err := EnvInt("PS_INT"); err != nil || !ok || v != 42 {
		t.Fatalf("EnvInt = %d, %v, %v", v, ok, err)
	}
	if _, _, err := EnvInt("PS_BAD_INT"); err == nil {
		t.Fatalf("expected error for non-numeric int")
	}
	if v, ok, err := EnvBool("PS_BOOL"); err != nil || !ok || !v {
		t.Fatalf("EnvBool = %v, %v, %v", v, ok, err)
	}
	if v, ok, err := EnvDuration("PS_DUR"); err != nil || !ok || v != 1500*time.Millisecond {
		t.Fatalf("EnvDuration = %v, %v, %v", v, ok, err)
	}
	if v, _, _ := EnvDuration("PS_DUR_MS"); v != 250*time.Millisecond {
		t.Fatalf("bare integer duration = %v, want 250ms", v)
	}
	if _, ok := EnvString("PS_BLANK"); ok {
		t.Fatalf("blank value should be treated as unset")
	}
	if _, ok := EnvString("PS_MISSING_KEY"); ok {
		t.Fatalf("missing key should be unset")
	}
}

func TestDefaultRegistry(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}

	us := reg.Sites("us")
	if len(us) == 0 {
		t.Fatalf("expected US sites")
	}
	if us[0].Name != "Amazon US" || !us[0].RequiresRender {
		t.Fatalf("unexpected first US site: %+v", us[0])
	}
	if us[0].RateInterval() != time.Second {
		t.Fatalf("rate interval = %v, want 1s", us[0].RateInterval())
	}

	// Anchored selector blocks are shared between storefronts.
	in := reg.Sites("IN")
	if len(in) == 0 || in[0].Selectors.Container != us[0].Selectors.Container {
		t.Fatalf("expected Amazon India to reuse Amazon selectors")
	}

	if len(reg.Sites("ZZ")) != 0 {
		t.Fatalf("unmapped country should have no sites")
	}

	for _, code := range reg.Countries() {
		if !IsSupportedCountry(code) {
			t.Fatalf("registry country %s is not in the supported catalogue", code)
		}
	}
}

func TestRegistrySitesReturnsCopy(t *testing.T) {
	reg, err := DefaultRegistry()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	sites := reg.Sites("US")
	sites[0].Name = "mutated"
	if reg.Sites("US")[0].Name == "mutated" {
		t.Fatalf("Sites must not expose registry storage")
	}
}

func TestParseRegistryRejectsInvalidSite(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name: "missing placeholder",
			yaml: `
XX:
  - name: Shop
    base_url: https://shop.test
    search_url: https://shop.test/s
    currency: USD
    selectors: {container: .c, name: .n, price: .p, link: a}
`,
			wantErr: "{query}",
		},
		{
			name: "relative base url",
			yaml: `
XX:
  - name: Shop
    base_url: /shop
    search_url: https://shop.test/s?q={query}
    currency: USD
    selectors: {container: .c, name: .n, price: .p, link: a}
`,
			wantErr: "base URL",
		},
		{
			name: "missing link selector",
			yaml: `
XX:
  - name: Shop
    base_url: https://shop.test
    search_url: https://shop.test/s?q={query}
    currency: USD
    selectors: {container: .c, name: .n, price: .p}
`,
			wantErr: "selectors are required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseRegistry([]byte(tt.yaml))
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Fatalf("expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestLoadRegistryFromFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sites.yaml")
	data := `
fr:
  - name: Shop FR
    base_url: https://shop.test
    search_url: https://shop.test/s?q={query}
    currency: EUR
    rate_limit_ms: 500
    selectors: {container: .c, name: .n, price: .p, link: a}
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	reg, err := LoadRegistry(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	sites := reg.Sites("FR")
	if len(sites) != 1 || sites[0].RateInterval() != 500*time.Millisecond {
		t.Fatalf("unexpected sites: %+v", sites)
	}
}

func TestCountryLookups(t *testing.T) {
	tests := []struct {
		country  string
		locale   Locale
		currency string
	}{
		{"US", Locale{"us", "en"}, "USD"},
		{"gb", Locale{"uk", "en"}, "GBP"},
		{"JP", Locale{"jp", "ja"}, "JPY"},
		{"DE", Locale{"de", "de"}, "EUR"},
		{"KE", Locale{"us", "en"}, "USD"},
	}
	for _, tt := range tests {
		t.Run(tt.country, func(t *testing.T) {
			if got := LocaleFor(tt.country); got != tt.locale {
				t.Fatalf("LocaleFor(%s) = %+v, want %+v", tt.country, got, tt.locale)
			}
			if got := CurrencyFor(tt.country); got != tt.currency {
				t.Fatalf("CurrencyFor(%s) = %s, want %s", tt.country, got, tt.currency)
			}
		})
	}

	if !IsSupportedCountry("ke") || IsSupportedCountry("ZZ") {
		t.Fatalf("unexpected supported-country result")
	}
	if got := MarketplacesFor("ZZ"); len(got) == 0 || got[0] != "amazon.com" {
		t.Fatalf("unmapped marketplaces should default to US, got %v", got)
	}
}
