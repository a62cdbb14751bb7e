package aggregator

import "github.com/aluiziolira/go-price-scout/config"

// CountryInfo describes a supported country and who would serve it.
type CountryInfo struct {
	Code     string   `json:"code"`
	Name     string   `json:"name"`
	Websites []string `json:"websites"`
}

// SupportedCountries lists every supported country with the sources a search
// would use under the current mode.
func (s *Service) SupportedCountries() []CountryInfo {
	engine := s.useEngine("")
	out := make([]CountryInfo, 0, len(config.SupportedCountries))
	for _, c := range config.SupportedCountries {
		info := CountryInfo{Code: c.Code, Name: c.Name}
		if engine {
			info.Websites = []string{SourceShopping, SourceWeb}
		} else {
			for _, site := range s.sitesFor(c.Code) {
				info.Websites = append(info.Websites, site.Name)
			}
		}
		if info.Websites == nil {
			info.Websites = []string{}
		}
		out = append(out, info)
	}
	return out
}
