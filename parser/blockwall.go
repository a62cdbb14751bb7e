package parser

import (
	"regexp"
	"strings"
)

// BlockDetector recognises pages served instead of results when a target
// flags the request as automated traffic.
type BlockDetector struct {
	patterns []*regexp.Regexp
}

// NewBlockDetector returns a detector with the default pattern set.
func NewBlockDetector() *BlockDetector {
	return &BlockDetector{
		patterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)unusual traffic`),
			regexp.MustCompile(`(?i)captcha`),
			regexp.MustCompile(`(?i)verify you are (?:a )?human`),
			regexp.MustCompile(`(?i)are you a robot`),
			regexp.MustCompile(`(?i)automated queries`),
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)\bblocked\b`),
		},
	}
}

// Blocked reports whether markup looks like a block wall, and the pattern
// that matched.
func (d *BlockDetector) Blocked(markup string) (bool, string) {
	if d == nil || strings.TrimSpace(markup) == "" {
		return false, ""
	}
	for _, p := range d.patterns {
		if p.MatchString(markup) {
			return true, p.String()
		}
	}
	return false, ""
}
