package consolidate

import (
	"regexp"
	"strings"
	"unicode"

	"go.uber.org/zap"

	"glyphos/pkg/protocol"
	"glyphos/pkg/textnorm"
)

// Noise flags. Any flag puts a glyph up for review; only strict-dup groups
// are archived without one.
const (
	FlagLongName        = "long-name"
	FlagNameChars       = "name-chars"
	FlagLongDescription = "long-description"
	FlagManyNewlines    = "many-newlines"
	FlagNonAlnum        = "non-alnum"
	FlagBoilerplate     = "boilerplate"
	FlagDuplicate       = "duplicate"
)

const (
	maxNameLength        = 60
	maxDescriptionLength = 1000
	maxDescriptionLines  = 6
	maxNonAlnumRatio     = 0.20
)

// Detector applies the noise heuristics.
type Detector struct {
	boiler []*regexp.Regexp
}

// NewDetector compiles the boilerplate patterns (case-insensitive). Bad
// patterns are logged and skipped.
func NewDetector(patterns []string, log *zap.Logger) *Detector {
	d := &Detector{}
	for _, p := range patterns {
		re, err := regexp.Compile("(?i)" + p)
		if err != nil {
			if log != nil {
				log.Warn("ignoring boilerplate pattern", zap.String("pattern", p), zap.Error(err))
			}
			continue
		}
		d.boiler = append(d.boiler, re)
	}
	return d
}

// Flags returns the noise flags of g in a fixed order. groupSize is the
// number of active glyphs sharing g's normalized key.
func (d *Detector) Flags(g protocol.Glyph, groupSize int) []string {
	var flags []string
	if len([]rune(g.Name)) > maxNameLength {
		flags = append(flags, FlagLongName)
	}
	if hasBadNameChars(g.Name) {
		flags = append(flags, FlagNameChars)
	}
	if len([]rune(g.Description)) > maxDescriptionLength {
		flags = append(flags, FlagLongDescription)
	}
	if strings.Count(g.Description, "\n") > maxDescriptionLines {
		flags = append(flags, FlagManyNewlines)
	}
	if textnorm.NonAlnumRatio(g.Name) > maxNonAlnumRatio {
		flags = append(flags, FlagNonAlnum)
	}
	if d.boilerplate(g.Name) || d.boilerplate(g.Description) {
		flags = append(flags, FlagBoilerplate)
	}
	if groupSize > 1 {
		flags = append(flags, FlagDuplicate)
	}
	return flags
}

func (d *Detector) boilerplate(s string) bool {
	if s == "" {
		return false
	}
	for _, re := range d.boiler {
		if re.MatchString(s) {
			return true
		}
	}
	return false
}

func hasBadNameChars(name string) bool {
	return strings.IndexFunc(name, func(r rune) bool {
		switch r {
		case '\t', '[', ']', '{', '}', '(', ')', '<', '>':
			return true
		}
		return unicode.IsControl(r)
	}) >= 0
}
