package protocol

import "strings"

// FTSAnyQuery builds an FTS5 MATCH expression that matches rows containing any
// of terms. Each term is double-quoted so FTS5 operators ("and", "or", "not",
// "near") are treated as plain words; embedded quotes are dropped. Returns ""
// when no usable term remains.
func FTSAnyQuery(terms []string) string {
	quoted := make([]string, 0, len(terms))
	for _, t := range terms {
		for _, w := range strings.Fields(t) {
			clean := strings.Map(func(r rune) rune {
				if r == '"' {
					return -1
				}
				return r
			}, w)
			if clean != "" {
				quoted = append(quoted, `"`+clean+`"`)
			}
		}
	}
	return strings.Join(quoted, " OR ")
}
