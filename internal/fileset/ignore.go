package fileset

import (
	"fmt"
	"path/filepath"
	"regexp"
	"strings"
)

// Matcher tests paths against ignore globs and the default ignore names.
type Matcher struct {
	rules []*regexp.Regexp
}

// NewMatcher compiles fnmatch-style patterns: "*" matches any run of
// characters including separators, "?" one character, "[...]" a class
// ("[!...]" negated).
func NewMatcher(patterns []string) (*Matcher, error) {
	m := &Matcher{}
	for _, p := range patterns {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		re, err := regexp.Compile("^" + globToRegex(p) + "$")
		if err != nil {
			return nil, fmt.Errorf("fileset: ignore pattern %q: %w", p, err)
		}
		m.rules = append(m.rules, re)
	}
	return m, nil
}

// Match reports whether path, or its base name, is ignored.
func (m *Matcher) Match(path string) bool {
	base := filepath.Base(path)
	for _, name := range DefaultIgnore {
		if base == name {
			return true
		}
	}
	for _, re := range m.rules {
		if re.MatchString(path) || re.MatchString(base) {
			return true
		}
	}
	return false
}

func globToRegex(pattern string) string {
	var b strings.Builder
	for i := 0; i < len(pattern); i++ {
		c := pattern[i]
		switch c {
		case '*':
			b.WriteString(".*")
		case '?':
			b.WriteString(".")
		case '[':
			end := strings.IndexByte(pattern[i+1:], ']')
			if end < 0 {
				b.WriteString(`\[`)
				continue
			}
			class := pattern[i+1 : i+1+end]
			if strings.HasPrefix(class, "!") {
				class = "^" + class[1:]
			}
			b.WriteString("[" + strings.ReplaceAll(class, `\`, `\\`) + "]")
			i += end + 1
		default:
			b.WriteString(regexp.QuoteMeta(string(c)))
		}
	}
	return b.String()
}
