// Package extract finds URLs in free text.
package extract

import (
	"strings"

	"mvdan.cc/xurls/v2"
)

var strict = xurls.Strict()

// Replacer rewrites an extracted URL. root is the file or database the text
// came from.
type Replacer func(url, root string) string

// Apply runs r on url, or returns url unchanged when r is nil.
func (r Replacer) Apply(url, root string) string {
	if r == nil {
		return url
	}
	return r(url, root)
}

// URLs returns the URLs with an explicit scheme found in text, in order of
// first appearance and without duplicates.
func URLs(text string) []string {
	matches := strict.FindAllString(text, -1)
	if len(matches) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(matches))
	out := make([]string, 0, len(matches))
	for _, m := range matches {
		m = strings.TrimRight(m, ".,;:!?'\"")
		if m == "" {
			continue
		}
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// Unescape decodes the valid %XX escapes in s and leaves malformed ones
// as they are. Byte sequences that do not form UTF-8 become U+FFFD.
func Unescape(s string) string {
	if !strings.Contains(s, "%") {
		return s
	}
	buf := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		if s[i] == '%' && i+2 < len(s) && isHex(s[i+1]) && isHex(s[i+2]) {
			buf = append(buf, unhex(s[i+1])<<4|unhex(s[i+2]))
			i += 2
			continue
		}
		buf = append(buf, s[i])
	}
	return strings.ToValidUTF8(string(buf), "\uFFFD")
}

func isHex(c byte) bool {
	return '0' <= c && c <= '9' || 'a' <= c && c <= 'f' || 'A' <= c && c <= 'F'
}

func unhex(c byte) byte {
	switch {
	case c >= 'a':
		return c - 'a' + 10
	case c >= 'A':
		return c - 'A' + 10
	}
	return c - '0'
}
