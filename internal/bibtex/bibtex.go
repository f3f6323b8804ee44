// Package bibtex parses BibTeX bibliography files.
//
// The parser recovers from malformed entries: a broken entry is reported as
// a ParseError and parsing resumes at the next "@" that starts a line.
package bibtex

import (
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
)

// Entry is one bibliography record. Field names and Type are lower-case.
type Entry struct {
	Type   string
	Key    string
	Fields map[string]string
	Line   int
}

// Get returns a field value, or "" when absent.
func (e Entry) Get(field string) string {
	return e.Fields[strings.ToLower(field)]
}

// Has reports whether field is present and not blank.
func (e Entry) Has(field string) bool {
	return strings.TrimSpace(e.Get(field)) != ""
}

// ParseError reports an entry that could not be parsed.
type ParseError struct {
	Line int
	Key  string
	Msg  string
}

func (e *ParseError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("bibtex: line %d (%s): %s", e.Line, e.Key, e.Msg)
	}
	return fmt.Sprintf("bibtex: line %d: %s", e.Line, e.Msg)
}

// File is the outcome of parsing one bibliography.
type File struct {
	Entries []Entry
	Errors  []*ParseError
}

// commonStrings are the month macros every BibTeX style predefines.
var commonStrings = map[string]string{
	"jan": "January", "feb": "February", "mar": "March", "apr": "April",
	"may": "May", "jun": "June", "jul": "July", "aug": "August",
	"sep": "September", "oct": "October", "nov": "November", "dec": "December",
}

// Load reads and parses the file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("bibtex: read %s: %w", path, err)
	}
	return ParseString(string(data)), nil
}

// Parse reads r fully and parses it.
func Parse(r io.Reader) (*File, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("bibtex: read: %w", err)
	}
	return ParseString(string(data)), nil
}

// ParseString parses BibTeX source. It never fails as a whole; problems
// are collected in File.Errors.
func ParseString(src string) *File {
	p := &parser{src: src, macros: make(map[string]string)}
	for i := 0; i < len(src); i++ {
		if src[i] == '\n' {
			p.newlines = append(p.newlines, i)
		}
	}
	for k, v := range commonStrings {
		p.macros[k] = v
	}
	return p.run()
}

type parser struct {
	src      string
	pos      int
	newlines []int
	macros   map[string]string
}

type entryError struct {
	key string
	msg string
}

func (e *entryError) Error() string { return e.msg }

func (p *parser) run() *File {
	out := &File{}
	for {
		i := strings.IndexByte(p.src[p.pos:], '@')
		if i < 0 {
			return out
		}
		p.pos += i
		start := p.pos
		entry, err := p.entry()
		if err != nil {
			pe := &ParseError{Line: p.lineOf(start), Msg: err.Error()}
			if ee, ok := err.(*entryError); ok {
				pe.Key = ee.key
			}
			out.Errors = append(out.Errors, pe)
			p.pos = p.resync(start + 1)
			continue
		}
		if entry != nil {
			entry.Line = p.lineOf(start)
			out.Entries = append(out.Entries, *entry)
		}
	}
}

// entry parses the construct starting at the "@" under p.pos. A nil entry
// with a nil error means the construct carries no record (comments,
// preambles, string definitions, stray "@" characters).
func (p *parser) entry() (*Entry, error) {
	p.pos++
	p.skipSpace()
	kind := strings.ToLower(p.ident())
	if kind == "" {
		return nil, nil
	}
	p.skipSpace()
	if p.eof() || (p.peek() != '{' && p.peek() != '(') {
		return nil, nil
	}
	closer := byte('}')
	if p.peek() == '(' {
		closer = ')'
	}
	p.pos++

	switch kind {
	case "comment", "preamble":
		return nil, p.skipBalanced(closer)
	case "string":
		fields, err := p.fields(closer, "")
		if err != nil {
			return nil, err
		}
		for k, v := range fields {
			p.macros[k] = v
		}
		return nil, nil
	}

	key, err := p.key(closer)
	if err != nil {
		return nil, err
	}
	fields, err := p.fields(closer, key)
	if err != nil {
		return nil, err
	}
	return &Entry{Type: kind, Key: key, Fields: fields}, nil
}

func (p *parser) key(closer byte) (string, error) {
	p.skipSpace()
	start := p.pos
	for !p.eof() && p.peek() != ',' && p.peek() != closer {
		p.pos++
	}
	if p.eof() {
		return "", &entryError{msg: "unexpected end of input in citation key"}
	}
	key := strings.TrimSpace(p.src[start:p.pos])
	if key == "" || strings.ContainsAny(key, " \t\n\r{}\"=") {
		return "", &entryError{msg: fmt.Sprintf("invalid citation key %q", key)}
	}
	if p.peek() == ',' {
		p.pos++
	}
	return key, nil
}

func (p *parser) fields(closer byte, key string) (map[string]string, error) {
	fail := func(format string, args ...any) error {
		return &entryError{key: key, msg: fmt.Sprintf(format, args...)}
	}

	fields := make(map[string]string)
	for {
		p.skipSpace()
		if p.eof() {
			return nil, fail("unexpected end of input")
		}
		if p.peek() == closer {
			p.pos++
			return fields, nil
		}
		name := strings.ToLower(p.ident())
		if name == "" {
			return nil, fail("expected field name, found %q", p.peek())
		}
		p.skipSpace()
		if p.eof() || p.peek() != '=' {
			return nil, fail("expected '=' after field %q", name)
		}
		p.pos++
		val, err := p.value()
		if err != nil {
			return nil, fail("field %q: %v", name, err)
		}
		fields[name] = val

		p.skipSpace()
		switch {
		case p.eof():
			return nil, fail("unexpected end of input")
		case p.peek() == ',':
			p.pos++
		case p.peek() == closer:
			p.pos++
			return fields, nil
		default:
			return nil, fail("expected ',' or %q after field %q", closer, name)
		}
	}
}

// value parses a possibly "#"-concatenated field value.
func (p *parser) value() (string, error) {
	var b strings.Builder
	for {
		p.skipSpace()
		if p.eof() {
			return "", fmt.Errorf("missing value")
		}
		switch c := p.peek(); {
		case c == '{':
			p.pos++
			s, err := p.braced()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case c == '"':
			p.pos++
			s, err := p.quoted()
			if err != nil {
				return "", err
			}
			b.WriteString(s)
		case c >= '0' && c <= '9':
			start := p.pos
			for !p.eof() && p.peek() >= '0' && p.peek() <= '9' {
				p.pos++
			}
			b.WriteString(p.src[start:p.pos])
		default:
			name := p.ident()
			if name == "" {
				return "", fmt.Errorf("unexpected %q", c)
			}
			if v, ok := p.macros[strings.ToLower(name)]; ok {
				b.WriteString(v)
			} else {
				b.WriteString(name)
			}
		}
		p.skipSpace()
		if p.eof() || p.peek() != '#' {
			return strings.Join(strings.Fields(b.String()), " "), nil
		}
		p.pos++
	}
}

// braced returns the content up to the brace matching an already consumed
// "{". Inner braces are kept.
func (p *parser) braced() (string, error) {
	start, depth := p.pos, 1
	for ; !p.eof(); p.pos++ {
		switch p.peek() {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				s := p.src[start:p.pos]
				p.pos++
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("unbalanced braces")
}

func (p *parser) quoted() (string, error) {
	start, depth := p.pos, 0
	for ; !p.eof(); p.pos++ {
		switch p.peek() {
		case '{':
			depth++
		case '}':
			depth--
		case '"':
			if depth == 0 {
				s := p.src[start:p.pos]
				p.pos++
				return s, nil
			}
		}
	}
	return "", fmt.Errorf("unterminated string")
}

func (p *parser) skipBalanced(closer byte) error {
	opener := byte('{')
	if closer == ')' {
		opener = '('
	}
	depth := 1
	for ; !p.eof(); p.pos++ {
		switch p.peek() {
		case opener:
			depth++
		case closer:
			depth--
			if depth == 0 {
				p.pos++
				return nil
			}
		}
	}
	return &entryError{msg: "unexpected end of input"}
}

func (p *parser) ident() string {
	start := p.pos
	for !p.eof() {
		c := p.peek()
		if c <= ' ' || strings.IndexByte(`{}(),="#%'@`, c) >= 0 {
			break
		}
		p.pos++
	}
	return p.src[start:p.pos]
}

// resync returns the offset of the next "@" that begins a line.
func (p *parser) resync(from int) int {
	for from < len(p.src) {
		i := strings.IndexByte(p.src[from:], '@')
		if i < 0 {
			return len(p.src)
		}
		at := from + i
		lineStart := strings.LastIndexByte(p.src[:at], '\n') + 1
		if strings.TrimSpace(p.src[lineStart:at]) == "" {
			return at
		}
		from = at + 1
	}
	return len(p.src)
}

func (p *parser) lineOf(pos int) int {
	return sort.SearchInts(p.newlines, pos) + 1
}

func (p *parser) skipSpace() {
	for !p.eof() && (p.peek() == ' ' || p.peek() == '\t' || p.peek() == '\n' || p.peek() == '\r') {
		p.pos++
	}
}

func (p *parser) peek() byte { return p.src[p.pos] }

func (p *parser) eof() bool { return p.pos >= len(p.src) }
