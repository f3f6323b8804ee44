// Package org parses org-mode outline files into node trees: headings,
// property drawers, tags, bodies and file-level keywords.
package org

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"slices"
	"strings"
	"unicode/utf8"
)

var (
	headingRe  = regexp.MustCompile(`^(\*+)(?:[ \t]+(.*))?$`)
	keywordRe  = regexp.MustCompile(`^[ \t]*#\+([A-Za-z_][A-Za-z0-9_-]*):[ \t]*(.*?)[ \t]*$`)
	propertyRe = regexp.MustCompile(`^[ \t]*:([^\s:]+?)(\+)?:(?:[ \t]+(.*?))?[ \t]*$`)
	planningRe = regexp.MustCompile(`^[ \t]*(?:SCHEDULED|DEADLINE|CLOSED):`)
	tagsRe     = regexp.MustCompile(`(?:^|[ \t]+)(:(?:[\p{L}\p{N}_@#%]+:)+)[ \t]*$`)
	priorityRe = regexp.MustCompile(`^\[#[A-Za-z0-9]\][ \t]*`)
	drawerOpen = regexp.MustCompile(`(?i)^[ \t]*:PROPERTIES:[ \t]*$`)
	drawerEnd  = regexp.MustCompile(`(?i)^[ \t]*:END:[ \t]*$`)
)

var defaultTodoKeywords = []string{"TODO", "DONE"}

// ParseError reports a malformed org file.
type ParseError struct {
	Path string
	Line int
	Msg  string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("org: %s:%d: %s", e.Path, e.Line, e.Msg)
}

// Node is one heading of an outline, or the root section before the first
// heading.
type Node struct {
	Heading    string
	Level      int
	Line       int // 1-based heading line; 0 for the root
	Tags       []string
	Properties map[string]string // upper-cased keys
	Body       string
	Children   []*Node
	Parent     *Node

	doc *Document
}

// IsRoot reports whether n is the file's root section.
func (n *Node) IsRoot() bool {
	return n.Parent == nil
}

// Property returns the value of a property drawer entry. Keys are
// case-insensitive.
func (n *Node) Property(key string) (string, bool) {
	v, ok := n.Properties[strings.ToUpper(key)]
	return v, ok
}

// FileProperty returns a "#+KEY:" value of the file n belongs to.
func (n *Node) FileProperty(key string) (string, bool) {
	if n.doc == nil {
		return "", false
	}
	return n.doc.FileProperty(key)
}

// AllTags returns n's tags together with tags inherited from its ancestors
// and the file tags, sorted and deduplicated.
func (n *Node) AllTags() []string {
	var out []string
	for cur := n; cur != nil; cur = cur.Parent {
		out = append(out, cur.Tags...)
	}
	if n.doc != nil {
		out = append(out, n.doc.fileTags...)
	}
	slices.Sort(out)
	return slices.Compact(out)
}

// Document is a parsed org file.
type Document struct {
	Path string
	Root *Node

	fileProps map[string]string
	fileTags  []string
}

// FileProperty returns the first "#+KEY: value" in the file header.
// Keys are case-insensitive.
func (d *Document) FileProperty(key string) (string, bool) {
	v, ok := d.fileProps[strings.ToUpper(key)]
	return v, ok
}

// Load reads and parses the org file at path.
func Load(path string) (*Document, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("org: read %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// Parse reads r fully and parses it. path is only used in error messages.
func Parse(r io.Reader, path string) (*Document, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("org: read %s: %w", path, err)
	}
	return ParseBytes(data, path)
}

// ParseBytes parses org content.
func ParseBytes(data []byte, path string) (*Document, error) {
	data = bytes.ReplaceAll(data, []byte("\r\n"), []byte("\n"))
	lines := strings.Split(string(data), "\n")
	for i, l := range lines {
		if !utf8.ValidString(l) {
			return nil, &ParseError{Path: path, Line: i + 1, Msg: "invalid UTF-8"}
		}
	}

	p := &parser{
		path:  path,
		lines: lines,
		doc:   &Document{Path: path, fileProps: make(map[string]string)},
	}
	if err := p.parse(); err != nil {
		return nil, err
	}
	return p.doc, nil
}

type parser struct {
	path  string
	lines []string
	doc   *Document
	todo  map[string]struct{}
}

func (p *parser) parse() error {
	first := len(p.lines)
	for i, l := range p.lines {
		if headingRe.MatchString(l) {
			first = i
			break
		}
	}

	root := &Node{Properties: map[string]string{}, doc: p.doc}
	if err := p.parseRoot(root, p.lines[:first]); err != nil {
		return err
	}
	p.doc.Root = root

	p.todo = make(map[string]struct{})
	for _, kw := range defaultTodoKeywords {
		p.todo[kw] = struct{}{}
	}
	for _, key := range []string{"TODO", "SEQ_TODO", "TYP_TODO"} {
		if v, ok := p.doc.fileProps[key]; ok {
			for _, kw := range strings.Fields(v) {
				if kw == "|" {
					continue
				}
				if i := strings.IndexByte(kw, '('); i > 0 {
					kw = kw[:i]
				}
				p.todo[kw] = struct{}{}
			}
		}
	}

	stack := []*Node{root}
	i := first
	for i < len(p.lines) {
		end := i + 1
		for end < len(p.lines) && !headingRe.MatchString(p.lines[end]) {
			end++
		}
		n, err := p.parseHeading(i, p.lines[i:end])
		if err != nil {
			return err
		}
		for len(stack) > 1 && stack[len(stack)-1].Level >= n.Level {
			stack = stack[:len(stack)-1]
		}
		parent := stack[len(stack)-1]
		n.Parent = parent
		parent.Children = append(parent.Children, n)
		stack = append(stack, n)
		i = end
	}
	return nil
}

func (p *parser) parseRoot(root *Node, lines []string) error {
	start := 0
	for start < len(lines) && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	if start < len(lines) && drawerOpen.MatchString(lines[start]) {
		next, err := p.parseDrawer(root, lines, start)
		if err != nil {
			return err
		}
		start = next
	}

	var body []string
	for _, l := range lines[start:] {
		m := keywordRe.FindStringSubmatch(l)
		if m == nil {
			body = append(body, l)
			continue
		}
		key := strings.ToUpper(m[1])
		if _, seen := p.doc.fileProps[key]; !seen {
			p.doc.fileProps[key] = m[2]
		}
		if key == "FILETAGS" {
			p.doc.fileTags = append(p.doc.fileTags, splitFileTags(m[2])...)
		}
	}
	root.Body = trimBlankLines(body)
	return nil
}

// parseHeading parses the heading at p.lines[offset] and its section.
func (p *parser) parseHeading(offset int, section []string) (*Node, error) {
	m := headingRe.FindStringSubmatch(section[0])
	n := &Node{
		Level:      len(m[1]),
		Line:       offset + 1,
		Properties: map[string]string{},
		doc:        p.doc,
	}
	n.Heading, n.Tags = p.splitHeading(m[2])

	i := 1
	for i < len(section) && planningRe.MatchString(section[i]) {
		i++
	}
	if i < len(section) && drawerOpen.MatchString(section[i]) {
		next, err := p.parseDrawer(n, section, i)
		if err != nil {
			var pe *ParseError
			if errors.As(err, &pe) {
				pe.Line += offset
			}
			return nil, err
		}
		i = next
	}
	n.Body = trimBlankLines(section[i:])
	return n, nil
}

// parseDrawer reads a property drawer starting at lines[start] into n and
// returns the index of the first line after ":END:". Line numbers in errors
// are relative to lines.
func (p *parser) parseDrawer(n *Node, lines []string, start int) (int, error) {
	for i := start + 1; i < len(lines); i++ {
		l := lines[i]
		if drawerEnd.MatchString(l) {
			return i + 1, nil
		}
		if strings.TrimSpace(l) == "" {
			continue
		}
		m := propertyRe.FindStringSubmatch(l)
		if m == nil {
			return 0, &ParseError{Path: p.path, Line: i + 1, Msg: fmt.Sprintf("malformed property line %q", l)}
		}
		key := strings.ToUpper(m[1])
		if m[2] == "+" {
			if prev, ok := n.Properties[key]; ok && prev != "" {
				n.Properties[key] = prev + " " + m[3]
				continue
			}
		}
		n.Properties[key] = m[3]
	}
	return 0, &ParseError{Path: p.path, Line: start + 1, Msg: "unterminated property drawer"}
}

// splitHeading strips the TODO keyword, priority cookie and trailing tags
// from a raw heading.
func (p *parser) splitHeading(raw string) (string, []string) {
	heading := strings.TrimSpace(raw)

	var tags []string
	if loc := tagsRe.FindStringSubmatchIndex(heading); loc != nil {
		block := heading[loc[2]:loc[3]]
		for _, t := range strings.Split(block, ":") {
			if t != "" {
				tags = append(tags, t)
			}
		}
		heading = strings.TrimSpace(heading[:loc[0]])
	}

	if word, rest, _ := strings.Cut(heading, " "); word != "" {
		if _, ok := p.todo[word]; ok {
			heading = strings.TrimSpace(rest)
		}
	}
	heading = priorityRe.ReplaceAllString(heading, "")
	return heading, tags
}

func splitFileTags(v string) []string {
	return strings.FieldsFunc(v, func(r rune) bool { return r == ':' || r == ' ' || r == '\t' })
}

func trimBlankLines(lines []string) string {
	start, end := 0, len(lines)
	for start < end && strings.TrimSpace(lines[start]) == "" {
		start++
	}
	for end > start && strings.TrimSpace(lines[end-1]) == "" {
		end--
	}
	return strings.Join(lines[start:end], "\n")
}
