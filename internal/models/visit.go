// Package models defines the domain types for waypoint.
package models

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// DefaultEditorScheme prefixes file locators when no scheme is configured.
const DefaultEditorScheme = "editor://"

// Locator points back to the note or entry a visit was extracted from.
type Locator struct {
	Title string `json:"title"`
	Href  string `json:"href"`
}

// MakeLocator builds a locator from a display title and a deep link.
func MakeLocator(title, href string) Locator {
	return Locator{Title: title, Href: href}
}

// FileLocator builds a "path:line" locator. line <= 0 omits the line suffix.
func FileLocator(scheme, path string, line int) Locator {
	if scheme == "" {
		scheme = DefaultEditorScheme
	}
	loc := path
	if line > 0 {
		loc += ":" + strconv.Itoa(line)
	}
	return Locator{Title: loc, Href: scheme + loc}
}

// Visit links a URL to a point in time, some context and a locator.
type Visit struct {
	URL     string    `json:"url"`
	DT      time.Time `json:"dt"`
	Context string    `json:"context"`
	Locator Locator   `json:"locator"`
}

// Result is either a Visit or an error. Exactly one of the fields is set.
type Result struct {
	Visit *Visit
	Err   error
}

// VisitResult wraps v.
func VisitResult(v Visit) Result {
	return Result{Visit: &v}
}

// ErrorResult wraps err.
func ErrorResult(err error) Result {
	return Result{Err: err}
}

// IsError reports whether r carries an error.
func (r Result) IsError() bool {
	return r.Err != nil
}

// SourceError describes a recoverable failure inside a source.
// Line and Entry are optional.
type SourceError struct {
	Source string
	Path   string
	Line   int
	Entry  string
	Err    error
}

func (e *SourceError) Error() string {
	var b strings.Builder
	if e.Source != "" {
		b.WriteString(e.Source)
		b.WriteString(": ")
	}
	b.WriteString(e.Path)
	if e.Line > 0 {
		fmt.Fprintf(&b, ":%d", e.Line)
	}
	if e.Entry != "" {
		fmt.Fprintf(&b, " (%s)", e.Entry)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *SourceError) Unwrap() error { return e.Err }

// AsSourceError returns the SourceError in err's chain, if any.
func AsSourceError(err error) (*SourceError, bool) {
	var se *SourceError
	if errors.As(err, &se) {
		return se, true
	}
	return nil, false
}

// JoinTags renders tags as "#a #b". Blank tags are dropped.
func JoinTags(tags []string) string {
	parts := make([]string, 0, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		parts = append(parts, "#"+t)
	}
	return strings.Join(parts, " ")
}
