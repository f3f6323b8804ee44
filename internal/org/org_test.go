package org

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

const sample = `:PROPERTIES:
:ID:       1234
:ROAM_REFS: cite:foo
:END:
#+title: Reading list
#+CREATED: [2020-01-01]
#+filetags: :books:

Intro paragraph.

* TODO [#A] First heading [2021-03-04 Thu 10:00] :work:urgent:
SCHEDULED: <2021-03-05 Fri>
:PROPERTIES:
:CREATED:  [2021-03-01]
:ROAM_REFS: cite:bar
:END:
Body of first.
** Child
child body
* Second
`

func TestParse_Tree(t *testing.T) {
	doc, err := ParseBytes([]byte(sample), "sample.org")
	if err != nil {
		t.Fatalf("ParseBytes: %v", err)
	}
	root := doc.Root
	if !root.IsRoot() {
		t.Fatal("root should be root")
	}
	if v, _ := root.Property("roam_refs"); v != "cite:foo" {
		t.Errorf("root ROAM_REFS = %q", v)
	}
	if v, _ := root.FileProperty("created"); v != "[2020-01-01]" {
		t.Errorf("file CREATED = %q", v)
	}
	if v, _ := doc.FileProperty("TITLE"); v != "Reading list" {
		t.Errorf("file TITLE = %q", v)
	}
	if root.Body != "Intro paragraph." {
		t.Errorf("root body = %q", root.Body)
	}
	if len(root.Children) != 2 {
		t.Fatalf("root children = %d, want 2", len(root.Children))
	}

	first := root.Children[0]
	if first.Heading != "First heading [2021-03-04 Thu 10:00]" {
		t.Errorf("heading = %q", first.Heading)
	}
	if first.Line != 11 {
		t.Errorf("line = %d, want 11", first.Line)
	}
	if strings.Join(first.Tags, ",") != "work,urgent" {
		t.Errorf("tags = %v", first.Tags)
	}
	if v, _ := first.Property("CREATED"); v != "[2021-03-01]" {
		t.Errorf("CREATED = %q", v)
	}
	if first.Body != "Body of first." {
		t.Errorf("body = %q", first.Body)
	}

	child := first.Children[0]
	if child.Heading != "Child" || child.Level != 2 || child.Parent != first {
		t.Errorf("child = %+v", child)
	}
	if got := strings.Join(child.AllTags(), ","); got != "books,urgent,work" {
		t.Errorf("AllTags = %q", got)
	}
	if root.Children[1].Heading != "Second" {
		t.Errorf("second heading = %q", root.Children[1].Heading)
	}
}

func TestParse_CustomTodoKeywords(t *testing.T) {
	doc, err := ParseBytes([]byte("#+TODO: NEXT(n) | CANCELLED\n* NEXT Call mom\n* CANCELLED Trip\n"), "todo.org")
	if err != nil {
		t.Fatal(err)
	}
	if h := doc.Root.Children[0].Heading; h != "Call mom" {
		t.Errorf("heading = %q", h)
	}
	if h := doc.Root.Children[1].Heading; h != "Trip" {
		t.Errorf("heading = %q", h)
	}
}

func TestParse_PropertyAppend(t *testing.T) {
	doc, err := ParseBytes([]byte("* H\n:PROPERTIES:\n:ROAM_REFS: cite:a\n:ROAM_REFS+: https://x.test\n:END:\n"), "p.org")
	if err != nil {
		t.Fatal(err)
	}
	if v, _ := doc.Root.Children[0].Property("ROAM_REFS"); v != "cite:a https://x.test" {
		t.Errorf("ROAM_REFS = %q", v)
	}
}

func TestParse_UnterminatedDrawer(t *testing.T) {
	_, err := ParseBytes([]byte("* ok\n* broken\n:PROPERTIES:\n:ID: 1\n"), "bad.org")
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("expected ParseError, got %v", err)
	}
	if pe.Line != 3 {
		t.Errorf("line = %d, want 3", pe.Line)
	}
}

func TestParse_MalformedProperty(t *testing.T) {
	_, err := ParseBytes([]byte(":PROPERTIES:\nnot a property\n:END:\n"), "bad.org")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Fatalf("expected ParseError at line 2, got %v", err)
	}
}

func TestParse_InvalidUTF8(t *testing.T) {
	_, err := ParseBytes([]byte("* ok\n\xff\xfe\n"), "bin.org")
	var pe *ParseError
	if !errors.As(err, &pe) || pe.Line != 2 {
		t.Fatalf("expected ParseError at line 2, got %v", err)
	}
}

func TestParse_BoldIsNotHeading(t *testing.T) {
	doc, err := ParseBytes([]byte("*bold* text\n"), "b.org")
	if err != nil {
		t.Fatal(err)
	}
	if len(doc.Root.Children) != 0 {
		t.Errorf("children = %d, want 0", len(doc.Root.Children))
	}
	if doc.Root.Body != "*bold* text" {
		t.Errorf("body = %q", doc.Root.Body)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "n.org")
	if err := os.WriteFile(path, []byte("* A\r\nbody\r\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if doc.Root.Children[0].Body != "body" {
		t.Errorf("body = %q", doc.Root.Children[0].Body)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.org")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file error = %v", err)
	}
}
