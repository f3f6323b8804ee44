package bibtex

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

const library = `% a comment line
@string{ acm = "ACM Press" }
@preamble{ "\newcommand{\noop}[1]{}" }
@comment{ ignored @article{nope, title = {x}} }

@Article{foo,
  Title     = {A {Study} of Things},
  url       = {http://x.test/a%20b},
  doi       = {10.1/y},
  publisher = acm # { Inc.},
  month     = mar,
  year      = 2020
}

@book(bar,
  isbn = "978-3-16 {"}quoted{"}",
  author = "Doe, Jane and
            Roe, Rick"
)
`

func TestParse_Entries(t *testing.T) {
	f := ParseString(library)
	if len(f.Errors) != 0 {
		t.Fatalf("unexpected errors: %v", f.Errors)
	}
	if len(f.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(f.Entries))
	}

	foo := f.Entries[0]
	if foo.Type != "article" || foo.Key != "foo" || foo.Line != 6 {
		t.Errorf("foo header = %s/%s line %d", foo.Type, foo.Key, foo.Line)
	}
	want := map[string]string{
		"title":     "A {Study} of Things",
		"url":       "http://x.test/a%20b",
		"doi":       "10.1/y",
		"publisher": "ACM Press Inc.",
		"month":     "March",
		"year":      "2020",
	}
	if diff := cmp.Diff(want, foo.Fields); diff != "" {
		t.Errorf("foo fields (-want +got):\n%s", diff)
	}

	bar := f.Entries[1]
	if bar.Key != "bar" || bar.Type != "book" {
		t.Errorf("bar header = %s/%s", bar.Type, bar.Key)
	}
	if got := bar.Get("AUTHOR"); got != "Doe, Jane and Roe, Rick" {
		t.Errorf("author = %q", got)
	}
	if !bar.Has("isbn") || bar.Has("doi") {
		t.Errorf("Has mismatch: %v", bar.Fields)
	}
}

func TestParse_RecoversAfterBadEntry(t *testing.T) {
	src := `@article{good1, title = {One}}
@article{broken, title = {unbalanced
  note = oops
@article{good2, title = {Two}}
@misc{ , title = {no key}}
@misc{good3, title = {Three}}
`
	f := ParseString(src)

	var keys []string
	for _, e := range f.Entries {
		keys = append(keys, e.Key)
	}
	if got := strings.Join(keys, ","); got != "good1,good2,good3" {
		t.Errorf("keys = %s", got)
	}
	if len(f.Errors) != 2 {
		t.Fatalf("errors = %v, want 2", f.Errors)
	}
	if f.Errors[0].Line != 2 || f.Errors[0].Key != "broken" {
		t.Errorf("first error = %+v", f.Errors[0])
	}
	if f.Errors[1].Line != 5 {
		t.Errorf("second error line = %d, want 5", f.Errors[1].Line)
	}
}

func TestParse_StrayAt(t *testing.T) {
	f := ParseString("mail me at someone@example.org\n@misc{k, note = {x}}\n")
	if len(f.Errors) != 0 || len(f.Entries) != 1 || f.Entries[0].Key != "k" {
		t.Errorf("got entries %v errors %v", f.Entries, f.Errors)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "refs.bib")
	if err := os.WriteFile(path, []byte("@misc{a, url = {http://a.test}}"), 0o644); err != nil {
		t.Fatal(err)
	}
	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(f.Entries) != 1 || f.Entries[0].Get("url") != "http://a.test" {
		t.Errorf("entries = %+v", f.Entries)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "none.bib")); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file err = %v", err)
	}
}
