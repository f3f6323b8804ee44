package orgroam

import (
	"context"
	"errors"
	"iter"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/org"
)

const fooBib = `@article{foo, url = {http://x.test/a}, doi = {10.1/y}}
`

var mtime = time.Date(2019, 5, 6, 7, 8, 9, 0, time.UTC)

func write(t *testing.T, path, content string) string {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.Chtimes(path, mtime, mtime); err != nil {
		t.Fatal(err)
	}
	return path
}

func tempDir(t *testing.T) string {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return dir
}

func drain(seq iter.Seq[models.Result]) ([]models.Visit, []error) {
	var (
		visits []models.Visit
		errs   []error
	)
	for r := range seq {
		if r.IsError() {
			errs = append(errs, r.Err)
			continue
		}
		visits = append(visits, *r.Visit)
	}
	return visits, errs
}

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

func TestIndex_FileCreatedScenario(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	notes := write(t, filepath.Join(dir, "notes.org"), `:PROPERTIES:
:ROAM_REFS: cite:foo
:END:
#+CREATED: [2020-01-01]
`)

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	loc := models.FileLocator("", notes, 0)
	want := []models.Visit{
		{URL: "10.1/y", DT: day(2020, 1, 1), Context: "\n", Locator: loc},
		{URL: "http://x.test/a", DT: day(2020, 1, 1), Context: "\n", Locator: loc},
	}
	if diff := cmp.Diff(want, visits); diff != "" {
		t.Errorf("visits (-want +got):\n%s", diff)
	}
}

func TestIndex_MtimeFallback(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	write(t, filepath.Join(dir, "n.org"), `* Parent
** Child
:PROPERTIES:
:ROAM_REFS: cite:foo
:END:
`)

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 0 || len(visits) != 2 {
		t.Fatalf("visits=%d errs=%v", len(visits), errs)
	}
	for _, v := range visits {
		if !v.DT.Equal(mtime) {
			t.Errorf("%s: DT = %v, want file mtime %v", v.URL, v.DT, mtime)
		}
		if !strings.HasSuffix(v.Locator.Title, "n.org:2") {
			t.Errorf("locator = %q", v.Locator.Title)
		}
	}
}

func TestIndex_CreatedPropertyInherited(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib+"@book{bar, isbn = {978-0}}\n")
	write(t, filepath.Join(dir, "n.org"), `* Parent
:PROPERTIES:
:CREATED: [2021-03-04 Thu 10:30]
:ROAM_REFS: cite:bar
:END:
** Child
:PROPERTIES:
:ROAM_REFS: cite:foo
:END:
`)

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	want := time.Date(2021, 3, 4, 10, 30, 0, 0, time.Local)
	var urls []string
	for _, v := range visits {
		urls = append(urls, v.URL)
		if !v.DT.Equal(want) {
			t.Errorf("%s: DT = %v, want %v", v.URL, v.DT, want)
		}
	}
	if got := strings.Join(urls, " "); got != "978-0 10.1/y http://x.test/a" {
		t.Errorf("urls = %s", got)
	}
}

func TestIndex_HeadingTimestampStripped(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), `@misc{foo, url = {http://x.test/a%20b}}`)
	write(t, filepath.Join(dir, "n.org"), `#+filetags: :reading:
* Read paper [2021-05-06 Thu] later :ml:
:PROPERTIES:
:ROAM_REFS: cite:foo
:END:
notes
`)

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 0 || len(visits) != 1 {
		t.Fatalf("visits=%v errs=%v", visits, errs)
	}
	v := visits[0]
	if v.URL != "http://x.test/a b" {
		t.Errorf("url = %q, want percent-decoded", v.URL)
	}
	if !v.DT.Equal(day(2021, 5, 6)) {
		t.Errorf("DT = %v", v.DT)
	}
	if v.Context != "Read paper later   :ml:reading:\nnotes" {
		t.Errorf("context = %q", v.Context)
	}
}

func TestIndex_GarbageCreated(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	notes := write(t, filepath.Join(dir, "n.org"), `* Parent
:PROPERTIES:
:CREATED: [2021-01-02]
:END:
** Child
:PROPERTIES:
:CREATED: garbage
:ROAM_REFS: cite:foo
:END:
*** Grandchild
`)

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 1 {
		t.Fatalf("errors = %v, want exactly one", errs)
	}
	se, ok := models.AsSourceError(errs[0])
	if !ok || se.Path != notes || se.Line != 5 {
		t.Errorf("error = %#v", errs[0])
	}
	if len(visits) != 2 {
		t.Fatalf("visits = %d, want 2", len(visits))
	}
	for _, v := range visits {
		if !v.DT.Equal(day(2021, 1, 2)) {
			t.Errorf("%s: DT = %v, want inherited 2021-01-02", v.URL, v.DT)
		}
	}
}

func TestIndex_NoCrossContamination(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), `@misc{a, url = {http://a.test}}
@misc{b, url = {http://b.test}, isbn = {123}}
`)
	write(t, filepath.Join(dir, "n.org"), `* A
:PROPERTIES:
:ROAM_REFS: cite:a
:END:
* Unknown
:PROPERTIES:
:ROAM_REFS: cite:zzz
:END:
`)

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 0 || len(visits) != 1 || visits[0].URL != "http://a.test" {
		t.Errorf("visits=%v errs=%v", visits, errs)
	}
}

func TestBuildBibliography_DuplicateKeyLastFileWins(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "a.bib"), `@misc{dup, url = {http://first.test}, isbn = {111}}
`)
	write(t, filepath.Join(dir, "b.bib"), `@misc{dup, doi = {10.2/second}}
`)
	notes := write(t, filepath.Join(dir, "n.org"), `#+CREATED: [2020-01-01]
* Ref
:PROPERTIES:
:ROAM_REFS: cite:dup
:END:
`)

	first, err := BuildBibliography(context.Background(), Options{}, dir)
	if err != nil {
		t.Fatalf("BuildBibliography: %v", err)
	}
	entry, ok := first.Lookup("dup")
	if !ok {
		t.Fatal("dup not found")
	}
	if diff := cmp.Diff(map[string]string{"doi": "10.2/second"}, entry.Fields); diff != "" {
		t.Errorf("fields (-want +got):\n%s", diff)
	}

	second, err := BuildBibliography(context.Background(), Options{}, dir)
	if err != nil {
		t.Fatalf("BuildBibliography: %v", err)
	}
	if !cmp.Equal(first.entries, second.entries) {
		t.Errorf("rebuild differs:\n%s", cmp.Diff(first.entries, second.entries))
	}

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	if len(visits) != 1 || visits[0].URL != "10.2/second" || visits[0].Locator != models.FileLocator("", notes, 2) {
		t.Errorf("visits = %+v", visits)
	}
}

func TestIndex_BadFileIsolated(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	bad := write(t, filepath.Join(dir, "a-bad.org"), "* broken\n:PROPERTIES:\n:ROAM_REFS: cite:foo\n")
	write(t, filepath.Join(dir, "b-good.org"), ":PROPERTIES:\n:ROAM_REFS: cite:foo\n:END:\n")

	for _, workers := range []int{Sequential, 2} {
		visits, errs := drain(Index(context.Background(), Options{Workers: workers}, dir))
		if len(errs) != 1 {
			t.Fatalf("workers=%d: errors = %v", workers, errs)
		}
		se, ok := models.AsSourceError(errs[0])
		if !ok || se.Path != bad {
			t.Errorf("workers=%d: error = %v", workers, errs[0])
		}
		var pe *org.ParseError
		if !errors.As(errs[0], &pe) {
			t.Errorf("workers=%d: want wrapped org.ParseError, got %v", workers, errs[0])
		}
		if len(visits) != 2 {
			t.Errorf("workers=%d: visits = %d, want 2", workers, len(visits))
		}
	}
}

func TestIndex_BrokenSymlinkSkipped(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	if err := os.Symlink(filepath.Join(dir, "gone.org"), filepath.Join(dir, "broken.org")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}
	if err := os.Symlink(filepath.Join(dir, "gone.bib"), filepath.Join(dir, "broken.bib")); err != nil {
		t.Fatal(err)
	}

	visits, errs := drain(Index(context.Background(), Options{}, dir))
	if len(visits) != 0 || len(errs) != 0 {
		t.Errorf("visits=%v errs=%v", visits, errs)
	}
}

func TestIndex_ParallelMatchesSequential(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	for i := 1; i <= 6; i++ {
		name := filepath.Join(dir, "notes", string(rune('a'+i))+".org")
		write(t, name, ":PROPERTIES:\n:ROAM_REFS: cite:foo\n:END:\n#+DATE: [2020-01-0"+string(rune('0'+i))+"]\n")
	}

	seq, errs := drain(Index(context.Background(), Options{Workers: Sequential}, dir))
	if len(errs) != 0 || len(seq) != 12 {
		t.Fatalf("sequential: visits=%d errs=%v", len(seq), errs)
	}
	for i := 1; i < len(seq); i++ {
		if seq[i].Locator.Title < seq[i-1].Locator.Title {
			t.Fatalf("sequential output not in file-set order at %d", i)
		}
	}

	sortVisits := cmpopts.SortSlices(func(a, b models.Visit) bool {
		if a.Locator.Title != b.Locator.Title {
			return a.Locator.Title < b.Locator.Title
		}
		return a.URL < b.URL
	})
	for _, workers := range []int{0, 3} {
		par, errs := drain(Index(context.Background(), Options{Workers: workers}, dir))
		if len(errs) != 0 {
			t.Fatalf("workers=%d: errors %v", workers, errs)
		}
		if diff := cmp.Diff(seq, par, sortVisits); diff != "" {
			t.Errorf("workers=%d (-seq +par):\n%s", workers, diff)
		}
	}
}

func TestIndex_EarlyStop(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	for _, name := range []string{"a", "b", "c", "d", "e"} {
		write(t, filepath.Join(dir, name+".org"), ":PROPERTIES:\n:ROAM_REFS: cite:foo\n:END:\n")
	}

	for _, workers := range []int{Sequential, 2} {
		n := 0
		for range Index(context.Background(), Options{Workers: workers}, dir) {
			n++
			break
		}
		if n != 1 {
			t.Errorf("workers=%d: consumed %d", workers, n)
		}
	}
}

func TestIndex_CancelledContext(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "a.org"), "* x\n")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, errs := drain(Index(ctx, Options{}, dir))
	if len(errs) != 1 || !errors.Is(errs[0], context.Canceled) {
		t.Errorf("errs = %v", errs)
	}
}

func TestIndex_LinksAndReplacer(t *testing.T) {
	dir := tempDir(t)
	notes := write(t, filepath.Join(dir, "n.org"), `* Reading [2022-02-02 Wed]
see https://example.org/post and again https://example.org/post
`)

	opts := Options{
		EditorScheme: "emacs://",
		Replacer: func(u, root string) string {
			return u + "?from=" + filepath.Base(root)
		},
	}
	visits, errs := drain(Index(context.Background(), opts, dir))
	if len(errs) != 0 {
		t.Fatalf("errors: %v", errs)
	}
	want := []models.Visit{{
		URL:     "https://example.org/post?from=n.org",
		DT:      day(2022, 2, 2),
		Context: "Reading\nsee https://example.org/post and again https://example.org/post",
		Locator: models.Locator{Title: notes + ":1", Href: "emacs://" + notes + ":1"},
	}}
	if diff := cmp.Diff(want, visits); diff != "" {
		t.Errorf("visits (-want +got):\n%s", diff)
	}
}

func TestIndex_MissingRoot(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	write(t, filepath.Join(dir, "n.org"), ":PROPERTIES:\n:ROAM_REFS: cite:foo\n:END:\n")
	missing := filepath.Join(dir, "nope")

	visits, errs := drain(Index(context.Background(), Options{}, missing, dir))
	if len(errs) != 1 || !errors.Is(errs[0], os.ErrNotExist) {
		t.Errorf("errs = %v", errs)
	}
	if len(visits) != 2 {
		t.Errorf("visits = %d, want 2", len(visits))
	}
}

func TestSource(t *testing.T) {
	dir := tempDir(t)
	write(t, filepath.Join(dir, "refs.bib"), fooBib)
	write(t, filepath.Join(dir, "n.org"), ":PROPERTIES:\n:ROAM_REFS: cite:foo\n:END:\n")

	src := New(Options{}, dir)
	if src.Name() != "orgroam" {
		t.Errorf("Name = %q", src.Name())
	}
	visits, errs := drain(src.Visits(context.Background()))
	if len(visits) != 2 || len(errs) != 0 {
		t.Errorf("visits=%d errs=%v", len(visits), errs)
	}
}
