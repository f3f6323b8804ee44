package orgroam

import (
	"iter"
	"strings"
	"time"

	"github.com/starford/waypoint/internal/extract"
	"github.com/starford/waypoint/internal/models"
	"github.com/starford/waypoint/internal/org"
)

// refFields are the bibliography fields that become visits, in emission
// order.
var refFields = []string{"isbn", "issn", "doi", "url"}

// Step is one element of a walk: either a resolved node or the error raised
// while resolving it. A node whose timestamp failed to parse yields an error
// Step followed by its regular Step carrying the inherited timestamp.
type Step struct {
	Parsed Parsed
	Node   *org.Node
	Err    error
}

// Walk visits root and its descendants depth-first in pre-order. Every
// non-error Step has Parsed.DT set: a node without its own timestamp takes
// the nearest ancestor's, and fallback when no ancestor has one.
func Walk(root *org.Node, fallback time.Time) iter.Seq[Step] {
	type frame struct {
		node *org.Node
		dt   time.Time
	}
	return func(yield func(Step) bool) {
		stack := []frame{{node: root, dt: fallback}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			p, err := parseNode(f.node)
			if err != nil {
				if !yield(Step{Node: f.node, Err: err}) {
					return
				}
				p.DT = nil
			}
			inherited := f.dt
			if p.DT == nil {
				dt := f.dt
				p.DT = &dt
			} else {
				inherited = *p.DT
			}
			if !yield(Step{Parsed: p, Node: f.node}) {
				return
			}
			for i := len(f.node.Children) - 1; i >= 0; i-- {
				stack = append(stack, frame{node: f.node.Children[i], dt: inherited})
			}
		}
	}
}

// citeKey turns a ROAM_REFS value into a bibliography key.
func citeKey(refs string) string {
	return strings.TrimPrefix(strings.TrimSpace(refs), "cite:")
}

// nodeContext renders heading, inherited tags and body the way visits show
// them.
func nodeContext(p Parsed, n *org.Node) string {
	var b strings.Builder
	b.WriteString(p.Heading)
	if tags := n.AllTags(); len(tags) > 0 {
		b.WriteString("   :")
		b.WriteString(strings.Join(tags, ":"))
		b.WriteString(":")
	}
	b.WriteString("\n")
	b.WriteString(n.Body)
	return b.String()
}

// crossRefVisits emits one visit per identifying field of the bibliography
// entry the node references. Unknown keys produce nothing.
func crossRefVisits(s Step, bib *Bibliography, loc models.Locator) []models.Visit {
	if strings.TrimSpace(s.Parsed.RoamRefs) == "" {
		return nil
	}
	entry, ok := bib.Lookup(citeKey(s.Parsed.RoamRefs))
	if !ok {
		return nil
	}

	ctx := nodeContext(s.Parsed, s.Node)
	var out []models.Visit
	for _, field := range refFields {
		val := entry.Get(field)
		if strings.TrimSpace(val) == "" {
			continue
		}
		if field == "url" {
			val = extract.Unescape(val)
		}
		out = append(out, models.Visit{URL: val, DT: *s.Parsed.DT, Context: ctx, Locator: loc})
	}
	return out
}

// linkVisits emits one visit per URL written in the node's heading or body.
func linkVisits(s Step, path string, replacer extract.Replacer, loc models.Locator) []models.Visit {
	urls := extract.URLs(s.Parsed.Heading + "\n" + s.Node.Body)
	if len(urls) == 0 {
		return nil
	}
	ctx := nodeContext(s.Parsed, s.Node)
	out := make([]models.Visit, 0, len(urls))
	for _, u := range urls {
		out = append(out, models.Visit{URL: replacer.Apply(u, path), DT: *s.Parsed.DT, Context: ctx, Locator: loc})
	}
	return out
}
