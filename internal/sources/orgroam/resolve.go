package orgroam

import (
	"strings"
	"time"

	"github.com/starford/waypoint/internal/org"
)

// Parsed holds what the resolver derives from a single node.
type Parsed struct {
	DT       *time.Time // nil when the node carries no timestamp of its own
	RoamRefs string
	Heading  string // heading with the inline creation timestamp removed
}

// parseNode resolves a node's own timestamp, references and heading.
// On a timestamp error RoamRefs and Heading are still filled in and DT is
// nil, so the caller can fall back to the inherited timestamp.
func parseNode(n *org.Node) (Parsed, error) {
	refs, _ := n.Property("ROAM_REFS")

	if n.IsRoot() {
		p := Parsed{RoamRefs: refs}
		raw := firstNonEmpty(
			fileProperty(n, "DATE"),
			fileProperty(n, "CREATED"),
			property(n, "CREATED"),
		)
		if raw == "" {
			return p, nil
		}
		ts, err := org.ParseRange(raw)
		if err != nil {
			return p, err
		}
		p.DT = &ts.Start
		return p, nil
	}

	p := Parsed{RoamRefs: refs, Heading: n.Heading}
	created, ok := n.Property("CREATED")
	if !ok {
		token, offset, found := org.FindInactive(n.Heading)
		if !found {
			return p, nil
		}
		created = token
		p.Heading = stripToken(n.Heading, token, offset)
	}
	ts, err := org.ParseRange(created)
	if err != nil {
		return p, err
	}
	p.DT = &ts.Start
	return p, nil
}

// stripToken removes token at offset from heading, together with the single
// separator character that follows it.
func stripToken(heading, token string, offset int) string {
	end := offset + len(token)
	if end < len(heading) && (heading[end] == ' ' || heading[end] == '\t') {
		end++
	}
	return strings.TrimRight(heading[:offset]+heading[end:], " \t")
}

func fileProperty(n *org.Node, key string) string {
	v, _ := n.FileProperty(key)
	return strings.TrimSpace(v)
}

func property(n *org.Node, key string) string {
	v, _ := n.Property(key)
	return strings.TrimSpace(v)
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
