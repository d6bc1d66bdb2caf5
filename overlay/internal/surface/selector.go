package surface

import (
	"strings"

	"golang.org/x/net/html"
)

// selector is a parsed simple CSS selector. Supported forms:
//   - tag, .class, #id and compounds such as tag#id.a.b
//   - tag[attr], tag[attr=val], tag[attr*=val] (quotes optional)
//   - descendant combinator (space separated parts)
//
// This covers the swatch heuristics and the class rules found in reader
// stylesheets; it is not a general CSS engine.
type selector []simpleSelector

type simpleSelector struct {
	tag     string
	id      string
	classes []string
	attrKey string
	attrOp  string // "", "=", "*="
	attrVal string
}

func parseSelector(sel string) selector {
	var out selector
	for _, part := range strings.Fields(sel) {
		out = append(out, parseSimpleSelector(part))
	}
	return out
}

func parseSimpleSelector(sel string) simpleSelector {
	var s simpleSelector

	if idx := strings.IndexByte(sel, '['); idx >= 0 {
		attrPart := strings.TrimSuffix(sel[idx+1:], "]")
		sel = sel[:idx]
		switch {
		case strings.Contains(attrPart, "*="):
			i := strings.Index(attrPart, "*=")
			s.attrKey, s.attrOp = attrPart[:i], "*="
			s.attrVal = strings.Trim(attrPart[i+2:], `"'`)
		case strings.Contains(attrPart, "="):
			i := strings.IndexByte(attrPart, '=')
			s.attrKey, s.attrOp = attrPart[:i], "="
			s.attrVal = strings.Trim(attrPart[i+1:], `"'`)
		default:
			s.attrKey = attrPart
		}
	}

	// Compound part: tag, then any mix of #id and .class tokens.
	end := strings.IndexAny(sel, ".#")
	if end < 0 {
		end = len(sel)
	}
	s.tag = strings.ToLower(sel[:end])
	rest := sel[end:]
	for rest != "" {
		kind := rest[0]
		rest = rest[1:]
		next := strings.IndexAny(rest, ".#")
		if next < 0 {
			next = len(rest)
		}
		tok := rest[:next]
		rest = rest[next:]
		if tok == "" {
			continue
		}
		if kind == '#' {
			s.id = tok
		} else {
			s.classes = append(s.classes, tok)
		}
	}
	return s
}

// queryAll returns every node under root matching sel, in document order.
func (sel selector) queryAll(root *html.Node) []*html.Node {
	if len(sel) == 0 {
		return nil
	}
	var out []*html.Node
	walk(root, func(n *html.Node) {
		if sel.matches(n) {
			out = append(out, n)
		}
	})
	return out
}

// matches checks the last part against n and the earlier parts against its
// ancestors, right to left.
func (sel selector) matches(n *html.Node) bool {
	if len(sel) == 0 || !sel[len(sel)-1].matches(n) {
		return false
	}
	i := len(sel) - 2
	for p := n.Parent; p != nil && i >= 0; p = p.Parent {
		if sel[i].matches(p) {
			i--
		}
	}
	return i < 0
}

func (s simpleSelector) matches(n *html.Node) bool {
	if n.Type != html.ElementNode {
		return false
	}
	if s.tag != "" && s.tag != "*" && n.Data != s.tag {
		return false
	}
	if s.id != "" && getAttr(n, "id") != s.id {
		return false
	}
	for _, c := range s.classes {
		if !hasClass(n, c) {
			return false
		}
	}
	if s.attrKey != "" {
		val, ok := lookupAttr(n, s.attrKey)
		if !ok {
			return false
		}
		switch s.attrOp {
		case "=":
			return val == s.attrVal
		case "*=":
			return s.attrVal != "" && strings.Contains(val, s.attrVal)
		}
	}
	return true
}

func walk(n *html.Node, fn func(*html.Node)) {
	fn(n)
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(getAttr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func getAttr(n *html.Node, key string) string {
	v, _ := lookupAttr(n, key)
	return v
}

func lookupAttr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// parseDeclarations parses "prop: value; prop2: value2" into a map with
// lowercase property names.
func parseDeclarations(s string) map[string]string {
	out := make(map[string]string)
	for _, decl := range strings.Split(s, ";") {
		prop, val, ok := strings.Cut(decl, ":")
		if !ok {
			continue
		}
		prop = strings.ToLower(strings.TrimSpace(prop))
		val = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(val), "!important"))
		if prop != "" {
			out[prop] = val
		}
	}
	return out
}

type styleRule struct {
	sel   selector
	decls map[string]string
}

// parseStylesheet extracts "sel, sel { decls }" rules. At-rules and
// comments are skipped.
func parseStylesheet(css string) []styleRule {
	var rules []styleRule
	for css != "" {
		if i := strings.Index(css, "/*"); i >= 0 {
			if j := strings.Index(css[i+2:], "*/"); j >= 0 {
				css = css[:i] + css[i+2+j+2:]
				continue
			}
		}
		break
	}
	for _, block := range strings.Split(css, "}") {
		head, body, ok := strings.Cut(block, "{")
		if !ok {
			continue
		}
		head = strings.TrimSpace(head)
		if head == "" || strings.HasPrefix(head, "@") {
			continue
		}
		decls := parseDeclarations(body)
		for _, s := range strings.Split(head, ",") {
			if s = strings.TrimSpace(s); s != "" {
				rules = append(rules, styleRule{sel: parseSelector(s), decls: decls})
			}
		}
	}
	return rules
}
