package deck

import (
	"strings"

	"github.com/andybalholm/cascadia"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// ElementKind is the structural role a fragment element plays in layout.
type ElementKind int

const (
	KindPlain ElementKind = iota
	KindHeading
	KindSubheading
	KindCard
	KindList
)

func (k ElementKind) String() string {
	switch k {
	case KindHeading:
		return "heading"
	case KindSubheading:
		return "subheading"
	case KindCard:
		return "card"
	case KindList:
		return "list"
	default:
		return "plain"
	}
}

var (
	cardSelector      = cascadia.MustCompile(`[style*="border-radius"], [style*="background"]`)
	cardTitleSelector = cascadia.MustCompile(`h2, h3, [style*="uppercase"]`)
	cardBodySelector  = cascadia.MustCompile(`p:not([style*="uppercase"])`)
)

// Roles is the set of every role an element plays. A styled h2 right
// under the title is both the subheading and a card.
type Roles uint8

func (r Roles) Has(kind ElementKind) bool {
	return r&(1<<uint(kind)) != 0
}

func (r Roles) with(kind ElementKind) Roles {
	return r | 1<<uint(kind)
}

// ElementRoles matches each role rule independently:
//
//	h1                                  -> Heading
//	ul, ol                              -> List
//	rounded-corner or background style  -> Card
//	h2, or a p right after an h1        -> Subheading
//
// Document-level elements (html, head, body) and non-element nodes have no role.
func ElementRoles(n *html.Node) Roles {
	var roles Roles
	if n == nil || n.Type != html.ElementNode {
		return roles
	}
	switch n.DataAtom {
	case atom.Html, atom.Head, atom.Body:
		return roles
	case atom.H1:
		roles = roles.with(KindHeading)
	case atom.Ul, atom.Ol:
		roles = roles.with(KindList)
	case atom.H2:
		roles = roles.with(KindSubheading)
	case atom.P:
		if prev := previousElement(n); prev != nil && prev.DataAtom == atom.H1 {
			roles = roles.with(KindSubheading)
		}
	}
	if cardSelector.Match(n) {
		roles = roles.with(KindCard)
	}
	return roles
}

// ClassifyElement returns the primary role of n, in the precedence order
// Heading, List, Card, Subheading. Elements with no role are Plain.
func ClassifyElement(n *html.Node) ElementKind {
	roles := ElementRoles(n)
	for _, kind := range []ElementKind{KindHeading, KindList, KindCard, KindSubheading} {
		if roles.Has(kind) {
			return kind
		}
	}
	return KindPlain
}

func previousElement(n *html.Node) *html.Node {
	for sib := n.PrevSibling; sib != nil; sib = sib.PrevSibling {
		if sib.Type == html.ElementNode {
			return sib
		}
	}
	return nil
}

// firstDescendant returns the first element below n, in document order,
// matched by sel. n itself is never returned.
func firstDescendant(n *html.Node, sel cascadia.Selector) *html.Node {
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		if child.Type == html.ElementNode && sel.Match(child) {
			return child
		}
		if found := firstDescendant(child, sel); found != nil {
			return found
		}
	}
	return nil
}

// textContent concatenates descendant text and collapses whitespace runs.
func textContent(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b, false)
	return strings.Join(strings.Fields(b.String()), " ")
}

// ownText is textContent without nested lists, used for list items.
func ownText(n *html.Node) string {
	var b strings.Builder
	collectText(n, &b, true)
	return strings.Join(strings.Fields(b.String()), " ")
}

func collectText(n *html.Node, b *strings.Builder, skipLists bool) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
		return
	case html.ElementNode:
		switch n.DataAtom {
		case atom.Script, atom.Style:
			return
		case atom.Ul, atom.Ol:
			if skipLists {
				return
			}
		}
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		collectText(child, b, skipLists)
	}
}

// findBody returns the body element of a parsed document, or nil.
func findBody(doc *html.Node) *html.Node {
	if doc == nil {
		return nil
	}
	if doc.Type == html.ElementNode && doc.DataAtom == atom.Body {
		return doc
	}
	for child := doc.FirstChild; child != nil; child = child.NextSibling {
		if body := findBody(child); body != nil {
			return body
		}
	}
	return nil
}
