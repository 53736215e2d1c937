package sparql

import (
	"bytes"
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/knakk/rdf"
)

// RDFNamespace is the RDF syntax namespace.
const RDFNamespace = "http://www.w3.org/1999/02/22-rdf-syntax-ns#"

// Triple is an RDF statement.
type Triple struct {
	Subject   Term
	Predicate Term
	Object    Term
}

func (t Triple) key() string {
	return t.Subject.key() + " " + t.Predicate.key() + " " + t.Object.key()
}

// Graph is a set of triples that remembers insertion order.
type Graph struct {
	index   map[string]struct{}
	triples []Triple
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{index: make(map[string]struct{})}
}

// Add inserts t and reports whether it was new.
func (g *Graph) Add(t Triple) bool {
	k := t.key()
	if _, ok := g.index[k]; ok {
		return false
	}
	g.index[k] = struct{}{}
	g.triples = append(g.triples, t)
	return true
}

// Union adds every triple of other.
func (g *Graph) Union(other *Graph) {
	if other == nil {
		return
	}
	for _, t := range other.triples {
		g.Add(t)
	}
}

// Len returns the number of distinct triples.
func (g *Graph) Len() int { return len(g.triples) }

// Triples returns the triples in insertion order.
func (g *Graph) Triples() []Triple {
	out := make([]Triple, len(g.triples))
	copy(out, g.triples)
	return out
}

// ScopeBlanks returns a copy of g whose blank node labels carry scope as a
// prefix. Blank nodes of graphs scoped differently never collide in a union.
func (g *Graph) ScopeBlanks(scope string) *Graph {
	out := NewGraph()
	for _, t := range g.triples {
		t.Subject = t.Subject.scoped(scope)
		t.Object = t.Object.scoped(scope)
		out.Add(t)
	}
	return out
}

func (t Term) scoped(scope string) Term {
	if t.Kind != Blank {
		return t
	}
	return NewBlank(scope + "_" + t.Value)
}

const byteOrderMark = "\ufeff"

// ParseGraph decodes an RDF/XML, Turtle or N-Triples document. RDF/XML is
// recognised by a root element in the RDF namespace, whatever its prefix.
func ParseGraph(raw string) (*Graph, error) {
	raw = strings.TrimSpace(strings.TrimPrefix(raw, byteOrderMark))

	format := rdf.Turtle
	if isRDFXML(raw) {
		format = rdf.RDFXML
	}
	g, err := decodeGraph(raw, format)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return g, nil
}

// isRDFXML reports whether the first element of raw lies in the RDF
// namespace. Declarations, comments and doctypes before it are skipped.
func isRDFXML(raw string) bool {
	if !strings.HasPrefix(raw, "<") {
		return false
	}
	dec := xml.NewDecoder(strings.NewReader(raw))
	for {
		tok, err := dec.Token()
		if err != nil {
			return false
		}
		if el, ok := tok.(xml.StartElement); ok {
			return el.Name.Space == RDFNamespace
		}
	}
}

func decodeGraph(raw string, format rdf.Format) (*Graph, error) {
	dec := rdf.NewTripleDecoder(strings.NewReader(raw), format)
	g := NewGraph()
	for {
		tr, err := dec.Decode()
		if err == io.EOF {
			return g, nil
		}
		if err != nil {
			return nil, err
		}
		g.Add(Triple{
			Subject:   fromRDF(tr.Subj),
			Predicate: fromRDF(tr.Pred),
			Object:    fromRDF(tr.Obj),
		})
	}
}

func fromRDF(t rdf.Term) Term {
	switch v := t.(type) {
	case rdf.IRI:
		return NewURI(v.String())
	case rdf.Blank:
		return NewBlank(strings.TrimPrefix(v.String(), "_:"))
	case rdf.Literal:
		dt := v.DataType.String()
		if v.Lang() != "" {
			return NewLangLiteral(v.String(), v.Lang())
		}
		if dt == XSDString || dt == RDFLangString {
			dt = ""
		}
		return NewTypedLiteral(v.String(), dt)
	default:
		return NewLiteral(t.String())
	}
}

// WriteRDFXML serializes the graph as RDF/XML, one rdf:Description per
// subject in first-seen order. Triples whose predicate cannot be written as
// an XML qualified name are skipped and counted in the returned value.
func WriteRDFXML(g *Graph) (string, int, error) {
	prefixes := map[string]string{RDFNamespace: "rdf"}
	var order []string
	subjects := make(map[string][]Triple)
	skipped := 0

	for _, t := range g.triples {
		ns, _, ok := splitIRI(t.Predicate.Value)
		if !ok {
			skipped++
			continue
		}
		if _, exists := prefixes[ns]; !exists {
			prefixes[ns] = "ns" + strconv.Itoa(len(prefixes))
		}
		sk := t.Subject.key()
		if _, seen := subjects[sk]; !seen {
			order = append(order, sk)
		}
		subjects[sk] = append(subjects[sk], t)
	}

	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	buf.WriteString("<rdf:RDF")
	for _, ns := range sortedNamespaces(prefixes) {
		fmt.Fprintf(&buf, "\n    xmlns:%s=\"%s\"", prefixes[ns], escapeAttr(ns))
	}
	buf.WriteString(">\n")

	for _, sk := range order {
		triples := subjects[sk]
		subj := triples[0].Subject
		if subj.Kind == Blank {
			fmt.Fprintf(&buf, "  <rdf:Description rdf:nodeID=\"%s\">\n", escapeAttr(subj.Value))
		} else {
			fmt.Fprintf(&buf, "  <rdf:Description rdf:about=\"%s\">\n", escapeAttr(subj.Value))
		}
		for _, t := range triples {
			ns, local, _ := splitIRI(t.Predicate.Value)
			qname := prefixes[ns] + ":" + local
			switch t.Object.Kind {
			case URI:
				fmt.Fprintf(&buf, "    <%s rdf:resource=\"%s\"/>\n", qname, escapeAttr(t.Object.Value))
			case Blank:
				fmt.Fprintf(&buf, "    <%s rdf:nodeID=\"%s\"/>\n", qname, escapeAttr(t.Object.Value))
			default:
				fmt.Fprintf(&buf, "    <%s", qname)
				if t.Object.Lang != "" {
					fmt.Fprintf(&buf, " xml:lang=\"%s\"", escapeAttr(t.Object.Lang))
				} else if t.Object.Datatype != "" {
					fmt.Fprintf(&buf, " rdf:datatype=\"%s\"", escapeAttr(t.Object.Datatype))
				}
				buf.WriteString(">")
				if err := xml.EscapeText(&buf, []byte(t.Object.Value)); err != nil {
					return "", skipped, err
				}
				fmt.Fprintf(&buf, "</%s>\n", qname)
			}
		}
		buf.WriteString("  </rdf:Description>\n")
	}
	buf.WriteString("</rdf:RDF>\n")
	return buf.String(), skipped, nil
}

// splitIRI splits an IRI into namespace and local name so that the local name
// is a valid XML NCName.
func splitIRI(iri string) (string, string, bool) {
	i := len(iri)
	for i > 0 {
		r, size := utf8.DecodeLastRuneInString(iri[:i])
		if !isNameChar(r) {
			break
		}
		i -= size
	}
	// The local name must start with a letter or underscore.
	for i < len(iri) {
		r, size := utf8.DecodeRuneInString(iri[i:])
		if unicode.IsLetter(r) || r == '_' {
			break
		}
		i += size
	}
	if i == 0 || i >= len(iri) {
		return "", "", false
	}
	return iri[:i], iri[i:], true
}

func isNameChar(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' || r == '-' || r == '.'
}

func sortedNamespaces(prefixes map[string]string) []string {
	out := make([]string, len(prefixes))
	for ns, p := range prefixes {
		if p == "rdf" {
			out[0] = ns
			continue
		}
		n, _ := strconv.Atoi(strings.TrimPrefix(p, "ns"))
		out[n] = ns
	}
	return out
}

func escapeAttr(s string) string {
	var b strings.Builder
	_ = xml.EscapeText(&b, []byte(s))
	return b.String()
}
