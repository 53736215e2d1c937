package sparql

import (
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
)

// TermKind is the kind of an RDF term bound in a result row.
type TermKind int

const (
	// Unbound marks a variable without a value in a row.
	Unbound TermKind = iota
	Blank
	URI
	Literal
)

func (k TermKind) String() string {
	switch k {
	case Blank:
		return "bnode"
	case URI:
		return "uri"
	case Literal:
		return "literal"
	default:
		return "unbound"
	}
}

// XSD and RDF datatypes used by the merge step.
const (
	XSDInteger    = "http://www.w3.org/2001/XMLSchema#integer"
	XSDString     = "http://www.w3.org/2001/XMLSchema#string"
	RDFLangString = "http://www.w3.org/1999/02/22-rdf-syntax-ns#langString"
)

// Term is an RDF term: a URI, a blank node label or a literal with an
// optional language tag or datatype.
type Term struct {
	Kind     TermKind
	Value    string
	Lang     string
	Datatype string
}

// NewURI returns a URI term.
func NewURI(v string) Term { return Term{Kind: URI, Value: v} }

// NewBlank returns a blank node term.
func NewBlank(label string) Term { return Term{Kind: Blank, Value: label} }

// NewLiteral returns a plain literal.
func NewLiteral(v string) Term { return Term{Kind: Literal, Value: v} }

// NewLangLiteral returns a language-tagged literal.
func NewLangLiteral(v, lang string) Term { return Term{Kind: Literal, Value: v, Lang: lang} }

// NewTypedLiteral returns a literal with a datatype.
func NewTypedLiteral(v, datatype string) Term {
	return Term{Kind: Literal, Value: v, Datatype: datatype}
}

// key is the canonical serialization used for equality and hashing.
func (t Term) key() string {
	switch t.Kind {
	case URI:
		return "<" + t.Value + ">"
	case Blank:
		return "_:" + t.Value
	case Literal:
		s := strconv.Quote(t.Value)
		if t.Lang != "" {
			return s + "@" + strings.ToLower(t.Lang)
		}
		if t.Datatype != "" {
			return s + "^^<" + t.Datatype + ">"
		}
		return s
	default:
		return ""
	}
}

// Number reports the numeric value of a literal term.
func (t Term) Number() (float64, bool) {
	if t.Kind != Literal {
		return 0, false
	}
	f, err := strconv.ParseFloat(strings.TrimSpace(t.Value), 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

// Result is one solution of a SELECT query: a mapping from variable name to term.
// Equality and hashing are defined over the canonical form of all bindings,
// independent of insertion order.
type Result struct {
	bindings map[string]Term
}

// NewResult creates an empty result row.
func NewResult() *Result {
	return &Result{bindings: make(map[string]Term)}
}

// Bind sets the value of a variable.
func (r *Result) Bind(name string, t Term) *Result {
	if r.bindings == nil {
		r.bindings = make(map[string]Term)
	}
	r.bindings[name] = t
	return r
}

// Get returns the term bound to a variable.
func (r *Result) Get(name string) (Term, bool) {
	t, ok := r.bindings[name]
	return t, ok
}

// Names returns the bound variable names in sorted order.
func (r *Result) Names() []string {
	names := make([]string, 0, len(r.bindings))
	for n := range r.bindings {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of bound variables.
func (r *Result) Len() int { return len(r.bindings) }

// Clear drops every binding.
func (r *Result) Clear() {
	for k := range r.bindings {
		delete(r.bindings, k)
	}
}

// Key returns the canonical serialization of the row.
func (r *Result) Key() string {
	var b strings.Builder
	for _, n := range r.Names() {
		b.WriteString("?")
		b.WriteString(n)
		b.WriteString("=")
		b.WriteString(r.bindings[n].key())
		b.WriteString(";")
	}
	return b.String()
}

// Equal reports whether both rows bind the same variables to the same terms.
func (r *Result) Equal(other *Result) bool {
	if r == nil || other == nil {
		return r == other
	}
	return r.Key() == other.Key()
}

// Hash returns a hash of the canonical serialization.
func (r *Result) Hash() uint64 {
	return xxhash.Sum64String(r.Key())
}
