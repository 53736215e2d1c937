package sparql

import (
	"bytes"
	"encoding/xml"
	"errors"
	"fmt"
	"strings"
)

// ResultsNamespace is the namespace of the SPARQL Query Results XML format.
const ResultsNamespace = "http://www.w3.org/2005/sparql-results#"

const xmlLangNamespace = "http://www.w3.org/XML/1998/namespace"

// ErrMalformedResponse is returned when an endpoint response cannot be parsed.
var ErrMalformedResponse = errors.New("malformed endpoint response")

type resultsDocument struct {
	XMLName xml.Name        `xml:"sparql"`
	Xmlns   string          `xml:"xmlns,attr,omitempty"`
	Head    resultsHead     `xml:"head"`
	Results *resultsSection `xml:"results,omitempty"`
	Boolean *string         `xml:"boolean,omitempty"`
}

type resultsHead struct {
	Variables []headVariable `xml:"variable"`
}

type headVariable struct {
	Name string `xml:"name,attr"`
}

type resultsSection struct {
	Results []resultElement `xml:"result"`
}

type resultElement struct {
	Bindings []bindingElement `xml:"binding"`
}

type bindingElement struct {
	Name    string          `xml:"name,attr"`
	URI     *string         `xml:"uri,omitempty"`
	BNode   *string         `xml:"bnode,omitempty"`
	Literal *literalElement `xml:"literal,omitempty"`
}

type literalElement struct {
	Lang     string `xml:"http://www.w3.org/XML/1998/namespace lang,attr,omitempty"`
	Datatype string `xml:"datatype,attr,omitempty"`
	Value    string `xml:",chardata"`
}

// RowSet is a parsed SELECT response.
type RowSet struct {
	Variables []string
	Rows      []*Result
}

func decodeResults(raw string) (*resultsDocument, error) {
	var doc resultsDocument
	if err := xml.Unmarshal([]byte(raw), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedResponse, err)
	}
	return &doc, nil
}

// ParseResults parses a SPARQL Results XML document into rows.
func ParseResults(raw string) (*RowSet, error) {
	doc, err := decodeResults(raw)
	if err != nil {
		return nil, err
	}
	rs := &RowSet{}
	for _, v := range doc.Head.Variables {
		rs.Variables = append(rs.Variables, v.Name)
	}
	if doc.Results == nil {
		return rs, nil
	}
	for _, re := range doc.Results.Results {
		row := NewResult()
		for _, b := range re.Bindings {
			switch {
			case b.URI != nil:
				row.Bind(b.Name, NewURI(strings.TrimSpace(*b.URI)))
			case b.BNode != nil:
				row.Bind(b.Name, NewBlank(strings.TrimSpace(*b.BNode)))
			case b.Literal != nil:
				row.Bind(b.Name, Term{
					Kind:     Literal,
					Value:    b.Literal.Value,
					Lang:     b.Literal.Lang,
					Datatype: b.Literal.Datatype,
				})
			}
		}
		rs.Rows = append(rs.Rows, row)
	}
	return rs, nil
}

// ParseBoolean parses an ASK response. Surrounding whitespace and letter case
// of the literal are ignored; a document whose boolean element is entity-encoded
// has no boolean element and is rejected.
func ParseBoolean(raw string) (bool, error) {
	doc, err := decodeResults(raw)
	if err != nil {
		return false, err
	}
	if doc.Boolean == nil {
		return false, fmt.Errorf("%w: no boolean element", ErrMalformedResponse)
	}
	switch strings.ToLower(strings.TrimSpace(*doc.Boolean)) {
	case "true":
		return true, nil
	case "false":
		return false, nil
	default:
		return false, fmt.Errorf("%w: boolean value %q", ErrMalformedResponse, *doc.Boolean)
	}
}

// WriteResults serializes rows as a SPARQL Results XML document. Only the
// listed variables are written, in order.
func WriteResults(variables []string, rows []*Result) (string, error) {
	doc := resultsDocument{
		Xmlns:   ResultsNamespace,
		Results: &resultsSection{Results: make([]resultElement, 0, len(rows))},
	}
	for _, v := range variables {
		doc.Head.Variables = append(doc.Head.Variables, headVariable{Name: v})
	}
	for _, row := range rows {
		var re resultElement
		for _, v := range variables {
			t, ok := row.Get(v)
			if !ok || t.Kind == Unbound {
				continue
			}
			re.Bindings = append(re.Bindings, bindingFor(v, t))
		}
		doc.Results.Results = append(doc.Results.Results, re)
	}
	return marshalDocument(doc)
}

// WriteBoolean serializes an ASK answer.
func WriteBoolean(value bool) (string, error) {
	s := "false"
	if value {
		s = "true"
	}
	return marshalDocument(resultsDocument{Xmlns: ResultsNamespace, Boolean: &s})
}

func bindingFor(name string, t Term) bindingElement {
	b := bindingElement{Name: name}
	v := t.Value
	switch t.Kind {
	case URI:
		b.URI = &v
	case Blank:
		b.BNode = &v
	default:
		lit := &literalElement{Value: v, Lang: t.Lang}
		if t.Lang == "" {
			lit.Datatype = t.Datatype
		}
		b.Literal = lit
	}
	return b
}

func marshalDocument(doc resultsDocument) (string, error) {
	var buf bytes.Buffer
	buf.WriteString(xml.Header)
	enc := xml.NewEncoder(&buf)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return "", fmt.Errorf("failed to encode results: %w", err)
	}
	buf.WriteString("\n")
	return buf.String(), nil
}
