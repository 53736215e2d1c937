// Package sparql provides the query classification, result parsing and
// result serialization used by the federation engine.
//
// Parsing is deliberately shallow: it only extracts what federation needs
// (query form, projected variables and the top-level solution modifiers),
// never the graph pattern itself.
package sparql

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"
)

// QueryType is the SPARQL query form.
type QueryType int

const (
	Unknown QueryType = iota
	Select
	Construct
	Ask
	Describe
	Update
)

func (t QueryType) String() string {
	switch t {
	case Select:
		return "SELECT"
	case Construct:
		return "CONSTRUCT"
	case Ask:
		return "ASK"
	case Describe:
		return "DESCRIBE"
	case Update:
		return "UPDATE"
	default:
		return "UNKNOWN"
	}
}

// ErrMalformedQuery is returned for query text that cannot be classified.
var ErrMalformedQuery = errors.New("malformed query")

// OrderKey is one ORDER BY condition.
type OrderKey struct {
	Variable   string
	Descending bool
}

// Query is a parsed query. It is read-only after Parse returns.
type Query struct {
	Text         string
	Type         QueryType
	Variables    []string
	HasLimit     bool
	Limit        int
	Distinct     bool
	HasOrderBy   bool
	OrderBy      []OrderKey
	HasAggregate bool
	// HasCount is set when a COUNT aggregate appears in the projection.
	HasCount bool
}

var updateKeywords = map[string]bool{
	"INSERT": true, "DELETE": true, "LOAD": true, "CLEAR": true, "CREATE": true,
	"DROP": true, "COPY": true, "MOVE": true, "ADD": true, "WITH": true,
}

var aggregateKeywords = map[string]bool{
	"COUNT": true, "SUM": true, "MIN": true, "MAX": true, "AVG": true,
	"SAMPLE": true, "GROUP_CONCAT": true,
}

// Parse classifies a query and extracts its projection and top-level modifiers.
// Comments, string literals and IRIs are skipped, so keywords inside them are ignored.
func Parse(text string) (*Query, error) {
	toks, err := tokenize(text)
	if err != nil {
		return nil, err
	}
	q := &Query{Text: text}
	if len(toks) == 0 {
		return nil, fmt.Errorf("%w: empty query", ErrMalformedQuery)
	}

	i := skipPrologue(toks)
	if i >= len(toks) {
		return nil, fmt.Errorf("%w: missing query form", ErrMalformedQuery)
	}
	form := strings.ToUpper(toks[i].text)
	switch {
	case toks[i].kind != tokWord:
		q.Type = Unknown
		return q, nil
	case form == "SELECT":
		q.Type = Select
		parseProjection(q, toks[i+1:])
	case form == "CONSTRUCT":
		q.Type = Construct
	case form == "ASK":
		q.Type = Ask
	case form == "DESCRIBE":
		q.Type = Describe
	case updateKeywords[form]:
		q.Type = Update
		return q, nil
	default:
		q.Type = Unknown
		return q, nil
	}

	if err := parseModifiers(q, toks); err != nil {
		return nil, err
	}
	return q, nil
}

func skipPrologue(toks []token) int {
	i := 0
	for i < len(toks) {
		switch strings.ToUpper(toks[i].text) {
		case "PREFIX":
			// PREFIX name: <iri>
			i += 3
		case "BASE":
			i += 2
		default:
			return i
		}
	}
	return i
}

func parseProjection(q *Query, toks []token) {
	depth := 0
	for i := 0; i < len(toks); i++ {
		t := toks[i]
		up := strings.ToUpper(t.text)
		if t.kind == tokWord && up == "AS" {
			if i+1 < len(toks) && toks[i+1].kind == tokVar {
				q.Variables = append(q.Variables, toks[i+1].text)
				i++
			}
			continue
		}
		if depth == 0 && t.kind == tokWord {
			switch up {
			case "DISTINCT", "REDUCED":
				if len(q.Variables) == 0 {
					q.Distinct = up == "DISTINCT"
				}
				continue
			case "WHERE", "FROM":
				return
			}
		}
		switch {
		case t.kind == tokPunct && t.text == "{":
			return
		case t.kind == tokPunct && t.text == "(":
			depth++
		case t.kind == tokPunct && t.text == ")":
			depth--
		case t.kind == tokWord && aggregateKeywords[up]:
			q.HasAggregate = true
			if up == "COUNT" {
				q.HasCount = true
			}
		case t.kind == tokVar && depth == 0:
			q.Variables = append(q.Variables, t.text)
		}
	}
}

// parseModifiers reads the solution modifiers after the outermost group pattern.
func parseModifiers(q *Query, toks []token) error {
	depth, last := 0, -1
	for i, t := range toks {
		if t.kind != tokPunct {
			continue
		}
		switch t.text {
		case "{":
			depth++
		case "}":
			depth--
			if depth < 0 {
				return fmt.Errorf("%w: unbalanced braces", ErrMalformedQuery)
			}
			if depth == 0 {
				last = i
			}
		}
	}
	if depth != 0 {
		return fmt.Errorf("%w: unbalanced braces", ErrMalformedQuery)
	}
	if last < 0 {
		return nil
	}

	tail := toks[last+1:]
	for i := 0; i < len(tail); i++ {
		switch strings.ToUpper(tail[i].text) {
		case "LIMIT":
			if i+1 >= len(tail) {
				return fmt.Errorf("%w: LIMIT without value", ErrMalformedQuery)
			}
			n, err := strconv.Atoi(tail[i+1].text)
			if err != nil || n < 0 {
				return fmt.Errorf("%w: invalid LIMIT %q", ErrMalformedQuery, tail[i+1].text)
			}
			q.HasLimit, q.Limit = true, n
			i++
		case "ORDER":
			if i+1 < len(tail) && strings.EqualFold(tail[i+1].text, "BY") {
				i = parseOrderBy(q, tail, i+2) - 1
			}
		}
	}
	return nil
}

func parseOrderBy(q *Query, toks []token, i int) int {
	for i < len(toks) {
		t := toks[i]
		up := strings.ToUpper(t.text)
		switch {
		case t.kind == tokVar:
			q.OrderBy = append(q.OrderBy, OrderKey{Variable: t.text})
			i++
		case (up == "ASC" || up == "DESC") && i+3 < len(toks) && toks[i+1].text == "(" && toks[i+2].kind == tokVar:
			q.OrderBy = append(q.OrderBy, OrderKey{Variable: toks[i+2].text, Descending: up == "DESC"})
			// skip to the matching parenthesis
			depth := 0
			for i++; i < len(toks); i++ {
				if toks[i].text == "(" {
					depth++
				} else if toks[i].text == ")" {
					depth--
					if depth == 0 {
						i++
						break
					}
				}
			}
		default:
			q.HasOrderBy = len(q.OrderBy) > 0
			return i
		}
	}
	q.HasOrderBy = len(q.OrderBy) > 0
	return i
}

type tokenKind int

const (
	tokWord tokenKind = iota
	tokVar
	tokPunct
	tokString
	tokIRI
)

type token struct {
	kind tokenKind
	text string
}

func tokenize(s string) ([]token, error) {
	var toks []token
	r := []rune(s)
	for i := 0; i < len(r); {
		c := r[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case c == '#':
			for i < len(r) && r[i] != '\n' {
				i++
			}
		case c == '?' || c == '$':
			j := i + 1
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_') {
				j++
			}
			if j == i+1 {
				toks = append(toks, token{kind: tokPunct, text: string(c)})
				i++
				continue
			}
			toks = append(toks, token{kind: tokVar, text: string(r[i+1 : j])})
			i = j
		case c == '<':
			// IRI reference unless it is a comparison operator
			j := i + 1
			for j < len(r) && r[j] != '>' && !unicode.IsSpace(r[j]) {
				j++
			}
			if j < len(r) && r[j] == '>' {
				toks = append(toks, token{kind: tokIRI, text: string(r[i : j+1])})
				i = j + 1
			} else {
				toks = append(toks, token{kind: tokPunct, text: "<"})
				i++
			}
		case c == '"' || c == '\'':
			j, err := skipString(r, i)
			if err != nil {
				return nil, err
			}
			toks = append(toks, token{kind: tokString, text: string(r[i:j])})
			i = j
		case unicode.IsLetter(c) || unicode.IsDigit(c) || c == '_':
			j := i
			for j < len(r) && (unicode.IsLetter(r[j]) || unicode.IsDigit(r[j]) || r[j] == '_' || r[j] == ':' || r[j] == '-' || r[j] == '.') {
				j++
			}
			// a trailing dot ends a triple, it is not part of the name
			for j > i+1 && r[j-1] == '.' {
				j--
			}
			toks = append(toks, token{kind: tokWord, text: string(r[i:j])})
			i = j
		default:
			toks = append(toks, token{kind: tokPunct, text: string(c)})
			i++
		}
	}
	return toks, nil
}

func skipString(r []rune, i int) (int, error) {
	q := r[i]
	long := i+2 < len(r) && r[i+1] == q && r[i+2] == q
	j := i + 1
	if long {
		j = i + 3
	}
	for j < len(r) {
		switch {
		case r[j] == '\\':
			j += 2
		case long && r[j] == q && j+2 < len(r) && r[j+1] == q && r[j+2] == q:
			return j + 3, nil
		case !long && r[j] == q:
			return j + 1, nil
		case !long && r[j] == '\n':
			return 0, fmt.Errorf("%w: unterminated string literal", ErrMalformedQuery)
		default:
			j++
		}
	}
	return 0, fmt.Errorf("%w: unterminated string literal", ErrMalformedQuery)
}

// ContainsCount reports whether the raw query text mentions COUNT anywhere,
// case-insensitively, including inside comments and literals.
func ContainsCount(text string) bool {
	return strings.Contains(strings.ToUpper(text), "COUNT")
}
