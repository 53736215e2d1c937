package federation

import (
	"context"
	"math/big"
	"sort"
	"strconv"
	"strings"

	"evalgo.org/sparqlfed/internal/sparql"
)

// DefaultCountVariable is summed when a counting query projects no variable.
const DefaultCountVariable = "count"

// Strategy merges the contributions of one query type into a response body.
type Strategy interface {
	Merge(ctx context.Context, req *Request) (string, error)
}

// selectStrategy concatenates the rows of all endpoints in endpoint order
// and applies the solution modifiers of the query to the union.
type selectStrategy struct {
	d         *Dispatcher
	detection CountDetection
}

func (s *selectStrategy) Merge(ctx context.Context, req *Request) (string, error) {
	out := gather(ctx, s.d, req, sparql.ParseResults)

	variables := req.Query.Variables
	var rows []*sparql.Result
	out.each(func(rs *sparql.RowSet) {
		rows = append(rows, rs.Rows...)
		if len(req.Query.Variables) == 0 {
			variables = unionVariables(variables, rs.Variables)
		}
	})

	if s.detection.counts(req.Query) {
		name, row := aggregateRows(req.Query.Variables, rows)
		return sparql.WriteResults([]string{name}, []*sparql.Result{row})
	}
	return sparql.WriteResults(variables, applyModifiers(req.Query, rows))
}

// unionVariables appends the names of next missing from vars. Used for
// SELECT * where the projection is only known from the responses.
func unionVariables(vars, next []string) []string {
	for _, v := range next {
		found := false
		for _, have := range vars {
			if have == v {
				found = true
				break
			}
		}
		if !found {
			vars = append(vars, v)
		}
	}
	return vars
}

// aggregateRows sums the per-endpoint counts into one row bound to the first
// projected variable.
func aggregateRows(projected []string, rows []*sparql.Result) (string, *sparql.Result) {
	name := DefaultCountVariable
	if len(projected) > 0 {
		name = projected[0]
	}

	sum := new(big.Int)
	for _, row := range rows {
		t, ok := row.Get(name)
		if !ok || t.Kind != sparql.Literal {
			continue
		}
		// only integer lexical forms count; "3.5" or "1e3" are skipped
		n, ok := new(big.Int).SetString(strings.TrimSpace(t.Value), 10)
		if !ok {
			continue
		}
		sum.Add(sum, n)
	}
	value := sum.String()
	return name, sparql.NewResult().Bind(name, sparql.NewTypedLiteral(value, sparql.XSDInteger))
}

// applyModifiers orders, limits and de-duplicates rows. LIMIT is applied
// before DISTINCT, so duplicate rows still consume the limit.
func applyModifiers(q *sparql.Query, rows []*sparql.Result) []*sparql.Result {
	if q.HasOrderBy {
		sort.SliceStable(rows, func(i, j int) bool {
			return compareRows(rows[i], rows[j], q.OrderBy) < 0
		})
	}
	if q.HasLimit && len(rows) > q.Limit {
		rows = rows[:q.Limit]
	}
	if q.Distinct {
		rows = distinct(rows)
	}
	return rows
}

func distinct(rows []*sparql.Result) []*sparql.Result {
	seen := make(map[uint64][]*sparql.Result, len(rows))
	kept := make([]*sparql.Result, 0, len(rows))
	for _, row := range rows {
		h := row.Hash()
		dup := false
		for _, prev := range seen[h] {
			if prev.Equal(row) {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		seen[h] = append(seen[h], row)
		kept = append(kept, row)
	}
	return kept
}

func compareRows(a, b *sparql.Result, keys []sparql.OrderKey) int {
	for _, k := range keys {
		ta, _ := a.Get(k.Variable)
		tb, _ := b.Get(k.Variable)
		c := compareTerms(ta, tb)
		if k.Descending {
			c = -c
		}
		if c != 0 {
			return c
		}
	}
	return 0
}

// compareTerms orders unbound < blank < URI < literal. Two numeric literals
// compare by value, everything else lexically.
func compareTerms(a, b sparql.Term) int {
	if a.Kind != b.Kind {
		if a.Kind < b.Kind {
			return -1
		}
		return 1
	}
	if a.Kind == sparql.Literal {
		na, okA := a.Number()
		nb, okB := b.Number()
		switch {
		case okA && okB:
			switch {
			case na < nb:
				return -1
			case na > nb:
				return 1
			}
		case okA:
			return -1
		case okB:
			return 1
		}
	}
	if c := strings.Compare(a.Value, b.Value); c != 0 {
		return c
	}
	if c := strings.Compare(a.Lang, b.Lang); c != 0 {
		return c
	}
	return strings.Compare(a.Datatype, b.Datatype)
}

// askStrategy ORs the booleans of all endpoints.
type askStrategy struct {
	d *Dispatcher
}

func (s *askStrategy) Merge(ctx context.Context, req *Request) (string, error) {
	out := gather(ctx, s.d, req, sparql.ParseBoolean)
	answer := false
	out.each(func(b bool) {
		answer = answer || b
	})
	return sparql.WriteBoolean(answer)
}

// graphStrategy unions the triples of CONSTRUCT and DESCRIBE responses.
type graphStrategy struct {
	d *Dispatcher
}

func (s *graphStrategy) Merge(ctx context.Context, req *Request) (string, error) {
	out := gather(ctx, s.d, req, sparql.ParseGraph)
	merged := sparql.NewGraph()
	// blank node labels are local to each response document
	n := 0
	out.each(func(g *sparql.Graph) {
		merged.Union(g.ScopeBlanks("e" + strconv.Itoa(n)))
		n++
	})

	body, skipped, err := sparql.WriteRDFXML(merged)
	if err != nil {
		return "", err
	}
	if skipped > 0 {
		req.logger(s.d.logger).WithField("skipped", skipped).
			Warn("dropped triples whose predicate cannot be written as RDF/XML")
	}
	return body, nil
}

// updateStrategy broadcasts an update and returns the endpoint responses
// verbatim in endpoint order.
type updateStrategy struct {
	d *Dispatcher
}

func (s *updateStrategy) Merge(ctx context.Context, req *Request) (string, error) {
	out := gather(ctx, s.d, req, func(raw string) (string, error) { return raw, nil })
	var b strings.Builder
	out.each(func(raw string) {
		b.WriteString(raw)
	})
	return b.String(), nil
}
