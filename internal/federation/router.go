package federation

import (
	"context"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"

	"evalgo.org/sparqlfed/internal/sparql"
)

// CountDetection selects how a SELECT query is recognised as a count.
type CountDetection string

const (
	// CountParsed uses the COUNT aggregate found in the parsed projection.
	CountParsed CountDetection = "parsed"
	// CountSubstring matches "count" anywhere in the query text, comments
	// and literals included.
	CountSubstring CountDetection = "substring"
)

// ParseCountDetection validates a configured detection mode. The empty
// string selects CountParsed.
func ParseCountDetection(s string) (CountDetection, error) {
	switch CountDetection(strings.ToLower(strings.TrimSpace(s))) {
	case "", CountParsed:
		return CountParsed, nil
	case CountSubstring:
		return CountSubstring, nil
	default:
		return "", fmt.Errorf("unknown count detection mode: %s", s)
	}
}

func (c CountDetection) counts(q *sparql.Query) bool {
	if c == CountSubstring {
		return sparql.ContainsCount(q.Text)
	}
	return q.HasCount
}

// Router maps query types to merge strategies.
type Router struct {
	strategies map[sparql.QueryType]Strategy
	logger     logrus.FieldLogger
}

// NewRouter creates a router with the strategies for every supported query type.
func NewRouter(d *Dispatcher, detection CountDetection) *Router {
	r := &Router{
		strategies: make(map[sparql.QueryType]Strategy),
		logger:     d.logger,
	}

	graph := &graphStrategy{d: d}
	r.Register(sparql.Select, &selectStrategy{d: d, detection: detection})
	r.Register(sparql.Ask, &askStrategy{d: d})
	r.Register(sparql.Construct, graph)
	r.Register(sparql.Describe, graph)
	r.Register(sparql.Update, &updateStrategy{d: d})

	return r
}

// Register registers a strategy for a query type
func (r *Router) Register(qt sparql.QueryType, s Strategy) {
	r.strategies[qt] = s
}

// Route merges req with the strategy of its query type. A query type without
// a strategy yields an empty body.
func (r *Router) Route(ctx context.Context, req *Request) (string, error) {
	s, exists := r.strategies[req.Query.Type]
	if !exists {
		req.logger(r.logger).Warn("unrecognised query type, returning empty response")
		return "", nil
	}
	return s.Merge(ctx, req)
}

// GetStrategy returns the strategy for a query type (useful for testing)
func (r *Router) GetStrategy(qt sparql.QueryType) (Strategy, bool) {
	s, exists := r.strategies[qt]
	return s, exists
}
