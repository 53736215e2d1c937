package sparql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseQueryForms(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  QueryType
	}{
		{name: "select", query: "SELECT ?s WHERE { ?s ?p ?o }", want: Select},
		{name: "lowercase select", query: "select * { ?s ?p ?o }", want: Select},
		{name: "prefixed select", query: "PREFIX foaf: <http://xmlns.com/foaf/0.1/>\nSELECT ?n WHERE { ?p foaf:name ?n }", want: Select},
		{name: "empty prefix", query: "PREFIX : <http://example.org/>\nBASE <http://example.org/>\nASK { :a :b :c }", want: Ask},
		{name: "construct", query: "CONSTRUCT { ?s a ?t } WHERE { ?s a ?t }", want: Construct},
		{name: "describe", query: "DESCRIBE <http://example.org/a>", want: Describe},
		{name: "insert data", query: "INSERT DATA { <http://a> <http://b> \"c\" }", want: Update},
		{name: "with delete", query: "WITH <http://g> DELETE { ?s ?p ?o } WHERE { ?s ?p ?o }", want: Update},
		{name: "clear", query: "CLEAR GRAPH <http://g>", want: Update},
		{name: "unknown form", query: "EXPLAIN ?s", want: Unknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := Parse(tt.query)
			require.NoError(t, err)
			assert.Equal(t, tt.want, q.Type)
			assert.Equal(t, tt.query, q.Text)
		})
	}
}

func TestParseMalformed(t *testing.T) {
	for _, query := range []string{
		"",
		"   # only a comment\n",
		"SELECT ?s WHERE { ?s ?p ?o ",
		"SELECT ?s WHERE { ?s ?p \"unterminated }",
		"SELECT ?s WHERE { ?s ?p ?o } LIMIT ten",
	} {
		_, err := Parse(query)
		assert.ErrorIs(t, err, ErrMalformedQuery, query)
	}
}

func TestParseSelectModifiers(t *testing.T) {
	q, err := Parse(`SELECT DISTINCT ?name ?age WHERE {
  ?p <http://xmlns.com/foaf/0.1/name> ?name ;
     <http://xmlns.com/foaf/0.1/age> ?age .
  { SELECT ?p WHERE { ?p ?x ?y } LIMIT 3 }
}
ORDER BY DESC(?age) ?name
LIMIT 10`)
	require.NoError(t, err)

	assert.Equal(t, Select, q.Type)
	assert.True(t, q.Distinct)
	assert.Equal(t, []string{"name", "age"}, q.Variables)
	assert.True(t, q.HasLimit)
	assert.Equal(t, 10, q.Limit)
	assert.True(t, q.HasOrderBy)
	assert.Equal(t, []OrderKey{{Variable: "age", Descending: true}, {Variable: "name"}}, q.OrderBy)
	assert.False(t, q.HasAggregate)
}

func TestParseNoModifiers(t *testing.T) {
	q, err := Parse("SELECT ?s WHERE { ?s ?p ?o }")
	require.NoError(t, err)
	assert.False(t, q.HasLimit)
	assert.False(t, q.HasOrderBy)
	assert.False(t, q.Distinct)
}

func TestParseCountProjection(t *testing.T) {
	q, err := Parse("SELECT (COUNT(DISTINCT ?s) AS ?total) WHERE { ?s ?p ?o }")
	require.NoError(t, err)

	assert.True(t, q.HasAggregate)
	assert.True(t, q.HasCount)
	assert.False(t, q.Distinct)
	assert.Equal(t, []string{"total"}, q.Variables)
}

func TestCountDetectionIgnoresLiteralsAndComments(t *testing.T) {
	query := `# COUNT the people
SELECT ?s WHERE { ?s <http://example.org/label> "Count Dracula" }`

	q, err := Parse(query)
	require.NoError(t, err)
	assert.False(t, q.HasCount)
	assert.True(t, ContainsCount(query))
}

func TestParseSumIsNotCount(t *testing.T) {
	q, err := Parse("SELECT (SUM(?v) AS ?sum) WHERE { ?s <http://example.org/v> ?v }")
	require.NoError(t, err)
	assert.True(t, q.HasAggregate)
	assert.False(t, q.HasCount)
}
