// Package helpers provides utility functions and constants shared by the
// client and HTTP layers.
package helpers

// SPARQL protocol media types
const (
	MediaSPARQLResultsXML = "application/sparql-results+xml"
	MediaRDFXML           = "application/rdf+xml"
	MediaSPARQLQuery      = "application/sparql-query"
	MediaSPARQLUpdate     = "application/sparql-update"
	MediaTextPlain        = "text/plain"
)

// SPARQL protocol form fields
const (
	FormQuery  = "query"
	FormUpdate = "update"
)

// EndpointIDSeparator joins endpoint identifiers in a subset path segment.
const EndpointIDSeparator = "+"

// UserAgent is sent with every outbound request.
const UserAgent = "sparqlfed/1.0"
