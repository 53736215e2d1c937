// Package main provides the entry point of sparqlfed, a SPARQL federation
// gateway.
//
// sparqlfed groups remote SPARQL endpoints into named projects. A query sent
// to a project is dispatched to every endpoint concurrently and the partial
// responses are merged into one standard SPARQL response:
//   - SELECT results are concatenated, aggregated for COUNT queries, and
//     re-ordered, de-duplicated and limited per the query modifiers
//   - ASK results are combined with logical OR
//   - CONSTRUCT and DESCRIBE graphs are unioned
//   - updates are broadcast to every endpoint
//
// Usage:
//
//	sparqlfed serve [flags]
//	sparqlfed query --project NAME 'SELECT ...'
//	sparqlfed project create NAME http://host/sparql ...
//
// Environment Variables:
//   - SPARQLFED_SERVER_API_KEY: API key for the HTTP API
//   - SPARQLFED_SERVER_PORT: HTTP server port (default: 8080)
//   - SPARQLFED_DATA_DIR: directory of the project registry and audit log
//
// Example:
//
//	export SPARQLFED_SERVER_API_KEY=your-secret-key
//	sparqlfed serve --port 8080
package main

import (
	"os"

	"evalgo.org/sparqlfed/cmd"
)

// main is the application entry point that delegates to the cobra command structure.
func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
