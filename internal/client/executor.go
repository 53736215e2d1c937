package client

import (
	"context"
	"errors"
	"net"
	"net/http"

	"evalgo.org/sparqlfed/internal/helpers"
	"evalgo.org/sparqlfed/internal/sparql"
)

const maxErrorBody = 512

// Executor sends one query to one endpoint and returns the raw response text.
type Executor interface {
	Execute(ctx context.Context, endpointURL, query string, qt sparql.QueryType) (string, error)
}

// HTTPExecutor speaks the SPARQL 1.1 protocol over HTTP. Queries and updates
// are sent as url-encoded form posts so that long query texts never hit URL
// length limits.
type HTTPExecutor struct {
	clients *Manager
}

// NewHTTPExecutor creates an executor drawing clients from m.
func NewHTTPExecutor(m *Manager) *HTTPExecutor {
	return &HTTPExecutor{clients: m}
}

// Accept returns the media type requested for a query type.
func Accept(qt sparql.QueryType) string {
	switch qt {
	case sparql.Construct, sparql.Describe:
		return helpers.MediaRDFXML
	case sparql.Update:
		return helpers.MediaTextPlain + ", */*;q=0.1"
	default:
		return helpers.MediaSPARQLResultsXML
	}
}

// Execute posts query to endpointURL. Updates are never retried.
func (e *HTTPExecutor) Execute(ctx context.Context, endpointURL, query string, qt sparql.QueryType) (string, error) {
	update := qt == sparql.Update
	client, err := e.clients.GetClient(endpointURL, !update)
	if err != nil {
		return "", &EndpointError{Endpoint: endpointURL, Kind: ErrEndpointUnreachable, Cause: err}
	}

	field := helpers.FormQuery
	if update {
		field = helpers.FormUpdate
	}

	resp, err := client.R().
		SetContext(ctx).
		SetHeader("Accept", Accept(qt)).
		SetFormData(map[string]string{field: query}).
		Post(endpointURL)
	if err != nil {
		return "", classify(endpointURL, err)
	}

	if resp.StatusCode() >= http.StatusBadRequest {
		body := resp.String()
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return "", &EndpointError{
			Endpoint:   endpointURL,
			StatusCode: resp.StatusCode(),
			Body:       body,
			Kind:       ErrEndpointStatus,
		}
	}
	return resp.String(), nil
}

func classify(endpointURL string, err error) error {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return &EndpointError{Endpoint: endpointURL, Kind: ErrEndpointTimeout, Cause: err}
	}
	return &EndpointError{Endpoint: endpointURL, Kind: ErrEndpointUnreachable, Cause: err}
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, endpointURL, query string, qt sparql.QueryType) (string, error)

// Execute calls f.
func (f ExecutorFunc) Execute(ctx context.Context, endpointURL, query string, qt sparql.QueryType) (string, error) {
	return f(ctx, endpointURL, query, qt)
}
