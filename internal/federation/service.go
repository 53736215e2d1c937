// Package federation fans a query out to the endpoints of a project and
// merges their answers into a single response.
//
// Every endpoint is served by one task on a pool shared by all requests.
// Tasks report to the goroutine handling the request over a buffered
// channel; that goroutine alone owns the partial results and stops waiting
// at the request deadline. A failing endpoint contributes nothing.
package federation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"evalgo.org/sparqlfed/internal/cache"
	"evalgo.org/sparqlfed/internal/domain"
	"evalgo.org/sparqlfed/internal/helpers"
	"evalgo.org/sparqlfed/internal/metrics"
	"evalgo.org/sparqlfed/internal/sparql"
)

type requestIDKey struct{}

// WithRequestID attaches a request identifier that RunFederatedQuery uses
// instead of generating one.
func WithRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, requestIDKey{}, id)
}

func requestID(ctx context.Context) string {
	if id, ok := ctx.Value(requestIDKey{}).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}

// ProjectLookup resolves project names.
type ProjectLookup interface {
	Get(name string) (*domain.Project, error)
}

// Response is the merged answer to a federated query.
type Response struct {
	RequestID   string
	QueryType   sparql.QueryType
	ContentType string
	Body        string
}

// ContentType returns the media type of a merged response.
func ContentType(qt sparql.QueryType) string {
	switch qt {
	case sparql.Select, sparql.Ask:
		return helpers.MediaSPARQLResultsXML
	case sparql.Construct, sparql.Describe:
		return helpers.MediaRDFXML
	default:
		return helpers.MediaTextPlain
	}
}

// Service runs federated queries against named projects.
type Service struct {
	projects   ProjectLookup
	dispatcher *Dispatcher
	router     *Router
	logger     logrus.FieldLogger
	metrics    *metrics.Metrics
}

// NewService wires a service over a dispatcher.
func NewService(projects ProjectLookup, d *Dispatcher, detection CountDetection) *Service {
	return &Service{
		projects:   projects,
		dispatcher: d,
		router:     NewRouter(d, detection),
		logger:     d.logger,
		metrics:    d.metrics,
	}
}

// RunFederatedQuery sends query to the endpoints of project and merges the
// answers. With endpointIDs only those endpoints are queried, in project
// order. Unknown projects fail with *domain.UnknownProjectError, unparseable
// queries with sparql.ErrMalformedQuery.
func (s *Service) RunFederatedQuery(ctx context.Context, project, query string, endpointIDs ...string) (*Response, error) {
	start := time.Now()

	if project == "" {
		return nil, domain.NewUnknownProjectError(project)
	}
	p, err := s.projects.Get(project)
	if err != nil {
		return nil, err
	}

	q, err := sparql.Parse(query)
	if err != nil {
		return nil, err
	}

	endpoints, err := p.Select(endpointIDs)
	if err != nil {
		return nil, err
	}

	req := &Request{
		ID:        requestID(ctx),
		Project:   p.Name(),
		Query:     q,
		Endpoints: endpoints,
	}
	log := req.logger(s.logger)
	log.WithField("endpoints", len(endpoints)).Info("dispatching federated query")

	body, err := s.router.Route(ctx, req)
	status := "success"
	if err != nil {
		status = "error"
		log.WithError(err).Error("failed to merge endpoint results")
	}
	s.metrics.RecordRequest(q.Type.String(), status, time.Since(start))
	if err != nil {
		return nil, err
	}

	return &Response{
		RequestID:   req.ID,
		QueryType:   q.Type,
		ContentType: ContentType(q.Type),
		Body:        body,
	}, nil
}

// FlushCache drops every cached response of project.
func (s *Service) FlushCache(ctx context.Context, project string) error {
	if _, err := s.projects.Get(project); err != nil {
		return err
	}
	c := s.dispatcher.fetcher.cache
	if c == nil {
		return nil
	}
	if err := c.FlushAll(ctx, project); err != nil {
		s.metrics.RecordCacheError("flush")
		return err
	}
	s.logger.WithField("project", project).Info("flushed response cache")
	return nil
}

// ForgetEndpoint drops every cached response of an endpoint. It does not
// require the endpoint to still belong to the project, so callers run it
// after removing one.
func (s *Service) ForgetEndpoint(ctx context.Context, project, endpointID string) error {
	c := s.dispatcher.fetcher.cache
	if c == nil {
		return nil
	}
	if err := c.FlushEndpoint(ctx, project, endpointID); err != nil {
		s.metrics.RecordCacheError("flush")
		return err
	}
	return nil
}

// FlushEndpoint drops the cached response of one endpoint for one query.
func (s *Service) FlushEndpoint(ctx context.Context, project, endpointID, query string) error {
	p, err := s.projects.Get(project)
	if err != nil {
		return err
	}
	ep, ok := p.Endpoint(endpointID)
	if !ok {
		return &domain.UnknownEndpointError{Project: project, ID: endpointID}
	}
	c := s.dispatcher.fetcher.cache
	if c == nil {
		return nil
	}
	return c.Flush(ctx, cache.NewKey(p.Name(), ep.ID(), query))
}
