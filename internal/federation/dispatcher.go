package federation

import (
	"context"
	"errors"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"

	"evalgo.org/sparqlfed/internal/cache"
	"evalgo.org/sparqlfed/internal/client"
	"evalgo.org/sparqlfed/internal/domain"
	"evalgo.org/sparqlfed/internal/metrics"
	"evalgo.org/sparqlfed/internal/sparql"
)

// Defaults for Config fields left at zero.
const (
	DefaultPoolSize       = 10
	DefaultRequestTimeout = 60 * time.Second
	DefaultCallTimeout    = 30 * time.Second
)

// Config tunes the dispatcher.
type Config struct {
	// PoolSize bounds the endpoint tasks running at once across all requests.
	PoolSize int
	// RequestTimeout bounds the wait for all endpoints of one request.
	RequestTimeout time.Duration
	// CallTimeout bounds a single remote call.
	CallTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.PoolSize <= 0 {
		c.PoolSize = DefaultPoolSize
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = DefaultCallTimeout
	}
	return c
}

// Dispatcher runs one fetch task per endpoint on a pool shared by all
// requests and collects their contributions.
type Dispatcher struct {
	fetcher        *fetcher
	pool           *semaphore.Weighted
	requestTimeout time.Duration
	logger         logrus.FieldLogger
	metrics        *metrics.Metrics
}

// NewDispatcher creates a dispatcher. cache may be nil, m may be nil.
func NewDispatcher(exec client.Executor, c cache.Handler, cfg Config, logger logrus.FieldLogger, m *metrics.Metrics) *Dispatcher {
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Dispatcher{
		fetcher: &fetcher{
			executor:    exec,
			cache:       c,
			callTimeout: cfg.CallTimeout,
			metrics:     m,
			logger:      logger,
		},
		pool:           semaphore.NewWeighted(int64(cfg.PoolSize)),
		requestTimeout: cfg.RequestTimeout,
		logger:         logger,
		metrics:        m,
	}
}

// Request is one federated query against a resolved endpoint list.
type Request struct {
	ID        string
	Project   string
	Query     *sparql.Query
	Endpoints []domain.Endpoint
}

func (r *Request) logger(base logrus.FieldLogger) logrus.FieldLogger {
	return base.WithFields(logrus.Fields{
		"request_id": r.ID,
		"project":    r.Project,
		"query_type": r.Query.Type.String(),
	})
}

type contribution[T any] struct {
	index int
	value T
	ok    bool
	err   error
}

// outcome holds the contributions that landed before the deadline, indexed
// by endpoint position so that merges are independent of arrival order.
type outcome[T any] struct {
	values   []T
	present  []bool
	reported int
	failed   int
	timedOut bool
}

// each calls fn for every present contribution in endpoint order.
func (o *outcome[T]) each(fn func(T)) {
	for i, ok := range o.present {
		if ok {
			fn(o.values[i])
		}
	}
}

// gather fans req out to its endpoints and folds the contributions. The
// calling goroutine is the only one touching the outcome. It returns once
// every task reported or the request deadline passed; late contributions go
// to the buffered channel and are dropped with it.
func gather[T any](ctx context.Context, d *Dispatcher, req *Request, parse func(string) (T, error)) *outcome[T] {
	n := len(req.Endpoints)
	out := &outcome[T]{values: make([]T, n), present: make([]bool, n)}
	if n == 0 {
		return out
	}

	ctx, cancel := context.WithTimeout(ctx, d.requestTimeout)
	defer cancel()
	log := req.logger(d.logger)

	results := make(chan contribution[T], n)
	for i, ep := range req.Endpoints {
		go func(i int, ep domain.Endpoint) {
			d.metrics.TaskQueued()
			if err := d.pool.Acquire(ctx, 1); err != nil {
				d.metrics.TaskAbandoned()
				results <- contribution[T]{index: i, err: err}
				return
			}
			d.metrics.TaskStarted()
			defer func() {
				d.pool.Release(1)
				d.metrics.TaskDone()
			}()

			v, ok, err := runTask(ctx, d.fetcher, req.Project, ep, req.Query, parse)
			results <- contribution[T]{index: i, value: v, ok: ok, err: err}
		}(i, ep)
	}

	for out.reported < n {
		select {
		case c := <-results:
			out.reported++
			if c.err != nil {
				out.failed++
				log.WithError(c.err).WithField("endpoint", req.Endpoints[c.index].Location()).
					Warn("endpoint contributed no results")
				continue
			}
			if c.ok {
				out.values[c.index] = c.value
				out.present[c.index] = true
			}
		case <-ctx.Done():
			out.timedOut = true
			if errors.Is(ctx.Err(), context.DeadlineExceeded) {
				d.metrics.RecordRequestTimeout(req.Query.Type.String())
			}
			log.WithFields(logrus.Fields{
				"reported": out.reported,
				"expected": n,
			}).Warn("request deadline passed, merging partial results")
			return out
		}
	}

	log.WithFields(logrus.Fields{
		"endpoints": n,
		"failed":    out.failed,
	}).Debug("all endpoints reported")
	return out
}
