package federation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"evalgo.org/sparqlfed/internal/cache"
	"evalgo.org/sparqlfed/internal/client"
	"evalgo.org/sparqlfed/internal/domain"
	"evalgo.org/sparqlfed/internal/metrics"
	"evalgo.org/sparqlfed/internal/sparql"
)

// ErrTaskPanic wraps a panic recovered while fetching or parsing.
var ErrTaskPanic = errors.New("endpoint task panicked")

// fetcher retrieves raw endpoint responses, consulting the cache first and
// collapsing concurrent misses for the same key into one remote call.
type fetcher struct {
	executor    client.Executor
	cache       cache.Handler
	group       singleflight.Group
	callTimeout time.Duration
	metrics     *metrics.Metrics
	logger      logrus.FieldLogger
}

// fetch returns the raw response of ep for q. Updates bypass the cache and
// the single-flight group.
func (f *fetcher) fetch(ctx context.Context, project string, ep domain.Endpoint, q *sparql.Query) (string, error) {
	if q.Type == sparql.Update {
		return f.remote(ctx, ep, q)
	}

	key := cache.NewKey(project, ep.ID(), q.Text)
	log := f.logger.WithFields(logrus.Fields{"project": project, "endpoint": ep.Location()})

	if f.cache != nil {
		raw, ok, err := f.cache.Get(ctx, key)
		switch {
		case err != nil:
			f.metrics.RecordCacheError("get")
			log.WithError(err).Warn("cache lookup failed, fetching remotely")
		case ok:
			f.metrics.RecordCacheHit(project)
			log.Debug("cache hit")
			return raw, nil
		default:
			f.metrics.RecordCacheMiss(project)
		}
	}

	ch := f.group.DoChan(key.String(), func() (interface{}, error) {
		// The shared call outlives the request that started it so that other
		// waiters are not failed by its cancellation. callTimeout bounds it.
		callCtx := ctx
		if f.callTimeout > 0 {
			callCtx = context.WithoutCancel(ctx)
		}
		raw, err := f.remote(callCtx, ep, q)
		if err != nil {
			return "", err
		}
		if f.cache != nil {
			if err := f.cache.Put(callCtx, key, raw); err != nil {
				f.metrics.RecordCacheError("put")
				log.WithError(err).Warn("failed to cache endpoint response")
			}
		}
		return raw, nil
	})

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return "", res.Err
		}
		return res.Val.(string), nil
	}
}

func (f *fetcher) remote(ctx context.Context, ep domain.Endpoint, q *sparql.Query) (raw string, err error) {
	if f.callTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.callTimeout)
		defer cancel()
	}

	start := time.Now()
	defer func() {
		// a panic inside a single-flight call would otherwise crash the process
		if r := recover(); r != nil {
			raw, err = "", fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
		f.metrics.RecordFetch(err == nil, time.Since(start))
	}()
	return f.executor.Execute(ctx, ep.Location(), q.Text, q.Type)
}

// invalidate drops a cached response that could not be parsed.
func (f *fetcher) invalidate(ctx context.Context, project string, ep domain.Endpoint, q *sparql.Query) {
	if f.cache == nil || q.Type == sparql.Update {
		return
	}
	if err := f.cache.Flush(context.WithoutCancel(ctx), cache.NewKey(project, ep.ID(), q.Text)); err != nil {
		f.metrics.RecordCacheError("flush")
	}
}

// runTask fetches and parses the response of one endpoint. ok is false when
// the endpoint contributes nothing, either because it failed (err is set) or
// because it returned an empty body.
func runTask[T any](ctx context.Context, f *fetcher, project string, ep domain.Endpoint, q *sparql.Query, parse func(string) (T, error)) (value T, ok bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			value, ok, err = zero, false, fmt.Errorf("%w: %v", ErrTaskPanic, r)
		}
	}()

	raw, err := f.fetch(ctx, project, ep, q)
	if err != nil {
		return value, false, err
	}
	if strings.TrimSpace(raw) == "" {
		return value, false, nil
	}

	value, err = parse(raw)
	if err != nil {
		f.invalidate(ctx, project, ep, q)
		return value, false, err
	}
	return value, true, nil
}
