// Package client performs SPARQL protocol calls against remote endpoints.
package client

import (
	"net/http"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/sirupsen/logrus"

	"evalgo.org/sparqlfed/internal/helpers"
)

// Options configures the clients handed out by a Manager.
type Options struct {
	// Timeout bounds a single remote call, retries included.
	Timeout time.Duration
	// Retries is the number of extra attempts for read-only queries.
	Retries int
	// RetryWait is the initial backoff between attempts.
	RetryWait time.Duration
	// Debug logs every outbound request and error response body.
	Debug bool
	// Transport overrides the underlying round tripper.
	Transport http.RoundTripper
}

// Manager handles resty client creation and caching. One client is kept per
// endpoint host and retry policy so connections are reused across requests.
type Manager struct {
	opts   Options
	logger logrus.FieldLogger
	cache  map[string]*resty.Client
	mu     sync.RWMutex
}

// NewManager creates a new client manager
func NewManager(opts Options, logger logrus.FieldLogger) *Manager {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Manager{
		opts:   opts,
		logger: logger,
		cache:  make(map[string]*resty.Client),
	}
}

// GetClient returns the client for the host of endpointURL. Clients created
// with retry=false never repeat a request, which is what updates need.
func (m *Manager) GetClient(endpointURL string, retry bool) (*resty.Client, error) {
	host, err := helpers.URL2ServiceRobust(endpointURL)
	if err != nil {
		return nil, err
	}
	key := host
	if !retry {
		key += "|once"
	}

	m.mu.RLock()
	if cachedClient, exists := m.cache[key]; exists {
		m.mu.RUnlock()
		return cachedClient, nil
	}
	m.mu.RUnlock()

	m.mu.Lock()
	defer m.mu.Unlock()
	if cachedClient, exists := m.cache[key]; exists {
		return cachedClient, nil
	}

	client := m.newClient(host, retry)
	m.cache[key] = client
	return client, nil
}

func (m *Manager) newClient(host string, retry bool) *resty.Client {
	client := resty.New().
		SetHeader("User-Agent", helpers.UserAgent).
		SetLogger(m.logger.WithField("host", host))

	if m.opts.Timeout > 0 {
		client.SetTimeout(m.opts.Timeout)
	}

	transport := m.opts.Transport
	if m.opts.Debug {
		transport = helpers.EnableHTTPDebugLogging(transport, m.logger.WithField("host", host))
	}
	if transport != nil {
		client.SetTransport(transport)
	}

	if retry && m.opts.Retries > 0 {
		wait := m.opts.RetryWait
		if wait <= 0 {
			wait = 200 * time.Millisecond
		}
		client.SetRetryCount(m.opts.Retries).
			SetRetryWaitTime(wait).
			SetRetryMaxWaitTime(4 * wait).
			AddRetryCondition(func(resp *resty.Response, err error) bool {
				if err != nil {
					return true
				}
				return resp != nil && resp.StatusCode() >= http.StatusInternalServerError
			})
	}
	return client
}

// Len returns the number of cached clients.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.cache)
}

// ClearCache clears the cached clients
func (m *Manager) ClearCache() {
	m.mu.Lock()
	m.cache = make(map[string]*resty.Client)
	m.mu.Unlock()
}
