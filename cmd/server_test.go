package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"evalgo.org/sparqlfed/auth"
	"evalgo.org/sparqlfed/internal/cache"
	"evalgo.org/sparqlfed/internal/client"
	"evalgo.org/sparqlfed/internal/domain"
	"evalgo.org/sparqlfed/internal/federation"
	"evalgo.org/sparqlfed/internal/helpers"
	"evalgo.org/sparqlfed/internal/sparql"
)

const testAPIKey = "test-api-key-1234567890"

// newTestApp wires an app over a temporary data directory.
func newTestApp(t *testing.T, mutate func(*settings)) *app {
	t.Helper()
	s := &settings{
		Port:            8080,
		ShutdownTimeout: time.Second,
		BodyLimit:       "1M",
		APIKey:          testAPIKey,
		DataDir:         t.TempDir(),
		Federation: federation.Config{
			PoolSize:       4,
			RequestTimeout: 5 * time.Second,
			CallTimeout:    2 * time.Second,
		},
		CountDetection: federation.CountParsed,
		Cache:          cache.Config{Backend: cache.BackendMemory, Size: 100},
		Client:         client.Options{Retries: 0},
	}
	if mutate != nil {
		mutate(s)
	}
	a, err := newApp(s)
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

// fakeEndpoint is a SPARQL endpoint answering SELECT with two rows named
// after the endpoint and ASK with a fixed answer.
type fakeEndpoint struct {
	srv     *httptest.Server
	queries atomic.Int32
	updates atomic.Int32
}

func newFakeEndpoint(t *testing.T, name string, ask bool) *fakeEndpoint {
	t.Helper()
	f := &fakeEndpoint{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseForm(); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if u := r.PostForm.Get(helpers.FormUpdate); u != "" {
			f.updates.Add(1)
			w.Header().Set(echo.HeaderContentType, helpers.MediaTextPlain)
			_, _ = w.Write([]byte("OK"))
			return
		}
		f.queries.Add(1)
		q := strings.ToUpper(strings.TrimSpace(r.PostForm.Get(helpers.FormQuery)))
		var (
			body string
			err  error
		)
		if strings.HasPrefix(q, "ASK") {
			body, err = sparql.WriteBoolean(ask)
		} else {
			rows := []*sparql.Result{
				sparql.NewResult().Bind("s", sparql.NewURI(fmt.Sprintf("http://example.org/%s/1", name))),
				sparql.NewResult().Bind("s", sparql.NewURI(fmt.Sprintf("http://example.org/%s/2", name))),
			}
			body, err = sparql.WriteResults([]string{"s"}, rows)
		}
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set(echo.HeaderContentType, helpers.MediaSPARQLResultsXML)
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeEndpoint) URL() string { return f.srv.URL + "/sparql" }

func doRequest(e *echo.Echo, method, target, contentType, body string) *httptest.ResponseRecorder {
	var req *http.Request
	if body != "" {
		req = httptest.NewRequest(method, target, strings.NewReader(body))
	} else {
		req = httptest.NewRequest(method, target, nil)
	}
	if contentType != "" {
		req.Header.Set(echo.HeaderContentType, contentType)
	}
	req.Header.Set("x-api-key", testAPIKey)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func queryURL(project, query string) string {
	return "/v1/api/projects/" + project + "/sparql?" + url.Values{helpers.FormQuery: {query}}.Encode()
}

type serverFixture struct {
	app  *app
	e    *echo.Echo
	a, b *fakeEndpoint
}

func newServerFixture(t *testing.T) *serverFixture {
	t.Helper()
	f := &serverFixture{
		app: newTestApp(t, nil),
		a:   newFakeEndpoint(t, "a", false),
		b:   newFakeEndpoint(t, "b", true),
	}
	f.e = newServer(f.app)

	body := fmt.Sprintf(`{"name":"demo","endpoints":[%q,%q]}`, f.a.URL(), f.b.URL())
	rec := doRequest(f.e, http.MethodPost, "/v1/api/projects", echo.MIMEApplicationJSON, body)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	return f
}

func TestServerFederatedSelect(t *testing.T) {
	f := newServerFixture(t)

	rec := doRequest(f.e, http.MethodGet, queryURL("demo", "SELECT ?s WHERE { ?s ?p ?o }"), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, helpers.MediaSPARQLResultsXML, rec.Header().Get(echo.HeaderContentType))
	assert.NotEmpty(t, rec.Header().Get(echo.HeaderXRequestID))

	rs, err := sparql.ParseResults(rec.Body.String())
	require.NoError(t, err)
	require.Len(t, rs.Rows, 4)
	first, _ := rs.Rows[0].Get("s")
	last, _ := rs.Rows[3].Get("s")
	assert.Equal(t, "http://example.org/a/1", first.Value)
	assert.Equal(t, "http://example.org/b/2", last.Value)
}

func TestServerQueryBodies(t *testing.T) {
	f := newServerFixture(t)
	query := "SELECT ?s WHERE { ?s ?p ?o } LIMIT 3"

	tests := []struct {
		name        string
		contentType string
		body        string
	}{
		{"form", echo.MIMEApplicationForm, url.Values{helpers.FormQuery: {query}}.Encode()},
		{"direct", helpers.MediaSPARQLQuery, query},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(f.e, http.MethodPost, "/v1/api/projects/demo/sparql", tt.contentType, tt.body)
			require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
			rs, err := sparql.ParseResults(rec.Body.String())
			require.NoError(t, err)
			assert.Len(t, rs.Rows, 3)
		})
	}
}

func TestServerEndpointSubset(t *testing.T) {
	f := newServerFixture(t)
	id := domain.NewEndpoint(f.b.URL()).ID()

	target := "/v1/api/projects/demo/endpoints/" + id + "/sparql?" +
		url.Values{helpers.FormQuery: {"SELECT ?s WHERE { ?s ?p ?o }"}}.Encode()
	rec := doRequest(f.e, http.MethodGet, target, "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rs, err := sparql.ParseResults(rec.Body.String())
	require.NoError(t, err)
	require.Len(t, rs.Rows, 2)
	v, _ := rs.Rows[0].Get("s")
	assert.Equal(t, "http://example.org/b/1", v.Value)
	assert.Equal(t, int32(0), f.a.queries.Load())

	rec = doRequest(f.e, http.MethodGet, "/v1/api/projects/demo/endpoints/ffff/sparql?query=ASK%7B%7D", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerAsk(t *testing.T) {
	f := newServerFixture(t)

	rec := doRequest(f.e, http.MethodGet, queryURL("demo", "ASK { ?s ?p ?o }"), "", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	v, err := sparql.ParseBoolean(rec.Body.String())
	require.NoError(t, err)
	assert.True(t, v)
}

func TestServerUpdateBroadcast(t *testing.T) {
	f := newServerFixture(t)

	body := url.Values{helpers.FormUpdate: {"INSERT DATA { <http://x> <http://y> <http://z> }"}}.Encode()
	rec := doRequest(f.e, http.MethodPost, "/v1/api/projects/demo/sparql", echo.MIMEApplicationForm, body)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OKOK", rec.Body.String())
	assert.Equal(t, int32(1), f.a.updates.Load())
	assert.Equal(t, int32(1), f.b.updates.Load())
}

func TestServerQueryErrors(t *testing.T) {
	f := newServerFixture(t)

	tests := []struct {
		name   string
		target string
		status int
	}{
		{"missing query", "/v1/api/projects/demo/sparql", http.StatusBadRequest},
		{"malformed query", queryURL("demo", "SELECT ?s WHERE { ?s ?p ?o } LIMIT ten"), http.StatusBadRequest},
		{"unknown project", queryURL("nope", "ASK {}"), http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := doRequest(f.e, http.MethodGet, tt.target, "", "")
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}

	rec := doRequest(f.e, http.MethodGet, queryURL("demo", "EXPLAIN SELECT ?s {}"), "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
	assert.Equal(t, int32(0), f.a.queries.Load())
}

func TestServerCacheFlush(t *testing.T) {
	f := newServerFixture(t)
	target := queryURL("demo", "SELECT ?s WHERE { ?s ?p ?o }")

	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, target, "", "").Code)
	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, target, "", "").Code)
	assert.Equal(t, int32(1), f.a.queries.Load(), "second query must be served from cache")

	rec := doRequest(f.e, http.MethodDelete, "/v1/api/projects/demo/cache", "", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, target, "", "").Code)
	assert.Equal(t, int32(2), f.a.queries.Load())
	assert.Equal(t, int32(2), f.b.queries.Load())

	// flushing a single endpoint keeps the other's response
	id := domain.NewEndpoint(f.a.URL()).ID()
	flush := "/v1/api/projects/demo/cache?" + url.Values{
		"endpoint":        {id},
		helpers.FormQuery: {"SELECT ?s WHERE { ?s ?p ?o }"},
	}.Encode()
	require.Equal(t, http.StatusNoContent, doRequest(f.e, http.MethodDelete, flush, "", "").Code)
	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, target, "", "").Code)
	assert.Equal(t, int32(3), f.a.queries.Load())
	assert.Equal(t, int32(2), f.b.queries.Load())
}

func TestServerRemovedEndpointLeavesNoCachedResponses(t *testing.T) {
	f := newServerFixture(t)
	target := queryURL("demo", "SELECT ?s WHERE { ?s ?p ?o }")
	id := domain.NewEndpoint(f.a.URL()).ID()

	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, target, "", "").Code)
	assert.Equal(t, int32(1), f.a.queries.Load())

	rec := doRequest(f.e, http.MethodDelete, "/v1/api/projects/demo/endpoints/"+id, "", "")
	require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())
	add := fmt.Sprintf(`{"location":%q}`, f.a.URL())
	rec = doRequest(f.e, http.MethodPost, "/v1/api/projects/demo/endpoints", echo.MIMEApplicationJSON, add)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, target, "", "").Code)
	assert.Equal(t, int32(2), f.a.queries.Load(), "re-added endpoint must be queried again")
	assert.Equal(t, int32(1), f.b.queries.Load())
}

func TestServerProjectManagement(t *testing.T) {
	f := newServerFixture(t)

	rec := doRequest(f.e, http.MethodGet, "/v1/api/projects/demo/endpoints", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var endpoints []struct {
		ID       string `json:"id"`
		Location string `json:"location"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &endpoints))
	require.Len(t, endpoints, 2)
	assert.Equal(t, f.a.URL(), endpoints[0].Location)
	assert.Equal(t, domain.NewEndpoint(f.b.URL()).ID(), endpoints[1].ID)

	rec = doRequest(f.e, http.MethodPost, "/v1/api/projects", echo.MIMEApplicationJSON, `{"name":"demo"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	add := `{"location":"http://c.example.org/sparql"}`
	rec = doRequest(f.e, http.MethodPost, "/v1/api/projects/demo/endpoints", echo.MIMEApplicationJSON, add)
	assert.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	rec = doRequest(f.e, http.MethodPost, "/v1/api/projects/demo/endpoints", echo.MIMEApplicationJSON, add)
	assert.Equal(t, http.StatusOK, rec.Code)

	id := domain.NewEndpoint("http://c.example.org/sparql").ID()
	rec = doRequest(f.e, http.MethodDelete, "/v1/api/projects/demo/endpoints/"+id, "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(f.e, http.MethodDelete, "/v1/api/projects/demo/endpoints/"+id, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(f.e, http.MethodDelete, "/v1/api/projects/demo", "", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = doRequest(f.e, http.MethodGet, "/v1/api/projects/demo", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = doRequest(f.e, http.MethodGet, "/v1/api/audit?limit=10", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []auth.AuditEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	require.NotEmpty(t, entries)

	actions := map[string]int{}
	for _, e := range entries {
		actions[e.Action]++
	}
	assert.Equal(t, 2, actions[auth.ActionProjectCreate])
	assert.Equal(t, 2, actions[auth.ActionEndpointAdd])
	assert.Equal(t, 2, actions[auth.ActionEndpointRemove])
	assert.Equal(t, 1, actions[auth.ActionProjectDelete])

	rec = doRequest(f.e, http.MethodGet, "/v1/api/audit?limit=abc", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServerHealthReportsBuild(t *testing.T) {
	f := newServerFixture(t)
	rec := doRequest(f.e, http.MethodGet, "/health", "", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "healthy", body["status"])
	assert.Equal(t, version, body["version"])
	assert.Equal(t, commit, body["commit"])
}

func TestVersionCommandRejectsUnknownFormat(t *testing.T) {
	t.Cleanup(func() { versionOutput = "json" })
	versionOutput = "toml"
	err := versionCmd.RunE(versionCmd, nil)
	assert.Error(t, err)

	versionOutput = "json"
	var out strings.Builder
	versionCmd.SetOut(&out)
	t.Cleanup(func() { versionCmd.SetOut(nil) })
	require.NoError(t, versionCmd.RunE(versionCmd, nil))
	assert.Contains(t, out.String(), version)
}

func TestServerMetrics(t *testing.T) {
	f := newServerFixture(t)
	require.Equal(t, http.StatusOK, doRequest(f.e, http.MethodGet, queryURL("demo", "ASK {}"), "", "").Code)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	f.e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "sparqlfed_requests_total")
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
