package cmd

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"evalgo.org/sparqlfed/auth"
	"evalgo.org/sparqlfed/internal/domain"
	"evalgo.org/sparqlfed/internal/federation"
	"evalgo.org/sparqlfed/internal/helpers"
	"evalgo.org/sparqlfed/internal/sparql"
)

// CreateProjectRequest is the body of POST /v1/api/projects.
type CreateProjectRequest struct {
	Name      string   `json:"name"`
	Endpoints []string `json:"endpoints,omitempty"`
}

// AddEndpointRequest is the body of POST /v1/api/projects/:project/endpoints.
type AddEndpointRequest struct {
	Location string `json:"location"`
}

// handlers serves the HTTP API over the shared components.
type handlers struct {
	app *app
}

// httpError maps domain errors to HTTP status codes.
func httpError(err error) error {
	var (
		unknownProject  *domain.UnknownProjectError
		unknownEndpoint *domain.UnknownEndpointError
		validation      *domain.ValidationError
		conflict        *domain.ConflictError
	)
	switch {
	case errors.As(err, &unknownProject), errors.As(err, &unknownEndpoint):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.As(err, &validation), errors.Is(err, domain.ErrEmptyProjectName), errors.Is(err, sparql.ErrMalformedQuery):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	case errors.As(err, &conflict):
		return echo.NewHTTPError(http.StatusConflict, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error()).SetInternal(err)
	}
}

// readSPARQL extracts the query or update text of a SPARQL protocol request:
// the query parameter of a GET, a url-encoded form, or a direct POST body.
// asUpdate reports whether the text arrived through an update channel (the
// update form field or an application/sparql-update body).
func readSPARQL(c echo.Context) (text string, asUpdate bool, err error) {
	req := c.Request()
	if req.Method == http.MethodGet {
		return c.QueryParam(helpers.FormQuery), false, nil
	}

	mediaType, _, _ := mime.ParseMediaType(req.Header.Get(echo.HeaderContentType))
	switch mediaType {
	case helpers.MediaSPARQLQuery, helpers.MediaSPARQLUpdate:
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return "", false, err
		}
		return string(body), mediaType == helpers.MediaSPARQLUpdate, nil
	default:
		if q := c.FormValue(helpers.FormQuery); q != "" {
			return q, false, nil
		}
		return c.FormValue(helpers.FormUpdate), true, nil
	}
}

// sparql handles GET|POST /v1/api/projects/:project[/endpoints/:ids]/sparql
func (h *handlers) sparql(c echo.Context) error {
	text, asUpdate, err := readSPARQL(c)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Failed to read request body")
	}
	if text == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "Missing query or update parameter")
	}

	q, err := sparql.Parse(text)
	if err != nil {
		return httpError(err)
	}
	if q.Type == sparql.Update {
		if !asUpdate {
			return echo.NewHTTPError(http.StatusBadRequest,
				"Updates must be sent with POST as the update form field or an application/sparql-update body")
		}
		if role, _ := c.Get(ctxRole).(string); role != auth.RoleAdmin {
			return echo.NewHTTPError(http.StatusForbidden, "Admin access required for updates")
		}
	} else if asUpdate {
		return echo.NewHTTPError(http.StatusBadRequest, "Queries must be sent as the query parameter")
	}

	ctx := federation.WithRequestID(c.Request().Context(), c.Response().Header().Get(echo.HeaderXRequestID))
	ids := helpers.SplitIDs(c.Param("ids"))

	resp, err := h.app.service.RunFederatedQuery(ctx, c.Param("project"), text, ids...)
	if err != nil {
		return httpError(err)
	}
	return c.Blob(http.StatusOK, resp.ContentType, []byte(resp.Body))
}

// listProjects handles GET /v1/api/projects
func (h *handlers) listProjects(c echo.Context) error {
	projects, err := h.app.store.List()
	if err != nil {
		return httpError(err)
	}
	if claims, ok := c.Get(ctxClaims).(*auth.Claims); ok {
		visible := projects[:0]
		for _, p := range projects {
			if claims.CanAccess(p.Name()) {
				visible = append(visible, p)
			}
		}
		projects = visible
	}
	return c.JSON(http.StatusOK, projects)
}

// getProject handles GET /v1/api/projects/:project
func (h *handlers) getProject(c echo.Context) error {
	p, err := h.app.store.Get(c.Param("project"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// createProject handles POST /v1/api/projects
func (h *handlers) createProject(c echo.Context) error {
	var req CreateProjectRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	p, err := h.app.store.Create(req.Name, req.Endpoints...)
	h.record(c, auth.ActionProjectCreate, req.Name, err, map[string]string{
		"endpoints": strconv.Itoa(len(req.Endpoints)),
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// deleteProject handles DELETE /v1/api/projects/:project
func (h *handlers) deleteProject(c echo.Context) error {
	name := c.Param("project")
	err := h.app.store.Delete(name)
	h.record(c, auth.ActionProjectDelete, name, err, nil)
	if err != nil {
		return httpError(err)
	}
	// cached responses of a deleted project are never read again
	if h.app.cache != nil {
		if err := h.app.cache.FlushAll(c.Request().Context(), name); err != nil {
			logger.WithError(err).WithField("project", name).Warn("failed to flush cache of deleted project")
		}
	}
	return c.NoContent(http.StatusNoContent)
}

// listEndpoints handles GET /v1/api/projects/:project/endpoints
func (h *handlers) listEndpoints(c echo.Context) error {
	p, err := h.app.store.Get(c.Param("project"))
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, p.Endpoints())
}

// addEndpoint handles POST /v1/api/projects/:project/endpoints
func (h *handlers) addEndpoint(c echo.Context) error {
	var req AddEndpointRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "Invalid request body")
	}

	name := c.Param("project")
	ep, added, err := h.app.store.AddEndpoint(name, req.Location)
	h.record(c, auth.ActionEndpointAdd, name, err, map[string]string{"location": req.Location})
	if err != nil {
		return httpError(err)
	}
	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	return c.JSON(status, ep)
}

// removeEndpoint handles DELETE /v1/api/projects/:project/endpoints/:id
func (h *handlers) removeEndpoint(c echo.Context) error {
	name, id := c.Param("project"), c.Param("id")
	err := h.app.store.RemoveEndpoint(name, id)
	h.record(c, auth.ActionEndpointRemove, name, err, map[string]string{"endpoint_id": id})
	if err != nil {
		return httpError(err)
	}
	if err := h.app.service.ForgetEndpoint(c.Request().Context(), name, id); err != nil {
		logger.WithError(err).WithField("endpoint_id", id).Warn("failed to drop cached responses of removed endpoint")
	}
	return c.NoContent(http.StatusNoContent)
}

// flushCache handles DELETE /v1/api/projects/:project/cache[?endpoint=ID&query=Q]
func (h *handlers) flushCache(c echo.Context) error {
	name := c.Param("project")
	ctx := c.Request().Context()

	var err error
	var details map[string]string
	if id := c.QueryParam("endpoint"); id != "" {
		details = map[string]string{"endpoint_id": id}
		err = h.app.service.FlushEndpoint(ctx, name, id, c.QueryParam(helpers.FormQuery))
	} else {
		err = h.app.service.FlushCache(ctx, name)
	}
	h.record(c, auth.ActionCacheFlush, name, err, details)
	if err != nil {
		return httpError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

// auditLog handles GET /v1/api/audit?limit=N
func (h *handlers) auditLog(c echo.Context) error {
	limit := 100
	if v := c.QueryParam("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return echo.NewHTTPError(http.StatusBadRequest, "limit must be a positive integer")
		}
		limit = n
	}
	entries, err := h.app.audit.Recent(limit)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entries)
}

// health handles GET /health
func (h *handlers) health(c echo.Context) error {
	info := buildInfo()
	return c.JSON(http.StatusOK, map[string]string{
		"status":  "healthy",
		"version": info.Version,
		"commit":  info.Commit,
	})
}

// record writes an audit entry. Audit failures are logged, never returned.
func (h *handlers) record(c echo.Context, action, project string, err error, details map[string]string) {
	entry := auth.AuditEntry{
		Timestamp: time.Now(),
		Subject:   currentSubject(c),
		Action:    action,
		Project:   project,
		Success:   err == nil,
		IPAddress: c.RealIP(),
		RequestID: c.Response().Header().Get(echo.HeaderXRequestID),
		Details:   details,
	}
	if err != nil {
		entry.ErrorMsg = err.Error()
	}
	if auditErr := h.app.audit.Record(entry); auditErr != nil {
		logger.WithError(auditErr).WithField("action", action).Warn("failed to write audit entry")
	}
}
