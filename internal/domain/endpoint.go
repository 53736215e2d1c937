package domain

import (
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"net/url"
	"strings"
)

// Endpoint is a remote SPARQL service addressed by URL. Its identifier is the
// hex SHA-1 digest of the location, computed once at construction, which makes
// it safe to embed in a URL path segment.
type Endpoint struct {
	location string
	id       string
}

// NewEndpoint creates an endpoint for the given location.
func NewEndpoint(location string) Endpoint {
	sum := sha1.Sum([]byte(location))
	return Endpoint{
		location: location,
		id:       hex.EncodeToString(sum[:]),
	}
}

// ParseEndpoint validates location as an absolute http(s) URL and returns the endpoint.
func ParseEndpoint(location string) (Endpoint, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return Endpoint{}, NewValidationError("location", "endpoint location is required")
	}
	u, err := url.Parse(location)
	if err != nil {
		return Endpoint{}, NewValidationError("location", err.Error())
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Endpoint{}, NewValidationError("location", "endpoint must use http or https: "+location)
	}
	if u.Host == "" {
		return Endpoint{}, NewValidationError("location", "endpoint host is missing: "+location)
	}
	return NewEndpoint(location), nil
}

// Location returns the endpoint URL.
func (e Endpoint) Location() string { return e.location }

// ID returns the derived identifier.
func (e Endpoint) ID() string { return e.id }

// Equal compares by location only.
func (e Endpoint) Equal(other Endpoint) bool { return e.location == other.location }

// Compare orders endpoints lexicographically by location.
func (e Endpoint) Compare(other Endpoint) int {
	return strings.Compare(e.location, other.location)
}

func (e Endpoint) String() string { return e.location }

type endpointJSON struct {
	ID       string `json:"id"`
	Location string `json:"location"`
}

// MarshalJSON writes the location and its identifier.
func (e Endpoint) MarshalJSON() ([]byte, error) {
	return json.Marshal(endpointJSON{ID: e.id, Location: e.location})
}

// UnmarshalJSON restores an endpoint from its location; a stored id is ignored and recomputed.
func (e *Endpoint) UnmarshalJSON(data []byte) error {
	var raw endpointJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*e = NewEndpoint(raw.Location)
	return nil
}
