package domain

import (
	"encoding/json"
	"regexp"
)

var projectNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// ValidateProjectName checks that a project name is non-empty and only uses
// characters that cannot collide inside a cache key namespace.
func ValidateProjectName(name string) error {
	if name == "" {
		return ErrEmptyProjectName
	}
	if len(name) > 128 {
		return NewValidationError("name", "project name must be at most 128 characters")
	}
	if !projectNamePattern.MatchString(name) {
		return NewValidationError("name", "project name can only contain letters, numbers, dot, underscore, and hyphen")
	}
	return nil
}

// Project is a named set of endpoints queried together. Endpoints are
// de-duplicated by location and kept in insertion order for listing.
type Project struct {
	name      string
	endpoints []Endpoint
}

// NewProject creates an empty project.
func NewProject(name string) (*Project, error) {
	if err := ValidateProjectName(name); err != nil {
		return nil, err
	}
	return &Project{name: name}, nil
}

// Name returns the project name.
func (p *Project) Name() string { return p.name }

// Endpoints returns a copy of the endpoint list.
func (p *Project) Endpoints() []Endpoint {
	out := make([]Endpoint, len(p.endpoints))
	copy(out, p.endpoints)
	return out
}

// AddEndpoint appends e unless an endpoint with the same location exists.
// It reports whether the project changed.
func (p *Project) AddEndpoint(e Endpoint) bool {
	if p.indexOf(e.Location()) >= 0 {
		return false
	}
	p.endpoints = append(p.endpoints, e)
	return true
}

// RemoveEndpoint removes the endpoint with the given identifier.
func (p *Project) RemoveEndpoint(id string) bool {
	for i, e := range p.endpoints {
		if e.ID() == id {
			p.endpoints = append(p.endpoints[:i], p.endpoints[i+1:]...)
			return true
		}
	}
	return false
}

// Endpoint looks up an endpoint by identifier.
func (p *Project) Endpoint(id string) (Endpoint, bool) {
	for _, e := range p.endpoints {
		if e.ID() == id {
			return e, true
		}
	}
	return Endpoint{}, false
}

// Select narrows the fan-out set to the given identifiers, keeping project order.
// An empty id list selects every endpoint.
func (p *Project) Select(ids []string) ([]Endpoint, error) {
	if len(ids) == 0 {
		return p.Endpoints(), nil
	}
	wanted := make(map[string]bool, len(ids))
	for _, id := range ids {
		if _, ok := p.Endpoint(id); !ok {
			return nil, &UnknownEndpointError{Project: p.name, ID: id}
		}
		wanted[id] = true
	}
	out := make([]Endpoint, 0, len(wanted))
	for _, e := range p.endpoints {
		if wanted[e.ID()] {
			out = append(out, e)
		}
	}
	return out, nil
}

func (p *Project) indexOf(location string) int {
	for i, e := range p.endpoints {
		if e.Location() == location {
			return i
		}
	}
	return -1
}

type projectJSON struct {
	Name      string     `json:"name"`
	Endpoints []Endpoint `json:"endpoints"`
}

// MarshalJSON implements json.Marshaler.
func (p *Project) MarshalJSON() ([]byte, error) {
	eps := p.endpoints
	if eps == nil {
		eps = []Endpoint{}
	}
	return json.Marshal(projectJSON{Name: p.name, Endpoints: eps})
}

// UnmarshalJSON implements json.Unmarshaler, re-applying de-duplication.
func (p *Project) UnmarshalJSON(data []byte) error {
	var raw projectJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if err := ValidateProjectName(raw.Name); err != nil {
		return err
	}
	p.name = raw.Name
	p.endpoints = nil
	for _, e := range raw.Endpoints {
		p.AddEndpoint(e)
	}
	return nil
}
