package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Key identifies one cached endpoint response: the raw response of Query
// sent to the endpoint with identifier EndpointID on behalf of Project.
type Key struct {
	Project    string
	EndpointID string
	Query      string
}

// NewKey builds a key.
func NewKey(project, endpointID, query string) Key {
	return Key{Project: project, EndpointID: endpointID, Query: query}
}

// Namespace returns the prefix shared by every key of the project. The
// project name is length-prefixed so that no project's namespace is a prefix
// of another's ("A" and "A2" encode as "1:A|" and "2:A2|").
func Namespace(project string) string {
	return strconv.Itoa(len(project)) + ":" + project + "|"
}

// EndpointPrefix returns the prefix shared by every key of one endpoint
// within the project.
func EndpointPrefix(project, endpointID string) string {
	return Namespace(project) + strconv.Itoa(len(endpointID)) + ":" + endpointID + "|"
}

// String returns the encoded key. The query is folded into a SHA-256 digest
// so keys stay bounded regardless of query size.
func (k Key) String() string {
	sum := sha256.Sum256([]byte(k.Query))
	return EndpointPrefix(k.Project, k.EndpointID) + hex.EncodeToString(sum[:])
}

// local returns the part of the key below the project namespace.
func (k Key) local() string {
	return strings.TrimPrefix(k.String(), Namespace(k.Project))
}
