// Package venuetest serves canned venue responses over httptest for adapter
// tests.
package venuetest

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
)

// Request is a recorded inbound request with its body already read.
type Request struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// Venue routes requests by URL path and records every hit.
type Venue struct {
	mu       sync.Mutex
	hits     map[string]int
	requests []Request
	handlers map[string]http.HandlerFunc
	server   *httptest.Server
}

// New starts a venue server that is shut down when the test ends.
func New(t *testing.T) *Venue {
	t.Helper()
	v := &Venue{hits: map[string]int{}, handlers: map[string]http.HandlerFunc{}}
	v.server = httptest.NewServer(v)
	t.Cleanup(v.server.Close)
	return v
}

// URL is the server's base URL.
func (v *Venue) URL() string {
	return v.server.URL
}

// Handle registers h for path, replacing any previous handler.
func (v *Venue) Handle(path string, h http.HandlerFunc) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.handlers[path] = h
}

// JSON registers a handler that replies 200 with body.
func (v *Venue) JSON(path, body string) {
	v.Reply(path, http.StatusOK, body)
}

// Reply registers a handler that replies with status and body.
func (v *Venue) Reply(path string, status int, body string) {
	v.Handle(path, func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		_, _ = w.Write([]byte(body))
	})
}

// Count returns how often path was requested.
func (v *Venue) Count(path string) int {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hits[path]
}

// Last returns the most recent request to path.
func (v *Venue) Last(path string) (Request, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	for i := len(v.requests) - 1; i >= 0; i-- {
		if v.requests[i].Path == path {
			return v.requests[i], true
		}
	}
	return Request{}, false
}

func (v *Venue) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	v.mu.Lock()
	v.hits[r.URL.Path]++
	v.requests = append(v.requests, Request{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	h, ok := v.handlers[r.URL.Path]
	v.mu.Unlock()
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	h(w, r)
}
