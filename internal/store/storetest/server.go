// Package storetest provides an in-memory fake of the store HTTP API for tests
package storetest

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/tidwall/gjson"
)

// DefaultQueryLimit mirrors the store's implicit GraphQL result ceiling
const DefaultQueryLimit = 25

// Request is one recorded call
type Request struct {
	Method string
	Path   string
	Body   []byte
}

// Server is a fake store backed by maps
type Server struct {
	*httptest.Server

	mu       sync.Mutex
	classes  []string
	schemas  map[string][]byte
	objects  map[string]map[string]any
	order    []string
	requests []Request

	// FailCreate makes POST /v1/objects return 500 when it returns true
	FailCreate func(properties map[string]any) bool
	// FailGet, FailPut and FailDelete make the matching call return 500 for listed ids
	FailGet    map[string]bool
	FailPut    map[string]bool
	FailDelete map[string]bool
	// FailSchemaList makes GET /v1/schema return 500
	FailSchemaList bool
	// FailGraphQL makes every GraphQL query return an errors array
	FailGraphQL bool
}

// New starts a fake store closed on test cleanup
func New(t *testing.T) *Server {
	t.Helper()
	s := &Server{
		schemas:    make(map[string][]byte),
		objects:    make(map[string]map[string]any),
		FailGet:    make(map[string]bool),
		FailPut:    make(map[string]bool),
		FailDelete: make(map[string]bool),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.handle))
	t.Cleanup(s.Close)
	return s
}

// AddClass registers a class as if its schema had been created
func (s *Server) AddClass(name string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.classes = append(s.classes, name)
}

// Classes returns the registered class names
func (s *Server) Classes() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.classes)
}

// Schema returns the raw body posted for a class
func (s *Server) Schema(name string) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.schemas[name]
}

// Seed stores an object directly and returns its id
func (s *Server) Seed(class string, properties map[string]any) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insert(class, properties)
}

// Object returns a stored object, or nil
func (s *Server) Object(id string) map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.objects[id]
}

// Count returns the number of stored objects
func (s *Server) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.objects)
}

// Requests returns every recorded call
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.requests)
}

// CountRequests counts recorded calls with method whose path starts with prefix
func (s *Server) CountRequests(method, prefix string) int {
	n := 0
	for _, r := range s.Requests() {
		if r.Method == method && strings.HasPrefix(r.Path, prefix) {
			n++
		}
	}
	return n
}

func (s *Server) insert(class string, properties map[string]any) string {
	// Round-trip so seeded values look like decoded JSON ([]any, float64).
	var props map[string]any
	raw, _ := json.Marshal(properties)
	_ = json.Unmarshal(raw, &props)

	id := uuid.NewString()
	s.objects[id] = map[string]any{
		"class":      class,
		"id":         id,
		"properties": props,
	}
	s.order = append(s.order, id)
	return id
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.requests = append(s.requests, Request{Method: r.Method, Path: r.URL.Path, Body: body})

	switch {
	case r.URL.Path == "/v1/schema":
		s.handleSchema(w, r, body)
	case r.URL.Path == "/v1/objects" && r.Method == http.MethodPost:
		s.handleCreate(w, body)
	case strings.HasPrefix(r.URL.Path, "/v1/objects/"):
		s.handleObject(w, r, strings.TrimPrefix(r.URL.Path, "/v1/objects/"), body)
	case r.URL.Path == "/v1/graphql" && r.Method == http.MethodPost:
		s.handleGraphQL(w, body)
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleSchema(w http.ResponseWriter, r *http.Request, body []byte) {
	switch r.Method {
	case http.MethodGet:
		if s.FailSchemaList {
			http.Error(w, `{"error":"unavailable"}`, http.StatusInternalServerError)
			return
		}
		classes := make([]map[string]any, 0, len(s.classes))
		for _, c := range s.classes {
			classes = append(classes, map[string]any{"class": c})
		}
		writeJSON(w, http.StatusOK, map[string]any{"classes": classes})
	case http.MethodPost:
		name := gjson.GetBytes(body, "class").String()
		if name == "" {
			http.Error(w, `{"error":"class name required"}`, http.StatusUnprocessableEntity)
			return
		}
		if slices.Contains(s.classes, name) {
			http.Error(w, `{"error":"class already exists"}`, http.StatusUnprocessableEntity)
			return
		}
		s.classes = append(s.classes, name)
		s.schemas[name] = body
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(body)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleCreate(w http.ResponseWriter, body []byte) {
	var obj struct {
		Class      string         `json:"class"`
		Properties map[string]any `json:"properties"`
	}
	if err := json.Unmarshal(body, &obj); err != nil {
		http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
		return
	}
	if s.FailCreate != nil && s.FailCreate(obj.Properties) {
		http.Error(w, `{"error":"insert failed"}`, http.StatusInternalServerError)
		return
	}
	id := s.insert(obj.Class, obj.Properties)
	writeJSON(w, http.StatusOK, s.objects[id])
}

func (s *Server) handleObject(w http.ResponseWriter, r *http.Request, id string, body []byte) {
	obj, ok := s.objects[id]

	switch r.Method {
	case http.MethodGet:
		if s.FailGet[id] {
			http.Error(w, `{"error":"get failed"}`, http.StatusInternalServerError)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		writeJSON(w, http.StatusOK, obj)
	case http.MethodPut:
		if s.FailPut[id] {
			http.Error(w, `{"error":"put failed"}`, http.StatusInternalServerError)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		var replacement map[string]any
		if err := json.Unmarshal(body, &replacement); err != nil {
			http.Error(w, `{"error":"bad json"}`, http.StatusBadRequest)
			return
		}
		s.objects[id] = replacement
		writeJSON(w, http.StatusOK, replacement)
	case http.MethodDelete:
		if s.FailDelete[id] {
			http.Error(w, `{"error":"delete failed"}`, http.StatusInternalServerError)
			return
		}
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		delete(s.objects, id)
		s.order = slices.DeleteFunc(s.order, func(x string) bool { return x == id })
		w.WriteHeader(http.StatusNoContent)
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

var (
	getTarget    = regexp.MustCompile(`Get\s*\{\s*([A-Za-z0-9_]+)`)
	limitArg     = regexp.MustCompile(`limit:\s*(\d+)`)
	valueTextArg = regexp.MustCompile(`valueText:\s*(\[[^\]]*\])`)
	pathArg      = regexp.MustCompile(`path:\s*(\[[^\]]*\])`)
)

func (s *Server) handleGraphQL(w http.ResponseWriter, body []byte) {
	if s.FailGraphQL {
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []map[string]any{{"message": "query failed"}},
		})
		return
	}

	query := gjson.GetBytes(body, "query").String()
	m := getTarget.FindStringSubmatch(query)
	if m == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"errors": []map[string]any{{"message": "unsupported query"}},
		})
		return
	}
	class := m[1]

	limit := DefaultQueryLimit
	if lm := limitArg.FindStringSubmatch(query); lm != nil {
		limit, _ = strconv.Atoi(lm[1])
	}

	var property string
	var values []string
	if vm := valueTextArg.FindStringSubmatch(query); vm != nil {
		_ = json.Unmarshal([]byte(vm[1]), &values)
		var path []string
		if pm := pathArg.FindStringSubmatch(query); pm != nil {
			_ = json.Unmarshal([]byte(pm[1]), &path)
		}
		if len(path) > 0 {
			property = path[0]
		}
	}

	results := []map[string]any{}
	for _, id := range s.order {
		if len(results) >= limit {
			break
		}
		obj := s.objects[id]
		if obj["class"] != class {
			continue
		}
		if property != "" && !containsAny(obj, property, values) {
			continue
		}
		results = append(results, map[string]any{"_additional": map[string]any{"id": id}})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"Get": map[string]any{class: results}},
	})
}

func containsAny(obj map[string]any, property string, values []string) bool {
	props, _ := obj["properties"].(map[string]any)
	list, _ := props[property].([]any)
	for _, v := range list {
		if s, ok := v.(string); ok && slices.Contains(values, s) {
			return true
		}
	}
	return false
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
