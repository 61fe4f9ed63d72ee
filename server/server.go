// Package server provides an HTTP/JSON API over a hypersparse.Graph.
package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/mstrYoda/hypersparse"
)

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wraps a hypersparse.Graph and exposes an HTTP/JSON API.
type Server struct {
	g   *hypersparse.Graph
	mux *http.ServeMux
	log *slog.Logger
}

// New creates a ready-to-use Server.
func New(g *hypersparse.Graph, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{g: g, log: logger}
	s.mux = http.NewServeMux()
	s.routes()
	return s
}

// ServeHTTP implements http.Handler with CORS headers.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
	if r.Method == http.MethodOptions {
		return
	}
	s.mux.ServeHTTP(w, r)
}

// ---------------------------------------------------------------------------
// Routes
// ---------------------------------------------------------------------------

func (s *Server) routes() {
	// Stats
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/metrics", s.handleMetrics)
	s.mux.HandleFunc("GET /api/slow-queries", s.handleSlowQueries)
	s.mux.HandleFunc("GET /api/integrity", s.handleIntegrity)

	// Relations
	s.mux.HandleFunc("GET /api/relations", s.handleListRelations)
	s.mux.HandleFunc("POST /api/relations", s.handleAddRelation)
	s.mux.HandleFunc("GET /api/relations/{name}/edges", s.handleRelationEdges)
	s.mux.HandleFunc("POST /api/relations/{name}/project", s.handleProject)

	// Edges
	s.mux.HandleFunc("POST /api/edges", s.handleInsert)
	s.mux.HandleFunc("POST /api/query", s.handleQuery)
	s.mux.HandleFunc("POST /api/query/stream", s.handleQueryStream)

	// Nodes
	s.mux.HandleFunc("POST /api/nodes", s.handleCreateNode)
	s.mux.HandleFunc("GET /api/nodes/{name}", s.handleGetNode)
	s.mux.HandleFunc("PUT /api/nodes/{name}", s.handleSetNode)
}

// ---------------------------------------------------------------------------
// JSON helpers
// ---------------------------------------------------------------------------

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeGraphError maps graph errors onto HTTP status codes.
func writeGraphError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, hypersparse.ErrUnknownRelation), errors.Is(err, hypersparse.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, hypersparse.ErrDuplicateRelation):
		status = http.StatusConflict
	case errors.Is(err, hypersparse.ErrTypeMismatch), errors.Is(err, hypersparse.ErrMalformedEdgeSpec):
		status = http.StatusBadRequest
	case errors.Is(err, hypersparse.ErrResultTooLarge):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, hypersparse.ErrReadOnly):
		status = http.StatusForbidden
	case errors.Is(err, hypersparse.ErrClosed), errors.Is(err, hypersparse.ErrWriteQueueFull):
		status = http.StatusServiceUnavailable
	}
	writeError(w, status, err.Error())
}

// decodeBody decodes JSON keeping numbers as json.Number so integer weights
// survive exactly. Node props use a plain decoder since they are stored
// as-is.
func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	return dec.Decode(v)
}

func intQuery(r *http.Request, key string, fallback int) int {
	v := r.URL.Query().Get(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

// ---------------------------------------------------------------------------
// Stats
// ---------------------------------------------------------------------------

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.g.Stats(r.Context())
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 200, stats)
}

func (s *Server) handleMetrics(w http.ResponseWriter, _ *http.Request) {
	var buf bytes.Buffer
	s.g.Metrics().WritePrometheus(&buf)
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	_, _ = w.Write(buf.Bytes())
}

func (s *Server) handleSlowQueries(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, 200, map[string]any{
		"entries": s.g.SlowQueries(intQuery(r, "limit", 50)),
	})
}

func (s *Server) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := s.g.VerifyIntegrity(r.Context())
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 200, report)
}

// ---------------------------------------------------------------------------
// Relations
// ---------------------------------------------------------------------------

type relationJSON struct {
	Name       string `json:"name"`
	Kind       string `json:"kind"`
	WeightType string `json:"weight_type"`
	Len        int    `json:"len"`
}

func toRelationJSON(r hypersparse.Relation) relationJSON {
	return relationJSON{
		Name:       r.Name(),
		Kind:       r.Kind().String(),
		WeightType: r.WeightType().Name(),
		Len:        r.Len(),
	}
}

func (s *Server) handleListRelations(w http.ResponseWriter, _ *http.Request) {
	rels := s.g.Relations()
	out := make([]relationJSON, len(rels))
	for i, r := range rels {
		out[i] = toRelationJSON(r)
	}
	writeJSON(w, 200, map[string]any{"relations": out})
}

func (s *Server) handleAddRelation(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name       string `json:"name"`
		WeightType string `json:"weight_type"`
		Incidence  bool   `json:"incidence"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, 400, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		writeError(w, 400, "name is required")
		return
	}

	opts := hypersparse.RelationOptions{Incidence: req.Incidence}
	if req.WeightType != "" {
		wt, ok := s.g.WeightType(req.WeightType)
		if !ok {
			writeError(w, 400, "unknown weight type "+req.WeightType)
			return
		}
		opts.WeightType = wt
	}

	rel, err := s.g.AddRelation(r.Context(), req.Name, opts)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 201, toRelationJSON(rel))
}

func (s *Server) handleRelationEdges(w http.ResponseWriter, r *http.Request) {
	rel, err := s.g.Relation(r.PathValue("name"))
	if err != nil {
		writeGraphError(w, err)
		return
	}
	streamEdges(w, rel.Iterate(r.Context()))
}

func (s *Server) handleProject(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Combine string `json:"combine"`
	}
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			writeError(w, 400, "invalid JSON body")
			return
		}
	}
	combine, err := hypersparse.ParseCombine(req.Combine)
	if err != nil {
		writeError(w, 400, err.Error())
		return
	}

	proj, err := s.g.Project(r.Context(), r.PathValue("name"), combine)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	cells, err := proj.Edges(r.Context())
	if err != nil {
		writeGraphError(w, err)
		return
	}
	for i := range cells {
		cells[i].Weight = hypersparse.PortableWeight(cells[i].Weight)
	}
	writeJSON(w, 200, map[string]any{
		"relation": proj.Relation,
		"combine":  proj.Combine,
		"cells":    cells,
	})
}

// ---------------------------------------------------------------------------
// Edges
// ---------------------------------------------------------------------------

// handleInsert accepts graph-scoped tuples:
//
//	{"tuples": [["friend", "bob", "alice"], ["r", ["a", "b"], "c", 2]]}
func (s *Server) handleInsert(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Tuples [][]any `json:"tuples"`
	}
	if err := decodeBody(r, &req); err != nil {
		writeError(w, 400, "invalid JSON body")
		return
	}
	if len(req.Tuples) == 0 {
		writeError(w, 400, "tuples are required")
		return
	}

	n, err := s.g.InsertTuples(r.Context(), req.Tuples...)
	if err != nil {
		s.log.Debug("insert rejected", "tuples", len(req.Tuples), "applied", n, "error", err)
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 201, map[string]any{"inserted": n, "size": s.g.Size()})
}

func (s *Server) decodePattern(w http.ResponseWriter, r *http.Request) (hypersparse.Pattern, bool) {
	var p hypersparse.Pattern
	if r.ContentLength != 0 {
		if err := decodeBody(r, &p); err != nil {
			writeError(w, 400, "invalid JSON body")
			return p, false
		}
	}
	return p, true
}

func (s *Server) handleQuery(w http.ResponseWriter, r *http.Request) {
	p, ok := s.decodePattern(w, r)
	if !ok {
		return
	}
	it, err := s.g.Query(r.Context(), p)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	edges, err := hypersparse.Collect(it)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	out := make([]hypersparse.Edge, len(edges))
	for i, e := range edges {
		out[i] = e.Portable()
	}
	writeJSON(w, 200, map[string]any{"edges": out, "count": len(out)})
}

func (s *Server) handleQueryStream(w http.ResponseWriter, r *http.Request) {
	p, ok := s.decodePattern(w, r)
	if !ok {
		return
	}
	it, err := s.g.Query(r.Context(), p)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	streamEdges(w, it)
}

// streamEdges writes it as newline-delimited JSON (NDJSON).
func streamEdges(w http.ResponseWriter, it hypersparse.EdgeIterator) {
	defer it.Close()

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.WriteHeader(200)

	flusher, canFlush := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for it.Next() {
		if encErr := enc.Encode(it.Edge().Portable()); encErr != nil {
			return // client disconnected
		}
		if canFlush {
			flusher.Flush()
		}
	}
	if iterErr := it.Err(); iterErr != nil {
		// Best effort: write error as final NDJSON line.
		_ = enc.Encode(map[string]string{"error": iterErr.Error()})
	}
}

// ---------------------------------------------------------------------------
// Nodes
// ---------------------------------------------------------------------------

func (s *Server) handleCreateNode(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string            `json:"name"`
		Props hypersparse.Props `json:"props"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, 400, "invalid JSON body")
		return
	}
	if req.Name == "" {
		writeError(w, 400, "name is required")
		return
	}
	id, err := s.g.CreateNode(r.Context(), req.Name, req.Props)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 201, map[string]any{"id": id, "name": req.Name})
}

func (s *Server) handleGetNode(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	props, err := s.g.NodeProps(r.Context(), name)
	if err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"name": name, "props": props})
}

func (s *Server) handleSetNode(w http.ResponseWriter, r *http.Request) {
	var props hypersparse.Props
	if err := json.NewDecoder(r.Body).Decode(&props); err != nil {
		writeError(w, 400, "invalid JSON body")
		return
	}
	name := r.PathValue("name")
	if err := s.g.SetNodeProps(r.Context(), name, props); err != nil {
		writeGraphError(w, err)
		return
	}
	writeJSON(w, 200, map[string]any{"name": name, "props": props})
}
