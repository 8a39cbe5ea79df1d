package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"sort"
	"time"

	"fluxnews/internal/ingest"
	"fluxnews/internal/store"
)

// Runner runs one ingestion pass. Satisfied by *ingest.Ingestor.
type Runner interface {
	Run(ctx context.Context) (*ingest.Report, error)
}

// Server exposes the ingestion trigger and the article read surface
// over HTTP.
type Server struct {
	st     store.Store
	runner Runner
	mux    *http.ServeMux
}

// New creates a Server.
func New(st store.Store, runner Runner) *Server {
	s := &Server{st: st, runner: runner, mux: http.NewServeMux()}
	s.routes()
	return s
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.mux
}

func (s *Server) routes() {
	s.mux.HandleFunc("/api/update-articles", s.handleUpdate)
	s.mux.HandleFunc("/api/articles", s.handleArticles)
	s.mux.HandleFunc("/healthz", s.handleHealth)
}

// handleUpdate triggers one ingestion run and returns its report.
// Partial success is normal: feed and item faults surface as counters
// in a 200 response. Only a run that could not talk to the store at
// all yields a 500.
func (s *Server) handleUpdate(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	start := time.Now()
	report, err := s.runner.Run(r.Context())
	if err != nil {
		log.Printf("update run failed: %v", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"message":       "Failed to update articles.",
			"error":         err.Error(),
			"executionTime": fmt.Sprintf("%.2f seconds", time.Since(start).Seconds()),
		})
		return
	}

	writeJSON(w, http.StatusOK, report)
}

type articleRecord struct {
	ID string `json:"id"`
	ingest.Article
}

// handleArticles returns all stored articles, newest first.
func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	raw, err := s.st.ReadAll(r.Context(), store.Articles)
	if err != nil {
		log.Printf("listing articles: %v", err)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	articles := make([]articleRecord, 0, len(raw))
	for id, rec := range raw {
		var a ingest.Article
		if err := json.Unmarshal(rec, &a); err != nil {
			log.Printf("article %s: %v", id, err)
			continue
		}
		articles = append(articles, articleRecord{ID: id, Article: a})
	}

	// RFC 3339 strings sort chronologically.
	sort.Slice(articles, func(i, j int) bool {
		if articles[i].PubDate != articles[j].PubDate {
			return articles[i].PubDate > articles[j].PubDate
		}
		return articles[i].ID < articles[j].ID
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"count":    len(articles),
		"articles": articles,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("encoding response: %v", err)
	}
}

// Serve starts the HTTP server on the given port.
func Serve(st store.Store, runner Runner, port int) error {
	srv := New(st, runner)
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	log.Printf("server listening on http://%s", addr)
	return http.ListenAndServe(addr, srv.Handler())
}
