package api

import (
	"context"
	"net/http"
	"time"

	"github.com/activecm/rita-pdns/pkg/record"
	"github.com/activecm/rita-pdns/pkg/search"
	"github.com/gorilla/mux"
	jsoniter "github.com/json-iterator/go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// shutdownTimeout bounds how long in flight requests may run on shutdown
const shutdownTimeout = 5 * time.Second

type (
	// Server exposes passive dns search over HTTP
	Server struct {
		listen   string
		router   *mux.Router
		search   *search.Service
		gatherer prometheus.Gatherer
		log      *log.Logger
	}

	// RecordJSON is the wire form of a record.Record
	RecordJSON struct {
		Query     string `json:"query"`
		Type      string `json:"type"`
		Answer    string `json:"answer"`
		Count     uint64 `json:"count"`
		TTL       *int64 `json:"ttl"`
		FirstSeen string `json:"first_seen"`
		LastSeen  string `json:"last_seen"`
	}

	// SearchResponse wraps the records returned by a search
	SearchResponse struct {
		Records []RecordJSON `json:"records"`
	}
)

// NewServer creates a Server. Metrics are served from gatherer when it is
// not nil.
func NewServer(listen string, svc *search.Service, gatherer prometheus.Gatherer, logger *log.Logger) *Server {
	s := &Server{
		listen:   listen,
		router:   mux.NewRouter(),
		search:   svc,
		gatherer: gatherer,
		log:      logger,
	}
	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	s.router.HandleFunc("/dns/full/{query}", s.handleLike).Methods("GET")
	s.router.HandleFunc("/dns/{query}", s.handleSearch).Methods("GET")
	if s.gatherer != nil {
		s.router.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})).Methods("GET")
	}
}

// Handler returns the http.Handler serving every route
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.listen,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			s.log.WithFields(log.Fields{
				"error": err.Error(),
			}).Warn("Problem shutting down search API")
		}
	}()

	s.log.WithFields(log.Fields{
		"listen": s.listen,
	}).Info("Serving search API")

	err := srv.ListenAndServe()
	if err == http.ErrServerClosed {
		<-done
		return nil
	}
	return err
}

// handleSearch runs an exact search, falling back to a substring search
func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	records, err := s.search.Search(r.Context(), mux.Vars(r)["query"])
	s.respond(w, records, err)
}

// handleLike runs a substring search
func (s *Server) handleLike(w http.ResponseWriter, r *http.Request) {
	records, err := s.search.Like(r.Context(), mux.Vars(r)["query"])
	s.respond(w, records, err)
}

func (s *Server) respond(w http.ResponseWriter, records []record.Record, err error) {
	if err == search.ErrEmptyTerm {
		s.writeError(w, http.StatusBadRequest, "Missing search term", err)
		return
	}
	if err != nil {
		s.log.WithFields(log.Fields{
			"error": err.Error(),
		}).Error("Search failed")
		s.writeError(w, http.StatusInternalServerError, "Search failed", err)
		return
	}
	s.writeJSON(w, http.StatusOK, NewSearchResponse(records))
}

// NewSearchResponse converts records into their wire form
func NewSearchResponse(records []record.Record) SearchResponse {
	resp := SearchResponse{Records: make([]RecordJSON, 0, len(records))}
	for _, rec := range records {
		resp.Records = append(resp.Records, RecordJSON{
			Query:     rec.Query,
			Type:      rec.Type,
			Answer:    rec.Answer,
			Count:     rec.Count,
			TTL:       rec.TTL,
			FirstSeen: rec.FirstSeen.UTC().Format(time.RFC3339Nano),
			LastSeen:  rec.LastSeen.UTC().Format(time.RFC3339Nano),
		})
	}
	return resp
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		s.log.WithFields(log.Fields{
			"error": err.Error(),
		}).Warn("Could not write response")
	}
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string, err error) {
	response := map[string]interface{}{
		"error":  message,
		"status": status,
	}
	if err != nil {
		response["details"] = err.Error()
	}
	s.writeJSON(w, status, response)
}
