// Package server exposes the resolver as an HTTP tool surface.
package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"github.com/sells-group/icp-resolver/internal/engine"
	"github.com/sells-group/icp-resolver/internal/ingest"
	"github.com/sells-group/icp-resolver/internal/model"
	"github.com/sells-group/icp-resolver/internal/normalize"
	"github.com/sells-group/icp-resolver/internal/scorer"
	"github.com/sells-group/icp-resolver/internal/store"
)

const defaultMaxBodyBytes = 10 << 20

// Options configures the router.
type Options struct {
	AllowedOrigins []string
	MaxBodyBytes   int64
}

// Server holds the dependencies behind the HTTP handlers. The ledger is
// optional; run endpoints answer 503 without it.
type Server struct {
	engine *engine.Engine
	mapper *ingest.Mapper
	scorer *scorer.Scorer
	ledger store.Store
	opts   Options
}

// New creates a Server.
func New(eng *engine.Engine, mapper *ingest.Mapper, sc *scorer.Scorer, ledger store.Store, opts Options) *Server {
	if opts.MaxBodyBytes <= 0 {
		opts.MaxBodyBytes = defaultMaxBodyBytes
	}
	if len(opts.AllowedOrigins) == 0 {
		opts.AllowedOrigins = []string{"*"}
	}
	return &Server{engine: eng, mapper: mapper, scorer: sc, ledger: ledger, opts: opts}
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: s.opts.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/health", s.health)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/resolve", s.resolve)
		r.Post("/normalize", s.normalize)
		r.Get("/runs", s.listRuns)
		r.Get("/runs/{run_id}", s.getRun)
	})
	return r
}

func (s *Server) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// ResolveRequest is the body of POST /v1/resolve. Records are flat objects
// keyed by the same headers an extract file carries.
type ResolveRequest struct {
	Name    string              `json:"name"`
	Records []map[string]string `json:"records"`
}

// ScoredContractor is one canonical contractor in a resolve response.
type ScoredContractor struct {
	model.ContractorSnapshot
	Components map[string]float64 `json:"components"`
}

// ResolveResponse is the body returned by POST /v1/resolve.
type ResolveResponse struct {
	Result      *engine.Result     `json:"result"`
	Contractors []ScoredContractor `json:"contractors"`
}

func (s *Server) resolve(w http.ResponseWriter, r *http.Request) {
	var req ResolveRequest
	if !s.decode(w, r, &req) {
		return
	}
	if len(req.Records) == 0 {
		writeError(w, http.StatusBadRequest, "records are required")
		return
	}
	if req.Name == "" {
		req.Name = "request"
	}

	recs := s.mapper.Records(ingest.ExtractFromObjects(req.Name, req.Records))
	res, err := s.engine.ResolveRecords(r.Context(), req.Name, recs)
	if err != nil {
		zap.L().Error("server: resolve failed", zap.String("name", req.Name), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "resolve failed")
		return
	}

	out := ResolveResponse{Result: res, Contractors: make([]ScoredContractor, 0, len(res.Contractors))}
	for _, c := range res.Contractors {
		out.Contractors = append(out.Contractors, ScoredContractor{
			ContractorSnapshot: c.Snapshot(res.RunID),
			Components:         s.scorer.Score(c).Components,
		})
	}
	writeJSON(w, http.StatusOK, out)
}

// NormalizeRequest is the body of POST /v1/normalize.
type NormalizeRequest struct {
	Phone  string `json:"phone"`
	Domain string `json:"domain"`
	Name   string `json:"name"`
	State  string `json:"state"`
}

// NormalizeResponse carries the identity keys derived from a request.
type NormalizeResponse struct {
	Phone        string `json:"phone,omitempty"`
	PhoneDisplay string `json:"phone_display,omitempty"`
	PhoneValid   bool   `json:"phone_valid"`
	Domain       string `json:"domain,omitempty"`
	DomainValid  bool   `json:"domain_valid"`
	Name         string `json:"name,omitempty"`
	State        string `json:"state,omitempty"`
}

// Keys derives the identity keys for req.
func Keys(req NormalizeRequest) NormalizeResponse {
	var out NormalizeResponse
	out.Phone, out.PhoneValid = normalize.Phone(req.Phone)
	if out.PhoneValid {
		out.PhoneDisplay = normalize.FormatPhone(out.Phone)
	}
	out.Domain, out.DomainValid = normalize.Domain(req.Domain)
	out.Name = normalize.Name(req.Name)
	out.State = normalize.State(req.State)
	return out
}

func (s *Server) normalize(w http.ResponseWriter, r *http.Request) {
	var req NormalizeRequest
	if !s.decode(w, r, &req) {
		return
	}
	writeJSON(w, http.StatusOK, Keys(req))
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger is not configured")
		return
	}

	filter := store.RunFilter{Status: model.RunStatus(r.URL.Query().Get("status"))}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := r.URL.Query().Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "invalid "+name)
			return
		}
		*dst = n
	}

	runs, err := s.ledger.ListRuns(r.Context(), filter)
	if err != nil {
		zap.L().Error("server: list runs failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list runs failed")
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, runs)
}

// RunDetail is a ledger run with its contractor snapshot.
type RunDetail struct {
	model.Run
	Contractors []model.ContractorSnapshot `json:"contractors"`
}

func (s *Server) getRun(w http.ResponseWriter, r *http.Request) {
	if s.ledger == nil {
		writeError(w, http.StatusServiceUnavailable, "run ledger is not configured")
		return
	}

	runID := chi.URLParam(r, "run_id")
	run, err := s.ledger.GetRun(r.Context(), runID)
	if err != nil {
		zap.L().Error("server: get run failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "get run failed")
		return
	}
	if run == nil {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}

	cs, err := s.ledger.ListContractors(r.Context(), runID)
	if err != nil {
		zap.L().Error("server: list contractors failed", zap.String("run_id", runID), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "list contractors failed")
		return
	}
	if cs == nil {
		cs = []model.ContractorSnapshot{}
	}
	writeJSON(w, http.StatusOK, RunDetail{Run: *run, Contractors: cs})
}

// decode reads a JSON body capped at the configured size. It writes the
// error response itself and reports whether decoding succeeded.
func (s *Server) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	body := http.MaxBytesReader(w, r.Body, s.opts.MaxBodyBytes)
	if err := json.NewDecoder(body).Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		zap.L().Warn("server: encode response", zap.Error(err))
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
