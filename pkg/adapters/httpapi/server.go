// Package httpapi exposes the operator surface over HTTP: run lifecycle,
// learning controls, and sediment queries.
package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/riverbedai/riverbed"
	"github.com/riverbedai/riverbed/pkg/domain"
)

// Engine is the operator surface the server fronts.
type Engine interface {
	Graph() *domain.Graph
	Create(ctx context.Context, request string, data map[string]any) (string, error)
	Run(ctx context.Context, runID string) (domain.RunResult, error)
	Status(ctx context.Context, runID string) (riverbed.Status, error)
	Result(ctx context.Context, runID string) (domain.RunResult, error)
	Audit(ctx context.Context, runID string) ([]domain.AuditEvent, error)
	Runs(ctx context.Context) ([]string, error)
	Learn(ctx context.Context) (*domain.Proposal, error)
	Proposals(ctx context.Context) ([]domain.Proposal, error)
	Approve(ctx context.Context, proposalID string) (*domain.Proposal, error)
	Reject(ctx context.Context, proposalID string) error
	Dredge(filter domain.FactFilter) []domain.Fact
	WriteFact(ctx context.Context, fact domain.Fact, policy string) (domain.Fact, error)
}

// Server wires the engine behind chi routes.
type Server struct {
	engine   Engine
	logger   *slog.Logger
	gatherer prometheus.Gatherer
}

type ServerOption func(*Server)

// WithLogger sets the request logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

// WithMetricsGatherer mounts GET /metrics for the given registry.
func WithMetricsGatherer(g prometheus.Gatherer) ServerOption {
	return func(s *Server) { s.gatherer = g }
}

// NewHandler creates the HTTP handler for the operator surface.
func NewHandler(engine Engine, opts ...ServerOption) http.Handler {
	s := &Server{
		engine: engine,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.health)
	r.Get("/graph", s.getGraph)

	r.Route("/runs", func(r chi.Router) {
		r.Post("/", s.createRun)
		r.Get("/", s.listRuns)
		r.Route("/{runID}", func(r chi.Router) {
			r.Get("/", s.runStatus)
			r.Post("/run", s.executeRun)
			r.Get("/result", s.runResult)
			r.Get("/audit", s.runAudit)
		})
	})

	r.Post("/learn", s.learn)
	r.Route("/proposals", func(r chi.Router) {
		r.Get("/", s.listProposals)
		r.Post("/{proposalID}/approve", s.approveProposal)
		r.Post("/{proposalID}/reject", s.rejectProposal)
	})

	r.Route("/facts", func(r chi.Router) {
		r.Get("/", s.dredgeFacts)
		r.Post("/", s.writeFact)
	})

	if s.gatherer != nil {
		r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}

	return r
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) getGraph(w http.ResponseWriter, r *http.Request) {
	s.respond(w, http.StatusOK, s.engine.Graph())
}

// CreateRunRequest is the POST /runs body.
type CreateRunRequest struct {
	Request string         `json:"request"`
	Data    map[string]any `json:"data,omitempty"`

	// Execute runs the graph synchronously and returns the result.
	Execute bool `json:"execute,omitempty"`
}

// CreateRunResponse is the POST /runs reply.
type CreateRunResponse struct {
	RunID  string            `json:"run_id"`
	Result *domain.RunResult `json:"result,omitempty"`
}

func (s *Server) createRun(w http.ResponseWriter, r *http.Request) {
	var body CreateRunRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Request == "" {
		s.fail(w, http.StatusBadRequest, errors.New("request text is required"))
		return
	}

	runID, err := s.engine.Create(r.Context(), body.Request, body.Data)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}

	resp := CreateRunResponse{RunID: runID}
	if body.Execute {
		result, err := s.engine.Run(r.Context(), runID)
		if err != nil {
			s.fail(w, http.StatusInternalServerError, err)
			return
		}
		resp.Result = &result
	}
	s.respond(w, http.StatusCreated, resp)
}

func (s *Server) listRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := s.engine.Runs(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"runs": runs})
}

func (s *Server) executeRun(w http.ResponseWriter, r *http.Request) {
	runID := chi.URLParam(r, "runID")
	result, err := s.engine.Run(r.Context(), runID)
	if err != nil {
		s.failByKind(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) runStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.engine.Status(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.failByKind(w, err)
		return
	}
	s.respond(w, http.StatusOK, status)
}

func (s *Server) runResult(w http.ResponseWriter, r *http.Request) {
	result, err := s.engine.Result(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.failByKind(w, err)
		return
	}
	s.respond(w, http.StatusOK, result)
}

func (s *Server) runAudit(w http.ResponseWriter, r *http.Request) {
	audit, err := s.engine.Audit(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		s.failByKind(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"events": audit})
}

func (s *Server) learn(w http.ResponseWriter, r *http.Request) {
	proposal, err := s.engine.Learn(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	if proposal == nil {
		s.respond(w, http.StatusAccepted, map[string]string{"status": "not enough runs"})
		return
	}
	s.respond(w, http.StatusOK, proposal)
}

func (s *Server) listProposals(w http.ResponseWriter, r *http.Request) {
	proposals, err := s.engine.Proposals(r.Context())
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]any{"proposals": proposals})
}

func (s *Server) approveProposal(w http.ResponseWriter, r *http.Request) {
	proposal, err := s.engine.Approve(r.Context(), chi.URLParam(r, "proposalID"))
	if err != nil {
		s.failByKind(w, err)
		return
	}
	s.respond(w, http.StatusOK, proposal)
}

func (s *Server) rejectProposal(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Reject(r.Context(), chi.URLParam(r, "proposalID")); err != nil {
		s.failByKind(w, err)
		return
	}
	s.respond(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) dredgeFacts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.FactFilter{
		Text: q.Get("text"),
	}
	if kind := q.Get("kind"); kind != "" {
		filter.Kinds = []string{kind}
	}
	if subject := q.Get("subject"); subject != "" {
		filter.Subjects = []string{subject}
	}
	if limit := q.Get("limit"); limit != "" {
		n, err := strconv.Atoi(limit)
		if err != nil || n < 0 {
			s.fail(w, http.StatusBadRequest, errors.New("limit must be a non-negative integer"))
			return
		}
		filter.Limit = n
	}

	s.respond(w, http.StatusOK, map[string]any{"facts": s.engine.Dredge(filter)})
}

// WriteFactRequest is the POST /facts body.
type WriteFactRequest struct {
	Fact   domain.Fact `json:"fact"`
	Policy string      `json:"policy,omitempty"`
}

func (s *Server) writeFact(w http.ResponseWriter, r *http.Request) {
	var body WriteFactRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		s.fail(w, http.StatusBadRequest, fmt.Errorf("invalid request body: %w", err))
		return
	}
	if body.Fact.Text == "" && body.Fact.Triplet == nil {
		s.fail(w, http.StatusBadRequest, errors.New("fact needs text or a triplet"))
		return
	}

	written, err := s.engine.WriteFact(r.Context(), body.Fact, body.Policy)
	if err != nil {
		s.fail(w, http.StatusInternalServerError, err)
		return
	}
	s.respond(w, http.StatusCreated, written)
}

func (s *Server) respond(w http.ResponseWriter, code int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("response encode failed", "err", err)
	}
}

func (s *Server) fail(w http.ResponseWriter, code int, err error) {
	if code >= http.StatusInternalServerError {
		s.logger.Error("request failed", "err", err)
	} else {
		s.logger.Warn("request rejected", "err", err)
	}
	s.respond(w, code, map[string]string{"error": err.Error()})
}

// failByKind maps domain sentinels onto status codes.
func (s *Server) failByKind(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrRunNotFound),
		errors.Is(err, domain.ErrProposalNotFound):
		s.fail(w, http.StatusNotFound, err)
	default:
		s.fail(w, http.StatusInternalServerError, err)
	}
}
