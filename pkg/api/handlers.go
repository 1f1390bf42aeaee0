package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/Moziba-Labs/likelemba/core/pkg/caution"
	"github.com/Moziba-Labs/likelemba/core/pkg/gateway"
	"github.com/Moziba-Labs/likelemba/core/pkg/scoring"
	"github.com/Moziba-Labs/likelemba/core/pkg/sweep"
	"github.com/Moziba-Labs/likelemba/core/pkg/tontine"
)

// Server is the HTTP surface of the collection engine.
type Server struct {
	runner     *sweep.Runner
	reconciler *gateway.Reconciler
	scorer     *scoring.Scorer
	cautions   *caution.Manager
	tontines   tontine.Store
	logger     *slog.Logger
}

func NewServer(runner *sweep.Runner, reconciler *gateway.Reconciler, scorer *scoring.Scorer, cautions *caution.Manager, tontines tontine.Store) *Server {
	return &Server{
		runner:     runner,
		reconciler: reconciler,
		scorer:     scorer,
		cautions:   cautions,
		tontines:   tontines,
		logger:     slog.Default().With("component", "api"),
	}
}

// HandleHealth handles /health.
func (s *Server) HandleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// HandleSweep handles POST /internal/sweep, the scheduler trigger. No
// request body; the caller is authenticated by the shared-secret
// middleware.
func (s *Server) HandleSweep(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	summary, err := s.runner.Run(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(summary)
}

// HandleGatewayWebhook handles POST /webhooks/gateway: asynchronous
// payment and payout results.
func (s *Server) HandleGatewayWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var ev gateway.Event
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		WriteBadRequest(w, "Invalid event body")
		return
	}
	if ev.Reference == "" {
		WriteBadRequest(w, "Missing event reference")
		return
	}

	res, err := s.reconciler.Apply(r.Context(), ev)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(res)
}

// HandleScore handles GET /scores?user_id=...
func (s *Server) HandleScore(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteBadRequest(w, "Missing required query parameter: user_id")
		return
	}

	score, err := s.scorer.Score(r.Context(), userID)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(score)
}

// HandleEligibility handles GET /eligibility?user_id=... The reason
// code distinguishes a low score from unpaid penalties from a missing
// card so the product can explain each case.
func (s *Server) HandleEligibility(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	userID := r.URL.Query().Get("user_id")
	if userID == "" {
		WriteBadRequest(w, "Missing required query parameter: user_id")
		return
	}

	elig, err := s.scorer.VerifierEligibilite(r.Context(), userID)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(elig)
}

// restitutionRequest asks for a member's caution back, normally at fund
// completion.
type restitutionRequest struct {
	UserID string `json:"user_id"`
	FundID string `json:"fund_id"`
}

// HandleRestitution handles POST /operator/restitutions, guarded by the
// operator token middleware.
func (s *Server) HandleRestitution(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		WriteMethodNotAllowed(w)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	var req restitutionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		WriteBadRequest(w, "Invalid request body")
		return
	}
	if req.UserID == "" || req.FundID == "" {
		WriteBadRequest(w, "Missing required fields: user_id, fund_id")
		return
	}
	if _, err := s.tontines.GetFund(r.Context(), req.FundID); err != nil {
		if errors.Is(err, tontine.ErrFundNotFound) {
			WriteNotFound(w, "Unknown fund")
			return
		}
		WriteInternal(w, err)
		return
	}

	c, err := s.cautions.Restituer(r.Context(), req.UserID, req.FundID)
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if c == nil {
		// Nothing blocked for the pair: restitution tolerates members
		// who never posted a caution.
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "no_active_caution"})
		return
	}
	_ = json.NewEncoder(w).Encode(c)
}

// HandleSweepPreview handles GET /operator/sweeps/preview: what the
// next sweep would do today, with no side effects.
func (s *Server) HandleSweepPreview(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		WriteMethodNotAllowed(w)
		return
	}

	preview, err := s.runner.Preview(r.Context())
	if err != nil {
		WriteInternal(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(preview)
}

// Routes mounts every handler on a fresh mux. Auth middleware is
// applied by the caller, which knows the secrets.
func (s *Server) Routes(sweepHandler, restitutionHandler, previewHandler http.Handler) *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.HandleHealth)
	mux.Handle("/internal/sweep", sweepHandler)
	mux.HandleFunc("/webhooks/gateway", s.HandleGatewayWebhook)
	mux.HandleFunc("/scores", s.HandleScore)
	mux.HandleFunc("/eligibility", s.HandleEligibility)
	mux.Handle("/operator/restitutions", restitutionHandler)
	mux.Handle("/operator/sweeps/preview", previewHandler)
	return mux
}
