package transport

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	apperrors "github.com/louisbranch/matchwarden/internal/platform/errors"
	"github.com/louisbranch/matchwarden/internal/platform/httpx"
	"github.com/louisbranch/matchwarden/internal/services/relay/match"
)

const maxCreateBodyBytes = 64 << 10

type createMatchRequest struct {
	MatchID           string  `json:"match_id,omitempty"`
	Participants      int     `json:"participants"`
	ConsensusFraction float64 `json:"consensus_fraction,omitempty"`
	FixedMinimum      int     `json:"fixed_minimum,omitempty"`
	TestMode          bool    `json:"test_mode,omitempty"`
}

// MatchResponse describes a running match.
type MatchResponse struct {
	MatchID         string              `json:"match_id"`
	Participants    int                 `json:"participants"`
	MinimumAgreeing int                 `json:"minimum_agreeing"`
	Joined          []match.Participant `json:"joined"`
	Outcome         *match.Outcome      `json:"outcome,omitempty"`
}

// NewHandler returns the relay HTTP router.
func NewHandler(h *Hub) http.Handler {
	r := chi.NewRouter()
	r.Use(httpx.RequestID(), httpx.RecoverPanic())
	r.Get("/healthz", h.handleHealth)
	r.Post("/matches", h.handleCreateMatch)
	r.Get("/matches/{matchID}", h.handleGetMatch)
	r.Get("/matches/{matchID}/ws", h.handleSocket)
	return r
}

func (h *Hub) handleHealth(w http.ResponseWriter, _ *http.Request) {
	_ = httpx.WriteJSON(w, http.StatusOK, map[string]any{"status": "ok", "matches": h.Len()})
}

// authorizeCreate checks the bearer shared secret carried by match creators.
func (h *Hub) authorizeCreate(w http.ResponseWriter, r *http.Request) bool {
	secret, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
	if !ok || strings.TrimSpace(secret) == "" {
		w.Header().Set("WWW-Authenticate", `Bearer realm="matchwarden"`)
		_ = httpx.WriteJSON(w, http.StatusUnauthorized, httpx.ErrorBody{Error: "shared secret is required", Code: string(apperrors.CodePermissionDenied)})
		return false
	}
	if subtle.ConstantTimeCompare([]byte(strings.TrimSpace(secret)), []byte(h.secret)) != 1 {
		h.logf("SECURITY match create denied remote=%s request_id=%s", r.RemoteAddr, r.Header.Get(httpx.RequestIDHeader))
		httpx.WriteError(w, apperrors.New(apperrors.CodePermissionDenied, "shared secret mismatch"))
		return false
	}
	return true
}

func (h *Hub) handleCreateMatch(w http.ResponseWriter, r *http.Request) {
	if !h.authorizeCreate(w, r) {
		return
	}
	var req createMatchRequest
	decoder := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxCreateBodyBytes))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&req); err != nil {
		httpx.WriteError(w, apperrors.Wrap(apperrors.CodeValidationFailed, "decode match request", err))
		return
	}
	session, err := h.CreateMatch(req.MatchID, match.Policy{
		Participants:      req.Participants,
		ConsensusFraction: req.ConsensusFraction,
		FixedMinimum:      req.FixedMinimum,
		TestMode:          req.TestMode,
	})
	switch {
	case errors.Is(err, match.ErrMatchExists):
		_ = httpx.WriteJSON(w, http.StatusConflict, httpx.ErrorBody{Error: err.Error(), Code: string(apperrors.CodeValidationFailed)})
		return
	case err != nil:
		httpx.WriteError(w, apperrors.Wrap(apperrors.CodeValidationFailed, err.Error(), err))
		return
	}
	_ = httpx.WriteJSON(w, http.StatusCreated, describe(session))
}

func (h *Hub) handleGetMatch(w http.ResponseWriter, r *http.Request) {
	session, err := h.Session(chi.URLParam(r, "matchID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	_ = httpx.WriteJSON(w, http.StatusOK, describe(session))
}

func (h *Hub) handleSocket(w http.ResponseWriter, r *http.Request) {
	rm, err := h.room(chi.URLParam(r, "matchID"))
	if err != nil {
		httpx.WriteError(w, err)
		return
	}
	h.serveSocket(rm, w, r)
}

func describe(session *match.Session) MatchResponse {
	resp := MatchResponse{
		MatchID:         session.ID,
		Participants:    session.Policy.Participants,
		MinimumAgreeing: session.Policy.MinimumAgreeing(),
		Joined:          session.Participants(),
	}
	if outcome, ok := session.Outcome(); ok {
		resp.Outcome = &outcome
	}
	return resp
}
