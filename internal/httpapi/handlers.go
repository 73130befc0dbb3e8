// Package httpapi wires the LNURL-withdraw and provisioning endpoints
// onto a chi router, translating cardauth and registration errors into
// the JSON error shape LNURLw wallets and the Bolt Card programmer app
// expect.
package httpapi

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"lnurlw-boltcard/internal/cardauth"
	"lnurlw-boltcard/internal/registration"
)

// Handlers holds the services the HTTP layer delegates to.
type Handlers struct {
	Cards   *cardauth.Service
	Reg     *registration.Service
	Log     *zap.Logger
}

// NewHandlers builds a Handlers.
func NewHandlers(cards *cardauth.Service, reg *registration.Service, log *zap.Logger) *Handlers {
	return &Handlers{Cards: cards, Reg: reg, Log: log}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

type errorBody struct {
	Status string `json:"status"`
	Reason string `json:"reason"`
}

func writeError(w http.ResponseWriter, status int, reason string) {
	writeJSON(w, status, errorBody{Status: "ERROR", Reason: reason})
}

// cardauthStatus maps a cardauth.Kind to the HTTP status the LNURLw spec
// expects: every caller-facing failure is 400 with an {"status":"ERROR"}
// body, and only an internal error is a 500.
func cardauthStatus(kind cardauth.Kind) int {
	if kind == cardauth.KindInternalError {
		return http.StatusInternalServerError
	}
	return http.StatusBadRequest
}

func registrationStatus(kind registration.Kind) int {
	switch kind {
	case registration.KindNotFound:
		return http.StatusNotFound
	case registration.KindInternalError:
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (h *Handlers) writeCardauthErr(w http.ResponseWriter, err error) {
	var cerr *cardauth.Error
	if e, ok := err.(*cardauth.Error); ok {
		cerr = e
	}
	if cerr == nil {
		h.Log.Error("unexpected cardauth error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if cerr.Kind == cardauth.KindInternalError {
		h.Log.Error("cardauth internal error", zap.Error(err), zap.String("kind", string(cerr.Kind)))
	}
	writeError(w, cardauthStatus(cerr.Kind), cerr.Reason)
}

func (h *Handlers) writeRegistrationErr(w http.ResponseWriter, err error) {
	var rerr *registration.Error
	if e, ok := err.(*registration.Error); ok {
		rerr = e
	}
	if rerr == nil {
		h.Log.Error("unexpected registration error", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if rerr.Kind == registration.KindInternalError {
		h.Log.Error("registration internal error", zap.Error(err), zap.String("kind", string(rerr.Kind)))
	}
	writeError(w, registrationStatus(rerr.Kind), rerr.Reason)
}

// HandleTap serves GET /ln and GET /ln/{card_id}: a card's tap, encoded
// as the p (encrypted payload) and c (CMAC tag) query parameters.
func (h *Handlers) HandleTap(w http.ResponseWriter, r *http.Request) {
	p := r.URL.Query().Get("p")
	c := r.URL.Query().Get("c")

	var cardID *int64
	if raw := chi.URLParam(r, "card_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid card_id")
			return
		}
		cardID = &id
	}

	resp, err := h.Cards.Tap(r.Context(), p, c, cardID)
	if err != nil {
		h.writeCardauthErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCallback serves GET /ln/callback: a wallet submitting a bolt11
// invoice against a previously minted session token.
func (h *Handlers) HandleCallback(w http.ResponseWriter, r *http.Request) {
	k1 := r.URL.Query().Get("k1")
	pr := r.URL.Query().Get("pr")

	result, err := h.Cards.Callback(r.Context(), k1, pr)
	if err != nil {
		h.writeCardauthErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

// HandleCardRegistration serves GET /new?a=<code>: the programmer app
// redeeming a one-time provisioning code for the card's five raw keys.
func (h *Handlers) HandleCardRegistration(w http.ResponseWriter, r *http.Request) {
	code := r.URL.Query().Get("a")

	resp, err := h.Reg.GetCardRegistration(r.Context(), code)
	if err != nil {
		h.writeRegistrationErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleCreateCard serves POST /api/createboltcard: an operator
// provisioning a new card.
func (h *Handlers) HandleCreateCard(w http.ResponseWriter, r *http.Request) {
	var req registration.CreateCardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "malformed request body")
		return
	}

	resp, err := h.Reg.CreateCard(r.Context(), req)
	if err != nil {
		h.writeRegistrationErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

// HandleHealthz serves GET /healthz for liveness probes.
func (h *Handlers) HandleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
