package api

import (
	"encoding/json"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"

	"offerwall-engine/internal/engine"
)

// ClickHandler maps HTTP click requests onto the resolution engine and
// turns outcomes into redirects.
type ClickHandler struct {
	Resolver *engine.Resolver
}

func NewClickHandler(resolver *engine.Resolver) *ClickHandler {
	return &ClickHandler{Resolver: resolver}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type errorResponse struct {
	Error string `json:"error"`
}

// Click handles GET /c/{offerID}. The subid query parameter carries the
// affiliate sub-identifier; everything else comes from the request itself.
func (h *ClickHandler) Click(w http.ResponseWriter, r *http.Request) {
	offerID := chi.URLParam(r, "offerID")
	if offerID == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "missing offer id"})
		return
	}

	outcome := h.Resolver.ResolveClick(
		r.Context(),
		offerID,
		clientIP(r),
		r.URL.Query().Get("subid"),
		r.UserAgent(),
		r.Referer(),
	)

	switch outcome.State {
	case engine.OutcomeNotFound:
		writeJSON(w, http.StatusNotFound, errorResponse{Error: "offer not found"})

	case engine.OutcomeBlocked:
		if outcome.Geo.RedirectURL != "" {
			http.Redirect(w, r, outcome.Geo.RedirectURL, http.StatusFound)
			return
		}
		writeJSON(w, http.StatusForbidden, errorResponse{Error: "offer not available in your country"})

	case engine.OutcomeRedirect:
		w.Header().Set("Cache-Control", "private, max-age=0")
		http.Redirect(w, r, outcome.Result.DestinationURL, http.StatusFound)

	default:
		writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: "offer unavailable"})
	}
}

// clientIP strips the port from RemoteAddr; the RealIP middleware has
// already substituted forwarded addresses.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
