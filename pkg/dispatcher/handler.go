package dispatcher

import (
	"encoding/json"
	"net/http"

	"github.com/birddigital/voicebridge/internal/bridgeerr"
)

// placeRequest is POST /calls' body.
type placeRequest struct {
	To                  string `json:"to"`
	From                string `json:"from"`
	ControlDocumentURL  string `json:"control_document_url"`
	Record              bool   `json:"record"`
	StatusCallbackURL   string `json:"status_callback_url"`
}

// Handler exposes the dispatcher over HTTP: POST /calls places a call, GET
// /calls lists recent ones.
type Handler struct {
	d *Dispatcher
}

// NewHandler wraps d for HTTP use.
func NewHandler(d *Dispatcher) *Handler {
	return &Handler{d: d}
}

// ServeHTTP dispatches by method.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		h.servePlace(w, r)
	case http.MethodGet:
		h.serveList(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *Handler) servePlace(w http.ResponseWriter, r *http.Request) {
	var req placeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	rec, err := h.d.Place(r.Context(), req.To, req.From, req.ControlDocumentURL, req.Record, req.StatusCallbackURL)
	if err != nil {
		writeDispatchError(w, err)
		return
	}

	writeJSON(w, http.StatusCreated, rec)
}

func (h *Handler) serveList(w http.ResponseWriter, r *http.Request) {
	limit := 50
	records, err := h.d.List(r.Context(), limit)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, records)
}

func writeDispatchError(w http.ResponseWriter, err error) {
	if be, ok := bridgeerr.As(err); ok && be.Kind == bridgeerr.KindInputInvalid {
		http.Error(w, be.Error(), http.StatusBadRequest)
		return
	}
	http.Error(w, err.Error(), http.StatusBadGateway)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
