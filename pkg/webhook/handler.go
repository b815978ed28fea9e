// Package webhook implements component H: the control webhook the model
// provider (or an operator) calls to fetch or change the realtime session
// defaults (spec.md §4.8). Two endpoints: the unauthenticated-by-IP,
// HMAC-or-bearer-guarded session-update feed at /control, and the admin
// settings endpoint at /control/settings.
package webhook

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/pkg/auth"
	"github.com/birddigital/voicebridge/pkg/controlplane"
	"github.com/birddigital/voicebridge/pkg/sessionconfig"
)

// hmacTolerance bounds how old a signed request's timestamp may be
// (spec.md §4.8).
const hmacTolerance = 300

// Handler serves the control webhook and admin settings endpoints.
type Handler struct {
	log          zerolog.Logger
	cp           *controlplane.State
	hmacSecret   string
	adminSecret  string
}

// Config configures a Handler.
type Config struct {
	Log         zerolog.Logger
	ControlPlane *controlplane.State
	HMACSecret  string
	AdminSecret string
}

// NewHandler builds a Handler from cfg.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		log:         cfg.Log,
		cp:          cfg.ControlPlane,
		hmacSecret:  cfg.HMACSecret,
		adminSecret: cfg.AdminSecret,
	}
}

// controlResponse is the session.update event bundle the webhook returns
// so the caller can replay it as the session's current configuration.
type controlResponse struct {
	Events []map[string]any `json:"events"`
}

// ServeControl handles both GET (diagnostics) and POST (signed fetch) on
// /control. POST requires either a bearer token or the HMAC envelope
// (timestamp + "." + body signed with hmacSecret); GET requires neither,
// since it returns no secret material, only the current session shape.
func (h *Handler) ServeControl(w http.ResponseWriter, r *http.Request) {
	if r.Method == http.MethodPost {
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}
		if !h.verifyWebhookAuth(r, body) {
			http.Error(w, "unauthorized", http.StatusUnauthorized)
			return
		}
	} else if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	session := h.cp.Get()
	sessionMap, err := sessionToMap(session)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	update := map[string]any{"type": "session.update", "session": sessionMap}

	writeJSON(w, http.StatusOK, controlResponse{Events: []map[string]any{update}})
}

func (h *Handler) verifyWebhookAuth(r *http.Request, body []byte) bool {
	if bearer := bearerToken(r); bearer != "" && auth.BearerMatches(bearer, h.hmacSecret) {
		return true
	}

	timestamp := r.Header.Get("X-Webhook-Timestamp")
	signature := r.Header.Get("X-Webhook-Signature")
	return auth.VerifyHMAC(h.hmacSecret, timestamp, body, signature, hmacTolerance, time.Now())
}

// ServeSettings handles GET (read current overrides) and POST (write a new
// override, or clear it by posting an empty body) on /control/settings.
// Both require an admin bearer token (§4.8's 32-character-minimum rule).
func (h *Handler) ServeSettings(w http.ResponseWriter, r *http.Request) {
	if !auth.AdminBearerMatches(bearerToken(r), h.adminSecret) {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.Method {
	case http.MethodGet:
		session := h.cp.Get()
		writeJSON(w, http.StatusOK, map[string]any{
			"session":      session,
			"has_override": h.cp.HasOverride(),
		})

	case http.MethodPost:
		body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
		if err != nil {
			http.Error(w, "cannot read body", http.StatusBadRequest)
			return
		}
		if len(body) == 0 {
			h.cp.ClearOverride()
			w.WriteHeader(http.StatusNoContent)
			return
		}

		var sess sessionconfig.Session
		if err := json.Unmarshal(body, &sess); err != nil {
			http.Error(w, "invalid session payload", http.StatusBadRequest)
			return
		}
		if err := h.cp.SetOverride(sess); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)

	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func bearerToken(r *http.Request) string {
	const prefix = "Bearer "
	h := r.Header.Get("Authorization")
	if len(h) > len(prefix) && h[:len(prefix)] == prefix {
		return h[len(prefix):]
	}
	return ""
}

func sessionToMap(s sessionconfig.Session) (map[string]any, error) {
	b, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		return nil, err
	}
	return m, nil
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
