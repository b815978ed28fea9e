package twiml

import (
	"context"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/pkg/auth"
	"github.com/birddigital/voicebridge/pkg/controlplane"
	"github.com/birddigital/voicebridge/pkg/credential"
)

const defaultCredentialExpirySeconds = 600

// Handler serves /twiml and /twiml/action (spec.md §4.5, §6).
type Handler struct {
	log zerolog.Logger

	minter *credential.Minter
	cp     *controlplane.State

	streamBaseURL string // Bridge WebSocket base, e.g. wss://host/stream/twilio
	sipGateway    string
	defaultMode   Mode

	signingSecret string // carrier-signature shared secret; empty disables verification
}

// Config is the Handler's construction input.
type Config struct {
	Log           zerolog.Logger
	Minter        *credential.Minter
	ControlPlane  *controlplane.State
	StreamBaseURL string
	SIPGateway    string
	DefaultMode   Mode
	SigningSecret string
}

// NewHandler builds a Handler.
func NewHandler(cfg Config) *Handler {
	return &Handler{
		log:           cfg.Log,
		minter:        cfg.Minter,
		cp:            cfg.ControlPlane,
		streamBaseURL: cfg.StreamBaseURL,
		sipGateway:    cfg.SIPGateway,
		defaultMode:   cfg.DefaultMode,
		signingSecret: cfg.SigningSecret,
	}
}

// ServeTwiML handles GET/POST /twiml.
func (h *Handler) ServeTwiML(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form encoding", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r) {
		body, _ := BuildForbidden()
		writeXML(w, http.StatusForbidden, body)
		return
	}

	mode := Mode(r.Form.Get("mode"))
	if mode == "" {
		mode = h.defaultMode
	}
	if mode == "" {
		mode = ModeSIP
	}

	credToken := r.Form.Get("credential")
	if credToken == "" {
		minted, err := h.mintForRequest(r.Context(), r)
		if err != nil {
			h.log.Warn().Err(err).Msg("twiml: credential mint failed")
			body, _ := BuildMintFailure()
			writeXML(w, http.StatusOK, body)
			return
		}
		credToken = minted
	}

	var doc []byte
	var err error

	switch mode {
	case ModeStream:
		url := EmbedCredentialInPath(h.streamBaseURL, credToken)
		doc, err = BuildStream(url)
	case ModeSIP:
		target := SIPTarget{
			Token:     credToken,
			Gateway:   h.sipGateway,
			Scheme:    r.Form.Get("scheme"),
			Transport: r.Form.Get("transport"),
		}
		if portStr := r.Form.Get("port"); portStr != "" {
			if port, perr := strconv.Atoi(portStr); perr == nil && port > 0 && port <= 65535 {
				target.Port = port
			}
		}
		doc, err = BuildSIP(target)
	case ModeSimple:
		doc, err = BuildSimple("This service is currently available by direct connection only.")
	default:
		doc, err = BuildSimple("Unsupported call mode.")
	}

	if err != nil {
		h.log.Error().Err(err).Msg("twiml: document build failed")
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeXML(w, http.StatusOK, doc)
}

// ServeAction handles POST /twiml/action, the post-dial continuation used
// when a SIP attempt fails and the carrier falls back to streaming mode.
func (h *Handler) ServeAction(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		http.Error(w, "bad form encoding", http.StatusBadRequest)
		return
	}

	if !h.verifySignature(r) {
		body, _ := BuildForbidden()
		writeXML(w, http.StatusForbidden, body)
		return
	}

	minted, err := h.mintForRequest(r.Context(), r)
	if err != nil {
		h.log.Warn().Err(err).Msg("twiml action: credential mint failed")
		body, _ := BuildMintFailure()
		writeXML(w, http.StatusOK, body)
		return
	}

	url := EmbedCredentialInPath(h.streamBaseURL, minted)
	doc, err := BuildStream(url)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeXML(w, http.StatusOK, doc)
}

func (h *Handler) mintForRequest(ctx context.Context, r *http.Request) (string, error) {
	session := h.cp.Get()

	payload := map[string]any{
		"type": "realtime",
	}
	if session.Model != "" {
		payload["model"] = session.Model
	}
	if instructions := r.Form.Get("instructions"); instructions != "" {
		payload["instructions"] = instructions
	} else if session.Instructions != "" {
		payload["instructions"] = session.Instructions
	}
	if promptID := r.Form.Get("prompt_id"); promptID != "" {
		promptEntry := map[string]any{"id": promptID}
		if v := r.Form.Get("prompt_version"); v != "" {
			promptEntry["version"] = v
		}
		payload["prompt"] = promptEntry
		delete(payload, "instructions")
	} else if session.Prompt != nil {
		payload["prompt"] = map[string]any{"id": session.Prompt.ID, "version": session.Prompt.Version}
		delete(payload, "instructions")
	}

	res, err := h.minter.Mint(ctx, credential.Request{
		ExpiresAfterSeconds: defaultCredentialExpirySeconds,
		Session:             payload,
	})
	if err != nil {
		return "", err
	}
	return res.Token, nil
}

// verifySignature checks the carrier signature when both a header and a
// shared secret are configured; otherwise it passes the request through
// unauthenticated, per spec.md §4.5 ("if … are present").
func (h *Handler) verifySignature(r *http.Request) bool {
	header := r.Header.Get("X-Carrier-Signature")
	if h.signingSecret == "" || header == "" {
		return true
	}

	scheme := r.Header.Get("X-Forwarded-Proto")
	if scheme == "" {
		scheme = "https"
	}
	fullURL := scheme + "://" + r.Host + r.URL.Path
	return auth.VerifyCarrierSignature(h.signingSecret, fullURL, r.Form, header)
}

func writeXML(w http.ResponseWriter, status int, body []byte) {
	w.Header().Set("Content-Type", "application/xml")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}
