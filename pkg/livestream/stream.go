// Package livestream implements component I: a server-sent-events feed of
// one call's transcript, tailing the transcript store (B) at a short
// poll interval (spec.md §4.9).
package livestream

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/birddigital/voicebridge/pkg/transcript"
)

// pollInterval bounds how stale a live transcript viewer's view of a call
// can be; spec.md §4.9 requires new entries to appear within 700ms.
const pollInterval = 500 * time.Millisecond

// keepaliveInterval is how often a comment line is sent to hold the
// connection open across idle proxies.
const keepaliveInterval = 15 * time.Second

// Streamer serves the live-transcript SSE endpoint and accepts pushed
// entries from callers that want to inject a transcript line out of band
// (e.g. for testing, or a sidecar transcription source).
type Streamer struct {
	log   zerolog.Logger
	store *transcript.Store
}

// New builds a Streamer backed by store.
func New(log zerolog.Logger, store *transcript.Store) *Streamer {
	return &Streamer{log: log, store: store}
}

// ServeSSE handles GET /live/{key}: it tails store for key starting at
// cursor 0, writing each new entry as its own SSE event ("event: line"
// followed by a "data:" line), and exits cleanly when the client
// disconnects.
func (s *Streamer) ServeSSE(w http.ResponseWriter, r *http.Request, key string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	fmt.Fprintf(w, "event: line\ndata: {\"type\":\"connected\",\"call\":%q}\n\n", key)
	flusher.Flush()

	poll := time.NewTicker(pollInterval)
	defer poll.Stop()
	keepalive := time.NewTicker(keepaliveInterval)
	defer keepalive.Stop()

	var cursor int64
	for {
		select {
		case <-ctx.Done():
			return

		case <-poll.C:
			entries, next, err := s.store.Range(ctx, key, cursor)
			if err != nil {
				s.log.Warn().Err(err).Str("call", key).Msg("live transcript range failed")
				continue
			}
			if len(entries) == 0 {
				continue
			}
			cursor = next
			for _, e := range entries {
				payload, err := json.Marshal(e)
				if err != nil {
					continue
				}
				if _, err := fmt.Fprintf(w, "event: line\ndata: %s\n\n", payload); err != nil {
					return
				}
			}
			flusher.Flush()

		case <-keepalive.C:
			if _, err := fmt.Fprint(w, ": keepalive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

// pushRequest is the body ServePush accepts.
type pushRequest struct {
	Role  string `json:"role"`
	Text  string `json:"text"`
	Final bool   `json:"final"`
}

// ServePush handles POST /live/{key}/push, appending one entry to key's
// transcript so out-of-band sources (or tests) can feed the live stream.
func (s *Streamer) ServePush(w http.ResponseWriter, r *http.Request, key string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req pushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}
	if req.Role == "" || req.Text == "" {
		http.Error(w, "role and text are required", http.StatusBadRequest)
		return
	}

	entry := transcript.Entry{Role: req.Role, Text: req.Text, Final: req.Final, Timestamp: time.Now()}
	if err := s.store.Append(r.Context(), key, entry); err != nil {
		http.Error(w, "append failed", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
