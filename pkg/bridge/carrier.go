package bridge

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

// carrierUpgrader configures the upgrade from the carrier's media-stream
// HTTP request to a WebSocket connection (spec.md §4.7). CheckOrigin allows
// the carrier's infrastructure, which does not send a browser-style Origin
// header at all.
var carrierUpgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
	Subprotocols:    []string{"audio.g711-ulaw.8khz"},
}

// carrierStartFrame is the "start" event the carrier sends once per call,
// identifying the stream and optionally carrying a base64-JSON custom
// parameters blob with session overrides.
type carrierStartFrame struct {
	Event string `json:"event"`
	Start struct {
		StreamSID        string            `json:"streamSid"`
		CallSID          string            `json:"callSid"`
		CustomParameters map[string]string `json:"customParameters"`
	} `json:"start"`
}

// carrierMediaFrame is the "media" event carrying one 20ms chunk of
// base64-encoded G.711 μ-law audio.
type carrierMediaFrame struct {
	Event string `json:"event"`
	Media struct {
		Payload   string `json:"payload"`
		Timestamp string `json:"timestamp"`
	} `json:"media"`
}

// carrierMarkFrame echoes a previously sent mark name once the carrier has
// finished playing audio up to that point.
type carrierMarkFrame struct {
	Event string `json:"event"`
	Mark  struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// outboundMediaFrame is the server-to-carrier audio frame.
type outboundMediaFrame struct {
	Event    string `json:"event"`
	StreamSID string `json:"streamSid"`
	Media    struct {
		Payload string `json:"payload"`
	} `json:"media"`
}

// outboundMarkFrame requests a playback-position marker.
type outboundMarkFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
	Mark      struct {
		Name string `json:"name"`
	} `json:"mark"`
}

// outboundClearFrame tells the carrier to discard any buffered outbound
// audio immediately (barge-in).
type outboundClearFrame struct {
	Event     string `json:"event"`
	StreamSID string `json:"streamSid"`
}

func encodeOutboundMedia(streamSID string, payload []byte) ([]byte, error) {
	f := outboundMediaFrame{Event: "media", StreamSID: streamSID}
	f.Media.Payload = base64.StdEncoding.EncodeToString(payload)
	return json.Marshal(f)
}

func encodeOutboundMark(streamSID, name string) ([]byte, error) {
	f := outboundMarkFrame{Event: "mark", StreamSID: streamSID}
	f.Mark.Name = name
	return json.Marshal(f)
}

func encodeOutboundClear(streamSID string) ([]byte, error) {
	f := outboundClearFrame{Event: "clear", StreamSID: streamSID}
	return json.Marshal(f)
}

// decodeCarrierEvent sniffs the "event" discriminator and decodes the frame
// into the matching struct. It returns the event name and the decoded
// value as an any so callers can type-switch.
func decodeCarrierEvent(raw []byte) (string, any, error) {
	var probe struct {
		Event string `json:"event"`
	}
	if err := json.Unmarshal(raw, &probe); err != nil {
		return "", nil, fmt.Errorf("decode carrier frame: %w", err)
	}

	switch probe.Event {
	case "start":
		var f carrierStartFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", nil, fmt.Errorf("decode start frame: %w", err)
		}
		return "start", f, nil
	case "media":
		var f carrierMediaFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", nil, fmt.Errorf("decode media frame: %w", err)
		}
		return "media", f, nil
	case "mark":
		var f carrierMarkFrame
		if err := json.Unmarshal(raw, &f); err != nil {
			return "", nil, fmt.Errorf("decode mark frame: %w", err)
		}
		return "mark", f, nil
	case "stop":
		return "stop", nil, nil
	default:
		return probe.Event, nil, nil
	}
}

// mediaTimestampMs parses the carrier's decimal-string media timestamp,
// defaulting to 0 on a malformed or absent value rather than failing the
// whole call over a single bad frame.
func mediaTimestampMs(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// extractCredential implements the three-step lookup order spec.md §4.7
// names: URL path segment (URL-decoded), then query parameter "secret",
// then form-encoded body fallback. Returns "" if none are present.
func extractCredential(r *http.Request) string {
	if seg := lastPathSegment(r.URL.Path); seg != "" {
		if decoded, err := url.PathUnescape(seg); err == nil && decoded != "" {
			return decoded
		}
	}

	if v := r.URL.Query().Get("secret"); v != "" {
		return v
	}

	if ct := r.Header.Get("Content-Type"); ct != "" {
		if mt, _, err := mime.ParseMediaType(ct); err == nil && mt == "application/x-www-form-urlencoded" {
			if err := r.ParseForm(); err == nil {
				if v := r.PostForm.Get("secret"); v != "" {
					return v
				}
			}
		}
	}

	return ""
}

// lastPathSegment returns the final path segment when it follows at least
// one route segment ("/stream/<credential>"); a bare route such as
// "/stream/" carries no credential segment.
func lastPathSegment(path string) string {
	trimmed := strings.Trim(path, "/")
	parts := strings.Split(trimmed, "/")
	if len(parts) < 2 {
		return ""
	}
	return parts[len(parts)-1]
}

// upgradeCarrierConnection upgrades r to a WebSocket, echoing back the
// first subprotocol the carrier requested, and logs the negotiated
// protocol for diagnosis.
func upgradeCarrierConnection(w http.ResponseWriter, r *http.Request, log zerolog.Logger) (*websocket.Conn, error) {
	if !websocket.IsWebSocketUpgrade(r) {
		http.Error(w, "upgrade required", http.StatusUpgradeRequired)
		return nil, fmt.Errorf("request is not a websocket upgrade")
	}

	upgrader := carrierUpgrader
	if requested := websocket.Subprotocols(r); len(requested) > 0 {
		upgrader.Subprotocols = []string{requested[0]}
	}
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("carrier upgrade: %w", err)
	}

	log.Debug().Str("subprotocol", conn.Subprotocol()).Msg("carrier websocket upgraded")
	return conn, nil
}
